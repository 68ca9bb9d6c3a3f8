// Command consumer attaches to the buffer created by producer and reads the
// configured number of items from it. Start it after the producer.
package main

import (
	"os"

	"github.com/srediag/shm-bbuf/internal/cli"
)

func main() {
	os.Exit(cli.Main(cli.ModeConsumer))
}
