// Command producer creates the shared buffer, writes the configured number of
// items into it, and removes it again. Settings come from BBUF_* environment
// variables.
package main

import (
	"os"

	"github.com/srediag/shm-bbuf/internal/cli"
)

func main() {
	os.Exit(cli.Main(cli.ModeProducer))
}
