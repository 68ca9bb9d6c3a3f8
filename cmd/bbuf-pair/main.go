// Command bbuf-pair runs producer and consumer in one process over an
// in-process namespace.
package main

import (
	"os"

	"github.com/srediag/shm-bbuf/internal/cli"
)

func main() {
	os.Exit(cli.Main(cli.ModePair))
}
