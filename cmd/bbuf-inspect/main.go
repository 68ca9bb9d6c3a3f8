// Command bbuf-inspect prints the state of a running producer/consumer pair
// and can remove objects left behind by a crashed run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/srediag/shm-bbuf/internal/cli"
	"github.com/srediag/shm-bbuf/internal/config"
	"github.com/srediag/shm-bbuf/pkg/lifecycle"
	"github.com/srediag/shm-bbuf/pkg/shm"
)

func main() {
	unlink := flag.Bool("unlink", false, "remove the segment and semaphores after printing them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	host, err := shm.NewHost()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.Inspect(ctx, host, cfg.Names(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !*unlink {
		return
	}

	lc, err := cfg.Lifecycle()
	if err == nil {
		var m *lifecycle.Manager
		if m, err = lifecycle.NewManager(host, lc); err == nil {
			err = m.Cleanup()
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("removed")
}
