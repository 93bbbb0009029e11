// Command docarag answers questions over an indexed document collection.
// It provides a CLI (via Cobra) for single queries, raw vector search and
// loading chunk files, plus an HTTP server exposing the same operations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/54b3r/docarag-go/cmd/docarag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := commands.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
