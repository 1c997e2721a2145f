// Command nlq is a command-line client for the query engine: inspect a
// database schema, ingest documents and ask questions without running the
// API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultBuild).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
