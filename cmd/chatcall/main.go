// Command chatcall answers batches of chat rows through a configured provider.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(version, commit).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
