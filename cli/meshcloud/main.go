// Package main is the meshcloud command itself.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.viam.com/meshcloud/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := cli.Run(ctx, app, os.Args); err != nil {
		cli.PrintError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
