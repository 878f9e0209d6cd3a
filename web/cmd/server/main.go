// Package main runs the point cloud viewer server. It accepts the same flags as `meshcloud serve`.
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

	args := append([]string{os.Args[0], "serve"}, os.Args[1:]...)
	if err := cli.Run(ctx, cli.NewApp(os.Stdout, os.Stderr), args); err != nil {
		cli.PrintError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
