// Package main is the entry point for the postsctl CLI.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/goliatone/go-query-cache/cmd/postsctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := commands.New().Execute(ctx)
	stop()

	if err != nil {
		commands.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
