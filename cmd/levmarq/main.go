package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/LynnColeArt/levmarq/cmd/levmarq/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cli.New().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
