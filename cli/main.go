package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/dashing-go/dashing/cli/commands"
	"github.com/dashing-go/dashing/cli/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := commands.Execute(ctx); err != nil {
		ui.PrintError("%v", err)
		stop()
		os.Exit(1)
	}
}
