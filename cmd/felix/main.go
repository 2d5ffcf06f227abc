package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/systmms/felix/cmd/felix/commands"
	"github.com/systmms/felix/internal/config"
	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	secure.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", ferrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &config.Config{}
	root := commands.NewRootCommand(cfg, commands.DefaultDeps(),
		fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date))

	return root.ExecuteContext(ctx)
}
