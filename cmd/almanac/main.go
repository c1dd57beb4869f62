package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/almanac/adapter/cli"
	"github.com/felixgeelhaar/almanac/internal/app"
	"github.com/felixgeelhaar/almanac/pkg/config"
)

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	var container *app.Container

	// The container is built once flags are parsed, so --dry-run and
	// --env-file apply to it.
	cli.SetLoader(func(ctx context.Context, opts cli.LoadOptions) (*cli.App, error) {
		var envFiles []string
		if opts.EnvFile != "" {
			envFiles = append(envFiles, opts.EnvFile)
		}
		cfg, err := config.Load(envFiles...)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}

		logger := app.NewLogger(cfg, "almanac", os.Stderr, opts.Verbose)
		cli.SetLogger(logger)

		c, err := app.NewContainer(ctx, cfg, logger, app.Options{DryRun: opts.DryRun})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize: %w", err)
		}
		container = c

		cliApp := cli.NewApp(c.SyncService, c.Calendar, c.Health)
		cliApp.DryRun = opts.DryRun
		return cliApp, nil
	})

	// Execute CLI
	err := cli.Execute(ctx)
	if container != nil {
		if flushErr := container.FlushEvents(ctx); flushErr != nil {
			fmt.Fprintln(os.Stderr, "failed to deliver events:", flushErr)
		}
		container.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
