package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lending-gateway/internal/app"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			container, err := app.NewServiceContainer(cfg, log)
			if err != nil {
				return err
			}
			defer container.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container.StartMaintenance(ctx, 10*time.Minute)
			if err := container.Serve(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			log.Info("👋 Server stopped")
			return nil
		},
	}
}

// commandContext gives CLI submissions a deadline and Ctrl-C cancellation.
func commandContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}
