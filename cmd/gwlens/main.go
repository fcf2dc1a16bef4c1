package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roman-kulish/gw-lensing/cmd/gwlens/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:           "gwlens",
		Short:         "Simulate strong gravitational lensing of gravitational-wave strain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(app.NewRunCommand(logger, &logLevel), app.NewHistoryCommand(logger))

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
