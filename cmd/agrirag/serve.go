package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danh12004/KLTN/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Warm all stores and serve the retrieval API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "listen address (overrides server.listen)")
	cmd.Flags().Bool("no-warm", false, "skip building stores at startup")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen := a.cfg.Server.Listen
	if l, _ := cmd.Flags().GetString("listen"); l != "" {
		listen = l
	}

	if noWarm, _ := cmd.Flags().GetBool("no-warm"); !noWarm {
		// unavailable stores are retried on first request
		if err := a.manager.Warm(ctx); err != nil {
			a.logger.Warn("some stores are unavailable", "error", err)
		}
	}

	srv, err := server.New(server.Config{ListenAddr: listen, Logger: a.logger}, a.manager)
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
