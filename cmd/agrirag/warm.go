package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWarmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Load or build every configured store",
		Long: "Loads each store from the cache, building and saving it from its knowledge sources when no usable cache exists. " +
			"Delete the cache files to force a rebuild.",
		Args: cobra.NoArgs,
		RunE: runWarm,
	}
}

func runWarm(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if len(a.manager.Stores()) == 0 {
		fmt.Fprintln(out, "No knowledge sources configured")
		return nil
	}

	warmErr := a.manager.Warm(ctx)

	failed := 0
	for _, info := range a.manager.Describe() {
		if info.Documents == 0 {
			failed++
			fmt.Fprintf(out, "  ⚠ %s: unavailable (%s)\n", info.Name, info.State)
			continue
		}
		fmt.Fprintf(out, "  ✓ %s: %d documents (dim=%d, %s)\n", info.Name, info.Documents, info.Dimension, info.State)
	}

	if warmErr != nil {
		return fmt.Errorf("%d of %d stores unavailable: %w", failed, len(a.manager.Stores()), warmErr)
	}
	fmt.Fprintln(out, "Done! Stores are ready for use.")
	return nil
}
