package main

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danh12004/KLTN/internal/config"
	"github.com/danh12004/KLTN/pkg/embedder"
	"github.com/danh12004/KLTN/pkg/store"
)

// defaultConfigFile is picked up from the working directory when --config is not set.
const defaultConfigFile = "agrirag.yaml"

// NewRootCmd creates the root agrirag command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agrirag",
		Short:         "agrirag: knowledge retrieval for the rice advisory backend",
		Long:          "agrirag builds per-topic vector stores from agricultural knowledge files and answers nearest-chunk queries.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file (default ./"+defaultConfigFile+" if present)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newWarmCmd(),
		newQueryCmd(),
		newServeCmd(),
	)

	return root
}

// app is the wired engine shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *store.Manager
	close   func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cmd.ErrOrStderr(), cfg, verbose)
	slog.SetDefault(logger)

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, close: func() error { return nil }}

	var persister store.Persister
	switch cfg.Cache.Backend {
	case config.BackendSQLite:
		p, err := store.NewSQLitePersister(cfg.SQLitePath(), emb.ModelInfo())
		if err != nil {
			return nil, err
		}
		persister = p
		a.close = p.Close
	default:
		persister = store.NewFilePersister(cfg.StoreDir())
	}

	a.manager = store.NewManager(cfg.Definitions(), emb,
		store.WithLogger(logger),
		store.WithChunker(cfg.Chunker()),
		store.WithPersister(persister),
	)

	logger.Debug("engine configured",
		"config", path,
		"stores", len(a.manager.Stores()),
		"model", emb.ModelInfo(),
		"cache", cfg.Cache.Backend,
	)
	return a, nil
}

func newLogger(w io.Writer, cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
