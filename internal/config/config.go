package config

import (
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/danh12004/KLTN/pkg/embedder"
	ragerr "github.com/danh12004/KLTN/pkg/errors"
	"github.com/danh12004/KLTN/pkg/loader"
	"github.com/danh12004/KLTN/pkg/rag"
)

// Cache backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the top-level agrirag configuration.
type Config struct {
	VectorStoreDir   string                    `mapstructure:"vector_store_dir"`
	Embedding        EmbeddingConfig           `mapstructure:"embedding"`
	Chunking         ChunkingConfig            `mapstructure:"chunking"`
	Cache            CacheConfig               `mapstructure:"cache"`
	Server           ServerConfig              `mapstructure:"server"`
	Log              LogConfig                 `mapstructure:"log"`
	KnowledgeSources map[string][]SourceConfig `mapstructure:"knowledge_sources"`

	// baseDir anchors relative paths; it is the directory of the config file.
	baseDir string
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// ChunkingConfig controls how source text is split.
type ChunkingConfig struct {
	Size      int    `mapstructure:"size"`
	Overlap   int    `mapstructure:"overlap"`
	ItemLabel string `mapstructure:"item_label"`
}

// CacheConfig selects where built stores are persisted.
type CacheConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SourceConfig declares one knowledge source of a store.
type SourceConfig struct {
	ID       string            `mapstructure:"id"`
	Type     string            `mapstructure:"type"`
	Path     string            `mapstructure:"path"`
	Metadata map[string]string `mapstructure:"metadata"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix AGRIRAG_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("vector_store_dir", "data/vector_store")
	v.SetDefault("embedding.provider", embedder.ProviderOpenAI)
	v.SetDefault("embedding.model", embedder.DefaultOpenAIModel)
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.batch_size", embedder.DefaultBatchSize)
	v.SetDefault("chunking.size", loader.DefaultChunkSize)
	v.SetDefault("chunking.overlap", loader.DefaultOverlap)
	v.SetDefault("chunking.item_label", loader.DefaultItemLabel)
	v.SetDefault("cache.backend", BackendFile)
	v.SetDefault("cache.sqlite_path", "")
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Environment
	v.SetEnvPrefix("AGRIRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	var baseDir string
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
		baseDir = filepath.Dir(path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}
	cfg.baseDir = baseDir

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateChunking()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateSources()...)

	return errs
}

func invalid(format string, args ...any) error {
	return ragerr.Errorf(ragerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	switch strings.ToLower(c.Embedding.Provider) {
	case embedder.ProviderOpenAI, embedder.ProviderHash:
	default:
		errs = append(errs, invalid("embedding.provider must be one of [openai, hash], got %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 0 {
		errs = append(errs, invalid("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, invalid("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize))
	}

	return errs
}

func (c *Config) validateChunking() []error {
	var errs []error

	if c.Chunking.Size <= 0 {
		errs = append(errs, invalid("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 {
		errs = append(errs, invalid("chunking.overlap must not be negative, got %d", c.Chunking.Overlap))
	}

	return errs
}

func (c *Config) validateCache() []error {
	validBackends := map[string]bool{BackendFile: true, BackendSQLite: true}
	if !validBackends[c.Cache.Backend] {
		return []error{invalid("cache.backend must be one of [file, sqlite], got %q", c.Cache.Backend)}
	}
	return nil
}

func (c *Config) validateServer() []error {
	if c.Server.Listen == "" {
		return []error{invalid("server.listen must not be empty")}
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return []error{invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err)}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return []error{invalid("server.listen port must be between 0 and 65535, got %q", portStr)}
	}
	return nil
}

func (c *Config) validateLog() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, invalid("log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, invalid("log.format must be one of [text, json], got %q", c.Log.Format))
	}

	return errs
}

func (c *Config) validateSources() []error {
	var errs []error

	for _, store := range c.storeNames() {
		sources := c.KnowledgeSources[store]
		if len(sources) == 0 {
			errs = append(errs, invalid("knowledge_sources.%s must list at least one source", store))
			continue
		}

		seen := make(map[string]bool, len(sources))
		for i, src := range sources {
			if src.ID == "" {
				errs = append(errs, invalid("knowledge_sources.%s[%d].id must not be empty", store, i))
			} else if seen[src.ID] {
				errs = append(errs, invalid("knowledge_sources.%s has duplicate source id %q", store, src.ID))
			}
			seen[src.ID] = true

			if src.Path == "" {
				errs = append(errs, invalid("knowledge_sources.%s[%d].path must not be empty", store, i))
			}
			if _, ok := rag.ParseSourceType(src.Type); !ok {
				errs = append(errs, invalid("knowledge_sources.%s[%d].type must be one of [structured, text], got %q",
					store, i, src.Type))
			}
		}
	}

	return errs
}

func (c *Config) storeNames() []string {
	names := make([]string, 0, len(c.KnowledgeSources))
	for name := range c.KnowledgeSources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve anchors a relative path at the config file's directory.
func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.baseDir == "" {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// Definitions returns the store definitions sorted by store name, with
// source paths resolved. It assumes Validate passed.
func (c *Config) Definitions() []rag.StoreDefinition {
	defs := make([]rag.StoreDefinition, 0, len(c.KnowledgeSources))
	for _, name := range c.storeNames() {
		def := rag.StoreDefinition{Name: name}
		for _, src := range c.KnowledgeSources[name] {
			typ, _ := rag.ParseSourceType(src.Type)
			def.Sources = append(def.Sources, rag.SourceDescriptor{
				ID:       src.ID,
				Type:     typ,
				Path:     c.resolve(src.Path),
				Metadata: src.Metadata,
			})
		}
		defs = append(defs, def)
	}
	return defs
}

// StoreDir returns the directory for persisted stores.
func (c *Config) StoreDir() string {
	return c.resolve(c.VectorStoreDir)
}

// SQLitePath returns the cache database path, defaulting to stores.db in
// the store directory.
func (c *Config) SQLitePath() string {
	if c.Cache.SQLitePath != "" {
		return c.resolve(c.Cache.SQLitePath)
	}
	return filepath.Join(c.StoreDir(), "stores.db")
}

// EmbedderConfig converts the embedding section for embedder.New.
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:   c.Embedding.Provider,
		Model:      c.Embedding.Model,
		BaseURL:    c.Embedding.BaseURL,
		APIKey:     c.Embedding.APIKey,
		Dimensions: c.Embedding.Dimensions,
		BatchSize:  c.Embedding.BatchSize,
	}
}

// Chunker builds the chunker described by the chunking section.
func (c *Config) Chunker() loader.Chunker {
	return loader.NewChunker(
		loader.WithChunkSize(c.Chunking.Size),
		loader.WithOverlap(c.Chunking.Overlap),
		loader.WithItemLabel(c.Chunking.ItemLabel),
	)
}

// LogLevel returns the slog level named by log.level.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
