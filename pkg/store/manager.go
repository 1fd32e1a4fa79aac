package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/danh12004/KLTN/pkg/embedder"
	ragerr "github.com/danh12004/KLTN/pkg/errors"
	"github.com/danh12004/KLTN/pkg/index"
	"github.com/danh12004/KLTN/pkg/loader"
	"github.com/danh12004/KLTN/pkg/rag"
)

// DefaultDir is where FilePersister keeps stores when no directory is configured.
const DefaultDir = "data/vector_store"

// State is the lifecycle state of one store.
type State int

const (
	StateUninitialized State = iota
	StateBuilding
	StateLoaded // restored from the persister
	StateBuilt  // built from its knowledge sources
	StateEmpty  // sources produced no documents; retried on next access
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilding:
		return "building"
	case StateLoaded:
		return "loaded"
	case StateBuilt:
		return "built"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Ready reports whether a store in this state has a registered handle.
func (s State) Ready() bool {
	return s == StateLoaded || s == StateBuilt
}

// settle decides where an access ends up. cached is whether a usable cache
// was found, defined whether the store is configured, and documents the
// number of chunks the loader produced.
func settle(cached, defined bool, documents int) State {
	switch {
	case cached:
		return StateLoaded
	case !defined:
		return StateUninitialized
	case documents == 0:
		return StateEmpty
	default:
		return StateBuilt
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithChunker sets the chunking parameters used when building stores.
func WithChunker(c loader.Chunker) Option {
	return func(m *Manager) {
		m.chunker = c
	}
}

// WithPersister sets where built stores are saved and loaded from.
func WithPersister(p Persister) Option {
	return func(m *Manager) {
		if p != nil {
			m.persister = p
		}
	}
}

// Manager builds, loads and memoizes stores by name. A store is built at
// most once per Manager unless it turned out empty.
type Manager struct {
	defs      map[string]rag.StoreDefinition
	embedder  embedder.Embedder
	persister Persister
	chunker   loader.Chunker
	logger    *slog.Logger
	loader    *loader.Loader

	group singleflight.Group

	mu     sync.RWMutex
	stores map[string]*Handle
	states map[string]State
}

// NewManager creates a manager for the given store definitions.
func NewManager(defs []rag.StoreDefinition, emb embedder.Embedder, opts ...Option) *Manager {
	m := &Manager{
		defs:      make(map[string]rag.StoreDefinition, len(defs)),
		embedder:  emb,
		persister: NewFilePersister(DefaultDir),
		chunker:   loader.NewChunker(),
		logger:    slog.Default(),
		stores:    make(map[string]*Handle),
		states:    make(map[string]State),
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, def := range defs {
		m.defs[def.Name] = def
		m.states[def.Name] = StateUninitialized
	}
	m.loader = loader.New(m.chunker, m.logger)
	return m
}

// GetStore returns the named store, loading it from the persister or
// building it from its sources on first access. Concurrent first calls for
// the same name share one build. A caller whose ctx ends stops waiting; the
// build itself keeps running for the others.
func (m *Manager) GetStore(ctx context.Context, name string) (*Handle, error) {
	if h := m.lookup(name); h != nil {
		return h, nil
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	build := context.WithoutCancel(ctx)
	ch := m.group.DoChan(name, func() (any, error) {
		if h := m.lookup(name); h != nil {
			return h, nil
		}
		return m.open(build, name)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Handle), nil
	}
}

// ValidateName rejects store names that cannot be used as a cache file
// name: empty, ".", or containing ".." or a path separator.
func ValidateName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return ragerr.Errorf(ragerr.CodeStoreNameInvalid, "invalid store name %q", name)
	}
	return nil
}

func (m *Manager) lookup(name string) *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stores[name]
}

func (m *Manager) open(ctx context.Context, name string) (*Handle, error) {
	log := m.logger.With("store", name)
	def, defined := m.defs[name]
	if defined {
		m.setState(name, StateBuilding)
	}

	if h, ok := m.loadCached(ctx, name, log); ok {
		m.register(h, settle(true, defined, h.Count()))
		log.Info("loaded vector store from cache", "documents", h.Count())
		return h, nil
	}

	if !defined {
		log.Error("no knowledge sources configured for store")
		return nil, ragerr.New(ragerr.CodeStoreDefinitionNotFound, "store is not configured", ragerr.FieldStore(name))
	}

	log.Info("building vector store", "sources", len(def.Sources))
	docs, report := m.loader.Load(def)
	if state := settle(false, true, len(docs)); state == StateEmpty {
		m.setState(name, state)
		log.Warn("no documents to index, check knowledge source paths",
			"skipped", report.Count(loader.StatusSkipped), "failed", report.Count(loader.StatusFailed))
		return nil, ragerr.New(ragerr.CodeStoreCorpusEmpty, "store has no documents", ragerr.FieldStore(name))
	}

	h, err := m.build(ctx, name, docs)
	if err != nil {
		m.setState(name, StateUninitialized)
		log.Error("failed to build vector store", "error", err)
		return nil, err
	}

	if err := m.persister.Save(ctx, name, h.Index, h.Documents); err != nil {
		log.Warn("failed to persist vector store", "error", err)
	}

	m.register(h, StateBuilt)
	log.Info("built vector store", "documents", h.Count(), "dimension", h.Dimension())
	return h, nil
}

// loadCached restores a store from the persister. Unusable caches are
// logged and reported as a miss.
func (m *Manager) loadCached(ctx context.Context, name string, log *slog.Logger) (*Handle, bool) {
	idx, docs, err := m.persister.Load(ctx, name)
	if err != nil {
		if !ragerr.HasCode(err, ragerr.CodeStoreCacheNotFound) {
			log.Warn("failed to load vector store from cache, rebuilding", "error", err)
		}
		return nil, false
	}

	if dim := m.embedder.Dimension(); dim > 0 && idx.Dimension() != dim {
		log.Warn("cached vector store has a different dimension, rebuilding",
			"cached_dimension", idx.Dimension(), "dimension", dim)
		return nil, false
	}

	h, err := newHandle(name, idx, docs)
	if err != nil {
		log.Warn("cached vector store is unusable, rebuilding", "error", err)
		return nil, false
	}
	return h, true
}

func (m *Manager) build(ctx context.Context, name string, docs []rag.Document) (*Handle, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeEmbeddingUpstreamFailure, "embed documents", ragerr.FieldStore(name))
	}
	if len(vectors) != len(docs) {
		return nil, ragerr.Errorf(ragerr.CodeEmbeddingResponseInvalid,
			"embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	idx, err := index.Build(vectors)
	if err != nil {
		return nil, err
	}
	return newHandle(name, idx, docs)
}

func (m *Manager) register(h *Handle, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[h.Name] = h
	m.states[h.Name] = state
}

func (m *Manager) setState(name string, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[name] = state
}

// Status returns the last known state of a store and whether the name is
// known at all (configured or loaded from cache).
func (m *Manager) Status(name string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[name]
	return s, ok
}

// Stores lists the configured store names in sorted order.
func (m *Manager) Stores() []string {
	names := make([]string, 0, len(m.defs))
	for name := range m.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info summarizes one store.
type Info struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Documents int    `json:"documents"`
	Dimension int    `json:"dimension,omitempty"`
}

// Describe reports every configured store without triggering builds.
func (m *Manager) Describe() []Info {
	names := m.Stores()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		h := m.stores[name]
		out = append(out, Info{
			Name:      name,
			State:     m.states[name].String(),
			Documents: h.Count(),
			Dimension: h.Dimension(),
		})
	}
	return out
}

// Warm loads or builds every configured store. It keeps going after a
// failure and returns the joined errors.
func (m *Manager) Warm(ctx context.Context) error {
	var errs []error
	for _, name := range m.Stores() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := m.GetStore(ctx, name); err != nil {
			m.logger.Warn("store unavailable after warm-up", "store", name, "error", err)
			errs = append(errs, err)
		}
	}
	return ragerr.Join(errs...)
}
