package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	ragerr "github.com/danh12004/KLTN/pkg/errors"
	"github.com/danh12004/KLTN/pkg/index"
	"github.com/danh12004/KLTN/pkg/rag"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS store_cache (
	store       TEXT PRIMARY KEY,
	index_blob  BLOB NOT NULL,
	documents   TEXT NOT NULL,
	model       TEXT NOT NULL,
	built_at    TEXT NOT NULL
)`

// SQLitePersister keeps every store as one row of a SQLite database.
// Rows saved under a different embedding model are treated as invalid.
type SQLitePersister struct {
	db    *sql.DB
	path  string
	model string
}

// NewSQLitePersister opens (or creates) the database at path. model is
// recorded with each saved store and checked on load; empty disables the check.
func NewSQLitePersister(path, model string) (*SQLitePersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "create cache directory", ragerr.FieldPath(path))
	}

	// WAL mode so readers do not block a concurrent save
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "open cache database", ragerr.FieldPath(path))
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "create cache schema", ragerr.FieldPath(path))
	}

	return &SQLitePersister{db: db, path: path, model: model}, nil
}

// Close closes the database connection.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

// Path returns the database file path.
func (p *SQLitePersister) Path() string {
	return p.path
}

// Load reads the cached row of a store.
func (p *SQLitePersister) Load(ctx context.Context, store string) (*index.Flat, []rag.Document, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT index_blob, documents, model FROM store_cache WHERE store = ?
	`, store)

	var (
		blob  []byte
		raw   string
		model string
	)
	err := row.Scan(&blob, &raw, &model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ragerr.New(ragerr.CodeStoreCacheNotFound, "no cached store", ragerr.FieldStore(store))
	}
	if err != nil {
		return nil, nil, ragerr.Wrap(err, ragerr.CodeStoreCacheInvalid, "query cached store", ragerr.FieldStore(store))
	}

	if p.model != "" && model != p.model {
		return nil, nil, ragerr.New(ragerr.CodeStoreCacheInvalid, "cached store was built with another model",
			ragerr.FieldStore(store), ragerr.Field("cached_model", model), ragerr.Field("model", p.model))
	}

	idx, err := index.Decode(blob)
	if err != nil {
		return nil, nil, ragerr.Wrap(err, ragerr.CodeStoreCacheInvalid, "decode index", ragerr.FieldStore(store))
	}
	var docs []rag.Document
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil, nil, ragerr.Wrap(err, ragerr.CodeStoreCacheInvalid, "decode documents", ragerr.FieldStore(store))
	}
	if idx.Count() != len(docs) {
		return nil, nil, ragerr.New(ragerr.CodeStoreCacheInvalid, "cached index and documents disagree",
			ragerr.FieldStore(store), ragerr.Field("rows", idx.Count()), ragerr.Field("documents", len(docs)))
	}
	return idx, docs, nil
}

// Save replaces the cached row of a store in a single statement.
func (p *SQLitePersister) Save(ctx context.Context, store string, idx *index.Flat, docs []rag.Document) error {
	if idx.Count() != len(docs) {
		return ragerr.New(ragerr.CodeStoreCacheWriteFailure, "index rows and documents disagree",
			ragerr.FieldStore(store), ragerr.Field("rows", idx.Count()), ragerr.Field("documents", len(docs)))
	}

	blob, err := idx.MarshalBinary()
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "encode index", ragerr.FieldStore(store))
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "encode documents", ragerr.FieldStore(store))
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO store_cache (store, index_blob, documents, model, built_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(store) DO UPDATE SET
			index_blob = excluded.index_blob,
			documents = excluded.documents,
			model = excluded.model,
			built_at = excluded.built_at
	`, store, blob, string(raw), p.model, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreCacheWriteFailure, "save cached store", ragerr.FieldStore(store))
	}
	return nil
}
