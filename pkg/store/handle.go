// Package store manages the named vector stores: it builds them from their
// knowledge sources, persists them, and serves nearest-neighbour queries.
package store

import (
	ragerr "github.com/danh12004/KLTN/pkg/errors"
	"github.com/danh12004/KLTN/pkg/index"
	"github.com/danh12004/KLTN/pkg/rag"
)

// Handle is a ready store. Row i of Index is the embedding of Documents[i].
// A Handle is never modified after it is registered.
type Handle struct {
	Name      string
	Index     *index.Flat
	Documents []rag.Document
}

func newHandle(name string, idx *index.Flat, docs []rag.Document) (*Handle, error) {
	if idx == nil || idx.Count() != len(docs) {
		return nil, ragerr.New(ragerr.CodeStoreCacheInvalid, "index rows and documents disagree",
			ragerr.FieldStore(name), ragerr.Field("rows", idx.Count()), ragerr.Field("documents", len(docs)))
	}
	if len(docs) == 0 {
		return nil, ragerr.New(ragerr.CodeStoreCorpusEmpty, "store has no documents", ragerr.FieldStore(name))
	}
	return &Handle{Name: name, Index: idx, Documents: docs}, nil
}

// Count returns the number of documents in the store.
func (h *Handle) Count() int {
	if h == nil {
		return 0
	}
	return len(h.Documents)
}

// Dimension returns the embedding dimension of the store's index.
func (h *Handle) Dimension() int {
	if h == nil {
		return 0
	}
	return h.Index.Dimension()
}
