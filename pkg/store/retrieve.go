package store

import (
	"context"
	"strings"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
	"github.com/danh12004/KLTN/pkg/rag"
)

// UnavailableMessage is what Retrieve returns when it cannot produce context.
const UnavailableMessage = "Lỗi: Cơ sở tri thức chưa được khởi tạo hoặc xây dựng thất bại."

// Separator joins retrieved chunks in Retrieve output.
const Separator = "\n---\n"

// Search returns the k documents of the store nearest to query, closest
// first. k larger than the store returns every document; k <= 0 returns none.
func (m *Manager) Search(ctx context.Context, name, query string, k int) ([]rag.Result, error) {
	h, err := m.GetStore(ctx, name)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return []rag.Result{}, nil
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeEmbeddingUpstreamFailure, "embed query", ragerr.FieldStore(name))
	}

	hits, err := h.Index.Search(vec, k)
	if err != nil {
		return nil, err
	}

	results := make([]rag.Result, len(hits))
	for i, hit := range hits {
		results[i] = rag.Result{
			Document: h.Documents[hit.Row],
			Row:      hit.Row,
			Distance: hit.Distance,
		}
	}
	return results, nil
}

// Retrieve returns the contents of the k nearest documents joined with
// Separator. Failures are logged and reported as UnavailableMessage.
func (m *Manager) Retrieve(ctx context.Context, name, query string, k int) string {
	results, err := m.Search(ctx, name, query, k)
	if err != nil {
		m.logger.Warn("retrieval failed", "store", name, "error", err)
		return UnavailableMessage
	}

	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Document.Content
	}
	m.logger.Debug("retrieved context", "store", name, "chunks", len(contents), "query", query)
	return strings.Join(contents, Separator)
}
