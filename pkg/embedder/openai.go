package embedder

import (
	"context"
	"os"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
)

// Defaults for the OpenAI embedder.
const (
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultBatchSize   = 64
)

var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder uses the OpenAI embeddings API, or any server exposing a
// compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	batchSize  int
	dimensions int // requested output size, 0 = model default

	mu  sync.RWMutex
	dim int // known or learned from the first response
}

// NewOpenAIEmbedder creates an OpenAI embedder. The API key falls back to
// OPENAI_API_KEY; it may only be empty when a custom BaseURL is set.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" && cfg.BaseURL == "" {
		return nil, ragerr.New(ragerr.CodeEmbeddingRequestInvalid, "OPENAI_API_KEY environment variable not set")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	dim := cfg.Dimensions
	if dim == 0 {
		dim = modelDimensions[model]
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		batchSize:  batch,
		dimensions: cfg.Dimensions,
		dim:        dim,
	}, nil
}

// Embed generates an embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in requests of at most batchSize inputs. The
// result keeps input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if t == "" {
			return nil, ragerr.Errorf(ragerr.CodeEmbeddingRequestInvalid, "cannot embed empty text (input %d)", i)
		}
	}

	embeddings := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		if err := e.embedRange(ctx, texts[start:end], embeddings[start:end]); err != nil {
			return nil, err
		}
	}
	return embeddings, nil
}

func (e *OpenAIEmbedder) embedRange(ctx context.Context, batch []string, out [][]float32) error {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: batch,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeEmbeddingUpstreamFailure, "OpenAI API error", ragerr.Field("model", e.model))
	}
	if len(resp.Data) != len(batch) {
		return ragerr.Errorf(ragerr.CodeEmbeddingResponseInvalid,
			"embedding response has %d vectors for %d inputs", len(resp.Data), len(batch))
	}

	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) || out[d.Index] != nil {
			return ragerr.Errorf(ragerr.CodeEmbeddingResponseInvalid, "embedding response has invalid index %d", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		if err := e.checkDimension(len(v)); err != nil {
			return err
		}
		// L2 normalize so distances stay comparable across providers
		l2normalize(v)
		out[d.Index] = v
	}
	return nil
}

func (e *OpenAIEmbedder) checkDimension(n int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dim == 0 {
		e.dim = n
		return nil
	}
	if n != e.dim {
		return ragerr.Errorf(ragerr.CodeEmbeddingResponseInvalid, "embedding has dimension %d, want %d", n, e.dim)
	}
	return nil
}

// Dimension returns the embedding dimension, or 0 when it is not known
// until the first response.
func (e *OpenAIEmbedder) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dim
}

// ModelInfo returns model information
func (e *OpenAIEmbedder) ModelInfo() string {
	return "openai-" + e.model
}
