package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
)

// Embedder maps text to fixed-dimension vectors. Implementations must be
// deterministic for a given model: the same text yields the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string // any OpenAI-compatible endpoint
	APIKey     string
	Dimensions int
	BatchSize  int
}

// New creates the embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	case ProviderHash:
		dim := cfg.Dimensions
		if dim == 0 {
			dim = DefaultHashDimension
		}
		return NewHashEmbedder(dim), nil
	default:
		return nil, ragerr.Errorf(ragerr.CodeEmbeddingRequestInvalid, "unknown embedding provider %q", cfg.Provider)
	}
}

// DefaultHashDimension is used by the hash provider when no dimension is set.
const DefaultHashDimension = 384

// HashEmbedder is an offline embedder based on feature hashing of word
// tokens. Texts sharing words land close together, which is enough for
// development setups and tests without a model server.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder producing vectors of dimension dim.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashEmbedder{dim: dimension}
}

// Embed hashes each lower-cased token into a signed bucket and L2
// normalises the result. Text without tokens maps to the zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(e.dim))] += sign
	}

	l2normalize(vec)
	return vec, nil
}

// EmbedBatch embeds texts in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, ragerr.Errorf(ragerr.CodeEmbeddingRequestInvalid, "embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimension returns the embedding dimension
func (e *HashEmbedder) Dimension() int {
	return e.dim
}

// ModelInfo returns model information
func (e *HashEmbedder) ModelInfo() string {
	return "hash-fnv32a-" + strconv.Itoa(e.dim)
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
