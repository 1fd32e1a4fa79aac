package loader

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default chunking parameters.
const (
	DefaultChunkSize = 1000 // characters per chunk
	DefaultOverlap   = 50   // words carried into the next chunk
	DefaultItemLabel = "mục"
)

// Chunker splits text into overlapping, sentence-aligned chunks and
// flattens structured records into text.
type Chunker struct {
	Size      int
	Overlap   int
	ItemLabel string
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.Size = size
		}
	}
}

// WithOverlap sets how many trailing words of a chunk seed the next one.
func WithOverlap(words int) Option {
	return func(c *Chunker) {
		if words >= 0 {
			c.Overlap = words
		}
	}
}

// WithItemLabel sets the ordinal marker used when flattening lists.
func WithItemLabel(label string) Option {
	return func(c *Chunker) {
		if label != "" {
			c.ItemLabel = label
		}
	}
}

// NewChunker creates a Chunker with the defaults overridden by opts.
func NewChunker(opts ...Option) Chunker {
	c := Chunker{
		Size:      DefaultChunkSize,
		Overlap:   DefaultOverlap,
		ItemLabel: DefaultItemLabel,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Chunk splits text using the chunker's size and overlap.
func (c Chunker) Chunk(text string) []string {
	return Chunk(text, c.Size, c.Overlap)
}

// Chunk splits text into chunks of at most size characters made of whole
// sentences. When a sentence does not fit, the current chunk is emitted and
// the next one starts with its last overlap words. A single sentence longer
// than size is kept whole. Lengths are counted in runes.
func Chunk(text string, size, overlap int) []string {
	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)

	write := func(s string) {
		buf.WriteString(s)
		buf.WriteByte(' ')
		bufLen += utf8.RuneCountInString(s) + 1
	}

	for _, sentence := range splitSentences(text) {
		if bufLen+utf8.RuneCountInString(sentence)+1 <= size {
			write(sentence)
			continue
		}

		seed := ""
		if done := strings.TrimSpace(buf.String()); done != "" {
			chunks = append(chunks, done)
			seed = lastWords(done, overlap)
		}
		buf.Reset()
		bufLen = 0
		if seed != "" {
			write(seed)
		}
		write(sentence)
	}

	if rest := strings.TrimSpace(buf.String()); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// splitSentences collapses line breaks to spaces and splits after '.', '!'
// or '?' when followed by whitespace. Sentences are trimmed; empty ones are
// dropped.
func splitSentences(text string) []string {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)

	var (
		sentences []string
		start     int
		prev      rune
	)
	flush := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	for i, r := range text {
		if unicode.IsSpace(r) && isTerminal(prev) {
			flush(i)
		}
		prev = r
	}
	flush(len(text))
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func lastWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
