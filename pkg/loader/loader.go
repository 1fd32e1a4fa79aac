// Package loader turns declared knowledge sources into ordered document
// chunks: structured records are flattened to text, text is split into
// sentence-aligned overlapping chunks.
package loader

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
	"github.com/danh12004/KLTN/pkg/rag"
)

// SourceStatus is the outcome of loading one source.
type SourceStatus string

const (
	StatusLoaded  SourceStatus = "loaded"
	StatusSkipped SourceStatus = "skipped" // file missing
	StatusFailed  SourceStatus = "failed"  // unreadable or malformed
)

// SourceReport records what one descriptor contributed.
type SourceReport struct {
	ID     string
	Path   string
	Status SourceStatus
	Chunks int
	Err    error
}

// Report summarises a Load call.
type Report struct {
	Store   string
	Sources []SourceReport
}

// Chunks returns the total number of chunks produced.
func (r Report) Chunks() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Chunks
	}
	return n
}

// Count returns how many sources ended with the given status.
func (r Report) Count(status SourceStatus) int {
	n := 0
	for _, s := range r.Sources {
		if s.Status == status {
			n++
		}
	}
	return n
}

// Loader reads the sources of a store definition.
type Loader struct {
	chunker Chunker
	logger  *slog.Logger
}

// New creates a Loader. A nil logger uses slog.Default().
func New(chunker Chunker, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{chunker: chunker, logger: logger}
}

// Load returns the documents of every source in declaration order. A source
// that is missing or cannot be parsed is logged and contributes no
// documents; Load itself never fails.
func (l *Loader) Load(def rag.StoreDefinition) ([]rag.Document, Report) {
	report := Report{Store: def.Name}
	var docs []rag.Document

	for _, src := range def.Sources {
		sr := SourceReport{ID: src.ID, Path: src.Path}
		log := l.logger.With("store", def.Name, "source", src.ID, "path", src.Path)

		produced, err := l.loadSource(src)
		switch {
		case err == nil:
			sr.Status = StatusLoaded
			sr.Chunks = len(produced)
			docs = append(docs, produced...)
			log.Info("loaded knowledge source", "chunks", len(produced))
		case ragerr.IsNotFound(err):
			sr.Status = StatusSkipped
			sr.Err = err
			log.Warn("knowledge source not found, skipping")
		default:
			sr.Status = StatusFailed
			sr.Err = err
			log.Error("failed to load knowledge source", "error", err)
		}
		report.Sources = append(report.Sources, sr)
	}

	return docs, report
}

func (l *Loader) loadSource(src rag.SourceDescriptor) ([]rag.Document, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ragerr.Wrap(err, ragerr.CodeLoaderSourceNotFound, "source file not found", ragerr.FieldPath(src.Path))
		}
		return nil, ragerr.Wrap(err, ragerr.CodeLoaderSourceReadFailure, "reading source file", ragerr.FieldPath(src.Path))
	}

	switch src.Type {
	case rag.SourceStructured:
		return l.loadStructured(src, data)
	case rag.SourceText:
		return l.loadText(src, string(data)), nil
	default:
		return nil, ragerr.Errorf(ragerr.CodeLoaderSourceInvalidFormat, "unknown source type %q", src.Type)
	}
}

func (l *Loader) loadText(src rag.SourceDescriptor, text string) []rag.Document {
	var docs []rag.Document
	for _, chunk := range l.chunker.Chunk(text) {
		docs = append(docs, newDocument(chunk, src))
	}
	return docs
}

func (l *Loader) loadStructured(src rag.SourceDescriptor, data []byte) ([]rag.Document, error) {
	root, err := ParseStructured(data)
	if err != nil {
		return nil, err
	}

	records := root.Fields
	if root.Kind != ObjectNode {
		// A bare list or scalar is treated as a single record named after the source.
		records = []Field{F(src.ID, root)}
	}

	topic := src.Metadata[rag.MetaTopic]
	dynamicKey := src.Metadata[rag.MetaSubTopicKey]

	var docs []rag.Document
	for _, rec := range records {
		text := l.chunker.Flatten(rec.Value, strings.TrimSpace(topic+" "+rec.Key))
		for _, chunk := range l.chunker.Chunk(text) {
			doc := newDocument(chunk, src)
			if dynamicKey != "" {
				doc.SubTopicValue = rec.Key
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func newDocument(content string, src rag.SourceDescriptor) rag.Document {
	doc := rag.Document{
		Content: content,
		Source:  filepath.Base(src.Path),
	}
	for k, v := range src.Metadata {
		switch k {
		case rag.MetaTopic:
			doc.Topic = v
		case rag.MetaSubTopic:
			doc.SubTopic = v
		case rag.MetaSubTopicKey:
			doc.SubTopicKey = v
		default:
			if doc.Metadata == nil {
				doc.Metadata = make(map[string]string)
			}
			doc.Metadata[k] = v
		}
	}
	return doc
}
