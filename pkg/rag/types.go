// Package rag holds the types shared by the loader, the index and the store
// manager: knowledge source declarations and the document chunks built from them.
package rag

import "strings"

// SourceType selects how a knowledge source file is read.
type SourceType string

const (
	// SourceStructured is a record file: an object whose top-level keys are
	// flattened into text one by one.
	SourceStructured SourceType = "structured"
	// SourceText is a plain text file chunked as-is.
	SourceText SourceType = "text"
)

// ParseSourceType accepts the canonical names plus the file-extension
// spellings used by older configurations ("json", "txt").
func ParseSourceType(s string) (SourceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structured", "json", "yaml":
		return SourceStructured, true
	case "text", "txt":
		return SourceText, true
	default:
		return "", false
	}
}

// Well-known metadata keys copied onto documents.
const (
	MetaTopic       = "topic"
	MetaSubTopic    = "sub_topic"
	MetaSubTopicKey = "sub_topic_key"
)

// SourceDescriptor declares one knowledge source of a store.
type SourceDescriptor struct {
	ID       string            `mapstructure:"id" json:"id"`
	Type     SourceType        `mapstructure:"type" json:"type"`
	Path     string            `mapstructure:"path" json:"path"`
	Metadata map[string]string `mapstructure:"metadata" json:"metadata,omitempty"`
}

// StoreDefinition is the ordered list of sources indexed together under Name.
type StoreDefinition struct {
	Name    string
	Sources []SourceDescriptor
}

// Document is a chunk of knowledge text and the tags of the source it came from.
// Documents are immutable once built; their position in a store is the row
// address of their embedding in the store's index.
type Document struct {
	Content  string `json:"content"`
	Source   string `json:"source"`
	Topic    string `json:"topic,omitempty"`
	SubTopic string `json:"sub_topic,omitempty"`

	// SubTopicKey names the dynamic field (e.g. "rice_variety") and
	// SubTopicValue holds the top-level record key it was taken from.
	SubTopicKey   string `json:"sub_topic_key,omitempty"`
	SubTopicValue string `json:"sub_topic_value,omitempty"`

	// Metadata carries descriptor tags that have no dedicated field.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Tag returns the value of a descriptor tag, including the dynamic
// sub-topic field, and whether it is set.
func (d Document) Tag(key string) (string, bool) {
	switch key {
	case MetaTopic:
		return d.Topic, d.Topic != ""
	case MetaSubTopic:
		return d.SubTopic, d.SubTopic != ""
	case "":
		return "", false
	}
	if d.SubTopicKey != "" && key == d.SubTopicKey {
		return d.SubTopicValue, true
	}
	v, ok := d.Metadata[key]
	return v, ok
}

// Result is a single retrieval hit.
type Result struct {
	Document Document `json:"document"`
	Row      int      `json:"row"`
	Distance float32  `json:"distance"` // squared L2, lower is closer
}
