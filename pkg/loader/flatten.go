package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
)

// NodeKind discriminates the variants of Node.
type NodeKind int

const (
	ScalarNode NodeKind = iota
	ListNode
	ObjectNode
)

// Node is a parsed structured record: a scalar, a list of nodes, or an
// object whose fields keep their declaration order.
type Node struct {
	Kind   NodeKind
	Value  string
	Items  []Node
	Fields []Field
}

// Field is one key of an object node.
type Field struct {
	Key   string
	Value Node
}

// Scalar returns a leaf node holding v.
func Scalar(v string) Node { return Node{Kind: ScalarNode, Value: v} }

// List returns a list node of items.
func List(items ...Node) Node { return Node{Kind: ListNode, Items: items} }

// Object returns an object node whose fields keep the given order.
func Object(fields ...Field) Node { return Node{Kind: ObjectNode, Fields: fields} }

// F returns the object field key: value.
func F(key string, value Node) Field { return Field{Key: key, Value: value} }

// ParseStructured parses a JSON or YAML document into a Node, preserving the
// order in which object keys are declared. Valid JSON is always decoded as
// JSON; anything else is read as YAML.
func ParseStructured(data []byte) (Node, error) {
	if json.Valid(data) {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}

// ParseJSON decodes a JSON document into a Node. A key repeated within one
// object keeps its first position and its last value.
func ParseJSON(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeJSON(dec, 0)
	if err != nil {
		return Node{}, ragerr.Wrap(err, ragerr.CodeLoaderSourceInvalidFormat, "parsing structured source")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Node{}, ragerr.New(ragerr.CodeLoaderSourceInvalidFormat, "parsing structured source: trailing data after document")
	}
	return n, nil
}

func decodeJSON(dec *json.Decoder, depth int) (Node, error) {
	if depth > maxDepth {
		return Node{}, fmt.Errorf("nested deeper than %d", maxDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '[':
			var items []Node
			for dec.More() {
				item, err := decodeJSON(dec, depth+1)
				if err != nil {
					return Node{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return List(items...), nil
		case '{':
			var fields []Field
			seen := make(map[string]int)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Node{}, fmt.Errorf("object key %v is not a string", keyTok)
				}
				value, err := decodeJSON(dec, depth+1)
				if err != nil {
					return Node{}, err
				}
				if i, dup := seen[key]; dup {
					fields[i].Value = value
					continue
				}
				seen[key] = len(fields)
				fields = append(fields, F(key, value))
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Object(fields...), nil
		default:
			return Node{}, fmt.Errorf("unexpected delimiter %q", v)
		}
	case string:
		return Scalar(v), nil
	case json.Number:
		return Scalar(v.String()), nil
	case bool:
		return Scalar(strconv.FormatBool(v)), nil
	case nil:
		return Scalar("null"), nil
	default:
		return Node{}, fmt.Errorf("unexpected token %v", tok)
	}
}

// ParseYAML decodes a YAML document into a Node. An empty document is an
// empty object.
func ParseYAML(data []byte) (Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Node{}, ragerr.Wrap(err, ragerr.CodeLoaderSourceInvalidFormat, "parsing structured source")
	}
	if doc.Kind == 0 {
		return Object(), nil
	}
	return fromYAML(&doc, 0)
}

const maxDepth = 256

func fromYAML(n *yaml.Node, depth int) (Node, error) {
	if depth > maxDepth {
		return Node{}, ragerr.Errorf(ragerr.CodeLoaderSourceInvalidFormat, "structured source nested deeper than %d", maxDepth)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Object(), nil
		}
		return fromYAML(n.Content[0], depth+1)
	case yaml.AliasNode:
		return fromYAML(n.Alias, depth+1)
	case yaml.ScalarNode:
		return Scalar(n.Value), nil
	case yaml.SequenceNode:
		items := make([]Node, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := fromYAML(c, depth+1)
			if err != nil {
				return Node{}, err
			}
			items = append(items, item)
		}
		return List(items...), nil
	case yaml.MappingNode:
		fields := make([]Field, 0, len(n.Content)/2)
		seen := make(map[string]int, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			value, err := fromYAML(n.Content[i+1], depth+1)
			if err != nil {
				return Node{}, err
			}
			key := n.Content[i].Value
			if j, dup := seen[key]; dup {
				fields[j].Value = value
				continue
			}
			seen[key] = len(fields)
			fields = append(fields, F(key, value))
		}
		return Object(fields...), nil
	default:
		return Node{}, ragerr.Errorf(ragerr.CodeLoaderSourceInvalidFormat, "unsupported node kind %d", n.Kind)
	}
}

// Flatten renders a node as descriptive text. Object keys (underscores
// turned into spaces) and list ordinals ("<itemLabel> 1", ...) extend the
// prefix; each scalar becomes "<prefix>: <value>.". Empty containers
// contribute nothing.
func Flatten(n Node, prefix, itemLabel string) string {
	switch n.Kind {
	case ObjectNode:
		parts := make([]string, 0, len(n.Fields))
		for _, f := range n.Fields {
			parts = appendNonEmpty(parts, Flatten(f.Value, joinPrefix(prefix, humanize(f.Key)), itemLabel))
		}
		return strings.Join(parts, " ")
	case ListNode:
		parts := make([]string, 0, len(n.Items))
		for i, item := range n.Items {
			ordinal := strings.TrimSpace(itemLabel + " " + strconv.Itoa(i+1))
			parts = appendNonEmpty(parts, Flatten(item, joinPrefix(prefix, ordinal), itemLabel))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%s: %s.", prefix, n.Value)
	}
}

// Flatten renders n with the chunker's item label.
func (c Chunker) Flatten(n Node, prefix string) string {
	return Flatten(n, prefix, c.ItemLabel)
}

func humanize(key string) string {
	return strings.TrimSpace(strings.ReplaceAll(key, "_", " "))
}

func joinPrefix(prefix, part string) string {
	return strings.TrimSpace(prefix + " " + part)
}

func appendNonEmpty(parts []string, s string) []string {
	if s == "" {
		return parts
	}
	return append(parts, s)
}
