// Package catalog models a tap's discovered catalog: the streams (tables)
// a source exposes, their column names and native key candidates. The
// model is read-only; selection decisions are computed elsewhere and
// applied back via ApplySelection.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Catalog is the discovered inventory of a source, parsed from the tap's
// discovery output. Immutable for the duration of a planning pass.
type Catalog struct {
	Streams []Stream
}

// Stream is one logical table with its discovered metadata. The raw
// discovery document is retained so selection metadata can be written
// back without losing tap-specific fields.
type Stream struct {
	Name          string
	TapStreamID   string
	Columns       []string // sorted
	KeyProperties []string

	raw json.RawMessage
}

// UnavailableError reports that a catalog could not be obtained from the
// discovery collaborator. Fatal to planning.
type UnavailableError struct {
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("catalog unavailable at %s: %v", e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// LoadFile reads and parses a discovery catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &UnavailableError{Path: path, Err: err}
	}
	c, err := Parse(data)
	if err != nil {
		return nil, &UnavailableError{Path: path, Err: err}
	}
	return c, nil
}

type rawCatalog struct {
	Streams []json.RawMessage `json:"streams"`
}

type rawStream struct {
	Stream      string `json:"stream"`
	TapStreamID string `json:"tap_stream_id"`
	Schema      struct {
		Properties map[string]json.RawMessage `json:"properties"`
	} `json:"schema"`
	KeyProperties []string      `json:"key_properties"`
	Metadata      []rawMetadata `json:"metadata"`
}

type rawMetadata struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   map[string]any `json:"metadata"`
}

// Parse parses raw Singer discovery output. Streams and columns are
// sorted by name so every downstream artifact is deterministic.
func Parse(data []byte) (*Catalog, error) {
	var rc rawCatalog
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	c := &Catalog{Streams: make([]Stream, 0, len(rc.Streams))}
	for i, doc := range rc.Streams {
		var rs rawStream
		if err := json.Unmarshal(doc, &rs); err != nil {
			return nil, fmt.Errorf("parsing catalog stream %d: %w", i, err)
		}
		name := rs.Stream
		if name == "" {
			name = rs.TapStreamID
		}
		if name == "" {
			return nil, fmt.Errorf("catalog stream %d has no name", i)
		}
		cols := make([]string, 0, len(rs.Schema.Properties))
		for col := range rs.Schema.Properties {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		c.Streams = append(c.Streams, Stream{
			Name:          name,
			TapStreamID:   rs.TapStreamID,
			Columns:       cols,
			KeyProperties: keyProperties(&rs),
			raw:           doc,
		})
	}
	sort.Slice(c.Streams, func(i, j int) bool { return c.Streams[i].Name < c.Streams[j].Name })
	return c, nil
}

// keyProperties resolves the stream's native key candidates: the
// top-level key_properties when present, else the table-key-properties
// metadata entry some taps emit instead.
func keyProperties(rs *rawStream) []string {
	if len(rs.KeyProperties) > 0 {
		return rs.KeyProperties
	}
	for _, md := range rs.Metadata {
		if len(md.Breadcrumb) != 0 {
			continue
		}
		keys, ok := md.Metadata["table-key-properties"].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := k.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Stream returns the named stream, matching exactly.
func (c *Catalog) Stream(name string) (*Stream, bool) {
	for i := range c.Streams {
		if c.Streams[i].Name == name {
			return &c.Streams[i], true
		}
	}
	return nil, false
}

// StreamNames returns all stream names in sorted order.
func (c *Catalog) StreamNames() []string {
	names := make([]string, len(c.Streams))
	for i, s := range c.Streams {
		names[i] = s.Name
	}
	return names
}
