package catalog

import (
	"encoding/json"
	"fmt"
)

// Selection holds resolved inclusion decisions keyed by stream name, then
// column name. A stream absent from the map is excluded entirely.
type Selection map[string]map[string]bool

// ApplySelection produces a selected-catalog document: only included
// streams survive, each marked selected in its Singer metadata, with
// per-column selected flags. The result is what a tap accepts via
// --catalog to restrict extraction.
func (c *Catalog) ApplySelection(sel Selection) ([]byte, error) {
	included := make([]map[string]any, 0, len(sel))
	for _, s := range c.Streams {
		cols, ok := sel[s.Name]
		if !ok {
			continue
		}
		doc, err := decodeStreamDoc(s.raw)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", s.Name, err)
		}
		markStreamSelected(doc)
		for _, col := range s.Columns {
			markColumnSelected(doc, col, cols[col])
		}
		included = append(included, doc)
	}
	return json.MarshalIndent(map[string]any{"streams": included}, "", "  ")
}

// SingleStream produces a catalog document containing only the named
// stream, marked selected, with per-column selected flags taken from
// cols. Each sync invocation is scoped to one stream this way so a
// failure cannot disturb the others; the column flags carry the plan's
// exclusions into the tap.
func (c *Catalog) SingleStream(name string, cols map[string]bool) ([]byte, error) {
	s, ok := c.Stream(name)
	if !ok {
		return nil, fmt.Errorf("stream %q not in catalog", name)
	}
	doc, err := decodeStreamDoc(s.raw)
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", name, err)
	}
	markStreamSelected(doc)
	for _, col := range s.Columns {
		markColumnSelected(doc, col, cols[col])
	}
	return json.MarshalIndent(map[string]any{"streams": []any{doc}}, "", "  ")
}

func decodeStreamDoc(raw json.RawMessage) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding stream document: %w", err)
	}
	return doc, nil
}

func metadataList(doc map[string]any) []any {
	md, _ := doc["metadata"].([]any)
	return md
}

func breadcrumbOf(entry any) ([]any, map[string]any, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return nil, nil, false
	}
	bc, _ := m["breadcrumb"].([]any)
	inner, ok := m["metadata"].(map[string]any)
	if !ok {
		inner = map[string]any{}
		m["metadata"] = inner
	}
	return bc, inner, true
}

func markStreamSelected(doc map[string]any) {
	for _, entry := range metadataList(doc) {
		bc, inner, ok := breadcrumbOf(entry)
		if ok && len(bc) == 0 {
			inner["selected"] = true
			return
		}
	}
	doc["metadata"] = append(metadataList(doc), map[string]any{
		"breadcrumb": []any{},
		"metadata":   map[string]any{"selected": true},
	})
}

func markColumnSelected(doc map[string]any, col string, selected bool) {
	for _, entry := range metadataList(doc) {
		bc, inner, ok := breadcrumbOf(entry)
		if !ok || len(bc) < 2 {
			continue
		}
		if bc[0] == "properties" && bc[1] == col {
			inner["selected"] = selected
			return
		}
	}
	doc["metadata"] = append(metadataList(doc), map[string]any{
		"breadcrumb": []any{"properties", col},
		"metadata":   map[string]any{"selected": selected},
	})
}
