package plan

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Artifact is the persisted, human-reviewable form of a plan. Field
// ordering is fixed so that re-planning against unchanged inputs yields a
// byte-identical document.
type Artifact struct {
	SelectedTables map[string]ArtifactTable `yaml:"selected_tables"`
	IgnoredTables  []string                 `yaml:"ignored_tables,omitempty"`
}

// ArtifactTable is one included stream's column decisions.
type ArtifactTable struct {
	SelectedColumns []string `yaml:"selected_columns"`
	IgnoredColumns  []string `yaml:"ignored_columns,omitempty"`
	PrimaryKeys     []string `yaml:"primary_keys,omitempty"`
}

// Encode renders the plan as YAML. Streams and columns are already sorted
// by the catalog model; map keys are emitted in that order via explicit
// node construction, since yaml.v3 offers no ordering guarantee for maps.
func Encode(p *Plan) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}

	selected := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range p.Streams {
		if !s.Selected {
			continue
		}
		table := &yaml.Node{Kind: yaml.MappingNode}
		var sel, ign, pk []string
		for _, c := range s.Columns {
			if c.Selected {
				sel = append(sel, c.Name)
			} else {
				ign = append(ign, c.Name)
			}
			if c.PrimaryKey {
				pk = append(pk, c.Name)
			}
		}
		appendSeq(table, "selected_columns", sel)
		if len(ign) > 0 {
			appendSeq(table, "ignored_columns", ign)
		}
		if len(pk) > 0 {
			appendSeq(table, "primary_keys", pk)
		}
		appendKey(selected, s.Name, table)
	}
	appendKey(root, "selected_tables", selected)

	if excluded := p.ExcludedStreams(); len(excluded) > 0 {
		appendSeq(root, "ignored_tables", excluded)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes the plan artifact to disk.
func WriteFile(path string, p *Plan) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing plan file: %w", err)
	}
	return nil
}

// LoadFile reads a previously written plan artifact.
func LoadFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var a Artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}
	if a.SelectedTables == nil {
		return nil, fmt.Errorf("no selected tables found in plan file %s", path)
	}
	return &a, nil
}

func appendKey(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, strNode(key), value)
}

func appendSeq(m *yaml.Node, key string, values []string) {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, v := range values {
		seq.Content = append(seq.Content, strNode(v))
	}
	appendKey(m, key, seq)
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}
