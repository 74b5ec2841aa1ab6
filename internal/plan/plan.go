// Package plan computes extraction plans: the resolved inclusion decision
// for every stream and column of a catalog, given an ordered rules list.
// Resolution is a sequential fold of the rules over all catalog paths;
// identical inputs always produce an identical plan.
package plan

import (
	"strconv"

	"github.com/johndauphine/tapsync/internal/catalog"
)

// Plan is the resolver output for one tap. Streams cover the entire
// catalog, sorted by name, with excluded streams carried for reporting.
type Plan struct {
	Tap     string
	Streams []StreamPlan
}

// StreamPlan records one stream's inclusion decision.
type StreamPlan struct {
	Name     string
	Selected bool
	Columns  []ColumnPlan
}

// ColumnPlan records one column's inclusion and effective key status.
type ColumnPlan struct {
	Name       string
	Selected   bool
	PrimaryKey bool
}

// Warning is a non-fatal planning diagnostic: a rule that matched nothing
// in the catalog. Planning always completes; warnings are surfaced to the
// user alongside the plan.
type Warning struct {
	Line int
	Rule string
	Msg  string
}

func (w Warning) String() string {
	return "rules line " + strconv.Itoa(w.Line) + " (" + w.Rule + "): " + w.Msg
}

// Stream returns the named stream plan.
func (p *Plan) Stream(name string) (*StreamPlan, bool) {
	for i := range p.Streams {
		if p.Streams[i].Name == name {
			return &p.Streams[i], true
		}
	}
	return nil, false
}

// IncludedStreams returns the names of all selected streams, sorted.
func (p *Plan) IncludedStreams() []string {
	var names []string
	for _, s := range p.Streams {
		if s.Selected {
			names = append(names, s.Name)
		}
	}
	return names
}

// ExcludedStreams returns the names of all excluded streams, sorted.
func (p *Plan) ExcludedStreams() []string {
	var names []string
	for _, s := range p.Streams {
		if !s.Selected {
			names = append(names, s.Name)
		}
	}
	return names
}

// Selection converts the plan to the catalog-facing selection map.
// Excluded streams are absent entirely.
func (p *Plan) Selection() catalog.Selection {
	sel := make(catalog.Selection)
	for _, s := range p.Streams {
		if !s.Selected {
			continue
		}
		cols := make(map[string]bool, len(s.Columns))
		for _, c := range s.Columns {
			cols[c.Name] = c.Selected
		}
		sel[s.Name] = cols
	}
	return sel
}

// Column returns the named column plan within a stream plan.
func (s *StreamPlan) Column(name string) (*ColumnPlan, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// PrimaryKeys returns the names of effective key columns, in column order.
func (s *StreamPlan) PrimaryKeys() []string {
	var keys []string
	for _, c := range s.Columns {
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys
}
