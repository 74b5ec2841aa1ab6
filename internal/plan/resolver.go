package plan

import (
	"github.com/johndauphine/tapsync/internal/catalog"
	"github.com/johndauphine/tapsync/internal/rules"
	"github.com/johndauphine/tapsync/internal/util"
)

// columnState is the working decision for one column during resolution.
type columnState struct {
	selected bool
	keyHint  bool
}

// Resolve applies an ordered rule list to a catalog, producing the plan.
//
// Every stream and column starts undecided-excluded (opt-in posture).
// Rules are folded in file order: stream-scoped rules set the stream's own
// flag and reset the default for all its columns; column-scoped rules set
// only the columns they match. Later rules override earlier ones for the
// paths they match and nothing else. After the fold, two invariants are
// enforced: an excluded stream excludes all of its columns regardless of
// column rules, and an included stream with zero included columns is
// demoted to excluded.
//
// Rules that match no catalog path at all are returned as warnings, never
// errors: planning always completes, even to a zero-coverage plan.
func Resolve(tap string, ruleList []rules.Rule, cat *catalog.Catalog) (*Plan, []Warning) {
	type streamState struct {
		selected bool
		columns  map[string]*columnState
	}

	states := make(map[string]*streamState, len(cat.Streams))
	for _, s := range cat.Streams {
		st := &streamState{columns: make(map[string]*columnState, len(s.Columns))}
		for _, col := range s.Columns {
			st.columns[col] = &columnState{}
		}
		states[s.Name] = st
	}

	matched := make([]bool, len(ruleList))
	for i := range ruleList {
		rule := &ruleList[i]
		for _, s := range cat.Streams {
			st := states[s.Name]
			if rule.ColumnScoped {
				if !rule.MatchesStream(tap, s.Name) {
					continue
				}
				for _, col := range s.Columns {
					if !rule.Column.Matches(col) {
						continue
					}
					matched[i] = true
					cs := st.columns[col]
					cs.selected = !rule.Exclude
					if rule.Exclude {
						// A later exclusion permanently drops any
						// earlier primary-key hint.
						cs.keyHint = false
					} else if rule.PrimaryKeyHint {
						cs.keyHint = true
					}
				}
			} else if rule.MatchesStream(tap, s.Name) {
				matched[i] = true
				st.selected = !rule.Exclude
				for _, cs := range st.columns {
					cs.selected = !rule.Exclude
					if rule.Exclude {
						cs.keyHint = false
					}
				}
			}
		}
	}

	p := &Plan{Tap: tap, Streams: make([]StreamPlan, 0, len(cat.Streams))}
	for _, s := range cat.Streams {
		st := states[s.Name]

		// Stream exclusion is absolute; column includes cannot resurrect it.
		if !st.selected {
			for _, cs := range st.columns {
				cs.selected = false
				cs.keyHint = false
			}
		}

		anySelected := false
		sp := StreamPlan{Name: s.Name, Selected: st.selected, Columns: make([]ColumnPlan, 0, len(s.Columns))}
		for _, col := range s.Columns {
			cs := st.columns[col]
			pk := cs.selected && (cs.keyHint || util.ContainsFold(s.KeyProperties, col))
			sp.Columns = append(sp.Columns, ColumnPlan{Name: col, Selected: cs.selected, PrimaryKey: pk})
			anySelected = anySelected || cs.selected
		}

		// A stream with no included columns is meaningless; demote it.
		if sp.Selected && !anySelected {
			sp.Selected = false
		}
		p.Streams = append(p.Streams, sp)
	}

	var warnings []Warning
	for i := range ruleList {
		if !matched[i] {
			warnings = append(warnings, Warning{
				Line: ruleList[i].Line,
				Rule: ruleList[i].Text,
				Msg:  "rule matched no stream or column in the catalog",
			})
		}
	}
	return p, warnings
}
