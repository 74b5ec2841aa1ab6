// Package rules defines the selection rules model for tap extraction
// planning. A rules file is an ordered list of include/exclude patterns
// over dotted tap.table.column paths; order is authoritative, with later
// rules overriding earlier ones for the paths they match.
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// SegmentKind identifies how one path segment of a rule matches.
type SegmentKind int

const (
	// SegmentLiteral matches a single path component case-insensitively.
	SegmentLiteral SegmentKind = iota
	// SegmentWildcard ("*") matches any single path component.
	SegmentWildcard
	// SegmentRegex ("/pattern/") matches a component against a
	// case-insensitive regular expression. Column segment only.
	SegmentRegex
)

// Segment is one dotted component of a rule scope.
type Segment struct {
	Kind    SegmentKind
	Literal string // lowercased, SegmentLiteral only
	Pattern *regexp.Regexp
	Raw     string
}

// Matches reports whether the segment matches a path component.
// Literal and wildcard matching is case-insensitive; regex bodies are
// applied to the raw name and control their own case handling.
func (s Segment) Matches(name string) bool {
	switch s.Kind {
	case SegmentWildcard:
		return true
	case SegmentRegex:
		return s.Pattern.MatchString(name)
	default:
		return s.Literal == strings.ToLower(name)
	}
}

// Rule is one parsed line of a rules file. Scope segments are normalized
// to the full three-segment tap.table.column form; absent trailing
// segments become wildcards and a leading "**" expands to the wildcards
// needed to reach three segments.
type Rule struct {
	Tap    Segment
	Table  Segment
	Column Segment

	// Exclude is true for "!" rules.
	Exclude bool

	// ColumnScoped is true when the rule names an explicit column segment
	// and therefore only affects column flags, never the stream's own flag.
	ColumnScoped bool

	// PrimaryKeyHint marks the matched column(s) as primary key.
	// Only valid on column-scoped include rules.
	PrimaryKeyHint bool

	// Line is the 1-based line number in the rules file. Rules are
	// evaluated strictly in line order.
	Line int

	// Text is the rule as written, with comments stripped.
	Text string
}

// MatchesStream reports whether the rule's tap and table segments match a
// stream path.
func (r *Rule) MatchesStream(tap, table string) bool {
	return r.Tap.Matches(tap) && r.Table.Matches(table)
}

// MatchesColumn reports whether the rule matches a full column path.
func (r *Rule) MatchesColumn(tap, table, column string) bool {
	return r.MatchesStream(tap, table) && r.Column.Matches(column)
}

func (r *Rule) String() string {
	return fmt.Sprintf("line %d: %s", r.Line, r.Text)
}

// SyntaxError reports a malformed rules file line. It is fatal to
// planning.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("rules line %d: %s", e.Line, e.Msg)
}
