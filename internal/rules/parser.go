package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

const primaryKeyHint = "primary-key"

// ParseFile reads and parses a rules file.
func ParseFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return Parse(string(data))
}

// Parse parses rules text into an ordered rule list. One rule per
// non-blank line; "#" starts a comment, honored mid-line. Parsing is a
// pure function of the text: identical input yields an identical list.
func Parse(text string) ([]Rule, error) {
	var out []Rule
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rule, err := parseRule(line, lineNo)
		if err != nil {
			return nil, err
		}
		out = append(out, *rule)
	}
	return out, nil
}

func parseRule(text string, lineNo int) (*Rule, error) {
	rule := &Rule{Line: lineNo, Text: text}

	scope := text
	if idx := strings.Index(scope, "->"); idx >= 0 {
		hint := strings.TrimSpace(scope[idx+2:])
		if hint != primaryKeyHint {
			return nil, &SyntaxError{lineNo, fmt.Sprintf("unknown hint %q", hint)}
		}
		rule.PrimaryKeyHint = true
		scope = strings.TrimSpace(scope[:idx])
	}

	if strings.HasPrefix(scope, "!") {
		rule.Exclude = true
		scope = strings.TrimSpace(scope[1:])
	}
	if scope == "" {
		return nil, &SyntaxError{lineNo, "rule has no scope pattern"}
	}

	segs, err := splitScope(scope, lineNo)
	if err != nil {
		return nil, err
	}
	segs, explicit, err := expandDoubleWildcard(segs, lineNo)
	if err != nil {
		return nil, err
	}
	if len(segs) > 3 {
		return nil, &SyntaxError{lineNo, fmt.Sprintf("too many dotted segments (%d, max 3)", len(segs))}
	}

	// Pad missing trailing segments with implicit wildcards.
	columnExplicit := explicit && len(segs) == 3
	for len(segs) < 3 {
		segs = append(segs, "*")
	}

	parsed := make([]Segment, 3)
	for i, raw := range segs {
		seg, err := parseSegment(raw, lineNo)
		if err != nil {
			return nil, err
		}
		if seg.Kind == SegmentRegex && i != 2 {
			return nil, &SyntaxError{lineNo, "regex patterns are only valid in the column segment"}
		}
		parsed[i] = seg
	}
	rule.Tap, rule.Table, rule.Column = parsed[0], parsed[1], parsed[2]

	// An include rule whose explicit column segment is the bare "*" is
	// shorthand for selecting the whole stream.
	rule.ColumnScoped = columnExplicit
	if columnExplicit && !rule.Exclude && rule.Column.Kind == SegmentWildcard {
		rule.ColumnScoped = false
	}

	if rule.PrimaryKeyHint {
		if rule.Exclude {
			return nil, &SyntaxError{lineNo, "primary-key hint is not valid on an exclude rule"}
		}
		if !rule.ColumnScoped {
			return nil, &SyntaxError{lineNo, "primary-key hint requires a column-scoped rule"}
		}
	}

	return rule, nil
}

// splitScope splits a scope pattern on dots, keeping dots inside /…/
// regex bodies intact.
func splitScope(scope string, lineNo int) ([]string, error) {
	var segs []string
	var cur strings.Builder
	inRegex := false
	for i := 0; i < len(scope); i++ {
		c := scope[i]
		switch {
		case c == '/' && cur.Len() == 0:
			inRegex = true
			cur.WriteByte(c)
		case c == '/' && inRegex:
			inRegex = false
			cur.WriteByte(c)
		case c == '.' && !inRegex:
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inRegex {
		return nil, &SyntaxError{lineNo, "unterminated regex pattern"}
	}
	segs = append(segs, cur.String())
	return segs, nil
}

// expandDoubleWildcard rewrites a leading "**" into the single wildcards
// needed to reach the full three-segment form. "**" anywhere else is an
// error. The second return reports whether the pattern carries an explicit
// trailing (column) segment.
func expandDoubleWildcard(segs []string, lineNo int) ([]string, bool, error) {
	for i, s := range segs {
		if s == "**" && i != 0 {
			return nil, false, &SyntaxError{lineNo, "'**' is only valid as the leading segment"}
		}
	}
	if segs[0] != "**" {
		return segs, true, nil
	}
	rest := segs[1:]
	if len(rest) > 3 {
		return nil, false, &SyntaxError{lineNo, fmt.Sprintf("too many dotted segments (%d, max 3)", len(segs))}
	}
	expanded := make([]string, 0, 3)
	for len(expanded)+len(rest) < 3 {
		expanded = append(expanded, "*")
	}
	expanded = append(expanded, rest...)
	// "**" alone selects everything but names no explicit column.
	return expanded, len(rest) > 0, nil
}

func parseSegment(raw string, lineNo int) (Segment, error) {
	switch {
	case raw == "":
		return Segment{}, &SyntaxError{lineNo, "empty path segment"}
	case raw == "*":
		return Segment{Kind: SegmentWildcard, Raw: raw}, nil
	case strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") && len(raw) >= 2:
		body := raw[1 : len(raw)-1]
		if body == "" {
			return Segment{}, &SyntaxError{lineNo, "empty regex pattern"}
		}
		// Word boundaries and case-insensitivity match the rule engine's
		// behavior for literal segments.
		re, err := regexp.Compile(`(?i)\b` + body + `\b`)
		if err != nil {
			return Segment{}, &SyntaxError{lineNo, fmt.Sprintf("invalid regex %q: %v", body, err)}
		}
		return Segment{Kind: SegmentRegex, Pattern: re, Raw: raw}, nil
	default:
		return Segment{Kind: SegmentLiteral, Literal: strings.ToLower(raw), Raw: raw}, nil
	}
}
