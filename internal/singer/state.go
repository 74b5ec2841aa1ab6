package singer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johndauphine/tapsync/internal/logging"
)

// AggregateState reduces the output of a tap/target run to a single valid
// JSON state document. Targets append one STATE value per commit, so the
// accumulated file is often JSONL rather than JSON; the final line is the
// most recent state. Some targets flush a trailing partial line, in which
// case the second-to-last line is used instead.
func AggregateState(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("cannot aggregate state: text is empty")
	}
	if isValidJSON(raw) {
		return raw, nil
	}
	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	last := lines[len(lines)-1]
	if isValidJSON(last) {
		logging.Warn("State output contains multiple documents; using final line")
		return last, nil
	}
	if len(lines) >= 2 && isValidJSON(lines[len(lines)-2]) {
		logging.Warn("State output contains multiple documents; using 2nd-to-last line")
		return lines[len(lines)-2], nil
	}
	return "", fmt.Errorf("state is not valid JSON: %q", raw)
}

func isValidJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	return json.Valid([]byte(trimmed))
}

// stateValue mirrors the conventional Singer state layout. Taps that do not
// use the bookmarks envelope emit flat values, which callers treat as an
// opaque whole-tap bookmark.
type stateValue struct {
	Bookmarks map[string]json.RawMessage `json:"bookmarks"`
}

// StreamBookmark extracts the bookmark for one stream from a state value.
// Returns false when the value has no bookmarks envelope or no entry for
// the stream.
func StreamBookmark(value json.RawMessage, stream string) (json.RawMessage, bool) {
	if len(value) == 0 {
		return nil, false
	}
	var sv stateValue
	if err := json.Unmarshal(value, &sv); err != nil || sv.Bookmarks == nil {
		return nil, false
	}
	bm, ok := sv.Bookmarks[stream]
	if !ok {
		return nil, false
	}
	return bm, true
}

// WrapBookmark builds a Singer state value holding a single stream bookmark,
// the inverse of StreamBookmark. Used to seed a tap invocation with only the
// state relevant to the stream being extracted.
func WrapBookmark(stream string, bookmark json.RawMessage) (json.RawMessage, error) {
	sv := stateValue{Bookmarks: map[string]json.RawMessage{stream: bookmark}}
	out, err := json.Marshal(sv)
	if err != nil {
		return nil, fmt.Errorf("building state for stream %s: %w", stream, err)
	}
	return out, nil
}
