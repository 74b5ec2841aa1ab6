// Package singer implements the line-delimited Singer message protocol
// spoken by tap and target plugin processes: one JSON document per line,
// typed SCHEMA, RECORD, STATE or ACTIVATE_VERSION.
package singer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Message types emitted by taps and targets.
const (
	TypeSchema          = "SCHEMA"
	TypeRecord          = "RECORD"
	TypeState           = "STATE"
	TypeActivateVersion = "ACTIVATE_VERSION"
)

// Message is a single protocol message. Raw holds the original line so
// messages can be forwarded to a target byte-for-byte.
type Message struct {
	Type          string          `json:"type"`
	Stream        string          `json:"stream,omitempty"`
	Schema        json.RawMessage `json:"schema,omitempty"`
	KeyProperties []string        `json:"key_properties,omitempty"`
	Record        json.RawMessage `json:"record,omitempty"`
	Value         json.RawMessage `json:"value,omitempty"`
	Version       *int64          `json:"version,omitempty"`

	Raw []byte `json:"-"`
}

// IsState reports whether the message carries replication state.
func (m *Message) IsState() bool {
	return m.Type == TypeState
}

// maxLineBytes bounds a single protocol line. Wide rows (large text or
// serialized blobs) can produce lines well beyond bufio's default 64KB.
const maxLineBytes = 20 * 1024 * 1024

// Decoder reads Singer messages from a stream, one JSON document per line.
type Decoder struct {
	scanner *bufio.Scanner
	line    int
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Decoder{scanner: s}
}

// Decode returns the next message, io.EOF at end of stream, or an error
// for lines that are not valid Singer JSON. Blank lines are skipped.
func (d *Decoder) Decode() (*Message, error) {
	for d.scanner.Scan() {
		d.line++
		line := d.scanner.Bytes()
		if len(trimSpace(line)) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("line %d: invalid message: %w", d.line, err)
		}
		if msg.Type == "" {
			return nil, fmt.Errorf("line %d: message has no type", d.line)
		}
		msg.Raw = append([]byte(nil), line...)
		return &msg, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading message stream: %w", err)
	}
	return nil, io.EOF
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\t' || b[end-1] == '\r') {
		end--
	}
	return b[start:end]
}

// Encoder writes Singer messages to a stream, one per line.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one message. The original line is preserved when present
// so forwarded messages survive unmodified.
func (e *Encoder) Encode(m *Message) error {
	line := m.Raw
	if line == nil {
		var err error
		line, err = json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding %s message: %w", m.Type, err)
		}
	}
	if _, err := e.w.Write(line); err != nil {
		return err
	}
	_, err := e.w.Write([]byte{'\n'})
	return err
}
