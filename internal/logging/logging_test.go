package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// capture redirects log output to a buffer for the duration of a test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	origLevel := GetLevel()
	SetOutput(&buf)
	t.Cleanup(func() {
		SetFormat("text")
		SetLevel(origLevel)
		SetOutput(nil)
	})
	return &buf
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelInfo)
	SetFormat("json")

	Info("synced %d records from %s", 42, "account")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("output not valid JSON: %v\n%s", err, buf.String())
	}
	// Timestamp and message fields are renamed from zerolog's defaults.
	if _, ok := entry["ts"]; !ok {
		t.Error("missing 'ts' field")
	}
	if _, ok := entry["time"]; ok {
		t.Error("zerolog default 'time' field should be renamed to 'ts'")
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["msg"] != "synced 42 records from account" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestTextFormat(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelInfo)
	SetFormat("text")

	Warn("catalog for %s is stale", "salesforce")

	out := buf.String()
	if !strings.Contains(out, "[WARN]") {
		t.Errorf("missing [WARN] tag: %s", out)
	}
	if !strings.Contains(out, "catalog for salesforce is stale") {
		t.Errorf("missing message: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)
	SetFormat("text")

	Debug("suppressed")
	Info("suppressed")
	Warn("kept")
	Error("kept too")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("messages below the minimum level leaked: %s", out)
	}
	for _, want := range []string{"kept", "kept too"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q: %s", want, out)
		}
	}
}

func TestJSONLevelNames(t *testing.T) {
	fns := []struct {
		fn   func(string, ...interface{})
		name string
	}{
		{Debug, "debug"},
		{Info, "info"},
		{Warn, "warn"},
		{Error, "error"},
	}
	for _, tc := range fns {
		t.Run(tc.name, func(t *testing.T) {
			buf := capture(t)
			SetLevel(LevelDebug)
			SetFormat("json")

			tc.fn("x")

			var entry map[string]interface{}
			if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if entry["level"] != tc.name {
				t.Errorf("level = %v, want %s", entry["level"], tc.name)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"Warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"", LevelInfo, true},
		{"verbose", LevelInfo, true},
		{" info", LevelInfo, true},
		{"info ", LevelInfo, true},
	} {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	for lvl, want := range map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		Level(42):  "UNKNOWN",
	} {
		if got := lvl.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", lvl, got, want)
		}
	}
}

func TestGetSetLevel(t *testing.T) {
	orig := GetLevel()
	defer SetLevel(orig)

	SetLevel(LevelDebug)
	if !IsDebug() {
		t.Error("IsDebug() = false after SetLevel(LevelDebug)")
	}
	SetLevel(LevelError)
	if IsDebug() {
		t.Error("IsDebug() = true at error level")
	}
	if got := GetLevel(); got != LevelError {
		t.Errorf("GetLevel() = %v, want %v", got, LevelError)
	}
}
