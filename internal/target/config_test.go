package target

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCommandName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"csv", "target-csv"},
		{"target-csv", "target-csv"},
		{"s3-csv", "target-s3-csv"},
	}
	for _, tc := range cases {
		if got := CommandName(tc.in); got != tc.want {
			t.Errorf("CommandName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderConfig(t *testing.T) {
	raw := []byte(`{
		"s3_key_prefix": "data/{tap}/{table}/v{version}/",
		"delimiter": ",",
		"flatten_max_depth": 2
	}`)

	out, err := RenderConfig(raw, "salesforce", "account", "3")
	if err != nil {
		t.Fatalf("RenderConfig: %v", err)
	}

	var cfg map[string]any
	if err := json.Unmarshal(out, &cfg); err != nil {
		t.Fatalf("parsing rendered config: %v", err)
	}
	if got := cfg["s3_key_prefix"]; got != "data/salesforce/account/v3/" {
		t.Errorf("s3_key_prefix = %q", got)
	}
	if got := cfg["delimiter"]; got != "," {
		t.Errorf("delimiter = %q", got)
	}
	if got := cfg["flatten_max_depth"]; got != float64(2) {
		t.Errorf("flatten_max_depth = %v", got)
	}
}

func TestRenderConfigInvalidJSON(t *testing.T) {
	if _, err := RenderConfig([]byte("{not json"), "t", "x", "1"); err == nil {
		t.Fatal("expected error for invalid config JSON")
	}
}

func TestWriteStreamConfig(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "target-csv-config.json")
	if err := os.WriteFile(base, []byte(`{"destination_path": "out/{tap}/{table}"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	path, err := WriteStreamConfig(base, "salesforce", "account", "1")
	if err != nil {
		t.Fatalf("WriteStreamConfig: %v", err)
	}
	if !strings.HasSuffix(path, "target-csv-config-account.json") {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatal(err)
	}
	if got := cfg["destination_path"]; got != "out/salesforce/account" {
		t.Errorf("destination_path = %q", got)
	}
}
