package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TapsDir != "." {
		t.Errorf("TapsDir = %q, want .", cfg.TapsDir)
	}
	if cfg.State.Backend != "file" {
		t.Errorf("State.Backend = %q, want file", cfg.State.Backend)
	}
	if cfg.Sync.Target != "csv" {
		t.Errorf("Sync.Target = %q, want csv", cfg.Sync.Target)
	}
}

func TestLoadAppliesDefaultsToPartialConfig(t *testing.T) {
	path := writeConfig(t, "taps_dir: /srv/taps\nstate:\n  backend: sqlite\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfigDir != filepath.Join("/srv/taps", ".secrets") {
		t.Errorf("ConfigDir = %q", cfg.ConfigDir)
	}
	if cfg.OutputDir != filepath.Join("/srv/taps", ".output") {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.State.Backend != "sqlite" {
		t.Errorf("State.Backend = %q, want sqlite", cfg.State.Backend)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown backend", "state:\n  backend: redis\n", "unknown state backend"},
		{"postgres without dsn", "state:\n  backend: postgres\n", "state.dsn is required"},
		{"malformed yaml", "taps_dir: [\n", "parsing config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load error = %v, want contains %q", err, tt.wantErr)
			}
		})
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := Default()
	cfg.TapsDir = "/srv/taps"
	cfg.ConfigDir = "/srv/secrets"
	cfg.OutputDir = "/srv/out"

	tests := []struct {
		got, want string
	}{
		{cfg.RulesFile("salesforce"), "/srv/taps/salesforce.rules.txt"},
		{cfg.PlanFile("salesforce"), "/srv/taps/plan-salesforce.yml"},
		{cfg.PluginConfigFile("tap-salesforce"), "/srv/secrets/tap-salesforce-config.json"},
		{cfg.RawCatalogFile("salesforce"), "/srv/out/salesforce/salesforce-catalog-raw.json"},
		{cfg.SelectedCatalogFile("salesforce"), "/srv/out/salesforce/salesforce-catalog-selected.json"},
		{cfg.StreamCatalogFile("salesforce", "account"), "/srv/out/salesforce/salesforce-account-catalog.json"},
	}
	for _, tt := range tests {
		if tt.got != filepath.FromSlash(tt.want) {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
