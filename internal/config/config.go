// Package config loads the project configuration file and resolves the
// conventional paths for rules files, plugin configs, catalogs, plans and
// state. The resolved Config is threaded explicitly into the planner and
// orchestrator so multiple taps can be planned or synced concurrently in
// one process without shared globals.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level project configuration.
type Config struct {
	// TapsDir holds the per-tap rules files (<tap>.rules.txt) and plan
	// artifacts. Defaults to the working directory.
	TapsDir string `yaml:"taps_dir"`

	// ConfigDir holds plugin config JSON files (tap-X-config.json,
	// target-Y-config.json). Recommended to be excluded from source
	// control. Defaults to "<taps_dir>/.secrets".
	ConfigDir string `yaml:"config_dir"`

	// OutputDir holds discovered catalogs and other scratch output.
	// Defaults to "<taps_dir>/.output".
	OutputDir string `yaml:"output_dir"`

	State  StateConfig  `yaml:"state"`
	Sync   SyncConfig   `yaml:"sync"`
	Log    LogConfig    `yaml:"log"`
	Notify NotifyConfig `yaml:"notify"`
}

// StateConfig selects the replication state backend.
type StateConfig struct {
	// Backend is one of "file", "sqlite" or "postgres".
	Backend string `yaml:"backend"`
	// Path is the state directory (file backend) or database file
	// (sqlite backend).
	Path string `yaml:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `yaml:"dsn"`
}

// SyncConfig holds sync defaults.
type SyncConfig struct {
	// Target is the default target plugin name, without the "target-"
	// prefix.
	Target string `yaml:"target"`
	// PipelineVersion is substituted for the {version} placeholder in
	// target configs.
	PipelineVersion string `yaml:"pipeline_version"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotifyConfig configures failure notifications.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file and applies defaults for anything unset.
// A missing file yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TapsDir == "" {
		c.TapsDir = "."
	}
	if c.ConfigDir == "" {
		c.ConfigDir = filepath.Join(c.TapsDir, ".secrets")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.TapsDir, ".output")
	}
	if c.State.Backend == "" {
		c.State.Backend = "file"
	}
	if c.State.Path == "" {
		c.State.Path = filepath.Join(c.OutputDir, "state")
	}
	if c.Sync.Target == "" {
		c.Sync.Target = "csv"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.State.Backend {
	case "file", "sqlite":
	case "postgres":
		if c.State.DSN == "" {
			return fmt.Errorf("state.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown state backend %q (want file, sqlite or postgres)", c.State.Backend)
	}
	return nil
}

// RulesFile returns the rules file path for a tap.
func (c *Config) RulesFile(tap string) string {
	return filepath.Join(c.TapsDir, tap+".rules.txt")
}

// PlanFile returns the plan artifact path for a tap.
func (c *Config) PlanFile(tap string) string {
	return filepath.Join(c.TapsDir, "plan-"+tap+".yml")
}

// PluginConfigFile returns the config JSON path for a plugin
// ("tap-salesforce", "target-csv").
func (c *Config) PluginConfigFile(plugin string) string {
	return filepath.Join(c.ConfigDir, plugin+"-config.json")
}

// CatalogDir returns the scratch directory for a tap's catalog files.
func (c *Config) CatalogDir(tap string) string {
	return filepath.Join(c.OutputDir, tap)
}

// RawCatalogFile returns the discovery output path for a tap.
func (c *Config) RawCatalogFile(tap string) string {
	return filepath.Join(c.CatalogDir(tap), tap+"-catalog-raw.json")
}

// SelectedCatalogFile returns the selected-catalog path for a tap.
func (c *Config) SelectedCatalogFile(tap string) string {
	return filepath.Join(c.CatalogDir(tap), tap+"-catalog-selected.json")
}

// StreamCatalogFile returns the single-stream catalog path used for one
// sync invocation.
func (c *Config) StreamCatalogFile(tap, stream string) string {
	return filepath.Join(c.CatalogDir(tap), tap+"-"+stream+"-catalog.json")
}
