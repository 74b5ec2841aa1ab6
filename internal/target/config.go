package target

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/johndauphine/tapsync/internal/logging"
)

// RenderConfig expands {tap}, {table} and {version} placeholders in
// the string values of a target config JSON document. Non-string
// values pass through unchanged.
func RenderConfig(raw []byte, tapName, tableName, version string) ([]byte, error) {
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing target config: %w", err)
	}

	replacements := map[string]string{
		"{tap}":     tapName,
		"{table}":   tableName,
		"{version}": version,
	}
	for key, val := range cfg {
		s, ok := val.(string)
		if !ok {
			continue
		}
		for placeholder, replacement := range replacements {
			if strings.Contains(s, placeholder) {
				logging.Debug("expanding %s in target config setting %q", placeholder, key)
				s = strings.ReplaceAll(s, placeholder, replacement)
			}
		}
		cfg[key] = s
	}
	return json.Marshal(cfg)
}

// WriteStreamConfig renders the target config for one stream and
// writes it next to the base config file, suffixed with the stream
// name. It returns the path of the written file.
func WriteStreamConfig(configPath, tapName, tableName, version string) (string, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("reading target config: %w", err)
	}
	rendered, err := RenderConfig(raw, tapName, tableName, version)
	if err != nil {
		return "", err
	}
	path := strings.TrimSuffix(configPath, ".json") + "-" + tableName + ".json"
	if err := os.WriteFile(path, rendered, 0o600); err != nil {
		return "", fmt.Errorf("writing target config: %w", err)
	}
	return path, nil
}
