// Package config handles the bridge's multi-format configuration file.
//
// The top-level shape is platform → instance → per-driver fields:
//
//	{
//	  "telegram": { "tg_main": { "bot_token": "..." } },
//	  "discord":  { "dc_ops":  { "webhook_url": "..." } }
//	}
//
// Format is always inferred from the file extension: .json, .yaml/.yml,
// or .toml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nextbridge/nextbridge/internal/consts"
)

// Raw is a fully-parsed but not yet validated config tree.
type Raw = map[string]any

// Top-level sections that are not platform names.
var reservedSections = []string{"log", "store"}

// ReservedSection reports whether a top-level config key is bridge-wide
// configuration rather than a platform section.
func ReservedSection(name string) bool {
	for _, s := range reservedSections {
		if s == name {
			return true
		}
	}
	return false
}

// Find returns the first config file present in dir, trying
// config.json, config.yaml, config.yml, config.toml in order.
func Find(dir string) (string, error) {
	for _, name := range consts.ConfigFileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found in %s (tried %s)",
		dir, strings.Join(consts.ConfigFileNames, " / "))
}

// Load reads and parses path; the format is inferred from the extension.
func Load(path string) (Raw, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data := Raw{}
	switch ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parse toml config %s: %w", path, err)
		}
	default: // JSON
		if err := sonic.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parse json config %s: %w", path, err)
		}
	}
	return data, nil
}

// Save writes data to path; the format is inferred from the extension.
func Save(data Raw, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	var (
		out []byte
		err error
	)
	switch ext(path) {
	case ".yaml", ".yml":
		out, err = yaml.Marshal(data)
	case ".toml":
		out, err = toml.Marshal(data)
	default: // JSON
		out, err = sonic.ConfigDefault.MarshalIndent(data, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config for %s: %w", path, err)
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Convert reads src and rewrites it as dst in the format implied by the
// destination extension.
func Convert(src, dst string) error {
	data, err := Load(src)
	if err != nil {
		return err
	}
	return Save(data, dst)
}

// Instances returns the instance blocks configured under platform.
// A missing platform section yields an empty map.
func Instances(cfg Raw, platform string) map[string]map[string]any {
	section, ok := cfg[platform].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]map[string]any, len(section))
	for instanceID, v := range section {
		if block, ok := v.(map[string]any); ok {
			out[instanceID] = block
		}
	}
	return out
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
