package consts

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DataPathEnv overrides the default data directory.
	DataPathEnv = "BRIDGE_DATA_PATH"

	DefaultDataDir = "data"

	RulesFileName = "rules.json"
	StoreFileName = "messages.db"
)

// ConfigFileNames is the lookup order for the bridge config file.
var ConfigFileNames = []string{
	"config.json",
	"config.yaml",
	"config.yml",
	"config.toml",
}

// DataPath returns the base directory holding config, rules, and the
// message store.
func DataPath() string {
	if p := strings.TrimSpace(os.Getenv(DataPathEnv)); p != "" {
		return p
	}
	return DefaultDataDir
}

func RulesPath() string {
	return filepath.Join(DataPath(), RulesFileName)
}

func StorePath() string {
	return filepath.Join(DataPath(), StoreFileName)
}
