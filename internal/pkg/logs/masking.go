package logs

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// minSecretLen guards against masking common short substrings.
const minSecretLen = 8

var (
	maskMu  sync.RWMutex
	secrets []string
)

// RegisterSensitive installs the set of secret strings that must never
// appear in log output. Values shorter than 8 bytes are skipped. Intended
// to be called once, right after the config is loaded.
func RegisterSensitive(values []string) {
	filtered := make([]string, 0, len(values))
	for _, v := range values {
		if len(v) >= minSecretLen {
			filtered = append(filtered, v)
		}
	}

	maskMu.Lock()
	secrets = filtered
	maskMu.Unlock()
}

// maskingHook redacts registered secrets from every entry before emission.
type maskingHook struct{}

func (maskingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (maskingHook) Fire(entry *logrus.Entry) error {
	maskMu.RLock()
	defer maskMu.RUnlock()
	for _, s := range secrets {
		if strings.Contains(entry.Message, s) {
			entry.Message = strings.ReplaceAll(entry.Message, s, "***")
		}
	}
	return nil
}
