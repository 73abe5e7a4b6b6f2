package config

import (
	"sort"
	"strings"
)

// Config keys whose string values are treated as credentials: they must
// never appear in outgoing messages and are masked in log output. Matched
// as substrings against lower-cased key names.
var sensitiveKeyPatterns = []string{"token", "secret", "password", "webhook_url"}

// minSensitiveLen skips short values that would over-match ordinary text.
const minSensitiveLen = 8

// CollectSensitive walks the parsed config recursively and extracts every
// credential-like string value of at least 8 bytes. The result is sorted
// and deduplicated; callers treat it as frozen.
func CollectSensitive(cfg Raw) []string {
	found := map[string]struct{}{}
	collectSensitive(cfg, found)

	out := make([]string, 0, len(found))
	for v := range found {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func collectSensitive(v any, found map[string]struct{}) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if s, ok := child.(string); ok && sensitiveKey(k) {
				if len(s) >= minSensitiveLen {
					found[s] = struct{}{}
				}
				continue
			}
			collectSensitive(child, found)
		}
	case []any:
		for _, item := range t {
			collectSensitive(item, found)
		}
	}
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
