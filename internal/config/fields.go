package config

import (
	"fmt"

	"github.com/bytedance/gg/gslice"
)

// CheckUnknownFields rejects any key of raw that is not in allowed.
// Unknown per-driver fields are a hard startup error so typos in
// credentials never pass silently.
func CheckUnknownFields(raw map[string]any, allowed ...string) error {
	for k := range raw {
		if !gslice.Contains(allowed, k) {
			return fmt.Errorf("unknown field %q", k)
		}
	}
	return nil
}
