package bridge

import (
	"errors"
	"fmt"
	"os"

	"github.com/bytedance/sonic"

	"github.com/nextbridge/nextbridge/internal/message"
)

const (
	RuleForward = "forward"
	RuleConnect = "connect"
)

// reservedMsgKey is never a channel address field inside a connect entry;
// it carries per-channel msg overrides instead.
const reservedMsgKey = "msg"

// Rule is an operator-supplied routing directive.
//
// Forward rules are directional: every message matching one of the `from`
// channels is dispatched to every `to` channel. Connect rules are symmetric:
// every listed channel fans out to every other.
type Rule struct {
	Type string `json:"type"`

	// Forward rules.
	From map[string]message.Channel `json:"from,omitempty"`
	To   map[string]message.Channel `json:"to,omitempty"`

	// Connect rules. Each entry is a channel address map that may carry a
	// reserved "msg" key with per-channel overrides.
	Channels map[string]map[string]any `json:"channels,omitempty"`

	// Msg holds msg_format plus arbitrary extra fields forwarded to the
	// sender after template expansion.
	Msg map[string]any `json:"msg,omitempty"`
}

type rulesFile struct {
	Rules []Rule `json:"rules"`
}

// LoadRules reads the rules file (data/rules.json).
func LoadRules(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var parsed rulesFile
	if err := sonic.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return parsed.Rules, nil
}

// ValidateRules checks that every instance a rule references is actually
// configured. known maps instance IDs to anything truthy.
func ValidateRules(rules []Rule, known map[string]bool) error {
	for i, rule := range rules {
		switch rule.Type {
		case RuleConnect:
			if len(rule.Channels) < 2 {
				return fmt.Errorf("rule #%d: connect rule needs at least two channels", i)
			}
			for instanceID := range rule.Channels {
				if !known[instanceID] {
					return fmt.Errorf("rule #%d: unknown instance %q", i, instanceID)
				}
			}
		case RuleForward, "":
			if len(rule.From) == 0 || len(rule.To) == 0 {
				return fmt.Errorf("rule #%d: forward rule needs both from and to", i)
			}
			for instanceID := range rule.From {
				if !known[instanceID] {
					return fmt.Errorf("rule #%d: unknown instance %q in from", i, instanceID)
				}
			}
			for instanceID := range rule.To {
				if !known[instanceID] {
					return fmt.Errorf("rule #%d: unknown instance %q in to", i, instanceID)
				}
			}
		default:
			return fmt.Errorf("rule #%d: unknown rule type %q", i, rule.Type)
		}
	}
	return nil
}

// connectAddress strips the reserved "msg" key, leaving the bare channel
// address of a connect entry.
func connectAddress(entry map[string]any) message.Channel {
	addr := make(message.Channel, len(entry))
	for k, v := range entry {
		if k == reservedMsgKey {
			continue
		}
		addr[k] = v
	}
	return addr
}

// connectMsg returns the per-channel msg override block of a connect entry,
// or nil when absent.
func connectMsg(entry map[string]any) (map[string]any, error) {
	v, ok := entry[reservedMsgKey]
	if !ok {
		return nil, nil
	}
	block, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New(`reserved "msg" key must hold an object`)
	}
	return block, nil
}
