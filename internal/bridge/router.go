package bridge

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/nextbridge/nextbridge/internal/message"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
)

const defaultSendTimeout = 30 * time.Second

// SendFunc delivers a formatted message into one channel of one driver
// instance. It returns the platform message ID of the sent message when the
// platform reports one.
type SendFunc func(ctx context.Context, target message.Channel, text string, attachments []*message.Attachment, extra map[string]any) (string, error)

// Router owns the rule table and fans every inbound normalized message out
// to the matching targets. Drivers register their senders at startup and
// call OnMessage for every message they receive.
type Router struct {
	rules       []Rule
	sensitive   []string
	sendTimeout time.Duration

	mu      sync.RWMutex
	senders map[string]SendFunc
}

func NewRouter(rules []Rule) *Router {
	return &Router{
		rules:       rules,
		sendTimeout: defaultSendTimeout,
		senders:     map[string]SendFunc{},
	}
}

// SetSensitive installs the credential values extracted from the config.
// Must be called before the first OnMessage; the slice is never mutated
// afterwards, so OnMessage reads it without locking.
func (r *Router) SetSensitive(values []string) {
	r.sensitive = values
}

// RegisterSender binds an instance ID to its delivery function. Drivers
// call this once their session is ready; re-registering after a reconnect
// replaces the old sender.
func (r *Router) RegisterSender(instanceID string, fn SendFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[instanceID] = fn
}

func (r *Router) sender(instanceID string) (SendFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.senders[instanceID]
	return fn, ok
}

// OnMessage evaluates every rule in order against msg and dispatches to all
// matching targets. Dispatch is synchronous and sequential, which keeps
// per-channel ordering equal to arrival order. A message matching several
// rules with the same target is sent once per match.
func (r *Router) OnMessage(ctx context.Context, msg *message.NormalizedMessage) {
	for i, rule := range r.rules {
		switch rule.Type {
		case RuleConnect:
			r.dispatchConnect(ctx, i, rule, msg)
		default:
			r.dispatchForward(ctx, i, rule, msg)
		}
	}
}

func (r *Router) dispatchForward(ctx context.Context, ruleIdx int, rule Rule, msg *message.NormalizedMessage) {
	from, ok := rule.From[msg.InstanceID]
	if !ok || !channelMatches(msg.Channel, from) {
		return
	}
	for targetID, target := range rule.To {
		// Never echo a message back into the channel it came from.
		if targetID == msg.InstanceID && msg.Channel.Equal(target) {
			continue
		}
		r.deliver(ctx, ruleIdx, targetID, target, rule.Msg, msg)
	}
}

func (r *Router) dispatchConnect(ctx context.Context, ruleIdx int, rule Rule, msg *message.NormalizedMessage) {
	src, ok := rule.Channels[msg.InstanceID]
	if !ok || !channelMatches(msg.Channel, connectAddress(src)) {
		return
	}
	for targetID, entry := range rule.Channels {
		target := connectAddress(entry)
		if targetID == msg.InstanceID && msg.Channel.Equal(target) {
			continue
		}
		msgCfg := rule.Msg
		local, err := connectMsg(entry)
		if err != nil {
			logs.CtxWarn(ctx, "[bridge] rule #%d channel %q: %v", ruleIdx, targetID, err)
		} else if local != nil {
			msgCfg = mergeMsg(rule.Msg, local)
		}
		r.deliver(ctx, ruleIdx, targetID, target, msgCfg, msg)
	}
}

// mergeMsg overlays a connect entry's local msg block on the rule-wide one.
// Channel-local keys win.
func mergeMsg(ruleWide, local map[string]any) map[string]any {
	merged := make(map[string]any, len(ruleWide)+len(local))
	for k, v := range ruleWide {
		merged[k] = v
	}
	for k, v := range local {
		merged[k] = v
	}
	return merged
}

func (r *Router) deliver(ctx context.Context, ruleIdx int, targetID string, target message.Channel, msgCfg map[string]any, msg *message.NormalizedMessage) {
	fn, ok := r.sender(targetID)
	if !ok {
		logs.CtxWarn(ctx, "[bridge] rule #%d: no sender registered for %q, dropping", ruleIdx, targetID)
		return
	}

	text, extra := r.render(ctx, ruleIdx, msgCfg, msg)

	if hit := r.findSensitive(text); hit != "" {
		logs.CtxWarn(ctx, "[bridge] rule #%d: message to %q blocked, formatted text contains a configured credential", ruleIdx, targetID)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	r.invoke(callCtx, targetID, fn, target, text, msg.Attachments, extra)
}

func (r *Router) invoke(ctx context.Context, targetID string, fn SendFunc, target message.Channel, text string, attachments []*message.Attachment, extra map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			logs.CtxError(ctx, "[bridge] sender %q panicked: %v\n%s", targetID, p, debug.Stack())
		}
	}()
	if _, err := fn(ctx, target, text, attachments, extra); err != nil {
		logs.CtxError(ctx, "[bridge] send to %q failed: %v", targetID, err)
	}
}

// render expands msg_format and every other string value of the msg block.
// An unexpandable msg_format degrades to the raw message text; other keys
// keep their original value on expansion failure.
func (r *Router) render(ctx context.Context, ruleIdx int, msgCfg map[string]any, msg *message.NormalizedMessage) (string, map[string]any) {
	tctx := templateContext(msg)

	format := "{msg}"
	if v, ok := msgCfg["msg_format"].(string); ok && v != "" {
		format = v
	}
	text, err := expandTemplate(format, tctx)
	if err != nil {
		logs.CtxWarn(ctx, "[bridge] rule #%d: bad msg_format: %v, sending raw text", ruleIdx, err)
		text = msg.Text
	}

	var extra map[string]any
	for k, v := range msgCfg {
		if k == "msg_format" {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		if s, ok := v.(string); ok {
			if expanded, err := expandTemplate(s, tctx); err == nil {
				extra[k] = expanded
				continue
			}
		}
		extra[k] = v
	}

	// Threading metadata rides along in reserved extra keys so senders can
	// map their copy back to the bridge-wide ID.
	if msg.BridgeID != "" {
		if extra == nil {
			extra = map[string]any{}
		}
		extra["bridge_id"] = msg.BridgeID
	}
	if msg.ReplyParent != "" {
		if extra == nil {
			extra = map[string]any{}
		}
		extra["reply_parent"] = msg.ReplyParent
	}
	return text, extra
}

// findSensitive returns the first configured credential appearing as a
// substring of text, or "" when the text is clean.
func (r *Router) findSensitive(text string) string {
	for _, secret := range r.sensitive {
		if strings.Contains(text, secret) {
			return secret
		}
	}
	return ""
}

// channelMatches reports whether got satisfies the rule's channel spec:
// every key of want must be present in got with a stringwise-equal value.
// Keys of got not mentioned by want are ignored.
func channelMatches(got, want message.Channel) bool {
	for k, v := range want {
		if got.Str(k) != message.Str(v) {
			return false
		}
	}
	return true
}
