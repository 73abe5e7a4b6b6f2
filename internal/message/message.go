package message

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentVoice AttachmentType = "voice"
	AttachmentFile  AttachmentType = "file"
)

// Attachment is a media blob carried alongside a NormalizedMessage.
// Attachments are immutable by convention once constructed: the router hands
// the same instance to every fan-out target, so senders must not mutate them.
type Attachment struct {
	Type AttachmentType
	// URL is the remote download location. May be empty when Data is set.
	URL string
	// Name is an optional filename hint.
	Name string
	// Size is the byte count, -1 when unknown.
	Size int64
	// Data holds pre-fetched bytes. When set, the media fetcher skips
	// network I/O entirely.
	Data []byte
}

// Usable reports whether the attachment carries anything sendable.
// Attachments with neither URL nor Data are ignored on send.
func (a *Attachment) Usable() bool {
	return a != nil && (a.URL != "" || len(a.Data) > 0)
}

// Channel identifies a location within a platform. Keys vary per platform
// (chat_id, group_id, channel_id, ...); values may arrive as strings or
// numbers depending on the config format, so all comparisons are stringwise.
type Channel map[string]any

// Str returns the channel value for key rendered as a string, or "" when
// the key is absent.
func (c Channel) Str(key string) string {
	v, ok := c[key]
	if !ok {
		return ""
	}
	return Str(v)
}

// Equal reports deep stringwise equality: same key set, and every value
// equal after string coercion. Used for echo suppression.
func (c Channel) Equal(other Channel) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		ov, ok := other[k]
		if !ok || Str(v) != Str(ov) {
			return false
		}
	}
	return true
}

// Str renders a scalar config value the way rule matching compares it:
// numbers without a trailing ".0", booleans as true/false.
func Str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// NormalizedMessage is the bridge's lingua franca. A driver constructs one
// per inbound platform event, passes it to the router once, and discards it.
// The router does not retain it.
type NormalizedMessage struct {
	// Platform is the driver kind tag (e.g. "discord"), informational only.
	Platform string
	// InstanceID identifies the source driver instance; matches a config key.
	InstanceID string
	Channel    Channel

	User       string
	UserID     string
	UserAvatar string

	Text        string
	Attachments []*Attachment

	// MessageID is the platform-local message ID, when known.
	MessageID string
	// BridgeID is the bridge-wide ID the source driver minted for this
	// message; empty when the mapping store is disabled.
	BridgeID string
	// ReplyParent is the bridge ID of the message this one replies to,
	// resolved by the source driver through the mapping store.
	ReplyParent string
}
