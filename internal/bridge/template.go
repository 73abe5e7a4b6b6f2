package bridge

import (
	"fmt"
	"strings"

	"github.com/nextbridge/nextbridge/internal/message"
)

// templateContext builds the placeholder vocabulary for msg_format
// expansion.
func templateContext(msg *message.NormalizedMessage) map[string]string {
	return map[string]string{
		"platform":    msg.Platform,
		"from":        msg.InstanceID,
		"username":    msg.User,
		"user_id":     msg.UserID,
		"user_avatar": msg.UserAvatar,
		"msg":         msg.Text,
	}
}

// expandTemplate substitutes {placeholder} occurrences from ctx.
// Doubled braces escape literal braces. An unknown placeholder fails the
// whole expansion; the caller falls back to the raw message text.
func expandTemplate(format string, ctx map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(format))

	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unclosed placeholder at offset %d", i)
			}
			key := format[i+1 : i+end]
			val, ok := ctx[key]
			if !ok {
				return "", fmt.Errorf("unknown placeholder %q", key)
			}
			b.WriteString(val)
			i += end
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			b.WriteByte('}')
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
