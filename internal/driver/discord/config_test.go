package discord

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_SendMethods(t *testing.T) {
	// Default is bot mode.
	cfg, err := ParseConfig(map[string]any{"bot_token": "tok"})
	require.NoError(t, err)
	assert.Equal(t, SendMethodBot, cfg.(*Config).SendMethod)

	// Webhook mode needs a webhook_url.
	_, err = ParseConfig(map[string]any{"bot_token": "tok", "send_method": "webhook"})
	assert.Error(t, err)

	cfg, err = ParseConfig(map[string]any{
		"bot_token":   "tok",
		"send_method": "webhook",
		"webhook_url": "https://discord.com/api/webhooks/1/abc",
	})
	require.NoError(t, err)
	assert.Equal(t, SendMethodWebhook, cfg.(*Config).SendMethod)

	_, err = ParseConfig(map[string]any{"bot_token": "tok", "send_method": "carrier-pigeon"})
	assert.Error(t, err)
}

func TestParseConfig_TokenRequired(t *testing.T) {
	// The gateway connection needs a bot token even in webhook send mode.
	_, err := ParseConfig(map[string]any{"send_method": "webhook", "webhook_url": "https://x"})
	assert.Error(t, err)
}

func TestChunkText(t *testing.T) {
	assert.Nil(t, chunkText(""))
	assert.Equal(t, []string{"short"}, chunkText("short"))

	// Long content splits at the limit, preferring newline boundaries.
	long := ""
	for i := 0; i < 300; i++ {
		long += "0123456789\n"
	}
	chunks := chunkText(long)
	require.Greater(t, len(chunks), 1)
	total := ""
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), maxMessageLen)
		total += c
	}
	assert.Equal(t, long, total)
}

func TestChunkText_MultiByte(t *testing.T) {
	// The limit is characters, not bytes; a cut must never land inside
	// a multi-byte sequence.
	long := strings.Repeat("好", 2500)
	chunks := chunkText(long)
	require.Len(t, chunks, 2)
	total := ""
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), maxMessageLen)
		total += c
	}
	assert.Equal(t, long, total)

	// 3000 bytes but only 1000 characters: one chunk.
	assert.Len(t, chunkText(strings.Repeat("好", 1000)), 1)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abcde", 2))
	got := truncateRunes(strings.Repeat("好", 10), 3)
	assert.Equal(t, "好好好", got)
	assert.True(t, utf8.ValidString(got))
}
