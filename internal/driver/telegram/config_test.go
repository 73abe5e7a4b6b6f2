package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextbridge/nextbridge/internal/media"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"bot_token":     "123456:ABCDEF",
		"max_file_size": 1048576,
	})
	require.NoError(t, err)
	tg := cfg.(*Config)
	assert.Equal(t, "123456:ABCDEF", tg.BotToken)
	assert.Equal(t, int64(1048576), tg.MaxFileSize)
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{"bot_token": "123456:ABCDEF"})
	require.NoError(t, err)
	assert.Equal(t, media.DefaultMaxBytes, cfg.(*Config).MaxFileSize)
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := ParseConfig(map[string]any{})
	assert.Error(t, err, "missing token")

	_, err = ParseConfig(map[string]any{"bot_token": "x", "bot_tokne": "typo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot_tokne")
}
