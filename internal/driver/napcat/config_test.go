package napcat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"ws_url":   "ws://10.0.0.2:3001",
		"ws_token": "sekrit-token",
	})
	require.NoError(t, err)
	nc := cfg.(*Config)
	assert.Equal(t, "ws://10.0.0.2:3001", nc.WsURL)
	assert.Equal(t, "sekrit-token", nc.WsToken)
}

func TestParseConfig_DefaultURL(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:3001", cfg.(*Config).WsURL)
}

func TestParseConfig_BadScheme(t *testing.T) {
	_, err := ParseConfig(map[string]any{"ws_url": "http://127.0.0.1:3001"})
	assert.Error(t, err)
}
