package bridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"rules": [
			{
				"type": "forward",
				"from": {"tg_main": {"chat_id": "-100"}},
				"to":   {"qq_main": {"group_id": 123456}}
			},
			{
				"type": "connect",
				"msg": {"msg_format": "[{from}] {msg}"},
				"channels": {
					"tg_main": {"chat_id": "-200"},
					"dc_main": {"server_id": "s", "channel_id": "c", "msg": {"msg_format": "{msg}"}}
				}
			}
		]
	}`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, RuleForward, rules[0].Type)
	assert.Equal(t, "-100", rules[0].From["tg_main"].Str("chat_id"))
	assert.Equal(t, "123456", rules[0].To["qq_main"].Str("group_id"))

	assert.Equal(t, RuleConnect, rules[1].Type)
	addr := connectAddress(rules[1].Channels["dc_main"])
	assert.Equal(t, "c", addr.Str("channel_id"))
	_, hasMsg := addr["msg"]
	assert.False(t, hasMsg)

	local, err := connectMsg(rules[1].Channels["dc_main"])
	require.NoError(t, err)
	assert.Equal(t, "{msg}", local["msg_format"])
}

func TestLoadRules_Errors(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rules": [`), 0o644))
	_, err = LoadRules(path)
	assert.Error(t, err)
}
