package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureJSON = `{
  "telegram": {
    "tg_main": {
      "bot_token": "123456:ABCDEFGHIJKLMNOP",
      "max_file_size": 52428800
    }
  },
  "webhook": {
    "wh_ops": {
      "url": "https://hooks.example/ABCDEF1234567890"
    }
  }
}`

func TestFind_Order(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("a: {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(""), 0o644))

	// yaml comes before toml in the lookup order.
	p, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p)

	// json beats everything.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0o644))
	p, err = Find(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.json"), p)
}

func TestFind_Missing(t *testing.T) {
	_, err := Find(t.TempDir())
	assert.Error(t, err)
}

func TestConvert_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(fixtureJSON), 0o644))

	original, err := Load(jsonPath)
	require.NoError(t, err)

	// json → yaml → toml → json must preserve the parsed tree.
	yamlPath := filepath.Join(dir, "config.yaml")
	tomlPath := filepath.Join(dir, "config.toml")
	backPath := filepath.Join(dir, "back.json")

	require.NoError(t, Convert(jsonPath, yamlPath))
	require.NoError(t, Convert(yamlPath, tomlPath))
	require.NoError(t, Convert(tomlPath, backPath))

	back, err := Load(backPath)
	require.NoError(t, err)

	tg := Instances(back, "telegram")["tg_main"]
	require.NotNil(t, tg)
	assert.Equal(t, "123456:ABCDEFGHIJKLMNOP", tg["bot_token"])

	origTg := Instances(original, "telegram")["tg_main"]
	assert.Equal(t, origTg["bot_token"], tg["bot_token"])
	assert.Equal(t, Instances(original, "webhook")["wh_ops"]["url"],
		Instances(back, "webhook")["wh_ops"]["url"])
}

func TestInstances_MissingPlatform(t *testing.T) {
	cfg, err := Load(writeTemp(t, "config.json", fixtureJSON))
	require.NoError(t, err)
	assert.Nil(t, Instances(cfg, "matrix"))
	assert.Len(t, Instances(cfg, "telegram"), 1)
}

func TestCheckUnknownFields(t *testing.T) {
	raw := map[string]any{"bot_token": "x", "max_file_size": 1}
	assert.NoError(t, CheckUnknownFields(raw, "bot_token", "max_file_size"))

	raw["bot_tokne"] = "typo"
	err := CheckUnknownFields(raw, "bot_token", "max_file_size")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot_tokne")
}

func TestCollectSensitive(t *testing.T) {
	cfg := Raw{
		"discord": map[string]any{
			"dc_main": map[string]any{
				"webhook_url": "https://hooks.example/ABCDEF1234567890",
				"bot_token":   "supersecrettoken",
				"send_method": "webhook",
			},
		},
		"napcat": map[string]any{
			"qq_main": map[string]any{
				"ws_token": "short", // under 8 bytes, skipped
				"ws_url":   "ws://127.0.0.1:3001",
			},
		},
	}

	got := CollectSensitive(cfg)
	assert.ElementsMatch(t, []string{
		"https://hooks.example/ABCDEF1234567890",
		"supersecrettoken",
	}, got)
}

func TestCollectSensitive_NestedAndLists(t *testing.T) {
	cfg := Raw{
		"webhook": map[string]any{
			"multi": map[string]any{
				"targets": []any{
					map[string]any{"auth_password": "p4ssw0rd-long"},
				},
			},
		},
	}
	got := CollectSensitive(cfg)
	assert.Equal(t, []string{"p4ssw0rd-long"}, got)
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}
