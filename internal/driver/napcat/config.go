package napcat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/gg/gconv"

	"github.com/nextbridge/nextbridge/internal/config"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/media"
)

type Config struct {
	// WsURL is the NapCat OneBot 11 WebSocket endpoint. NapCat is the
	// server; this driver connects as a client.
	WsURL       string
	WsToken     string
	MaxFileSize int64
}

func (c *Config) Validate() error {
	if c.WsURL == "" {
		c.WsURL = "ws://127.0.0.1:3001"
	}
	if !strings.HasPrefix(c.WsURL, "ws://") && !strings.HasPrefix(c.WsURL, "wss://") {
		return errors.New("napcat ws_url must start with ws:// or wss://")
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = media.DefaultMaxBytes
	}
	return nil
}

func ParseConfig(raw map[string]any) (driver.Config, error) {
	if err := config.CheckUnknownFields(raw, "ws_url", "ws_token", "max_file_size"); err != nil {
		return nil, fmt.Errorf("napcat config: %w", err)
	}

	cfg := &Config{
		WsURL:       gconv.To[string](raw["ws_url"]),
		WsToken:     gconv.To[string](raw["ws_token"]),
		MaxFileSize: gconv.To[int64](raw["max_file_size"]),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid napcat config: %w", err)
	}
	return cfg, nil
}
