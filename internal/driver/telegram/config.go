package telegram

import (
	"errors"
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/nextbridge/nextbridge/internal/config"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/media"
)

type Config struct {
	BotToken    string // Telegram Bot API token
	MaxFileSize int64  // attachment download cap in bytes
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return errors.New("telegram bot_token cannot be empty")
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = media.DefaultMaxBytes
	}
	return nil
}

func ParseConfig(raw map[string]any) (driver.Config, error) {
	if err := config.CheckUnknownFields(raw, "bot_token", "max_file_size"); err != nil {
		return nil, fmt.Errorf("telegram config: %w", err)
	}

	cfg := &Config{
		BotToken:    gconv.To[string](raw["bot_token"]),
		MaxFileSize: gconv.To[int64](raw["max_file_size"]),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telegram config: %w", err)
	}
	return cfg, nil
}
