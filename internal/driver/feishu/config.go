package feishu

import (
	"errors"
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/nextbridge/nextbridge/internal/config"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/media"
)

type Config struct {
	AppID       string
	AppSecret   string
	MaxFileSize int64
}

func (c *Config) Validate() error {
	if c.AppID == "" {
		return errors.New("feishu app_id cannot be empty")
	}
	if c.AppSecret == "" {
		return errors.New("feishu app_secret cannot be empty")
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = media.DefaultMaxBytes
	}
	return nil
}

func ParseConfig(raw map[string]any) (driver.Config, error) {
	if err := config.CheckUnknownFields(raw, "app_id", "app_secret", "max_file_size"); err != nil {
		return nil, fmt.Errorf("feishu config: %w", err)
	}

	cfg := &Config{
		AppID:       gconv.To[string](raw["app_id"]),
		AppSecret:   gconv.To[string](raw["app_secret"]),
		MaxFileSize: gconv.To[int64](raw["max_file_size"]),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feishu config: %w", err)
	}
	return cfg, nil
}
