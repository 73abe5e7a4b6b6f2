package discord

import (
	"errors"
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/nextbridge/nextbridge/internal/config"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/media"
)

const (
	SendMethodBot     = "bot"
	SendMethodWebhook = "webhook"
)

type Config struct {
	BotToken string
	// SendMethod selects outbound delivery: "bot" posts as the bot user,
	// "webhook" impersonates the original sender via an incoming webhook.
	// Inbound always uses the gateway, so BotToken is required either way.
	SendMethod  string
	WebhookURL  string
	MaxFileSize int64
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return errors.New("discord bot_token cannot be empty")
	}
	switch c.SendMethod {
	case "":
		c.SendMethod = SendMethodBot
	case SendMethodBot:
	case SendMethodWebhook:
		if c.WebhookURL == "" {
			return errors.New("discord send_method webhook requires webhook_url")
		}
	default:
		return fmt.Errorf("discord send_method must be bot or webhook, got %q", c.SendMethod)
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = media.DefaultMaxBytes
	}
	return nil
}

func ParseConfig(raw map[string]any) (driver.Config, error) {
	if err := config.CheckUnknownFields(raw, "bot_token", "send_method", "webhook_url", "max_file_size"); err != nil {
		return nil, fmt.Errorf("discord config: %w", err)
	}

	cfg := &Config{
		BotToken:    gconv.To[string](raw["bot_token"]),
		SendMethod:  gconv.To[string](raw["send_method"]),
		WebhookURL:  gconv.To[string](raw["webhook_url"]),
		MaxFileSize: gconv.To[int64](raw["max_file_size"]),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid discord config: %w", err)
	}
	return cfg, nil
}
