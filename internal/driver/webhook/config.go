package webhook

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/gg/gconv"

	"github.com/nextbridge/nextbridge/internal/config"
	"github.com/nextbridge/nextbridge/internal/driver"
)

type Config struct {
	// URL is the outbound endpoint; empty makes the instance receive-only.
	URL     string
	Method  string
	Headers map[string]string

	// ListenAddr enables the inbound HTTP listener (e.g. "0.0.0.0:8090");
	// empty makes the instance send-only.
	ListenAddr string
}

func (c *Config) Validate() error {
	if c.URL == "" && c.ListenAddr == "" {
		return errors.New("webhook needs url (outbound), listen_addr (inbound), or both")
	}
	switch c.Method {
	case "":
		c.Method = http.MethodPost
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return fmt.Errorf("webhook method must be POST, PUT or PATCH, got %q", c.Method)
	}
	return nil
}

func ParseConfig(raw map[string]any) (driver.Config, error) {
	if err := config.CheckUnknownFields(raw, "url", "method", "headers", "listen_addr"); err != nil {
		return nil, fmt.Errorf("webhook config: %w", err)
	}

	cfg := &Config{
		URL:        gconv.To[string](raw["url"]),
		Method:     gconv.To[string](raw["method"]),
		ListenAddr: gconv.To[string](raw["listen_addr"]),
	}
	if headers, ok := raw["headers"].(map[string]any); ok {
		cfg.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			cfg.Headers[k] = gconv.To[string](v)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	return cfg, nil
}
