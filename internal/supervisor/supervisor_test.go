package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/gg/gconv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextbridge/nextbridge/internal/bridge"
	"github.com/nextbridge/nextbridge/internal/config"
	"github.com/nextbridge/nextbridge/internal/driver"
)

type fakeConfig struct {
	Mode string
}

func (c *fakeConfig) Validate() error {
	if c.Mode == "bad" {
		return errors.New("mode cannot be bad")
	}
	return nil
}

type fakeDriver struct {
	instanceID string
	mode       string
}

func (d *fakeDriver) Platform() string   { return "fakechat" }
func (d *fakeDriver) InstanceID() string { return d.instanceID }

func (d *fakeDriver) Start(ctx context.Context) error {
	if d.mode == "panic" {
		panic("driver bug")
	}
	<-ctx.Done()
	return nil
}

var registerOnce sync.Once

func registerFake(t *testing.T) {
	t.Helper()
	registerOnce.Do(func() {
		driver.MustRegister(driver.Entry{
			Platform: "fakechat",
			ParseConfig: func(raw map[string]any) (driver.Config, error) {
				cfg := &fakeConfig{Mode: gconv.To[string](raw["mode"])}
				if err := cfg.Validate(); err != nil {
					return nil, err
				}
				return cfg, nil
			},
			New: func(instanceID string, cfg driver.Config, _ driver.Deps) (driver.Driver, error) {
				return &fakeDriver{instanceID: instanceID, mode: cfg.(*fakeConfig).Mode}, nil
			},
		})
	})
}

func deps() driver.Deps {
	return driver.Deps{Router: bridge.NewRouter(nil)}
}

func TestBuild(t *testing.T) {
	registerFake(t)

	cfg := config.Raw{
		"fakechat": map[string]any{
			"main":   map[string]any{"mode": "ok"},
			"backup": map[string]any{},
		},
		// Unknown platforms warn but do not fail.
		"matrix": map[string]any{
			"mx_main": map[string]any{"homeserver": "https://example.org"},
		},
	}

	s, err := Build(context.Background(), cfg, deps())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"main": true, "backup": true}, s.InstanceIDs())
}

func TestBuild_BadInstanceConfig(t *testing.T) {
	registerFake(t)

	cfg := config.Raw{
		"fakechat": map[string]any{
			"broken": map[string]any{"mode": "bad"},
		},
	}

	_, err := Build(context.Background(), cfg, deps())
	require.Error(t, err)
	// The error names the offending block.
	assert.Contains(t, err.Error(), "fakechat.broken")
}

func TestBuild_Empty(t *testing.T) {
	registerFake(t)
	_, err := Build(context.Background(), config.Raw{}, deps())
	assert.Error(t, err)
}

func TestRun_StopsOnCancelAndContainsPanics(t *testing.T) {
	registerFake(t)

	cfg := config.Raw{
		"fakechat": map[string]any{
			"steady":   map[string]any{},
			"crashing": map[string]any{"mode": "panic"},
		},
	}
	s, err := Build(context.Background(), cfg, deps())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The panicking driver must not take the process down; the steady one
	// keeps Run blocked until cancellation.
	select {
	case <-done:
		t.Fatal("Run returned before cancel")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
