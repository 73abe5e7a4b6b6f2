package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/gg/gconv"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/urfave/cli/v3"

	"github.com/nextbridge/nextbridge/internal/bridge"
	"github.com/nextbridge/nextbridge/internal/config"
	"github.com/nextbridge/nextbridge/internal/consts"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
	"github.com/nextbridge/nextbridge/internal/store"
	"github.com/nextbridge/nextbridge/internal/supervisor"

	// Platform drivers register themselves on import.
	_ "github.com/nextbridge/nextbridge/internal/driver/discord"
	_ "github.com/nextbridge/nextbridge/internal/driver/feishu"
	_ "github.com/nextbridge/nextbridge/internal/driver/napcat"
	_ "github.com/nextbridge/nextbridge/internal/driver/telegram"
	_ "github.com/nextbridge/nextbridge/internal/driver/webhook"
)

var runHwd = &RunRunner{}

type RunRunner struct{}

func (r *RunRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Run the bridge with the configured drivers and rules",
		Action: r.run,
	}
}

func (r *RunRunner) run(ctx context.Context, _ *cli.Command) error {
	dataDir := consts.DataPath()

	cfgPath, err := config.Find(dataDir)
	if err != nil {
		return fmt.Errorf("locate config: %w", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := r.initLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logs.CtxInfo(ctx, "booting nextbridge, using config file: %s", cfgPath)

	// Credentials from the config never appear in logs or bridged text.
	sensitive := config.CollectSensitive(cfg)
	logs.RegisterSensitive(sensitive)

	rules, err := bridge.LoadRules(consts.RulesPath())
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	router := bridge.NewRouter(rules)
	router.SetSensitive(sensitive)

	deps := driver.Deps{Router: router}
	if st, enabled, err := r.openStore(cfg); err != nil {
		return fmt.Errorf("open message store: %w", err)
	} else if enabled {
		defer st.Close()
		deps.Store = st
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sup, err := supervisor.Build(ctx, cfg, deps)
	if err != nil {
		return fmt.Errorf("build drivers: %w", err)
	}
	if err := bridge.ValidateRules(rules, sup.InstanceIDs()); err != nil {
		return fmt.Errorf("validate rules: %w", err)
	}

	go func() {
		signalCh := make(chan os.Signal, 1)
		signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signalCh)

		select {
		case sig := <-signalCh:
			logs.CtxInfo(ctx, "received shutdown signal (%s), stopping", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	logs.CtxInfo(ctx, "bridge is up with %d rules. Press Ctrl+C to stop.", len(rules))
	sup.Run(ctx)

	logs.CtxInfo(ctx, "all drivers stopped, good bye!")
	logs.Flush()
	return nil
}

func (r *RunRunner) initLogger(cfg config.Raw) error {
	section, _ := cfg["log"].(map[string]any)
	err := logs.Init(logs.Options{
		Level:      gconv.To[string](section["level"]),
		Format:     gconv.To[string](section["format"]),
		Output:     gconv.To[string](section["output"]),
		File:       gconv.To[string](section["file"]),
		MaxSize:    gconv.To[int](section["max_size"]),
		MaxBackups: gconv.To[int](section["max_backups"]),
		MaxAge:     gconv.To[int](section["max_age"]),
	})
	if err != nil {
		return err
	}
	// Route hertz's own log lines (webhook listener) through the same pipeline.
	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))
	return nil
}

// openStore opens the SQLite mapping store unless the config disables it
// with store.enabled = false.
func (r *RunRunner) openStore(cfg config.Raw) (*store.Store, bool, error) {
	section, _ := cfg["store"].(map[string]any)
	if v, ok := section["enabled"]; ok && !gconv.To[bool](v) {
		return nil, false, nil
	}

	if err := os.MkdirAll(consts.DataPath(), 0o755); err != nil {
		return nil, false, err
	}
	st, err := store.Open(consts.StorePath())
	if err != nil {
		return nil, false, err
	}
	return st, true, nil
}
