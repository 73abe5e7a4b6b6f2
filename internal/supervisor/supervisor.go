// Package supervisor turns the parsed config into running driver instances
// and keeps them running until shutdown.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/nextbridge/nextbridge/internal/config"
	"github.com/nextbridge/nextbridge/internal/driver"
	"github.com/nextbridge/nextbridge/internal/pkg/logs"
)

// Supervisor owns the configured driver instances.
type Supervisor struct {
	drivers []driver.Driver
}

// Build validates every instance block against its registered driver and
// constructs all instances. Configuration problems are hard startup errors
// with a path naming the offending block; unknown top-level platforms only
// warn, so configs can be shared across builds with different driver sets.
func Build(ctx context.Context, cfg config.Raw, deps driver.Deps) (*Supervisor, error) {
	s := &Supervisor{}
	seen := map[string]string{} // instance ID → platform

	for _, platform := range driver.Platforms() {
		entry, _ := driver.Lookup(platform)

		for instanceID, raw := range config.Instances(cfg, platform) {
			if prev, dup := seen[instanceID]; dup {
				return nil, fmt.Errorf("instance %q configured under both %s and %s", instanceID, prev, platform)
			}
			seen[instanceID] = platform

			parsed, err := entry.ParseConfig(raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", platform, instanceID, err)
			}
			d, err := entry.New(instanceID, parsed, deps)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", platform, instanceID, err)
			}
			s.drivers = append(s.drivers, d)
			logs.CtxInfo(ctx, "[supervisor] configured %s/%s", platform, instanceID)
		}
	}

	warnUnknownPlatforms(ctx, cfg)

	if len(s.drivers) == 0 {
		return nil, fmt.Errorf("no driver instances configured")
	}
	return s, nil
}

// InstanceIDs returns the configured instance IDs, for rules validation.
func (s *Supervisor) InstanceIDs() map[string]bool {
	ids := make(map[string]bool, len(s.drivers))
	for _, d := range s.drivers {
		ids[d.InstanceID()] = true
	}
	return ids
}

// Run starts every driver in its own goroutine and blocks until all of
// them have returned. Drivers exit when ctx is canceled; a panicking
// driver takes down only itself.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range s.drivers {
		wg.Add(1)
		go func(d driver.Driver) {
			defer wg.Done()
			name := d.Platform() + "/" + d.InstanceID()

			defer func() {
				if p := recover(); p != nil {
					logs.CtxError(ctx, "[supervisor] %s panicked: %v\n%s", name, p, debug.Stack())
				}
			}()

			logs.CtxInfo(ctx, "[supervisor] starting %s", name)
			if err := d.Start(ctx); err != nil {
				logs.CtxError(ctx, "[supervisor] %s stopped with error: %v", name, err)
				return
			}
			logs.CtxInfo(ctx, "[supervisor] %s stopped", name)
		}(d)
	}
	wg.Wait()
}

// warnUnknownPlatforms flags top-level config sections no registered
// driver claims, which usually means a typo in the platform name.
func warnUnknownPlatforms(ctx context.Context, cfg config.Raw) {
	for section := range cfg {
		if config.ReservedSection(section) {
			continue
		}
		if _, ok := driver.Lookup(section); !ok {
			logs.CtxWarn(ctx, "[supervisor] unknown platform %q in config, section ignored", section)
		}
	}
}
