package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bytedance/gg/gmap"
)

var (
	defaultRegistry = NewRegistry()

	Register  = defaultRegistry.Register
	Lookup    = defaultRegistry.Lookup
	Platforms = defaultRegistry.Platforms
	All       = defaultRegistry.All
)

// Entry describes one platform driver kind. Driver packages register their
// entry from init(), so importing the package is enough to enable it.
type Entry struct {
	// Platform is the config section name this driver claims.
	Platform string

	// ParseConfig turns one raw instance block into a typed config.
	// It must reject unknown fields.
	ParseConfig func(raw map[string]any) (Config, error)

	// New builds a driver instance from a config that already passed
	// Validate.
	New func(instanceID string, cfg Config, deps Deps) (Driver, error)
}

type Registry struct {
	entries map[string]Entry
	mu      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry, 8),
	}
}

// Register adds a driver kind. Registering the same platform twice is a
// programming error and fails loudly.
func (r *Registry) Register(e Entry) error {
	if e.Platform == "" || e.ParseConfig == nil || e.New == nil {
		return fmt.Errorf("driver registry: incomplete entry %+v", e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.Platform]; exists {
		return fmt.Errorf("driver registry: platform %q registered twice", e.Platform)
	}
	r.entries[e.Platform] = e
	return nil
}

func (r *Registry) Lookup(platform string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[platform]
	return e, ok
}

// Platforms returns the registered platform names, sorted for stable
// startup logs.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := gmap.Keys(r.entries)
	sort.Strings(names)
	return names
}

// All returns a snapshot of every entry.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return gmap.ToSlice(r.entries, func(_ string, e Entry) Entry { return e })
}

// MustRegister is the init()-time convenience wrapper.
func MustRegister(e Entry) {
	if err := Register(e); err != nil {
		panic(err)
	}
}
