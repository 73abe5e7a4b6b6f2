package driver

import (
	"context"

	"github.com/nextbridge/nextbridge/internal/bridge"
	"github.com/nextbridge/nextbridge/internal/store"
)

// Driver is a runtime adapter between the bridge and one configured instance
// of a chat platform. Implementations receive inbound platform events,
// normalize them, and hand them to the router; the sender they register on
// the router carries traffic the other way.
type Driver interface {
	// Platform returns the driver kind tag ("telegram", "discord", ...).
	Platform() string

	// InstanceID returns the config key this instance was built from.
	InstanceID() string

	// Start connects to the platform and blocks until the context is
	// canceled or a fatal error occurs. Transient failures are the driver's
	// own business: reconnect internally, never return for them.
	Start(ctx context.Context) error
}

// Config is a parsed per-instance driver configuration.
type Config interface {
	// Validate checks required fields and value ranges. Called once at
	// startup before any driver is constructed.
	Validate() error
}

// Deps carries the shared collaborators a driver constructor needs.
// Store may be nil when the mapping store is disabled.
type Deps struct {
	Router *bridge.Router
	Store  *store.Store
}
