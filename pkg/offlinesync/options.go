package offlinesync

import (
	"github.com/kong/go-offline-sync/pkg/engine"
	"github.com/kong/go-offline-sync/pkg/resolve"
)

// Options configures a Facade at construction. There are no ambient
// globals: the device ID, the optional resolver, and the engine
// configuration are provided here; the storage handle is passed to New and
// adapters are registered on the Facade.
type Options struct {
	// DeviceID identifies this process's operations. A random UUID is
	// generated and reused for the facade's lifetime if left empty.
	DeviceID string

	// Resolver is consulted on remote conflicts. A nil Resolver means
	// every conflict fails with "conflict without resolver".
	Resolver resolve.Resolver

	// Config overrides the engine's default drain policy. Leaving Config
	// entirely zero-valued (the Go zero value of engine.Config{}) falls
	// back to engine.DefaultConfig() in full; once the caller sets any
	// field, every field of Config is taken as given, including
	// EnableReduction: false, MaxRetries: 0, and an unbounded
	// Concurrency: 0 — none of those are silently overridden.
	Config engine.Config
}

func (o Options) withDefaults() (Options, error) {
	if o.Config == (engine.Config{}) {
		o.Config = engine.DefaultConfig()
	}
	return o, nil
}
