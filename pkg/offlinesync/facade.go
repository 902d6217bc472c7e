// Package offlinesync is the public entry point to the sync engine: it
// exposes logging helpers for hybrid usage (the application owns entity
// storage and only asks the facade to log operations), optional integrated
// CRUD for source-of-truth usage (the facade owns entity storage too), and
// Sync, without changing the core engine underneath either mode.
package offlinesync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kong/go-offline-sync/pkg/engine"
	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/oplog"
	"github.com/kong/go-offline-sync/pkg/remote"
	"github.com/kong/go-offline-sync/pkg/storage"
)

// Facade ties a Storage, an operation log, an adapter Registry, an optional
// Resolver, and an Engine together behind the hybrid and source-of-truth
// usage modes.
type Facade struct {
	store    storage.Storage
	log      *oplog.Log
	registry *remote.Registry
	engine   *engine.Engine
	deviceID string
}

// New constructs a Facade. The caller owns store's lifecycle (Initialize
// before use, Close when done); New does not call either.
func New(store storage.Storage, opts Options) (*Facade, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("offlinesync: %w", err)
	}

	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	log := oplog.New(store)
	registry := &remote.Registry{}
	eng := engine.New(log, store, registry, opts.Resolver, opts.Config)

	return &Facade{
		store:    store,
		log:      log,
		registry: registry,
		engine:   eng,
		deviceID: deviceID,
	}, nil
}

// DeviceID returns the identifier stamped on every operation this facade
// logs.
func (f *Facade) DeviceID() string { return f.deviceID }

// RegisterAdapter binds a remote.Adapter to an entity type.
func (f *Facade) RegisterAdapter(entityType string, adapter remote.Adapter) error {
	return f.registry.Register(entityType, adapter)
}

// MustRegisterAdapter is RegisterAdapter but panics on error.
func (f *Facade) MustRegisterAdapter(entityType string, adapter remote.Adapter) {
	f.registry.MustRegister(entityType, adapter)
}

// Sync drives pending operations to their adapters. See engine.Engine.Sync.
func (f *Facade) Sync(ctx context.Context) error {
	return f.engine.Sync(ctx)
}

// Subscribe observes the engine's status stream. See engine.Engine.Subscribe.
func (f *Facade) Subscribe() (<-chan op.SyncStatusEvent, func()) {
	return f.engine.Subscribe()
}

// Status returns the engine's most recently emitted status.
func (f *Facade) Status() op.SyncStatusEvent { return f.engine.Status() }

// IsSyncing reports whether a sync is currently in progress.
func (f *Facade) IsSyncing() bool { return f.engine.IsSyncing() }

// Close shuts down the facade's status stream.
func (f *Facade) Close() { f.engine.Close() }

// Reset wipes all local state: entities, operations, and metadata. It is
// the maintenance hook an application calls on "sign out" so the next
// signed-in user doesn't inherit stale local data.
func (f *Facade) Reset(ctx context.Context) error {
	return f.store.ClearAll(ctx)
}

func (f *Facade) newOperation(entityType, entityID string, kind op.Kind, payload op.Payload) op.Operation {
	return op.Operation{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Kind:       kind,
		Payload:    payload,
		Timestamp:  time.Now().UnixMilli(),
		Status:     op.Pending,
		DeviceID:   f.deviceID,
	}
}
