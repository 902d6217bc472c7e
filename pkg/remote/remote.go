// Package remote defines the contract the sync engine consumes to exchange
// operations with a remote authority, one adapter per entity type, plus a
// Registry for dynamic dispatch keyed by entity_type.
package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/kong/go-offline-sync/pkg/op"
)

// ResultKind tags the variant of a SyncResult.
type ResultKind string

const (
	SuccessKind  ResultKind = "Success"
	FailureKind  ResultKind = "Failure"
	ConflictKind ResultKind = "Conflict"
)

// SyncResult is the outcome an Adapter reports for one dispatched
// operation.
type SyncResult struct {
	Kind ResultKind

	// Success fields.
	ServerID        string
	ServerTimestamp *int64
	ResolvedPayload op.Payload

	// Failure fields.
	Message   string
	Retryable bool

	// Conflict fields.
	ConflictData op.Payload
}

// Success builds a SuccessKind result. ResolvedPayload is optional; pass nil
// when the remote has nothing authoritative to flow back to local storage.
func Success(resolvedPayload op.Payload) SyncResult {
	return SyncResult{Kind: SuccessKind, ResolvedPayload: resolvedPayload}
}

// Failure builds a FailureKind result.
func Failure(message string, retryable bool) SyncResult {
	return SyncResult{Kind: FailureKind, Message: message, Retryable: retryable}
}

// Conflict builds a ConflictKind result.
func Conflict(data op.Payload) SyncResult {
	return SyncResult{Kind: ConflictKind, ConflictData: data}
}

// Adapter converts an operation into a server exchange and reports the
// outcome. Implementations MUST be idempotent against Operation.ID: the
// engine assumes retrying an already-processed operation returns Success.
type Adapter interface {
	EntityType() string

	Create(ctx context.Context, o op.Operation) (SyncResult, error)
	Update(ctx context.Context, o op.Operation) (SyncResult, error)
	Delete(ctx context.Context, o op.Operation) (SyncResult, error)
	// Custom handles Kind.Custom(name) operations. An adapter with no
	// custom operations should return Failure("unimplemented", false).
	Custom(ctx context.Context, o op.Operation) (SyncResult, error)

	// FetchRemoteState supports out-of-band conflict fetches. It is not
	// used by the default engine path, which relies on Conflict results.
	FetchRemoteState(ctx context.Context, entityID string) (op.Payload, bool, error)
}

// SyncBatch is an optional batch capability an Adapter may implement. The
// sync engine does not call Batch: it dispatches one operation at a time
// through Dispatch. DefaultBatch is the serial-loop equivalent.
type SyncBatch interface {
	Batch(ctx context.Context, ops []op.Operation) ([]SyncResult, error)
}

// DefaultBatch loops serial calls to the right method on adapter for each
// operation, the default SyncBatch behavior.
func DefaultBatch(ctx context.Context, adapter Adapter, ops []op.Operation) ([]SyncResult, error) {
	out := make([]SyncResult, len(ops))
	for i, o := range ops {
		res, err := Dispatch(ctx, adapter, o)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// Dispatch routes o to the adapter method matching its Kind.
func Dispatch(ctx context.Context, adapter Adapter, o op.Operation) (SyncResult, error) {
	if _, isCustom := o.Kind.IsCustom(); isCustom {
		return adapter.Custom(ctx, o)
	}
	switch o.Kind {
	case op.Create:
		return adapter.Create(ctx, o)
	case op.Update:
		return adapter.Update(ctx, o)
	case op.Delete:
		return adapter.Delete(ctx, o)
	default:
		return SyncResult{}, fmt.Errorf("remote: unknown op kind %s", o.Kind)
	}
}

// ActionError reports a failure encountered dispatching an operation.
type ActionError struct {
	Op         op.Kind
	EntityType string
	EntityID   string
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s/%s failed: %v", e.Op, e.EntityType, e.EntityID, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// ErrNoAdapter is returned by Registry.Get when no adapter is registered for
// an entity type.
var ErrNoAdapter = fmt.Errorf("remote: no adapter registered")

// Registry is a dynamic dispatch table of Adapters keyed by entity_type.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// Register adds adapter under entityType. It errors if entityType is empty
// or already registered.
func (r *Registry) Register(entityType string, adapter Adapter) error {
	if entityType == "" {
		return fmt.Errorf("remote: entity type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	if _, exists := r.adapters[entityType]; exists {
		return fmt.Errorf("remote: adapter for %q already registered", entityType)
	}
	r.adapters[entityType] = adapter
	return nil
}

// MustRegister is Register but panics on error.
func (r *Registry) MustRegister(entityType string, adapter Adapter) {
	if err := r.Register(entityType, adapter); err != nil {
		panic(err)
	}
}

// Get looks up the adapter registered for entityType.
func (r *Registry) Get(entityType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[entityType]
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrNoAdapter, entityType)
	}
	return a, nil
}
