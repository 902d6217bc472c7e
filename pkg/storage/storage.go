// Package storage defines the contract the sync engine consumes to persist
// entities, operations, and metadata. Concrete drivers (key-value stores,
// relational databases) live outside this module; pkg/storage/memstore
// ships an in-memory reference implementation used by the engine's own
// tests.
package storage

import (
	"context"
	"errors"

	"github.com/kong/go-offline-sync/pkg/op"
)

// ErrNotFound is returned when an entity, operation, or metadata key is
// absent.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyExists is returned by AddOperation when an operation with the
// same ID is already present.
var ErrAlreadyExists = errors.New("storage: already exists")

// LastSyncTimeKey is the only metadata key the core itself writes: the
// epoch-millisecond timestamp of the last completed sync() call.
const LastSyncTimeKey = "last_sync_time"

// Storage is the persistence contract consumed by the operation log and the
// sync engine. Implementations MUST provide linearizable single-operation
// semantics and an atomic ExecuteTransaction for batched mutations.
type Storage interface {
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error

	SaveEntity(ctx context.Context, entityType, entityID string, data op.Payload) error
	GetEntity(ctx context.Context, entityType, entityID string) (op.Payload, error)
	GetAllEntities(ctx context.Context, entityType string) ([]op.Payload, error)
	DeleteEntity(ctx context.Context, entityType, entityID string) error
	EntityExists(ctx context.Context, entityType, entityID string) (bool, error)

	AddOperation(ctx context.Context, o op.Operation) error
	UpdateOperation(ctx context.Context, o op.Operation) error
	GetOperation(ctx context.Context, id string) (op.Operation, error)
	GetOperationsForEntity(ctx context.Context, entityType, entityID string) ([]op.Operation, error)
	GetPendingOperations(ctx context.Context) ([]op.Operation, error)
	DeleteOperation(ctx context.Context, id string) error
	DeleteOperations(ctx context.Context, ids []string) error
	GetPendingOperationsCount(ctx context.Context) (int, error)

	SaveMetadata(ctx context.Context, key string, value interface{}) error
	GetMetadata(ctx context.Context, key string) (interface{}, error)
	ClearMetadata(ctx context.Context) error

	// ExecuteTransaction runs fn against a transactional view of the store.
	// If fn returns an error, every mutation it made is rolled back and
	// ExecuteTransaction returns that error. The Storage passed to fn is
	// valid only for the duration of the call.
	ExecuteTransaction(ctx context.Context, fn func(tx Storage) error) error

	ClearAll(ctx context.Context) error
}
