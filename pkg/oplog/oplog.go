// Package oplog provides the operation-level vocabulary over a
// storage.Storage backend: append, query, update, remove, and the
// transactional squash used by the reducer. The log itself is stateless —
// it forwards to the storage contract and exists to centralize vocabulary
// and transactional grouping.
package oplog

import (
	"context"
	"errors"
	"fmt"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/storage"
)

// ErrOperationNotFound is returned by Update when no operation with the
// given ID is present in the log.
var ErrOperationNotFound = errors.New("oplog: operation not found")

// Log is a thin, contract-level wrapper around a storage.Storage.
type Log struct {
	store storage.Storage
}

// New wraps store with the operation log vocabulary.
func New(store storage.Storage) *Log {
	return &Log{store: store}
}

// Append adds an operation, failing if its ID is already present.
func (l *Log) Append(ctx context.Context, o op.Operation) error {
	if err := l.store.AddOperation(ctx, o); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("oplog: append %s: %w", o.ID, err)
		}
		return err
	}
	return nil
}

// Pending returns pending operations in non-decreasing timestamp order.
func (l *Log) Pending(ctx context.Context) ([]op.Operation, error) {
	return l.store.GetPendingOperations(ctx)
}

// ForEntity returns all operations for (entityType, entityID), ordered by
// timestamp.
func (l *Log) ForEntity(ctx context.Context, entityType, entityID string) ([]op.Operation, error) {
	return l.store.GetOperationsForEntity(ctx, entityType, entityID)
}

// Update replaces the record with the same operation ID, failing if absent.
func (l *Log) Update(ctx context.Context, o op.Operation) error {
	if _, err := l.store.GetOperation(ctx, o.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("oplog: update %s: %w", o.ID, ErrOperationNotFound)
		}
		return err
	}
	return l.store.UpdateOperation(ctx, o)
}

// Remove idempotently deletes one operation.
func (l *Log) Remove(ctx context.Context, id string) error {
	return l.store.DeleteOperation(ctx, id)
}

// RemoveMany idempotently deletes a set of operations.
func (l *Log) RemoveMany(ctx context.Context, ids []string) error {
	return l.store.DeleteOperations(ctx, ids)
}

// PendingCount reports how many operations are pending.
func (l *Log) PendingCount(ctx context.Context) (int, error) {
	return l.store.GetPendingOperationsCount(ctx)
}

// Squash atomically removes removeIDs and inserts replacement via the
// storage contract's transactional batch.
//
// This implementation extends the atomic section to
// cover the whole rewrite: callers that also need to append extra survivor
// operations (reduce_many can return more than one result) should use
// SquashMany, which keeps the entire group rewrite — removal, the first
// replacement, and every extra — inside one transaction.
func (l *Log) Squash(ctx context.Context, removeIDs []string, replacement op.Operation) error {
	return l.SquashMany(ctx, removeIDs, []op.Operation{replacement})
}

// SquashMany atomically removes removeIDs and inserts every operation in
// replacements, in order, via the storage contract's transactional batch.
func (l *Log) SquashMany(ctx context.Context, removeIDs []string, replacements []op.Operation) error {
	return l.store.ExecuteTransaction(ctx, func(tx storage.Storage) error {
		if err := tx.DeleteOperations(ctx, removeIDs); err != nil {
			return err
		}
		for _, r := range replacements {
			if err := tx.AddOperation(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
}
