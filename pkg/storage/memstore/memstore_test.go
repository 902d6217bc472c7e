package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/storage"
)

func mkOp(id, entityID string, ts int64, status op.Status) op.Operation {
	return op.Operation{
		ID:         id,
		EntityType: "note",
		EntityID:   entityID,
		Kind:       op.Create,
		Payload:    op.Payload{"title": id},
		Timestamp:  ts,
		Status:     status,
	}
}

func TestSaveAndGetEntity(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.SaveEntity(ctx, "note", "n-1", op.Payload{"title": "hi"}))

	got, err := s.GetEntity(ctx, "note", "n-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", got["title"])

	_, err = s.GetEntity(ctx, "note", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEntityExistsAndDelete(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	exists, err := s.EntityExists(ctx, "note", "n-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.SaveEntity(ctx, "note", "n-1", op.Payload{"title": "hi"}))
	exists, err = s.EntityExists(ctx, "note", "n-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.DeleteEntity(ctx, "note", "n-1"))
	exists, err = s.EntityExists(ctx, "note", "n-1")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting again is idempotent.
	require.NoError(t, s.DeleteEntity(ctx, "note", "n-1"))
}

func TestAddOperationRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	o := mkOp("op-1", "n-1", 1, op.Pending)
	require.NoError(t, s.AddOperation(ctx, o))

	err = s.AddOperation(ctx, o)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestGetPendingOperationsOrderedByTimestamp(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.AddOperation(ctx, mkOp("op-2", "n-1", 20, op.Pending)))
	require.NoError(t, s.AddOperation(ctx, mkOp("op-1", "n-1", 10, op.Pending)))
	require.NoError(t, s.AddOperation(ctx, mkOp("op-3", "n-2", 10, op.Pending)))

	pending, err := s.GetPendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, int64(10), pending[0].Timestamp)
	assert.Equal(t, int64(10), pending[1].Timestamp)
	assert.Equal(t, int64(20), pending[2].Timestamp)
	// op-1 and op-3 share a timestamp; insertion order (Seq) breaks the tie,
	// and op-1 was inserted before op-3.
	assert.Equal(t, "op-1", pending[0].ID)
	assert.Equal(t, "op-3", pending[1].ID)
}

func TestGetPendingOperationsTreatsSyncingAsPending(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.AddOperation(ctx, mkOp("op-1", "n-1", 1, op.Syncing)))
	require.NoError(t, s.AddOperation(ctx, mkOp("op-2", "n-1", 2, op.Failed)))

	pending, err := s.GetPendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "op-1", pending[0].ID)
}

func TestUpdateOperationPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.AddOperation(ctx, mkOp("op-1", "n-1", 5, op.Pending)))
	require.NoError(t, s.AddOperation(ctx, mkOp("op-2", "n-1", 5, op.Pending)))

	updated := mkOp("op-1", "n-1", 5, op.Syncing)
	require.NoError(t, s.UpdateOperation(ctx, updated))

	pending, err := s.GetPendingOperations(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "op-1", pending[0].ID)
	assert.Equal(t, op.Syncing, pending[0].Status)
}

func TestUpdateOperationRequiresExisting(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	err = s.UpdateOperation(ctx, mkOp("missing", "n-1", 1, op.Pending))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExecuteTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	sentinel := assert.AnError
	err = s.ExecuteTransaction(ctx, func(tx storage.Storage) error {
		require.NoError(t, tx.SaveEntity(ctx, "note", "n-1", op.Payload{"title": "hi"}))
		require.NoError(t, tx.AddOperation(ctx, mkOp("op-1", "n-1", 1, op.Pending)))
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, getErr := s.GetEntity(ctx, "note", "n-1")
	assert.ErrorIs(t, getErr, storage.ErrNotFound)

	count, err := s.GetPendingOperationsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestExecuteTransactionCommitsTogether(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	err = s.ExecuteTransaction(ctx, func(tx storage.Storage) error {
		if err := tx.SaveEntity(ctx, "note", "n-1", op.Payload{"title": "hi"}); err != nil {
			return err
		}
		return tx.AddOperation(ctx, mkOp("op-1", "n-1", 1, op.Pending))
	})
	require.NoError(t, err)

	_, err = s.GetEntity(ctx, "note", "n-1")
	require.NoError(t, err)

	count, err := s.GetPendingOperationsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClearAllWipesEverything(t *testing.T) {
	ctx := context.Background()
	s, err := New()
	require.NoError(t, err)

	require.NoError(t, s.SaveEntity(ctx, "note", "n-1", op.Payload{"title": "hi"}))
	require.NoError(t, s.AddOperation(ctx, mkOp("op-1", "n-1", 1, op.Pending)))
	require.NoError(t, s.SaveMetadata(ctx, storage.LastSyncTimeKey, int64(123)))

	require.NoError(t, s.ClearAll(ctx))

	_, err = s.GetEntity(ctx, "note", "n-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	count, err := s.GetPendingOperationsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	_, err = s.GetMetadata(ctx, storage.LastSyncTimeKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
