package oplog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/storage"
	"github.com/kong/go-offline-sync/pkg/storage/memstore"
)

func newLog(t *testing.T) *Log {
	t.Helper()
	s, err := memstore.New()
	require.NoError(t, err)
	return New(s)
}

func mkOp(id, entityID string, ts int64) op.Operation {
	return op.Operation{
		ID:         id,
		EntityType: "note",
		EntityID:   entityID,
		Kind:       op.Create,
		Payload:    op.Payload{"title": id},
		Timestamp:  ts,
		Status:     op.Pending,
	}
}

func TestAppendAndPending(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	require.NoError(t, l.Append(ctx, mkOp("op-1", "n-1", 1)))
	require.NoError(t, l.Append(ctx, mkOp("op-2", "n-1", 2)))

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	count, err := l.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAppendDuplicateFails(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	o := mkOp("op-1", "n-1", 1)
	require.NoError(t, l.Append(ctx, o))
	err := l.Append(ctx, o)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestUpdateUnknownOperationFails(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	err := l.Update(ctx, mkOp("missing", "n-1", 1))
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestForEntity(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	require.NoError(t, l.Append(ctx, mkOp("op-1", "n-1", 1)))
	require.NoError(t, l.Append(ctx, mkOp("op-2", "n-1", 2)))
	require.NoError(t, l.Append(ctx, mkOp("op-3", "n-2", 1)))

	ops, err := l.ForEntity(ctx, "note", "n-1")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "op-1", ops[0].ID)
	assert.Equal(t, "op-2", ops[1].ID)
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	require.NoError(t, l.Append(ctx, mkOp("op-1", "n-1", 1)))
	require.NoError(t, l.Remove(ctx, "op-1"))
	require.NoError(t, l.Remove(ctx, "op-1"))

	count, err := l.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSquashManyReplacesGroupAtomically(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	a := mkOp("op-1", "n-1", 1)
	b := mkOp("op-2", "n-1", 2)
	require.NoError(t, l.Append(ctx, a))
	require.NoError(t, l.Append(ctx, b))

	merged := mkOp("op-1", "n-1", 2)
	merged.Payload = op.Payload{"title": "merged"}

	require.NoError(t, l.SquashMany(ctx, []string{"op-1", "op-2"}, []op.Operation{merged}))

	ops, err := l.ForEntity(ctx, "note", "n-1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "merged", ops[0].Payload["title"])
}

func TestSquashManyWithNoReplacementsDropsGroup(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	require.NoError(t, l.Append(ctx, mkOp("op-1", "n-1", 1)))
	require.NoError(t, l.Append(ctx, mkOp("op-2", "n-1", 2)))

	require.NoError(t, l.SquashMany(ctx, []string{"op-1", "op-2"}, nil))

	ops, err := l.ForEntity(ctx, "note", "n-1")
	require.NoError(t, err)
	assert.Empty(t, ops)
}
