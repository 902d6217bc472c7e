package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/oplog"
	"github.com/kong/go-offline-sync/pkg/remote"
	"github.com/kong/go-offline-sync/pkg/resolve"
	"github.com/kong/go-offline-sync/pkg/storage/memstore"
)

// scriptedAdapter returns one remote.SyncResult per call, in order, looping
// on the last entry once exhausted.
type scriptedAdapter struct {
	entityType string
	mu         sync.Mutex
	results    []remote.SyncResult
	calls      int
}

func (a *scriptedAdapter) EntityType() string { return a.entityType }

func (a *scriptedAdapter) next() remote.SyncResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.calls
	if i >= len(a.results) {
		i = len(a.results) - 1
	}
	a.calls++
	return a.results[i]
}

func (a *scriptedAdapter) Create(_ context.Context, _ op.Operation) (remote.SyncResult, error) {
	return a.next(), nil
}
func (a *scriptedAdapter) Update(_ context.Context, _ op.Operation) (remote.SyncResult, error) {
	return a.next(), nil
}
func (a *scriptedAdapter) Delete(_ context.Context, _ op.Operation) (remote.SyncResult, error) {
	return a.next(), nil
}
func (a *scriptedAdapter) Custom(_ context.Context, _ op.Operation) (remote.SyncResult, error) {
	return a.next(), nil
}
func (a *scriptedAdapter) FetchRemoteState(_ context.Context, _ string) (op.Payload, bool, error) {
	return nil, false, nil
}

func newEngine(t *testing.T, adapter remote.Adapter, resolver resolve.Resolver, cfg Config) (*Engine, *oplog.Log) {
	t.Helper()
	store, err := memstore.New()
	require.NoError(t, err)
	log := oplog.New(store)
	registry := &remote.Registry{}
	if adapter != nil {
		require.NoError(t, registry.Register(adapter.EntityType(), adapter))
	}
	return New(log, store, registry, resolver, cfg), log
}

func mkOp(id string, kind op.Kind) op.Operation {
	return op.Operation{
		ID:         id,
		EntityType: "note",
		EntityID:   "n-1",
		Kind:       kind,
		Payload:    op.Payload{"title": id},
		Timestamp:  1,
		Status:     op.Pending,
	}
}

func TestSyncWithNoPendingOperationsGoesIdle(t *testing.T) {
	adapter := &scriptedAdapter{entityType: "note"}
	e, _ := newEngine(t, adapter, nil, DefaultConfig())

	err := e.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, op.Idle, e.Status().Status)
}

func TestSyncDispatchesSuccessfulOperation(t *testing.T) {
	adapter := &scriptedAdapter{entityType: "note", results: []remote.SyncResult{remote.Success(nil)}}
	e, log := newEngine(t, adapter, nil, DefaultConfig())

	require.NoError(t, log.Append(context.Background(), mkOp("op-1", op.Create)))

	require.NoError(t, e.Sync(context.Background()))

	count, err := log.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, op.Idle, e.Status().Status)
}

func TestSyncAlreadyInProgressFailsFast(t *testing.T) {
	adapter := &scriptedAdapter{entityType: "note", results: []remote.SyncResult{remote.Success(nil)}}
	e, _ := newEngine(t, adapter, nil, DefaultConfig())

	e.syncing.Store(true)
	err := e.Sync(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySyncing)
}

func TestSyncRetriesThenFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	adapter := &scriptedAdapter{
		entityType: "note",
		results: []remote.SyncResult{
			remote.Failure("boom", true),
			remote.Failure("boom", true),
			remote.Failure("boom", true),
		},
	}
	e, log := newEngine(t, adapter, nil, cfg)
	require.NoError(t, log.Append(context.Background(), mkOp("op-1", op.Create)))

	// Sync is called repeatedly, as a real client would after each backoff
	// interval: the first two retryable failures raise retry_count to
	// MaxRetries, and the third, with retry_count no longer below
	// MaxRetries, makes the operation terminal.
	for i := 0; i < 3; i++ {
		require.NoError(t, e.Sync(context.Background()))
	}

	got, err := log.ForEntity(context.Background(), "note", "n-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, op.Failed, got[0].Status)
}

func TestSyncNoAdapterFailsOperation(t *testing.T) {
	e, log := newEngine(t, nil, nil, DefaultConfig())
	require.NoError(t, log.Append(context.Background(), mkOp("op-1", op.Create)))

	require.NoError(t, e.Sync(context.Background()))

	got, err := log.ForEntity(context.Background(), "note", "n-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, op.Failed, got[0].Status)
}

func TestSyncConflictWithoutLocalEntityDropsOperation(t *testing.T) {
	conflictPayload := op.Payload{"title": "remote title"}
	adapter := &scriptedAdapter{entityType: "note", results: []remote.SyncResult{remote.Conflict(conflictPayload)}}
	e, log := newEngine(t, adapter, resolve.LastWriteWins{}, DefaultConfig())

	ctx := context.Background()
	require.NoError(t, log.Append(ctx, mkOp("op-1", op.Create)))

	require.NoError(t, e.Sync(ctx))

	// With no local entity snapshot saved, resolveConflict treats the
	// conflict as already moot (the entity is gone locally) and drops the
	// operation without consulting the resolver.
	count, err := log.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSyncConflictWithoutResolverFails(t *testing.T) {
	adapter := &scriptedAdapter{entityType: "note", results: []remote.SyncResult{remote.Conflict(op.Payload{"title": "x"})}}
	e, log := newEngine(t, adapter, nil, DefaultConfig())

	ctx := context.Background()
	require.NoError(t, log.Append(ctx, mkOp("op-1", op.Create)))
	require.NoError(t, e.Sync(ctx))

	got, err := log.ForEntity(ctx, "note", "n-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, op.Failed, got[0].Status)
	assert.Equal(t, "conflict without resolver", got[0].ErrorMessage)
}

func TestSubscribeReceivesStatusEvents(t *testing.T) {
	adapter := &scriptedAdapter{entityType: "note", results: []remote.SyncResult{remote.Success(nil)}}
	e, log := newEngine(t, adapter, nil, DefaultConfig())
	require.NoError(t, log.Append(context.Background(), mkOp("op-1", op.Create)))

	ch, cancel := e.Subscribe()
	defer cancel()

	var sawSyncing, sawIdle atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if ev.Status == op.SyncingPhase {
				sawSyncing.Store(true)
			}
			if ev.Status == op.Idle {
				sawIdle.Store(true)
				return
			}
		}
	}()

	require.NoError(t, e.Sync(context.Background()))
	<-done

	assert.True(t, sawSyncing.Load())
	assert.True(t, sawIdle.Load())
}

func TestReductionSquashesBeforeDispatch(t *testing.T) {
	adapter := &scriptedAdapter{entityType: "note", results: []remote.SyncResult{remote.Success(nil)}}
	cfg := DefaultConfig()
	cfg.EnableReduction = true
	e, log := newEngine(t, adapter, nil, cfg)

	ctx := context.Background()
	require.NoError(t, log.Append(ctx, mkOp("op-1", op.Create)))
	update := mkOp("op-2", op.Update)
	update.Timestamp = 2
	require.NoError(t, log.Append(ctx, update))

	require.NoError(t, e.Sync(ctx))

	assert.Equal(t, 1, adapter.calls)
	count, err := log.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
