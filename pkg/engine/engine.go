// Package engine implements the sync engine: it drives pending operations
// through their remote adapters, applies retry and conflict-resolution
// policy, and reflects server-returned canonical state back into local
// storage.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kong/go-offline-sync/pkg/oplog"
	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/reducer"
	"github.com/kong/go-offline-sync/pkg/remote"
	"github.com/kong/go-offline-sync/pkg/resolve"
	"github.com/kong/go-offline-sync/pkg/storage"
)

// ErrAlreadySyncing is returned by Sync when a sync is already in progress.
var ErrAlreadySyncing = errors.New("engine: sync already in progress")

// Engine orchestrates pending-operation drainage against a registry of
// remote adapters.
type Engine struct {
	log      *oplog.Log
	store    storage.Storage
	registry *remote.Registry
	resolver resolve.Resolver
	cfg      Config

	syncing atomic.Bool

	subMu sync.RWMutex
	subs  []*subscriber

	statusMu   sync.RWMutex
	lastStatus op.SyncStatusEvent
}

// New constructs an Engine. resolver may be nil: conflicts then fail with
// "conflict without resolver".
func New(log *oplog.Log, store storage.Storage, registry *remote.Registry, resolver resolve.Resolver, cfg Config) *Engine {
	return &Engine{
		log:      log,
		store:    store,
		registry: registry,
		resolver: resolver,
		cfg:      cfg,
		lastStatus: op.SyncStatusEvent{
			Status: op.Idle,
		},
	}
}

// Sync drains pending operations until none remain or policy aborts. Only
// one Sync call may be in flight at a time; overlapping calls fail with
// ErrAlreadySyncing instead of starting a second drain.
func (e *Engine) Sync(ctx context.Context) error {
	if !e.syncing.CompareAndSwap(false, true) {
		return ErrAlreadySyncing
	}
	defer e.syncing.Store(false)

	e.emit(op.SyncStatusEvent{Status: op.SyncingPhase, Total: 0, Completed: 0})

	survivors, err := e.loadSurvivors(ctx)
	if err != nil {
		e.emit(op.SyncStatusEvent{Status: op.ErrorPhase, Err: err})
		return err
	}

	total := len(survivors)
	e.emit(op.SyncStatusEvent{Status: op.SyncingPhase, Total: total, Completed: 0})

	if total == 0 {
		if err := e.recordSyncTime(ctx); err != nil {
			e.emit(op.SyncStatusEvent{Status: op.ErrorPhase, Err: err})
			return err
		}
		e.emit(op.SyncStatusEvent{Status: op.Idle})
		return nil
	}

	groups := reducer.GroupByEntity(survivors)

	var completed atomic.Int32
	var mu sync.Mutex
	var stopErr error

	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.Concurrency > 0 {
		g.SetLimit(e.cfg.Concurrency)
	}

	for _, ops := range groups {
		ops := ops
		g.Go(func() error {
			for _, o := range ops {
				mu.Lock()
				abort := stopErr != nil
				mu.Unlock()
				if abort {
					return nil
				}

				recovered, syncErr := e.syncOne(gctx, o)
				completed.Add(1)
				e.emit(op.SyncStatusEvent{Status: op.SyncingPhase, Total: total, Completed: int(completed.Load())})

				if syncErr != nil {
					mu.Lock()
					if stopErr == nil {
						stopErr = syncErr
					}
					mu.Unlock()
					return syncErr
				}
				if !recovered && e.cfg.StopOnError {
					mu.Lock()
					if stopErr == nil {
						stopErr = fmt.Errorf("engine: sync stopped due to error on operation %s", o.ID)
					}
					mu.Unlock()
					return stopErr
				}
			}
			return nil
		})
	}

	if werr := g.Wait(); werr != nil {
		e.emit(op.SyncStatusEvent{Status: op.ErrorPhase, Err: werr})
		return werr
	}

	if err := e.recordSyncTime(ctx); err != nil {
		e.emit(op.SyncStatusEvent{Status: op.ErrorPhase, Err: err})
		return err
	}

	e.emit(op.SyncStatusEvent{Status: op.Idle})
	return nil
}

func (e *Engine) recordSyncTime(ctx context.Context) error {
	return e.store.SaveMetadata(ctx, storage.LastSyncTimeKey, time.Now().UnixMilli())
}

// loadSurvivors loads pending operations and, if reduction is enabled,
// reduces each entity's group and rewrites the log to match before
// returning the sorted survivor set.
func (e *Engine) loadSurvivors(ctx context.Context) ([]op.Operation, error) {
	pending, err := e.log.Pending(ctx)
	if err != nil {
		return nil, err
	}

	if !e.cfg.EnableReduction {
		return pending, nil
	}

	groups := reducer.GroupByEntity(pending)
	for _, ops := range groups {
		if len(ops) < 2 {
			continue
		}
		reduced := reducer.ReduceMany(ops)
		ids := make([]string, len(ops))
		for i, o := range ops {
			ids[i] = o.ID
		}
		if len(reduced) == 0 {
			if err := e.log.RemoveMany(ctx, ids); err != nil {
				return nil, err
			}
			continue
		}
		if err := e.log.SquashMany(ctx, ids, reduced); err != nil {
			return nil, err
		}
	}

	return e.log.Pending(ctx)
}
