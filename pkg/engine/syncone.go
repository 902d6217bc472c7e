package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/remote"
	"github.com/kong/go-offline-sync/pkg/storage"
)

// syncOne dispatches one operation and applies its outcome. recovered is
// true when the queue can keep draining past this operation (including the
// ordinary case where it was retried or succeeded); err is non-nil only for
// storage-contract failures, which must unwind the whole Sync call.
func (e *Engine) syncOne(ctx context.Context, o op.Operation) (recovered bool, err error) {
	adapter, lookupErr := e.registry.Get(o.EntityType)
	if lookupErr != nil {
		o.Status = op.Failed
		o.ErrorMessage = fmt.Sprintf("no adapter for %q", o.EntityType)
		if err := e.log.Update(ctx, o); err != nil {
			return false, err
		}
		return false, nil
	}

	o.Status = op.Syncing
	if err := e.log.Update(ctx, o); err != nil {
		return false, err
	}

	result, dispatchErr := remote.Dispatch(ctx, adapter, o)
	if dispatchErr != nil {
		result = remote.Failure(dispatchErr.Error(), true)
	}

	switch result.Kind {
	case remote.SuccessKind:
		return e.applySuccess(ctx, o, result)
	case remote.ConflictKind:
		return e.resolveConflict(ctx, o, result.ConflictData)
	case remote.FailureKind:
		return e.applyFailure(ctx, o, result)
	default:
		o.Status = op.Failed
		o.ErrorMessage = fmt.Sprintf("unknown result kind %q from adapter", result.Kind)
		if err := e.log.Update(ctx, o); err != nil {
			return false, err
		}
		return false, nil
	}
}

func (e *Engine) applySuccess(ctx context.Context, o op.Operation, result remote.SyncResult) (bool, error) {
	if err := e.log.Remove(ctx, o.ID); err != nil {
		return false, err
	}
	if result.ResolvedPayload != nil {
		if err := e.store.SaveEntity(ctx, o.EntityType, o.EntityID, result.ResolvedPayload); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *Engine) applyFailure(ctx context.Context, o op.Operation, result remote.SyncResult) (bool, error) {
	if result.Retryable && o.RetryCount < e.cfg.MaxRetries {
		o.Status = op.Pending
		o.RetryCount++
		o.ErrorMessage = result.Message
		if err := e.log.Update(ctx, o); err != nil {
			return false, err
		}
		return true, nil
	}
	o.Status = op.Failed
	o.ErrorMessage = result.Message
	if err := e.log.Update(ctx, o); err != nil {
		return false, err
	}
	return false, nil
}

// resolveConflict reconciles a Conflict result against local state using the
// configured resolver.
func (e *Engine) resolveConflict(ctx context.Context, o op.Operation, conflictData op.Payload) (bool, error) {
	if e.resolver == nil {
		o.Status = op.Failed
		o.ErrorMessage = "conflict without resolver"
		if err := e.log.Update(ctx, o); err != nil {
			return false, err
		}
		return false, nil
	}

	local, getErr := e.store.GetEntity(ctx, o.EntityType, o.EntityID)
	if getErr != nil {
		if errors.Is(getErr, storage.ErrNotFound) {
			if err := e.log.Remove(ctx, o.ID); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, getErr
	}

	pendingForEntity, err := e.log.ForEntity(ctx, o.EntityType, o.EntityID)
	if err != nil {
		return false, err
	}

	localState := op.LocalState{Data: local, Timestamp: o.Timestamp}
	remoteState := op.RemoteState{Data: conflictData, Timestamp: time.Now().UnixMilli()}

	resolution, resolveErr := e.resolver.Resolve(ctx, localState, remoteState, pendingForEntity)
	if resolveErr != nil {
		o.Status = op.Failed
		o.ErrorMessage = resolveErr.Error()
		if err := e.log.Update(ctx, o); err != nil {
			return false, err
		}
		return false, nil
	}

	switch resolution.Kind {
	case op.UseLocalKind:
		o.Status = op.Pending
		o.RetryCount++
		if err := e.log.Update(ctx, o); err != nil {
			return false, err
		}
		return true, nil

	case op.UseRemoteKind:
		if err := e.store.SaveEntity(ctx, o.EntityType, o.EntityID, resolution.Data); err != nil {
			return false, err
		}
		if err := e.log.Remove(ctx, o.ID); err != nil {
			return false, err
		}
		return true, nil

	case op.MergeKind:
		if err := e.store.SaveEntity(ctx, o.EntityType, o.EntityID, resolution.Data); err != nil {
			return false, err
		}
		o.Payload = resolution.Data
		o.Status = op.Pending
		if err := e.log.Update(ctx, o); err != nil {
			return false, err
		}
		return true, nil

	case op.ManualKind:
		o.Status = op.Failed
		if resolution.Reason != "" {
			o.ErrorMessage = resolution.Reason
		} else {
			o.ErrorMessage = "manual conflict resolution required"
		}
		if err := e.log.Update(ctx, o); err != nil {
			return false, err
		}
		return false, nil

	default:
		o.Status = op.Failed
		o.ErrorMessage = fmt.Sprintf("unknown resolution kind %q", resolution.Kind)
		if err := e.log.Update(ctx, o); err != nil {
			return false, err
		}
		return false, nil
	}
}
