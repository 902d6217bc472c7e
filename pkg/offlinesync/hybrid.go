package offlinesync

import (
	"context"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/storage"
)

// LogCreate appends a Create operation. In hybrid mode the application is
// expected to have already written the entity to its own storage; the
// facade only manages the log.
func (f *Facade) LogCreate(ctx context.Context, entityType, entityID string, payload op.Payload) (op.Operation, error) {
	return f.log1(ctx, entityType, entityID, op.Create, payload)
}

// LogUpdate appends an Update operation.
func (f *Facade) LogUpdate(ctx context.Context, entityType, entityID string, payload op.Payload) (op.Operation, error) {
	return f.log1(ctx, entityType, entityID, op.Update, payload)
}

// LogDelete appends a Delete operation with an empty payload.
func (f *Facade) LogDelete(ctx context.Context, entityType, entityID string) (op.Operation, error) {
	return f.log1(ctx, entityType, entityID, op.Delete, op.Payload{})
}

// LogCustom appends a Custom(name) operation.
func (f *Facade) LogCustom(ctx context.Context, entityType, entityID, name string, payload op.Payload) (op.Operation, error) {
	kind, err := op.CustomKind(name)
	if err != nil {
		return op.Operation{}, err
	}
	return f.log1(ctx, entityType, entityID, kind, payload)
}

func (f *Facade) log1(ctx context.Context, entityType, entityID string, kind op.Kind, payload op.Payload) (op.Operation, error) {
	o := f.newOperation(entityType, entityID, kind, payload)
	if err := f.log.Append(ctx, o); err != nil {
		return op.Operation{}, err
	}
	return o, nil
}

// LogRequest describes one operation to log as part of a LogBatch call.
type LogRequest struct {
	EntityType string
	EntityID   string
	Kind       op.Kind
	Payload    op.Payload
}

// LogBatch appends several related mutations as one logical unit, committed
// atomically via the storage contract's transactional batch, for callers
// that need several entity mutations to land or fail together.
func (f *Facade) LogBatch(ctx context.Context, requests []LogRequest) ([]op.Operation, error) {
	ops := make([]op.Operation, len(requests))
	for i, req := range requests {
		ops[i] = f.newOperation(req.EntityType, req.EntityID, req.Kind, req.Payload)
	}

	err := f.store.ExecuteTransaction(ctx, func(tx storage.Storage) error {
		for _, o := range ops {
			if err := tx.AddOperation(ctx, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}
