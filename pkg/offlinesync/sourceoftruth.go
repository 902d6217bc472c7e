package offlinesync

import (
	"context"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/storage"
)

// Save writes data to entity storage and appends a matching operation in
// one atomic step, for callers that want the facade to own entity storage
// directly instead of just logging operations against storage they manage
// themselves. Create vs. Update is inferred from isNew when given,
// otherwise from storage.EntityExists.
func (f *Facade) Save(ctx context.Context, entityType, entityID string, data op.Payload, isNew *bool) (op.Operation, error) {
	kind := op.Update
	var creating bool
	if isNew != nil {
		creating = *isNew
	} else {
		exists, err := f.store.EntityExists(ctx, entityType, entityID)
		if err != nil {
			return op.Operation{}, err
		}
		creating = !exists
	}
	if creating {
		kind = op.Create
	}

	o := f.newOperation(entityType, entityID, kind, data)

	err := f.store.ExecuteTransaction(ctx, func(tx storage.Storage) error {
		if err := tx.SaveEntity(ctx, entityType, entityID, data); err != nil {
			return err
		}
		return tx.AddOperation(ctx, o)
	})
	if err != nil {
		return op.Operation{}, err
	}
	return o, nil
}

// Delete removes the entity from storage and appends a Delete operation in
// one atomic step.
func (f *Facade) Delete(ctx context.Context, entityType, entityID string) (op.Operation, error) {
	o := f.newOperation(entityType, entityID, op.Delete, op.Payload{})

	err := f.store.ExecuteTransaction(ctx, func(tx storage.Storage) error {
		if err := tx.DeleteEntity(ctx, entityType, entityID); err != nil {
			return err
		}
		return tx.AddOperation(ctx, o)
	})
	if err != nil {
		return op.Operation{}, err
	}
	return o, nil
}
