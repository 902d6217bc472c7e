package memstore

import (
	"context"
	"errors"
	"fmt"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/storage"
)

// txView is the storage.Storage handed to the closure passed to
// Store.ExecuteTransaction. Every call runs against the same underlying
// memdb.Txn; nothing commits until the outer ExecuteTransaction call does,
// and any error aborts every mutation made through it.
type txView struct {
	store *Store
	txn   *memdb.Txn
}

var _ storage.Storage = (*txView)(nil)

func (t *txView) Initialize(_ context.Context) error { return nil }
func (t *txView) Close(_ context.Context) error      { return nil }

func (t *txView) SaveEntity(_ context.Context, entityType, entityID string, data op.Payload) error {
	if entityType == "" || entityID == "" {
		return fmt.Errorf("memstore: entity_type and entity_id are required")
	}
	return t.txn.Insert(entityTable, &entityRecord{Type: entityType, ID: entityID, Data: data.Clone()})
}

func (t *txView) GetEntity(_ context.Context, entityType, entityID string) (op.Payload, error) {
	rec, err := t.store.getEntity(t.txn, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return rec.Data.Clone(), nil
}

func (t *txView) GetAllEntities(_ context.Context, entityType string) ([]op.Payload, error) {
	it, err := t.txn.Get(entityTable, "type", entityType)
	if err != nil {
		return nil, err
	}
	var out []op.Payload
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*entityRecord).Data.Clone())
	}
	return out, nil
}

func (t *txView) DeleteEntity(_ context.Context, entityType, entityID string) error {
	rec, err := t.store.getEntity(t.txn, entityType, entityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return t.txn.Delete(entityTable, rec)
}

func (t *txView) EntityExists(_ context.Context, entityType, entityID string) (bool, error) {
	_, err := t.store.getEntity(t.txn, entityType, entityID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *txView) AddOperation(_ context.Context, o op.Operation) error {
	return t.store.addOperationTxn(t.txn, o)
}

func (t *txView) UpdateOperation(_ context.Context, o op.Operation) error {
	existing, err := t.store.getOperationTxn(t.txn, o.ID)
	if err != nil {
		return err
	}
	if err := t.txn.Delete(operationTable, existing); err != nil {
		return err
	}
	return t.txn.Insert(operationTable, &operationRecord{Operation: o, Seq: existing.Seq})
}

func (t *txView) GetOperation(_ context.Context, id string) (op.Operation, error) {
	rec, err := t.store.getOperationTxn(t.txn, id)
	if err != nil {
		return op.Operation{}, err
	}
	return rec.Operation, nil
}

func (t *txView) GetOperationsForEntity(_ context.Context, entityType, entityID string) ([]op.Operation, error) {
	it, err := t.txn.Get(operationTable, "entity", entityType, entityID)
	if err != nil {
		return nil, err
	}
	var recs []*operationRecord
	for raw := it.Next(); raw != nil; raw = it.Next() {
		recs = append(recs, raw.(*operationRecord))
	}
	return sortedOperations(recs), nil
}

func (t *txView) GetPendingOperations(_ context.Context) ([]op.Operation, error) {
	it, err := t.txn.Get(operationTable, "order")
	if err != nil {
		return nil, err
	}
	var recs []*operationRecord
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rec := raw.(*operationRecord)
		if rec.Status == op.Pending || rec.Status == op.Syncing {
			recs = append(recs, rec)
		}
	}
	return operationsOf(recs), nil
}

func (t *txView) GetPendingOperationsCount(ctx context.Context) (int, error) {
	ops, err := t.GetPendingOperations(ctx)
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

func (t *txView) DeleteOperation(_ context.Context, id string) error {
	rec, err := t.store.getOperationTxn(t.txn, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return t.txn.Delete(operationTable, rec)
}

func (t *txView) DeleteOperations(_ context.Context, ids []string) error {
	for _, id := range ids {
		if err := t.DeleteOperation(context.Background(), id); err != nil {
			return err
		}
	}
	return nil
}

func (t *txView) SaveMetadata(_ context.Context, key string, value interface{}) error {
	return t.txn.Insert(metadataTable, &metadataRecord{Key: key, Value: value})
}

func (t *txView) GetMetadata(_ context.Context, key string) (interface{}, error) {
	raw, err := t.txn.First(metadataTable, "id", key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	return raw.(*metadataRecord).Value, nil
}

func (t *txView) ClearMetadata(_ context.Context) error {
	_, err := t.txn.DeleteAll(metadataTable, "id")
	return err
}

func (t *txView) ClearAll(_ context.Context) error {
	for _, table := range []string{entityTable, operationTable, metadataTable} {
		if _, err := t.txn.DeleteAll(table, "id"); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteTransaction does not support nesting; a transaction is already in
// progress when a txView is in scope.
func (t *txView) ExecuteTransaction(_ context.Context, _ func(tx storage.Storage) error) error {
	return fmt.Errorf("memstore: nested ExecuteTransaction is not supported")
}
