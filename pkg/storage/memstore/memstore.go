// Package memstore is the in-memory reference implementation of
// storage.Storage, backed by github.com/hashicorp/go-memdb. It is the
// substrate the engine's own test suite runs against.
package memstore

import (
	"context"
	"fmt"
	"sync/atomic"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/kong/go-offline-sync/pkg/op"
	"github.com/kong/go-offline-sync/pkg/storage"
)

const (
	entityTable    = "entity"
	operationTable = "operation"
	metadataTable  = "metadata"
)

// entityRecord is the memdb row backing one (type, id) entity snapshot.
type entityRecord struct {
	Type string
	ID   string
	Data op.Payload
}

// operationRecord is the memdb row backing one logged operation. Seq breaks
// ties between operations that share a Timestamp, preserving insertion
// order when two operations log at the same millisecond.
type operationRecord struct {
	op.Operation
	Seq int64
}

type metadataRecord struct {
	Key   string
	Value interface{}
}

var dbSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		entityTable: {
			Name: entityTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:   "id",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Type"},
							&memdb.StringFieldIndex{Field: "ID"},
						},
					},
				},
				"type": {
					Name:    "type",
					Indexer: &memdb.StringFieldIndex{Field: "Type"},
				},
			},
		},
		operationTable: {
			Name: operationTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"entity": {
					Name: "entity",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "EntityType"},
							&memdb.StringFieldIndex{Field: "EntityID"},
						},
					},
				},
				"order": {
					Name: "order",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.Int64FieldIndex{Field: "Timestamp"},
							&memdb.Int64FieldIndex{Field: "Seq"},
						},
					},
				},
				"status": {
					Name:    "status",
					Indexer: &memdb.StringFieldIndex{Field: "Status"},
				},
			},
		},
		metadataTable: {
			Name: metadataTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Key"},
				},
			},
		},
	},
}

// Store is an in-memory storage.Storage backed by go-memdb.
type Store struct {
	db  *memdb.MemDB
	seq int64
}

// New constructs an empty Store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(dbSchema)
	if err != nil {
		return nil, fmt.Errorf("memstore: building schema: %w", err)
	}
	return &Store{db: db}, nil
}

var _ storage.Storage = (*Store)(nil)

// Initialize is a no-op; the store is ready to use after New.
func (s *Store) Initialize(_ context.Context) error { return nil }

// Close releases the store's resources. There is nothing to release for an
// in-memory store.
func (s *Store) Close(_ context.Context) error { return nil }

func (s *Store) nextSeq() int64 {
	return atomic.AddInt64(&s.seq, 1)
}

func (s *Store) SaveEntity(_ context.Context, entityType, entityID string, data op.Payload) error {
	if entityType == "" || entityID == "" {
		return fmt.Errorf("memstore: entity_type and entity_id are required")
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(entityTable, &entityRecord{Type: entityType, ID: entityID, Data: data.Clone()}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) getEntity(txn *memdb.Txn, entityType, entityID string) (*entityRecord, error) {
	raw, err := txn.First(entityTable, "id", entityType, entityID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	rec, ok := raw.(*entityRecord)
	if !ok {
		return nil, fmt.Errorf("memstore: unexpected type in entity table")
	}
	return rec, nil
}

func (s *Store) GetEntity(_ context.Context, entityType, entityID string) (op.Payload, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	rec, err := s.getEntity(txn, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return rec.Data.Clone(), nil
}

func (s *Store) GetAllEntities(_ context.Context, entityType string) ([]op.Payload, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(entityTable, "type", entityType)
	if err != nil {
		return nil, err
	}
	var out []op.Payload
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rec := raw.(*entityRecord)
		out = append(out, rec.Data.Clone())
	}
	return out, nil
}

func (s *Store) DeleteEntity(_ context.Context, entityType, entityID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	rec, err := s.getEntity(txn, entityType, entityID)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return err
	}
	if err := txn.Delete(entityTable, rec); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) EntityExists(_ context.Context, entityType, entityID string) (bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	_, err := s.getEntity(txn, entityType, entityID)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) AddOperation(_ context.Context, o op.Operation) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := s.addOperationTxn(txn, o); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) addOperationTxn(txn *memdb.Txn, o op.Operation) error {
	raw, err := txn.First(operationTable, "id", o.ID)
	if err != nil {
		return err
	}
	if raw != nil {
		return fmt.Errorf("memstore: operation %s: %w", o.ID, storage.ErrAlreadyExists)
	}
	return txn.Insert(operationTable, &operationRecord{Operation: o, Seq: s.nextSeq()})
}

func (s *Store) getOperationTxn(txn *memdb.Txn, id string) (*operationRecord, error) {
	raw, err := txn.First(operationTable, "id", id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	return raw.(*operationRecord), nil
}

func (s *Store) UpdateOperation(_ context.Context, o op.Operation) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	existing, err := s.getOperationTxn(txn, o.ID)
	if err != nil {
		return err
	}
	if err := txn.Delete(operationTable, existing); err != nil {
		return err
	}
	if err := txn.Insert(operationTable, &operationRecord{Operation: o, Seq: existing.Seq}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) GetOperation(_ context.Context, id string) (op.Operation, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	rec, err := s.getOperationTxn(txn, id)
	if err != nil {
		return op.Operation{}, err
	}
	return rec.Operation, nil
}

func (s *Store) GetOperationsForEntity(_ context.Context, entityType, entityID string) ([]op.Operation, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(operationTable, "entity", entityType, entityID)
	if err != nil {
		return nil, err
	}
	var recs []*operationRecord
	for raw := it.Next(); raw != nil; raw = it.Next() {
		recs = append(recs, raw.(*operationRecord))
	}
	return sortedOperations(recs), nil
}

// GetPendingOperations returns operations in non-decreasing timestamp order.
//
// A crashed process may leave operations in the Syncing state; those are
// treated as Pending on read, so a restart never loses visibility of
// in-flight work.
func (s *Store) GetPendingOperations(_ context.Context) ([]op.Operation, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(operationTable, "order")
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

func (s *Store) GetPendingOperationsCount(ctx context.Context) (int, error) {
	ops, err := s.GetPendingOperations(ctx)
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

func (s *Store) DeleteOperation(_ context.Context, id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	rec, err := s.getOperationTxn(txn, id)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil
		}
		return err
	}
	if err := txn.Delete(operationTable, rec); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) DeleteOperations(_ context.Context, ids []string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, id := range ids {
		rec, err := s.getOperationTxn(txn, id)
		if err != nil {
			if err == storage.ErrNotFound {
				continue
			}
			return err
		}
		if err := txn.Delete(operationTable, rec); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

func (s *Store) SaveMetadata(_ context.Context, key string, value interface{}) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(metadataTable, &metadataRecord{Key: key, Value: value}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) GetMetadata(_ context.Context, key string) (interface{}, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(metadataTable, "id", key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, storage.ErrNotFound
	}
	return raw.(*metadataRecord).Value, nil
}

func (s *Store) ClearMetadata(_ context.Context) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(metadataTable, "id"); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// ExecuteTransaction runs fn against a view of the store that commits all of
// fn's writes atomically on success, or discards them entirely if fn
// returns an error.
func (s *Store) ExecuteTransaction(ctx context.Context, fn func(tx storage.Storage) error) error {
	txn := s.db.Txn(true)
	sub := &txView{store: s, txn: txn}
	if err := fn(sub); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) ClearAll(_ context.Context) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	for _, table := range []string{entityTable, operationTable, metadataTable} {
		if _, err := txn.DeleteAll(table, "id"); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

func sortedOperations(recs []*operationRecord) []op.Operation {
	// entity/id order isn't guaranteed by the compound index the way "order"
	// is, so sort explicitly by (Timestamp, Seq) to return operations for an
	// entity ordered by timestamp.
	out := make([]*operationRecord, len(recs))
	copy(out, recs)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return operationsOf(out)
}

func less(a, b *operationRecord) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.Seq < b.Seq
}

func operationsOf(recs []*operationRecord) []op.Operation {
	out := make([]op.Operation, len(recs))
	for i, rec := range recs {
		out[i] = rec.Operation
	}
	return out
}
