// Package op defines the operation record that is the unit of work of the
// sync engine: an immutable description of one intent against one entity.
package op

import "fmt"

// Kind is the tagged variant of an operation's intent.
type Kind struct {
	name   string
	custom string
}

func (k Kind) String() string {
	if k.name == customName {
		return fmt.Sprintf("Custom(%s)", k.custom)
	}
	return k.name
}

// IsCustom reports whether k is a Custom(name) kind, and returns name.
func (k Kind) IsCustom() (string, bool) {
	if k.name == customName {
		return k.custom, true
	}
	return "", false
}

const customName = "Custom"

var (
	// Create describes an intent to create an entity.
	Create = Kind{name: "Create"}
	// Update describes an intent to update an entity.
	Update = Kind{name: "Update"}
	// Delete describes an intent to delete an entity.
	Delete = Kind{name: "Delete"}
)

// CustomKind builds a Kind carrying a non-empty custom name.
func CustomKind(name string) (Kind, error) {
	if name == "" {
		return Kind{}, fmt.Errorf("custom operation name is required")
	}
	return Kind{name: customName, custom: name}, nil
}

// Status is the lifecycle state of a logged operation.
type Status string

const (
	// Pending operations are awaiting dispatch to a remote adapter.
	Pending Status = "Pending"
	// Syncing operations are in flight to a remote adapter.
	Syncing Status = "Syncing"
	// Synced is a terminal state reserved for audit-retention modes; the
	// main flow removes operations from the log on success instead of
	// marking them Synced.
	Synced Status = "Synced"
	// Failed operations are terminal and retained with an error message.
	Failed Status = "Failed"
)

// Payload is an opaque, heterogeneous mapping from field name to value. The
// core never introspects it except where a resolve.Resolver does.
type Payload map[string]interface{}

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Operation is an immutable record of one intent against one entity.
// Equality and identity are defined by ID alone.
type Operation struct {
	ID           string
	EntityType   string
	EntityID     string
	Kind         Kind
	Payload      Payload
	Timestamp    int64
	Status       Status
	DeviceID     string
	RetryCount   int
	ErrorMessage string
}

// Key identifies the entity an operation targets.
type Key struct {
	EntityType string
	EntityID   string
}

// EntityKey returns the (entity_type, entity_id) pair this operation targets.
func (o Operation) EntityKey() Key {
	return Key{EntityType: o.EntityType, EntityID: o.EntityID}
}

// ToMap serializes the operation into a generic map, suitable for a storage
// backend that persists records as documents.
func (o Operation) ToMap() map[string]interface{} {
	kindName := o.Kind.name
	custom := o.Kind.custom
	return map[string]interface{}{
		"operation_id":  o.ID,
		"entity_type":   o.EntityType,
		"entity_id":     o.EntityID,
		"op_kind":       kindName,
		"op_custom":     custom,
		"payload":       map[string]interface{}(o.Payload.Clone()),
		"timestamp":     o.Timestamp,
		"status":        string(o.Status),
		"device_id":     o.DeviceID,
		"retry_count":   o.RetryCount,
		"error_message": o.ErrorMessage,
	}
}

// FromMap deserializes an operation previously produced by ToMap. It is the
// inverse of ToMap: FromMap(op.ToMap()) == op.
func FromMap(m map[string]interface{}) (Operation, error) {
	var o Operation
	var ok bool

	if o.ID, ok = m["operation_id"].(string); !ok || o.ID == "" {
		return Operation{}, fmt.Errorf("operation_id is required")
	}
	if o.EntityType, ok = m["entity_type"].(string); !ok || o.EntityType == "" {
		return Operation{}, fmt.Errorf("entity_type is required")
	}
	if o.EntityID, ok = m["entity_id"].(string); !ok || o.EntityID == "" {
		return Operation{}, fmt.Errorf("entity_id is required")
	}

	kindName, _ := m["op_kind"].(string)
	custom, _ := m["op_custom"].(string)
	switch kindName {
	case "Create":
		o.Kind = Create
	case "Update":
		o.Kind = Update
	case "Delete":
		o.Kind = Delete
	case customName:
		k, err := CustomKind(custom)
		if err != nil {
			return Operation{}, err
		}
		o.Kind = k
	default:
		return Operation{}, fmt.Errorf("unknown op_kind %q", kindName)
	}

	if payload, ok := m["payload"].(map[string]interface{}); ok {
		o.Payload = Payload(payload).Clone()
	} else {
		o.Payload = Payload{}
	}

	switch ts := m["timestamp"].(type) {
	case int64:
		o.Timestamp = ts
	case int:
		o.Timestamp = int64(ts)
	case float64:
		o.Timestamp = int64(ts)
	default:
		return Operation{}, fmt.Errorf("timestamp is required")
	}

	status, _ := m["status"].(string)
	if status == "" {
		status = string(Pending)
	}
	o.Status = Status(status)

	o.DeviceID, _ = m["device_id"].(string)

	switch rc := m["retry_count"].(type) {
	case int64:
		o.RetryCount = int(rc)
	case int:
		o.RetryCount = rc
	case float64:
		o.RetryCount = int(rc)
	}

	o.ErrorMessage, _ = m["error_message"].(string)

	return o, nil
}
