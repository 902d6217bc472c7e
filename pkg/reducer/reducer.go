// Package reducer folds consecutive operations on the same entity into an
// equivalent shorter sequence. It is pure: given the same
// input it always produces the same output, and applying it to
// already-reduced input is a no-op.
package reducer

import (
	"github.com/samber/lo"

	"github.com/kong/go-offline-sync/pkg/op"
)

// Reduce folds two consecutive operations on the same entity, a then b, into
// zero or one equivalent operation. ok is false when a and b reduce to
// nothing (a Create immediately cancelled by a Delete) or when the pair is
// not reducible (different entities, or either side is Custom).
func Reduce(a, b op.Operation) (out op.Operation, ok bool, reducible bool) {
	if a.EntityType != b.EntityType || a.EntityID != b.EntityID {
		return op.Operation{}, false, false
	}
	if _, isCustom := a.Kind.IsCustom(); isCustom {
		return op.Operation{}, false, false
	}
	if _, isCustom := b.Kind.IsCustom(); isCustom {
		return op.Operation{}, false, false
	}

	switch {
	case a.Kind == op.Create && b.Kind == op.Update:
		merged := a
		merged.Payload = shallowMerge(a.Payload, b.Payload)
		merged.Timestamp = b.Timestamp
		return merged, true, true

	case a.Kind == op.Create && b.Kind == op.Delete:
		return op.Operation{}, false, true

	case a.Kind == op.Update && b.Kind == op.Update:
		merged := a
		merged.Payload = shallowMerge(a.Payload, b.Payload)
		merged.Timestamp = b.Timestamp
		return merged, true, true

	case a.Kind == op.Update && b.Kind == op.Delete:
		return b, true, true

	default:
		return op.Operation{}, false, false
	}
}

// shallowMerge overrides a's top-level keys with b's; keys present only in a
// are preserved. No deep merge of nested mappings is performed.
func shallowMerge(a, b op.Payload) op.Payload {
	out := a.Clone()
	if out == nil {
		out = op.Payload{}
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ReduceMany applies Reduce pairwise, left to right, carrying a rolling
// "current" operation, and returns the resulting sequence. Reduction only
// ever happens between adjacent operations on the same entity: an operation
// on a different entity passes through untouched and ends the run, so two
// operations on one entity with another entity's operation between them are
// not reduced together. The sync engine groups by (entity_type, entity_id)
// before calling ReduceMany, so each of its calls sees a single entity.
func ReduceMany(ops []op.Operation) []op.Operation {
	if len(ops) == 0 {
		return nil
	}

	var out []op.Operation
	current := ops[0]
	haveCurrent := true

	for _, next := range ops[1:] {
		if !haveCurrent {
			current = next
			haveCurrent = true
			continue
		}
		reduced, ok, reducible := Reduce(current, next)
		if !reducible {
			out = append(out, current)
			current = next
			continue
		}
		if !ok {
			// Cancelled: drop both, let the next operation become current.
			haveCurrent = false
			continue
		}
		current = reduced
	}

	if haveCurrent {
		out = append(out, current)
	}
	return out
}

// GroupByEntity groups operations by (entity_type, entity_id), preserving
// the relative order of operations within each group.
func GroupByEntity(ops []op.Operation) map[op.Key][]op.Operation {
	return lo.GroupBy(ops, func(o op.Operation) op.Key { return o.EntityKey() })
}
