package resolve

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kong/go-offline-sync/pkg/op"
)

// FieldLevelMerge combines non-conflicting field writes from local and
// remote state and escalates overlapping writes to Manual.
//
// Field names are gjson/sjson path expressions, so "address.city"-style
// nested field writes are supported alongside flat field names.
type FieldLevelMerge struct{}

var _ Resolver = FieldLevelMerge{}

func (FieldLevelMerge) Resolve(_ context.Context, local op.LocalState, remote op.RemoteState, pending []op.Operation) (op.Resolution, error) {
	fields := writtenFields(pending)

	localJSON, err := json.Marshal(map[string]interface{}(local.Data))
	if err != nil {
		return op.Resolution{}, err
	}
	remoteJSON, err := json.Marshal(map[string]interface{}(remote.Data))
	if err != nil {
		return op.Resolution{}, err
	}

	merged := remoteJSON
	var conflicts []string

	for _, field := range fields {
		localVal := gjson.GetBytes(localJSON, field)
		remoteVal := gjson.GetBytes(remoteJSON, field)

		switch {
		case !remoteVal.Exists():
			// Field absent from remote: take the local value, if any.
			if localVal.Exists() {
				merged, err = sjson.SetBytes(merged, field, localVal.Value())
				if err != nil {
					return op.Resolution{}, err
				}
			}
		case localVal.Exists() && reflect.DeepEqual(localVal.Value(), remoteVal.Value()):
			// Identical on both sides: keep remote, no conflict.
		default:
			// Field present in remote with no equal local value, including
			// a pending write to a field the local entity no longer
			// carries: conflict.
			conflicts = append(conflicts, field)
		}
	}

	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		reason := manualReason(map[string]interface{}(local.Data), map[string]interface{}(remote.Data), conflicts)
		return op.Manual(reason), nil
	}

	var mergedPayload map[string]interface{}
	if err := json.Unmarshal(merged, &mergedPayload); err != nil {
		return op.Resolution{}, err
	}
	return op.Merge(op.Payload(mergedPayload)), nil
}

// writtenFields computes the union of keys from every Create/Update payload
// among the pending operations for the entity.
func writtenFields(pending []op.Operation) []string {
	var fields []string
	for _, o := range pending {
		if o.Kind != op.Create && o.Kind != op.Update {
			continue
		}
		fields = append(fields, lo.Keys(o.Payload)...)
	}
	return lo.Uniq(fields)
}
