package op

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMapFromMapRoundTrip(t *testing.T) {
	custom, err := CustomKind("archive")
	require.NoError(t, err)

	original := Operation{
		ID:           "op-1",
		EntityType:   "note",
		EntityID:     "n-1",
		Kind:         custom,
		Payload:      Payload{"title": "hello", "pinned": true},
		Timestamp:    1700000000000,
		Status:       Failed,
		DeviceID:     "device-a",
		RetryCount:   2,
		ErrorMessage: "boom",
	}

	back, err := FromMap(original.ToMap())
	require.NoError(t, err)
	if diff := cmp.Diff(original, back, cmp.AllowUnexported(Kind{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFromMapRequiresIdentity(t *testing.T) {
	_, err := FromMap(map[string]interface{}{})
	assert.Error(t, err)

	_, err = FromMap(map[string]interface{}{"operation_id": "x"})
	assert.Error(t, err)
}

func TestFromMapDefaultsStatusToPending(t *testing.T) {
	m := map[string]interface{}{
		"operation_id": "op-2",
		"entity_type":  "note",
		"entity_id":    "n-2",
		"op_kind":      "Create",
		"timestamp":    float64(1700000000000),
	}
	o, err := FromMap(m)
	require.NoError(t, err)
	assert.Equal(t, Pending, o.Status)
	assert.Equal(t, Create, o.Kind)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Create", Create.String())
	custom, err := CustomKind("archive")
	require.NoError(t, err)
	assert.Equal(t, "Custom(archive)", custom.String())
}

func TestCustomKindRequiresName(t *testing.T) {
	_, err := CustomKind("")
	assert.Error(t, err)
}

func TestPayloadCloneIsIndependent(t *testing.T) {
	p := Payload{"a": 1}
	c := p.Clone()
	c["a"] = 2
	assert.Equal(t, 1, p["a"])

	var nilPayload Payload
	assert.Nil(t, nilPayload.Clone())
}
