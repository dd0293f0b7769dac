package memorystore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Float64(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
		set  bool
	}{
		{name: "numeric string", raw: `"42050.55"`, want: 42050.55, set: true},
		{name: "number", raw: `123.4`, want: 123.4, set: true},
		{name: "integer", raw: `7`, want: 7, set: true},
		{name: "exponent", raw: `"1.5e3"`, want: 1500, set: true},
		{name: "padded string", raw: `" 12 "`, want: 12, set: true},
		{name: "absent", raw: ``, want: 0, set: false},
		{name: "null", raw: `null`, want: 0, set: false},
		{name: "garbage string", raw: `"n/a"`, want: 0, set: true},
		{name: "bool", raw: `true`, want: 0, set: true},
		{name: "empty string", raw: `""`, want: 0, set: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValue(tt.raw)
			assert.InDelta(t, tt.want, v.Float64(), 1e-9)
			assert.Equal(t, tt.set, v.IsSet())
			assert.Equal(t, tt.raw, v.Raw(), "raw value must be kept")
		})
	}
}

func TestValue_Time(t *testing.T) {
	ms := NewValue(`1700000000000`)
	got, ok := ms.Time()
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), got)

	str := NewValue(`"1700000000000"`)
	got, ok = str.Time()
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), got.UnixMilli())

	iso := NewValue(`"2024-03-01T10:00:00Z"`)
	got, ok = iso.Time()
	require.True(t, ok)
	assert.Equal(t, 2024, got.Year())

	_, ok = NewValue(`"yesterday"`).Time()
	assert.False(t, ok)

	_, ok = Value(nil).Time()
	assert.False(t, ok)
}

func TestValue_JSONRoundTripKeepsRawText(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"open":"42000.10","high":42100,"low":null}`), &rec))

	assert.Equal(t, `"42000.10"`, rec.Open.Raw())
	assert.Equal(t, `42100`, rec.High.Raw())
	assert.False(t, rec.Low.IsSet())
	assert.Nil(t, rec.Close)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"symbol":"","timestamp":null,"open":"42000.10","high":42100,"low":null,"close":null,"volume":null}`,
		string(out))
}
