package memorystore

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var nullLiteral = []byte("null")

// Value is one ticker field exactly as it arrived on the wire: a JSON number,
// a JSON string, or null. A nil Value means the field was absent.
type Value []byte

// NewValue wraps raw JSON text. It is mostly useful in tests.
func NewValue(raw string) Value {
	if raw == "" {
		return nil
	}
	return Value(raw)
}

// IsSet reports whether the field was present and not null.
func (v Value) IsSet() bool {
	return len(v) > 0 && !bytes.Equal(v, nullLiteral)
}

// Raw returns the JSON text as received.
func (v Value) Raw() string {
	return string(v)
}

// Text returns the value without JSON string quoting.
func (v Value) Text() string {
	if !v.IsSet() {
		return ""
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	return string(v)
}

// Float64 coerces the value for display. Absent, null and unparseable values
// are 0; the stored Value itself is never modified.
func (v Value) Float64() float64 {
	d, ok := v.decimal()
	if !ok {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// Time interprets the value as a timestamp: a number (or numeric string) is
// Unix milliseconds, anything else must be RFC 3339.
func (v Value) Time() (time.Time, bool) {
	text := strings.TrimSpace(v.Text())
	if text == "" {
		return time.Time{}, false
	}
	if d, ok := v.decimal(); ok {
		return time.UnixMilli(d.IntPart()).UTC(), true
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Decimal returns the exact numeric value, if there is one.
func (v Value) Decimal() (decimal.Decimal, bool) {
	return v.decimal()
}

func (v Value) decimal() (decimal.Decimal, bool) {
	text := strings.TrimSpace(v.Text())
	if text == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (v Value) clone() Value {
	if v == nil {
		return nil
	}
	return bytes.Clone(v)
}

// MarshalJSON writes the raw value back out; absent fields become null.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return nullLiteral, nil
	}
	return v, nil
}

// UnmarshalJSON keeps a copy of the raw JSON text, null included.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = bytes.Clone(data)
	return nil
}
