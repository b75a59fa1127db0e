// Package device defines the attribute schema of an air appliance: typed state
// keys and sensor names, tagged values, deltas, snapshots, per-model metadata and
// capability detection.
package device

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type valueKind uint8

const (
	kindNone valueKind = iota
	kindBool
	kindNumber
)

// Value is a numeric or boolean attribute value.
// The zero Value is invalid and never stored in a State or Sensors map.
type Value struct {
	kind valueKind
	num  float64
}

// Bool returns a boolean Value.
func Bool(b bool) Value {
	if b {
		return Value{kind: kindBool, num: 1}
	}
	return Value{kind: kindBool}
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{kind: kindNumber, num: f}
}

// IsValid reports whether v was constructed with Bool or Number.
func (v Value) IsValid() bool { return v.kind != kindNone }

// IsBool reports whether v holds a boolean.
func (v Value) IsBool() bool { return v.kind == kindBool }

// IsNumber reports whether v holds a number.
func (v Value) IsNumber() bool { return v.kind == kindNumber }

// AsBool returns the boolean view of v. Numbers are true when non-zero.
func (v Value) AsBool() bool { return v.num != 0 }

// AsFloat returns the numeric view of v. Booleans map to 0 and 1.
func (v Value) AsFloat() float64 { return v.num }

// AsInt returns the numeric view of v truncated to an int.
func (v Value) AsInt() int { return int(v.num) }

// SameKind reports whether v and o are both booleans or both numbers.
func (v Value) SameKind(o Value) bool { return v.kind == o.kind }

// Equal reports whether v and o have the same kind and value.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.num == o.num
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case kindBool:
		return strconv.FormatBool(v.AsBool())
	case kindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	default:
		return "<invalid>"
	}
}

// Interface returns v as a plain Go bool or float64 (nil when invalid).
func (v Value) Interface() any {
	switch v.kind {
	case kindBool:
		return v.AsBool()
	case kindNumber:
		return v.num
	default:
		return nil
	}
}

// MarshalJSON encodes v as a JSON boolean or number.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes a JSON boolean or number.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromInterface converts a decoded JSON scalar into a Value.
func FromInterface(raw any) (Value, error) {
	switch t := raw.(type) {
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("unsupported attribute value %v (%T)", raw, raw)
	}
}
