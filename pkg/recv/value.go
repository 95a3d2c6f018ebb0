package recv

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/paulmach/orb"

	"simlink/pkg/schema"
)

// LatLonAlt matches SIMCONNECT_DATA_LATLONALT.
type LatLonAlt struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
}

// Point returns the position as an orb point (lon, lat).
func (l LatLonAlt) Point() orb.Point {
	return orb.Point{l.Longitude, l.Latitude}
}

// XYZ matches SIMCONNECT_DATA_XYZ.
type XYZ struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// InitPosition matches SIMCONNECT_DATA_INITPOSITION.
type InitPosition struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
	Pitch     float64 `json:"pitch"`
	Bank      float64 `json:"bank"`
	Heading   float64 `json:"heading"`
	OnGround  uint32  `json:"on_ground"`
	Airspeed  uint32  `json:"airspeed"`
}

// MarkerState matches SIMCONNECT_DATA_MARKERSTATE.
type MarkerState struct {
	Name  string `json:"name"`
	State uint32 `json:"state"`
}

// Waypoint matches SIMCONNECT_DATA_WAYPOINT.
type Waypoint struct {
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	Altitude   float64 `json:"alt"`
	Flags      uint32  `json:"flags"`
	SpeedKnots float64 `json:"kts_speed"`
	Throttle   float64 `json:"percent_throttle"`
}

// Value is one decoded datum. Type is schema.Invalid for the raw bytes of an
// unknown tag when the schema has no common type.
type Value struct {
	Type schema.DataType
	v    any
}

func Int32Value(x int32) Value               { return Value{Type: schema.Int32, v: x} }
func Int64Value(x int64) Value               { return Value{Type: schema.Int64, v: x} }
func Float32Value(x float32) Value           { return Value{Type: schema.Float32, v: x} }
func Float64Value(x float64) Value           { return Value{Type: schema.Float64, v: x} }
func LatLonAltValue(x LatLonAlt) Value       { return Value{Type: schema.LatLonAlt, v: x} }
func XYZValue(x XYZ) Value                   { return Value{Type: schema.XYZ, v: x} }
func InitPositionValue(x InitPosition) Value { return Value{Type: schema.InitPosition, v: x} }
func MarkerStateValue(x MarkerState) Value   { return Value{Type: schema.MarkerState, v: x} }
func WaypointValue(x Waypoint) Value         { return Value{Type: schema.Waypoint, v: x} }

// StringValue builds a character-buffer value of type t.
func StringValue(t schema.DataType, s string) Value {
	return Value{Type: t, v: s}
}

// RawValue holds bytes whose type is not known.
func RawValue(b []byte) Value {
	return Value{Type: schema.Invalid, v: append([]byte(nil), b...)}
}

// NewValue converts a loosely typed Go value (as found in YAML or JSON) to a
// Value of type t.
func NewValue(t schema.DataType, x any) (Value, error) {
	switch {
	case t.IsString():
		s, ok := x.(string)
		if !ok {
			return Value{}, fmt.Errorf("%s needs a string, got %T", t, x)
		}
		return StringValue(t, s), nil
	case t.IsComposite():
		v := Value{Type: t, v: x}
		if v.compositeOK() {
			return v, nil
		}
		return Value{}, fmt.Errorf("%s needs a %s struct, got %T", t, t, x)
	}

	f, ok := toFloat(x)
	if !ok {
		return Value{}, fmt.Errorf("%s needs a number, got %T", t, x)
	}
	switch t {
	case schema.Int32:
		return Int32Value(int32(f)), nil
	case schema.Int64:
		return Int64Value(int64(f)), nil
	case schema.Float32:
		return Float32Value(float32(f)), nil
	case schema.Float64:
		return Float64Value(f), nil
	}
	return Value{}, fmt.Errorf("%w: %s", schema.ErrInvalidType, t)
}

func (v Value) compositeOK() bool {
	switch v.v.(type) {
	case LatLonAlt:
		return v.Type == schema.LatLonAlt
	case XYZ:
		return v.Type == schema.XYZ
	case InitPosition:
		return v.Type == schema.InitPosition
	case MarkerState:
		return v.Type == schema.MarkerState
	case Waypoint:
		return v.Type == schema.Waypoint
	}
	return false
}

func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Float64 returns numeric values widened to float64.
func (v Value) Float64() (float64, bool) {
	switch x := v.v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// Int64 returns integer values widened to int64.
func (v Value) Int64() (int64, bool) {
	switch x := v.v.(type) {
	case int32:
		return int64(x), true
	case int64:
		return x, true
	}
	return 0, false
}

func (v Value) Int32() (int32, bool) {
	x, ok := v.v.(int32)
	return x, ok
}

// Uint32 reinterprets an Int32 datum as unsigned.
func (v Value) Uint32() (uint32, bool) {
	x, ok := v.v.(int32)
	return uint32(x), ok
}

// Text returns the contents of a character buffer.
func (v Value) Text() (string, bool) {
	x, ok := v.v.(string)
	return x, ok
}

// Bytes returns a copy of an untyped raw value.
func (v Value) Bytes() ([]byte, bool) {
	x, ok := v.v.([]byte)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), x...), true
}

func (v Value) LatLonAlt() (LatLonAlt, bool) {
	x, ok := v.v.(LatLonAlt)
	return x, ok
}

func (v Value) XYZ() (XYZ, bool) {
	x, ok := v.v.(XYZ)
	return x, ok
}

func (v Value) InitPosition() (InitPosition, bool) {
	x, ok := v.v.(InitPosition)
	return x, ok
}

func (v Value) MarkerState() (MarkerState, bool) {
	x, ok := v.v.(MarkerState)
	return x, ok
}

func (v Value) Waypoint() (Waypoint, bool) {
	x, ok := v.v.(Waypoint)
	return x, ok
}

// Interface returns the underlying Go value.
func (v Value) Interface() any {
	return v.v
}

func (v Value) String() string {
	return fmt.Sprint(v.v)
}

// MarshalJSON encodes the underlying value.
func (v Value) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(v.v)
}
