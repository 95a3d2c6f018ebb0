package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DataType is the wire type of a single datum. Values match the
// SIMCONNECT_DATATYPE enumeration.
type DataType uint32

const (
	Invalid      DataType = 0
	Int32        DataType = 1
	Int64        DataType = 2
	Float32      DataType = 3
	Float64      DataType = 4
	String8      DataType = 5
	String32     DataType = 6
	String64     DataType = 7
	String128    DataType = 8
	String256    DataType = 9
	String260    DataType = 10
	StringV      DataType = 11
	InitPosition DataType = 12
	MarkerState  DataType = 13
	Waypoint     DataType = 14
	LatLonAlt    DataType = 15
	XYZ          DataType = 16
)

// Unused marks a field without a datum tag (SIMCONNECT_UNUSED).
const Unused uint32 = 0xFFFFFFFF

var typeNames = map[DataType]string{
	Invalid:      "invalid",
	Int32:        "int32",
	Int64:        "int64",
	Float32:      "float32",
	Float64:      "float64",
	String8:      "string8",
	String32:     "string32",
	String64:     "string64",
	String128:    "string128",
	String256:    "string256",
	String260:    "string260",
	StringV:      "stringv",
	InitPosition: "initposition",
	MarkerState:  "markerstate",
	Waypoint:     "waypoint",
	LatLonAlt:    "latlonalt",
	XYZ:          "xyz",
}

func (t DataType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("datatype(%d)", uint32(t))
}

// ParseDataType maps a config name like "float64" or "string256" to a DataType.
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range typeNames {
		if n == name && t != Invalid {
			return t, nil
		}
	}
	return Invalid, fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// MarshalText renders the type by name in JSON output.
func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// MarshalYAML implements yaml.Marshaler.
func (t DataType) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *DataType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Width returns the fixed wire size of the type in bytes, or 0 for types
// without a fixed size.
func (t DataType) Width() int {
	switch t {
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	case String8:
		return 8
	case String32:
		return 32
	case String64:
		return 64
	case String128:
		return 128
	case String256:
		return 256
	case String260:
		return 260
	case InitPosition:
		return 6*8 + 2*4
	case MarkerState:
		return 64 + 4
	case Waypoint:
		return 3*8 + 4 + 2*8
	case LatLonAlt, XYZ:
		return 3 * 8
	default:
		return 0
	}
}

// IsString reports whether t is a fixed-length character buffer.
func (t DataType) IsString() bool {
	return t >= String8 && t <= String260
}

// IsComposite reports whether t is a fixed-format structure.
func (t DataType) IsComposite() bool {
	return t >= InitPosition && t <= XYZ
}

// Field describes one datum of a data definition.
type Field struct {
	Name    string   `json:"name"`
	Unit    string   `json:"unit,omitempty"`
	Type    DataType `json:"type"`
	Epsilon float32  `json:"epsilon,omitempty"`
	Tag     uint32   `json:"tag"`
}

// HasTag reports whether the field carries a datum tag.
func (f Field) HasTag() bool {
	return f.Tag != Unused
}

func (f Field) validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: empty field name", ErrInvalidField)
	}
	if f.Type == StringV {
		return fmt.Errorf("%w: %s has variable-length type", ErrInvalidType, f.Name)
	}
	if f.Type.Width() == 0 {
		return fmt.Errorf("%w: %s has type %s", ErrInvalidType, f.Name, f.Type)
	}
	if f.Unit != "" && (f.Type.IsString() || f.Type.IsComposite()) {
		return fmt.Errorf("%w: %s of type %s must not have a unit", ErrInvalidField, f.Name, f.Type)
	}
	return nil
}
