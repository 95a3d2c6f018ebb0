package recv

import (
	"encoding/binary"
	"fmt"
	"math"

	"simlink/pkg/schema"
	"simlink/pkg/sim"
)

// ProtocolVersion is written into headers of encoded messages that do not
// carry their own version.
const ProtocolVersion uint32 = 4

type writer struct {
	buf []byte
}

func (w *writer) u32(v uint32)  { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64)  { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) f32(v float32) { w.u32(math.Float32bits(v)) }
func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }

// str writes s into an n-byte NUL padded buffer. Longer strings are cut to n.
func (w *writer) str(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	w.buf = append(w.buf, b...)
}

func (w *writer) value(v Value) error {
	switch x := v.v.(type) {
	case int32:
		w.u32(uint32(x))
	case int64:
		w.u64(uint64(x))
	case float32:
		w.f32(x)
	case float64:
		w.f64(x)
	case string:
		if !v.Type.IsString() {
			return fmt.Errorf("%w: string value with type %s", schema.ErrInvalidType, v.Type)
		}
		w.str(x, v.Type.Width())
	case LatLonAlt:
		w.f64(x.Latitude)
		w.f64(x.Longitude)
		w.f64(x.Altitude)
	case XYZ:
		w.f64(x.X)
		w.f64(x.Y)
		w.f64(x.Z)
	case InitPosition:
		for _, f := range []float64{x.Latitude, x.Longitude, x.Altitude, x.Pitch, x.Bank, x.Heading} {
			w.f64(f)
		}
		w.u32(x.OnGround)
		w.u32(x.Airspeed)
	case MarkerState:
		w.str(x.Name, 64)
		w.u32(x.State)
	case Waypoint:
		w.f64(x.Latitude)
		w.f64(x.Longitude)
		w.f64(x.Altitude)
		w.u32(x.Flags)
		w.f64(x.SpeedKnots)
		w.f64(x.Throttle)
	case []byte:
		w.buf = append(w.buf, x...)
	default:
		return fmt.Errorf("%w: cannot encode %T", schema.ErrInvalidType, v.v)
	}
	return nil
}

// EncodeData packs values positionally, as SetDataOnSimObject expects and as
// untagged data payloads arrive.
func EncodeData(values []Value) ([]byte, error) {
	w := &writer{}
	for i, v := range values {
		if err := w.value(v); err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
	}
	return w.buf, nil
}

// EncodeTaggedData packs (tag, value) pairs.
func EncodeTaggedData(items []Datum) ([]byte, error) {
	w := &writer{}
	for i, item := range items {
		w.u32(item.Tag)
		if err := w.value(item.Value); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return w.buf, nil
}

// Encode writes ev in wire layout. Header sizes are computed; a zero header
// version becomes ProtocolVersion.
func Encode(ev Event) ([]byte, error) {
	w := &writer{}
	var h Header

	switch e := ev.(type) {
	case Null:
		h = e.Header
	case Quit:
		h = e.Header
	case Exception:
		h = e.Header
		w.u32(uint32(e.Code))
		w.u32(e.SendID)
		w.u32(e.Index)
	case Open:
		h = e.Header
		w.str(e.ApplicationName, 256)
		for _, v := range []Version{e.ApplicationVersion, e.ApplicationBuild, e.SimConnectVersion, e.SimConnectBuild} {
			w.u32(v.Major)
			w.u32(v.Minor)
		}
		w.u32(0)
		w.u32(0)
	case SystemEvent:
		h = e.Header
		w.u32(e.GroupID)
		w.u32(e.EventID)
		w.u32(e.Data)
	case ObjectAddRemove:
		h = e.Header
		w.u32(e.GroupID)
		w.u32(e.EventID)
		w.u32(e.ObjectID)
		w.u32(uint32(e.ObjectType))
	case Filename:
		h = e.Header
		w.u32(e.GroupID)
		w.u32(e.EventID)
		w.u32(e.Data)
		w.str(e.FileName, 260)
		w.u32(e.Flags)
	case Frame:
		h = e.Header
		w.u32(e.GroupID)
		w.u32(e.EventID)
		w.u32(e.Data)
		w.f32(e.FrameRate)
		w.f32(e.SimSpeed)
	case SimObjectData:
		h = e.Header
		if err := encodeData(w, e); err != nil {
			return nil, err
		}
	case AssignedObjectID:
		h = e.Header
		w.u32(e.RequestID)
		w.u32(e.ObjectID)
	case SystemState:
		h = e.Header
		w.u32(e.RequestID)
		w.u32(e.Integer)
		w.f32(e.Float)
		w.str(e.String, 260)
	case Unknown:
		return append([]byte(nil), e.Raw...), nil
	default:
		return nil, fmt.Errorf("cannot encode %T", ev)
	}

	h.ID = kindOf(ev)
	return frame(h, w.buf), nil
}

func kindOf(ev Event) Kind {
	switch e := ev.(type) {
	case Null:
		return KindNull
	case Quit:
		return KindQuit
	case Exception:
		return KindException
	case Open:
		return KindOpen
	case SystemEvent:
		return KindEvent
	case ObjectAddRemove:
		return KindEventObjectAddRemove
	case Filename:
		return KindEventFilename
	case Frame:
		return KindEventFrame
	case SimObjectData:
		if e.ByType {
			return KindSimObjectDataByType
		}
		return KindSimObjectData
	case AssignedObjectID:
		return KindAssignedObjectID
	case SystemState:
		return KindSystemState
	}
	return ev.Kind()
}

func encodeData(w *writer, e SimObjectData) error {
	flags := e.Flags
	if e.Tagged {
		flags |= sim.DataRequestFlagTagged
	}
	w.u32(e.RequestID)
	w.u32(e.ObjectID)
	w.u32(uint32(e.DefineID))
	w.u32(uint32(flags))
	w.u32(e.EntryNumber)
	w.u32(e.OutOf)
	w.u32(uint32(len(e.Data)))

	var payload []byte
	var err error
	if flags.Has(sim.DataRequestFlagTagged) {
		payload, err = EncodeTaggedData(e.Data)
	} else {
		values := make([]Value, len(e.Data))
		for i, item := range e.Data {
			values[i] = item.Value
		}
		payload, err = EncodeData(values)
	}
	if err != nil {
		return err
	}
	w.buf = append(w.buf, payload...)
	return nil
}

func frame(h Header, body []byte) []byte {
	if h.Version == 0 {
		h.Version = ProtocolVersion
	}
	out := make([]byte, 0, HeaderSize+len(body))
	out = binary.LittleEndian.AppendUint32(out, uint32(HeaderSize+len(body)))
	out = binary.LittleEndian.AppendUint32(out, h.Version)
	out = binary.LittleEndian.AppendUint32(out, uint32(h.ID))
	return append(out, body...)
}
