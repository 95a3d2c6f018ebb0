package recv

import (
	"bytes"
	"encoding/binary"
	"math"

	"simlink/pkg/schema"
)

// reader walks a little-endian buffer. The first out-of-bounds read sets err
// and every later read returns zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte, off int) *reader {
	return &reader{buf: buf, off: off}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = ErrTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }
func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }

// str reads a fixed-length character buffer, cut at the first NUL.
func (r *reader) str(n int) string {
	b := r.take(n)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (r *reader) raw(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) value(t schema.DataType) Value {
	switch t {
	case schema.Int32:
		return Int32Value(int32(r.u32()))
	case schema.Int64:
		return Int64Value(int64(r.u64()))
	case schema.Float32:
		return Float32Value(r.f32())
	case schema.Float64:
		return Float64Value(r.f64())
	case schema.LatLonAlt:
		return LatLonAltValue(LatLonAlt{Latitude: r.f64(), Longitude: r.f64(), Altitude: r.f64()})
	case schema.XYZ:
		return XYZValue(XYZ{X: r.f64(), Y: r.f64(), Z: r.f64()})
	case schema.InitPosition:
		return InitPositionValue(InitPosition{
			Latitude:  r.f64(),
			Longitude: r.f64(),
			Altitude:  r.f64(),
			Pitch:     r.f64(),
			Bank:      r.f64(),
			Heading:   r.f64(),
			OnGround:  r.u32(),
			Airspeed:  r.u32(),
		})
	case schema.MarkerState:
		return MarkerStateValue(MarkerState{Name: r.str(64), State: r.u32()})
	case schema.Waypoint:
		return WaypointValue(Waypoint{
			Latitude:   r.f64(),
			Longitude:  r.f64(),
			Altitude:   r.f64(),
			Flags:      r.u32(),
			SpeedKnots: r.f64(),
			Throttle:   r.f64(),
		})
	}
	if t.IsString() {
		return StringValue(t, r.str(t.Width()))
	}
	return RawValue(r.take(t.Width()))
}
