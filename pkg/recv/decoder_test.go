package recv

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simlink/pkg/schema"
	"simlink/pkg/sim"
)

// wire builds little-endian message bodies by hand so tests do not depend on
// the encoder.
type wire []byte

func (w wire) u32(v uint32) wire  { return binary.LittleEndian.AppendUint32(w, v) }
func (w wire) f32(v float32) wire { return w.u32(math.Float32bits(v)) }
func (w wire) f64(v float64) wire {
	return binary.LittleEndian.AppendUint64(w, math.Float64bits(v))
}
func (w wire) bytes(b ...byte) wire { return append(w, b...) }

func message(kind Kind, body wire) []byte {
	return wire(nil).u32(uint32(HeaderSize + len(body))).u32(ProtocolVersion).u32(uint32(kind)).bytes(body...)
}

func dataHeader(requestID, defineID uint32, flags sim.DataRequestFlag, count uint32) wire {
	return wire(nil).u32(requestID).u32(sim.ObjectIDUser).u32(defineID).u32(uint32(flags)).u32(1).u32(1).u32(count)
}

func positionRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	require.NoError(t, r.Define(1, schema.Field{Name: "lat", Unit: "degrees", Type: schema.Float64, Tag: schema.Unused}))
	require.NoError(t, r.Define(1, schema.Field{Name: "lon", Unit: "degrees", Type: schema.Float64, Tag: schema.Unused}))
	return r
}

func TestDecode_LatLon(t *testing.T) {
	dec := NewDecoder(positionRegistry(t))
	raw := message(KindSimObjectData, dataHeader(10, 1, 0, 2).f64(47.5).f64(-122.2))

	ev, err := dec.Decode(raw)
	require.NoError(t, err)

	data, ok := ev.(SimObjectData)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, uint32(10), data.RequestID)
	assert.Equal(t, schema.ID(1), data.DefineID)
	assert.False(t, data.Tagged)
	assert.False(t, data.ByType)
	require.Len(t, data.Data, 2)
	assert.Equal(t, "lat", data.Data[0].Field.Name)
	assert.Equal(t, "lon", data.Data[1].Field.Name)

	lat, _ := data.Float64("lat")
	lon, _ := data.Float64("lon")
	assert.Equal(t, 47.5, lat)
	assert.Equal(t, -122.2, lon)
	assert.Equal(t, map[string]any{"lat": 47.5, "lon": -122.2}, data.Values())
}

func TestDecode_UntaggedMixedTypesInRegistrationOrder(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Define(3, schema.Field{Name: "TITLE", Type: schema.String32, Tag: schema.Unused}))
	require.NoError(t, r.Define(3, schema.Field{Name: "SIM ON GROUND", Unit: "bool", Type: schema.Int32, Tag: schema.Unused}))
	require.NoError(t, r.Define(3, schema.Field{Name: "STRUCT LATLONALT", Type: schema.LatLonAlt, Tag: schema.Unused}))
	require.NoError(t, r.Define(3, schema.Field{Name: "GROUND VELOCITY", Unit: "knots", Type: schema.Float32, Tag: schema.Unused}))

	title := make([]byte, 32)
	copy(title, "Cessna 172")
	body := dataHeader(5, 3, 0, 4).bytes(title...).u32(1).f64(47.5).f64(-122.2).f64(430).f32(88.5)

	ev, err := NewDecoder(r).Decode(message(KindSimObjectDataByType, body))
	require.NoError(t, err)
	data := ev.(SimObjectData)
	assert.True(t, data.ByType)
	require.Len(t, data.Data, 4)

	s, _ := data.Data[0].Value.Text()
	assert.Equal(t, "Cessna 172", s)
	onGround, _ := data.Data[1].Value.Int32()
	assert.Equal(t, int32(1), onGround)
	pos, ok := data.Data[2].Value.LatLonAlt()
	require.True(t, ok)
	assert.Equal(t, LatLonAlt{Latitude: 47.5, Longitude: -122.2, Altitude: 430}, pos)
	assert.Equal(t, -122.2, pos.Point().Lon())
	speed, _ := data.Data[3].Value.Float64()
	assert.InDelta(t, 88.5, speed, 1e-6)

	for i, d := range data.Data {
		assert.Equal(t, i, d.Index)
		assert.True(t, d.Known)
	}
}

func TestDecode_StringBuffers(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want string
	}{
		{"Terminated", []byte("AB\x00\x00\x00\x00\x00\x00"), "AB"},
		{"Unterminated", []byte("ABCDEFGH"), "ABCDEFGH"},
		{"Empty", make([]byte, 8), ""},
		{"GarbageAfterNul", []byte("AB\x00XYZ\x00\x00"), "AB"},
	}

	r := schema.NewRegistry()
	require.NoError(t, r.Define(2, schema.Field{Name: "ATC ID", Type: schema.String8, Tag: schema.Unused}))
	dec := NewDecoder(r)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := dec.Decode(message(KindSimObjectData, dataHeader(1, 2, 0, 1).bytes(tt.buf...)))
			require.NoError(t, err)
			got, ok := ev.(SimObjectData).Data[0].Value.Text()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_UntaggedSizeMismatch(t *testing.T) {
	dec := NewDecoder(positionRegistry(t))
	ev, err := dec.Decode(message(KindSimObjectData, dataHeader(1, 1, 0, 1).f64(47.5)))
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, KindSimObjectData, de.Kind)
	assert.True(t, de.HasSchema())
	assert.Equal(t, schema.ID(1), de.SchemaID)
	assert.Equal(t, "size_mismatch", de.Reason())
}

func TestDecode_UnknownSchema(t *testing.T) {
	dec := NewDecoder(schema.NewRegistry())
	_, err := dec.Decode(message(KindSimObjectData, dataHeader(1, 9, 0, 1).f64(1)))
	assert.ErrorIs(t, err, ErrUnknownSchema)
	assert.ErrorIs(t, err, schema.ErrUnknownSchema)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, schema.ID(9), de.SchemaID)
	assert.Contains(t, de.Error(), "simobject_data")
}

func taggedRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	require.NoError(t, r.Define(4, schema.Field{Name: "Vertical Speed", Unit: "feet per second", Type: schema.Float32, Tag: 1}))
	require.NoError(t, r.Define(4, schema.Field{Name: "Pitot Heat", Unit: "bool", Type: schema.Float32, Tag: 2}))
	require.NoError(t, r.Define(4, schema.Field{Name: "Flaps Index", Unit: "number", Type: schema.Float32, Tag: 3}))
	return r
}

func TestDecode_TaggedPartial(t *testing.T) {
	dec := NewDecoder(taggedRegistry(t))
	flags := sim.DataRequestFlagChanged | sim.DataRequestFlagTagged

	for count := 0; count < 3; count++ {
		body := dataHeader(7, 4, flags, uint32(count))
		for i := 0; i < count; i++ {
			body = body.u32(uint32(3 - i)).f32(float32(10 * (i + 1)))
		}
		ev, err := dec.Decode(message(KindSimObjectData, body))
		require.NoError(t, err, "count %d", count)

		data := ev.(SimObjectData)
		assert.True(t, data.Tagged)
		require.Len(t, data.Data, count)
		for i, d := range data.Data {
			assert.True(t, d.Known)
			assert.Equal(t, uint32(3-i), d.Tag)
			assert.Equal(t, d.Tag, d.Field.Tag)
		}
	}

	ev, err := dec.Decode(message(KindSimObjectData, dataHeader(7, 4, flags, 1).u32(2).f32(1)))
	require.NoError(t, err)
	item, ok := ev.(SimObjectData).Get("Pitot Heat")
	require.True(t, ok)
	v, _ := item.Value.Float64()
	assert.Equal(t, 1.0, v)
}

func TestDecode_TaggedUnknownTagPreserved(t *testing.T) {
	dec := NewDecoder(taggedRegistry(t))
	body := dataHeader(7, 4, sim.DataRequestFlagTagged, 2).u32(1).f32(-2.5).u32(99).f32(4)

	ev, err := dec.Decode(message(KindSimObjectData, body))
	require.NoError(t, err)
	data := ev.(SimObjectData)
	require.Len(t, data.Data, 2)

	assert.True(t, data.Data[0].Known)
	assert.Equal(t, "Vertical Speed", data.Data[0].Name())

	unknown := data.Data[1]
	assert.False(t, unknown.Known)
	assert.Equal(t, uint32(99), unknown.Tag)
	assert.Equal(t, "unknown tag 99", unknown.Name())
	f, ok := unknown.Value.Float64()
	require.True(t, ok)
	assert.Equal(t, 4.0, f)
	assert.Contains(t, data.Values(), "unknown tag 99")
}

func TestDecode_TaggedUnknownTagWithoutUniformWidth(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Define(5, schema.Field{Name: "A", Unit: "feet", Type: schema.Float32, Tag: 1}))
	require.NoError(t, r.Define(5, schema.Field{Name: "B", Unit: "feet", Type: schema.Float64, Tag: 2}))

	_, err := NewDecoder(r).Decode(message(KindSimObjectData, dataHeader(1, 5, sim.DataRequestFlagTagged, 1).u32(7).f32(1)))
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestDecode_TaggedTooManyItems(t *testing.T) {
	body := dataHeader(7, 4, sim.DataRequestFlagTagged, 4)
	for tag := uint32(1); tag <= 4; tag++ {
		body = body.u32(tag).f32(0)
	}
	_, err := NewDecoder(taggedRegistry(t)).Decode(message(KindSimObjectData, body))
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestDecode_Truncation(t *testing.T) {
	full := message(KindSimObjectData, dataHeader(1, 1, 0, 2).f64(47.5).f64(-122.2))

	short := message(KindSimObjectData, dataHeader(1, 1, 0, 2).f64(47.5))
	tagged := message(KindSimObjectData, dataHeader(7, 4, sim.DataRequestFlagTagged, 2).u32(1).f32(1).u32(2))

	tests := []struct {
		name string
		raw  []byte
		reg  *schema.Registry
	}{
		{"ShortHeader", full[:8], positionRegistry(t)},
		{"DeclaredSizeExceedsBuffer", full[:len(full)-4], positionRegistry(t)},
		{"DeclaredSizeBelowHeader", wire(nil).u32(4).u32(ProtocolVersion).u32(uint32(KindNull)), positionRegistry(t)},
		{"PayloadShorterThanSchema", short, positionRegistry(t)},
		{"DataHeaderCut", message(KindSimObjectData, dataHeader(1, 1, 0, 2)[:12]), positionRegistry(t)},
		{"TaggedValueCut", tagged, taggedRegistry(t)},
		{"ExceptionBodyCut", message(KindException, wire(nil).u32(3).u32(42)), positionRegistry(t)},
		{"OpenBodyCut", message(KindOpen, make(wire, 100)), positionRegistry(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewDecoder(tt.reg).Decode(tt.raw)
			assert.Nil(t, ev)
			assert.ErrorIs(t, err, ErrTruncated)
			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "truncated", de.Reason())
		})
	}
}

func TestDecode_IgnoresBytesBeyondDeclaredSize(t *testing.T) {
	raw := message(KindException, wire(nil).u32(uint32(ExceptionNameUnrecognized)).u32(42).u32(1))
	padded := append(append([]byte(nil), raw...), 0xde, 0xad, 0xbe, 0xef)

	dec := NewDecoder(schema.NewRegistry())
	a, err := dec.Decode(raw)
	require.NoError(t, err)
	b, err := dec.Decode(padded)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecode_Exception(t *testing.T) {
	raw := message(KindException, wire(nil).u32(uint32(ExceptionNameUnrecognized)).u32(42).u32(3))
	ev, err := NewDecoder(schema.NewRegistry()).Decode(raw)
	require.NoError(t, err)

	exc, ok := ev.(Exception)
	require.True(t, ok)
	assert.Equal(t, KindException, exc.Kind())
	assert.Equal(t, ExceptionNameUnrecognized, exc.Code)
	assert.Equal(t, "NAME_UNRECOGNIZED", exc.Code.String())
	assert.Equal(t, uint32(42), exc.SendID)
	assert.Equal(t, uint32(3), exc.Index)
	assert.Empty(t, exc.Call)
}

func TestDecode_Open(t *testing.T) {
	name := make([]byte, 256)
	copy(name, "KittyHawk")
	body := wire(nil).bytes(name...).u32(11).u32(0).u32(62651).u32(3).u32(11).u32(0).u32(62651).u32(3).u32(0).u32(0)

	ev, err := NewDecoder(schema.NewRegistry()).Decode(message(KindOpen, body))
	require.NoError(t, err)
	open := ev.(Open)
	assert.Equal(t, "KittyHawk", open.ApplicationName)
	assert.Equal(t, Version{Major: 11, Minor: 0}, open.ApplicationVersion)
	assert.Equal(t, Version{Major: 62651, Minor: 3}, open.SimConnectBuild)
	assert.Equal(t, uint32(HeaderSize+256+40), open.Size)
}

func TestDecode_UnknownKindSurfaced(t *testing.T) {
	raw := message(Kind(99), wire(nil).u32(1).u32(2))
	ev, err := NewDecoder(schema.NewRegistry()).Decode(raw)

	assert.ErrorIs(t, err, ErrUnknownKind)
	unknown, ok := ev.(Unknown)
	require.True(t, ok, "unknown kinds must still produce an event")
	assert.Equal(t, Kind(99), unknown.Kind())
	assert.Equal(t, raw, unknown.Raw)

	raw[12] = 0xff
	assert.NotEqual(t, raw[12], unknown.Raw[12], "raw bytes must be copied")
}

func TestDecode_RecognizedOpaqueKind(t *testing.T) {
	ev, err := NewDecoder(schema.NewRegistry()).Decode(message(KindWeatherObservation, wire(nil).u32(1).bytes('K', 'S', 'E', 'A', 0)))
	require.NoError(t, err)
	assert.Equal(t, KindWeatherObservation, ev.Kind())
	assert.IsType(t, Unknown{}, ev)
}

func TestDecode_Idempotent(t *testing.T) {
	dec := NewDecoder(taggedRegistry(t))
	raw := message(KindSimObjectData, dataHeader(7, 4, sim.DataRequestFlagTagged, 2).u32(3).f32(2).u32(42).f32(9))

	first, err := dec.Decode(raw)
	require.NoError(t, err)
	second, err := dec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecode_ReportsSchemaVersion(t *testing.T) {
	r := positionRegistry(t)
	dec := NewDecoder(r)
	raw := message(KindSimObjectData, dataHeader(1, 1, 0, 2).f64(1).f64(2))

	ev, err := dec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.(SimObjectData).SchemaVersion)

	// A field added while the request is active changes the shape; the old
	// message no longer matches.
	require.NoError(t, r.Define(1, schema.Field{Name: "alt", Unit: "feet", Type: schema.Float64, Tag: schema.Unused}))
	_, err = dec.Decode(raw)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestDecode_SystemEvents(t *testing.T) {
	dec := NewDecoder(schema.NewRegistry())

	ev, err := dec.Decode(message(KindEvent, wire(nil).u32(0).u32(3).u32(1)))
	require.NoError(t, err)
	assert.Equal(t, SystemEvent{Header: Header{Size: 24, Version: ProtocolVersion, ID: KindEvent}, EventID: 3, Data: 1}, ev)

	file := make([]byte, 260)
	copy(file, `C:\flights\KSEA.FLT`)
	ev, err = dec.Decode(message(KindEventFilename, wire(nil).u32(0).u32(4).u32(0).bytes(file...).u32(0)))
	require.NoError(t, err)
	assert.Equal(t, `C:\flights\KSEA.FLT`, ev.(Filename).FileName)

	ev, err = dec.Decode(message(KindEventFrame, wire(nil).u32(0).u32(5).u32(0).f32(30).f32(1)))
	require.NoError(t, err)
	assert.Equal(t, float32(30), ev.(Frame).FrameRate)

	ev, err = dec.Decode(message(KindEventObjectAddRemove, wire(nil).u32(0).u32(6).u32(77).u32(uint32(sim.SimObjectTypeAircraft))))
	require.NoError(t, err)
	assert.Equal(t, sim.SimObjectTypeAircraft, ev.(ObjectAddRemove).ObjectType)
	assert.Equal(t, uint32(77), ev.(ObjectAddRemove).ObjectID)
}
