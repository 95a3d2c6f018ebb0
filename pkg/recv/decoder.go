// Package recv decodes raw host messages into typed events and encodes the
// same wire layout.
package recv

import (
	"fmt"

	"simlink/pkg/schema"
	"simlink/pkg/sim"
)

// SchemaResolver looks up the layout of a data definition.
// *schema.Registry satisfies it.
type SchemaResolver interface {
	Resolve(id schema.ID) (schema.Schema, error)
}

// Decoder turns raw messages into events. It holds no state of its own;
// results depend only on the buffer and the resolver's current contents.
type Decoder struct {
	schemas SchemaResolver
}

// NewDecoder creates a decoder that resolves data payloads through schemas.
func NewDecoder(schemas SchemaResolver) *Decoder {
	return &Decoder{schemas: schemas}
}

const simObjectDataHeaderSize = HeaderSize + 7*4

// PeekHeader reads the common header without decoding the body.
func PeekHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, &DecodeError{Err: ErrTruncated, Size: len(raw), Detail: "short header"}
	}
	r := newReader(raw, 0)
	return Header{Size: r.u32(), Version: r.u32(), ID: Kind(r.u32())}, nil
}

// Decode parses one message. raw may alias transport memory: nothing in the
// returned event refers to it.
//
// For an unrecognized discriminant Decode returns an Unknown event together
// with an error wrapping ErrUnknownKind. All other failures return a nil event
// and a *DecodeError.
func (d *Decoder) Decode(raw []byte) (Event, error) {
	h, err := PeekHeader(raw)
	if err != nil {
		return nil, err
	}
	r := newReader(raw, HeaderSize)

	if h.Size < HeaderSize {
		return nil, &DecodeError{Err: ErrTruncated, Kind: h.ID, Size: int(h.Size), Detail: "declared size below header"}
	}
	if int(h.Size) > len(raw) {
		return nil, &DecodeError{
			Err:    ErrTruncated,
			Kind:   h.ID,
			Size:   int(h.Size),
			Detail: fmt.Sprintf("have %d bytes", len(raw)),
		}
	}
	r.buf = raw[:h.Size]

	ev, err := d.decodeBody(h, r)
	if err != nil {
		return ev, err
	}
	if r.err != nil {
		return nil, &DecodeError{Err: r.err, Kind: h.ID, Size: int(h.Size)}
	}
	return ev, nil
}

func (d *Decoder) decodeBody(h Header, r *reader) (Event, error) {
	switch h.ID {
	case KindNull:
		return Null{Header: h}, nil
	case KindQuit:
		return Quit{Header: h}, nil
	case KindException:
		return Exception{Header: h, Code: ExceptionCode(r.u32()), SendID: r.u32(), Index: r.u32()}, nil
	case KindOpen:
		return decodeOpen(h, r), nil
	case KindEvent:
		return SystemEvent{Header: h, GroupID: r.u32(), EventID: r.u32(), Data: r.u32()}, nil
	case KindEventObjectAddRemove:
		return ObjectAddRemove{
			Header:     h,
			GroupID:    r.u32(),
			EventID:    r.u32(),
			ObjectID:   r.u32(),
			ObjectType: sim.SimObjectType(r.u32()),
		}, nil
	case KindEventFilename:
		return Filename{
			Header:   h,
			GroupID:  r.u32(),
			EventID:  r.u32(),
			Data:     r.u32(),
			FileName: r.str(260),
			Flags:    r.u32(),
		}, nil
	case KindEventFrame:
		return Frame{
			Header:    h,
			GroupID:   r.u32(),
			EventID:   r.u32(),
			Data:      r.u32(),
			FrameRate: r.f32(),
			SimSpeed:  r.f32(),
		}, nil
	case KindSimObjectData, KindSimObjectDataByType:
		return d.decodeData(h, r)
	case KindAssignedObjectID:
		return AssignedObjectID{Header: h, RequestID: r.u32(), ObjectID: r.u32()}, nil
	case KindSystemState:
		return SystemState{
			Header:    h,
			RequestID: r.u32(),
			Integer:   r.u32(),
			Float:     r.f32(),
			String:    r.str(260),
		}, nil
	}

	unknown := Unknown{Header: h, Raw: append([]byte(nil), r.buf...)}
	if h.ID.Known() {
		// Recognized kinds without a decoded layout (weather, client data, ...).
		return unknown, nil
	}
	return unknown, &DecodeError{Err: ErrUnknownKind, Kind: h.ID, Size: int(h.Size)}
}

func decodeOpen(h Header, r *reader) Open {
	o := Open{Header: h, ApplicationName: r.str(256)}
	o.ApplicationVersion = Version{Major: r.u32(), Minor: r.u32()}
	o.ApplicationBuild = Version{Major: r.u32(), Minor: r.u32()}
	o.SimConnectVersion = Version{Major: r.u32(), Minor: r.u32()}
	o.SimConnectBuild = Version{Major: r.u32(), Minor: r.u32()}
	r.u32() // reserved
	r.u32()
	return o
}

func (d *Decoder) decodeData(h Header, r *reader) (Event, error) {
	ev := SimObjectData{
		Header:      h,
		RequestID:   r.u32(),
		ObjectID:    r.u32(),
		DefineID:    schema.ID(r.u32()),
		Flags:       sim.DataRequestFlag(r.u32()),
		EntryNumber: r.u32(),
		OutOf:       r.u32(),
		DefineCount: r.u32(),
		ByType:      h.ID == KindSimObjectDataByType,
	}
	if r.err != nil {
		return nil, &DecodeError{Err: r.err, Kind: h.ID, Size: int(h.Size), Detail: "data header"}
	}
	ev.Tagged = ev.Flags.Has(sim.DataRequestFlagTagged)

	fail := func(err error, detail string) (Event, error) {
		return nil, &DecodeError{
			Err:       err,
			Kind:      h.ID,
			Size:      int(h.Size),
			SchemaID:  ev.DefineID,
			Detail:    detail,
			hasSchema: true,
		}
	}

	s, err := d.schemas.Resolve(ev.DefineID)
	if err != nil {
		return fail(err, "")
	}
	ev.SchemaVersion = s.Version

	count := int(ev.DefineCount)
	if ev.Tagged {
		if count > len(s.Fields) {
			return fail(ErrSizeMismatch, fmt.Sprintf("%d tagged items for %d fields", count, len(s.Fields)))
		}
		// Each item needs at least its tag.
		if count*4 > r.remaining() {
			return fail(ErrTruncated, fmt.Sprintf("%d tagged items in %d bytes", count, r.remaining()))
		}
		ev.Data = make([]Datum, 0, count)
		for i := 0; i < count; i++ {
			item, err := decodeTagged(s, r, i)
			if err != nil {
				return fail(err, "")
			}
			if r.err != nil {
				return fail(r.err, fmt.Sprintf("item %d", i))
			}
			ev.Data = append(ev.Data, item)
		}
		return ev, nil
	}

	if count != len(s.Fields) {
		return fail(ErrSizeMismatch, fmt.Sprintf("define count %d, schema has %d fields", count, len(s.Fields)))
	}
	if w := s.Width(); w > r.remaining() {
		return fail(ErrTruncated, fmt.Sprintf("payload needs %d bytes, have %d", w, r.remaining()))
	}
	ev.Data = make([]Datum, count)
	for i, f := range s.Fields {
		ev.Data[i] = Datum{Index: i, Tag: f.Tag, Known: true, Field: f, Value: r.value(f.Type)}
	}
	return ev, nil
}

func decodeTagged(s schema.Schema, r *reader, i int) (Datum, error) {
	tag := r.u32()
	if f, ok := s.FieldByTag(tag); ok {
		return Datum{Index: i, Tag: tag, Known: true, Field: f, Value: r.value(f.Type)}, nil
	}

	w, ok := s.UniformWidth()
	if !ok {
		return Datum{}, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
	item := Datum{Index: i, Tag: tag}
	if t, ok := s.UniformType(); ok {
		item.Value = r.value(t)
	} else {
		item.Value = RawValue(r.take(w))
	}
	return item, nil
}

// DecodeValues reads a packed payload laid out as s, the inverse of
// EncodeData. The payload must be exactly s.Width() bytes.
func DecodeValues(s schema.Schema, payload []byte) ([]Value, error) {
	if w := s.Width(); len(payload) != w {
		return nil, fmt.Errorf("%w: payload has %d bytes, schema %d needs %d", ErrSizeMismatch, len(payload), s.ID, w)
	}
	r := newReader(payload, 0)
	values := make([]Value, len(s.Fields))
	for i, f := range s.Fields {
		values[i] = r.value(f.Type)
	}
	if r.err != nil {
		return nil, r.err
	}
	return values, nil
}
