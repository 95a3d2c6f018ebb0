package recv

import (
	"strconv"

	"simlink/pkg/schema"
	"simlink/pkg/sim"
)

// HeaderSize is the size of the common message header.
const HeaderSize = 12

// Header is the common prefix of every message (SIMCONNECT_RECV).
type Header struct {
	Size    uint32 `json:"size"`
	Version uint32 `json:"version"`
	ID      Kind   `json:"kind"`
}

// Kind returns the message discriminant.
func (h Header) Kind() Kind { return h.ID }

// Event is a decoded message. The set of implementations is closed.
type Event interface {
	Kind() Kind
	event()
}

// Null is an empty message.
type Null struct {
	Header
}

// Quit is sent when the host shuts down. It ends the dispatch loop.
type Quit struct {
	Header
}

// Exception reports that an earlier call identified by SendID failed.
// Call is filled in by the router from the request tracker.
type Exception struct {
	Header
	Code   ExceptionCode `json:"code"`
	SendID uint32        `json:"send_id"`
	Index  uint32        `json:"index"`
	Call   string        `json:"call,omitempty"`
}

// Version is a major/minor pair.
type Version struct {
	Major uint32 `json:"major"`
	Minor uint32 `json:"minor"`
}

func (v Version) String() string {
	return strconv.FormatUint(uint64(v.Major), 10) + "." + strconv.FormatUint(uint64(v.Minor), 10)
}

// Open acknowledges the connection.
type Open struct {
	Header
	ApplicationName    string  `json:"application_name"`
	ApplicationVersion Version `json:"application_version"`
	ApplicationBuild   Version `json:"application_build"`
	SimConnectVersion  Version `json:"simconnect_version"`
	SimConnectBuild    Version `json:"simconnect_build"`
}

// SystemEvent is a subscribed system or client event.
type SystemEvent struct {
	Header
	GroupID uint32 `json:"group_id"`
	EventID uint32 `json:"event_id"`
	Data    uint32 `json:"data"`
}

// ObjectAddRemove reports an object entering or leaving the simulation.
type ObjectAddRemove struct {
	Header
	GroupID    uint32            `json:"group_id"`
	EventID    uint32            `json:"event_id"`
	ObjectID   uint32            `json:"object_id"`
	ObjectType sim.SimObjectType `json:"object_type"`
}

// Filename is an event carrying a file name (flight loaded, aircraft loaded).
type Filename struct {
	Header
	GroupID  uint32 `json:"group_id"`
	EventID  uint32 `json:"event_id"`
	Data     uint32 `json:"data"`
	FileName string `json:"file_name"`
	Flags    uint32 `json:"flags"`
}

// Frame is an event carrying frame rate and simulation speed.
type Frame struct {
	Header
	GroupID   uint32  `json:"group_id"`
	EventID   uint32  `json:"event_id"`
	Data      uint32  `json:"data"`
	FrameRate float32 `json:"frame_rate"`
	SimSpeed  float32 `json:"sim_speed"`
}

// Datum is one decoded item of a data payload. Known is false for tagged
// items whose tag is not registered in the schema.
type Datum struct {
	Index int          `json:"index"`
	Tag   uint32       `json:"tag"`
	Known bool         `json:"known"`
	Field schema.Field `json:"field"`
	Value Value        `json:"value"`
}

// Name returns the field name, or "unknown tag N".
func (d Datum) Name() string {
	if d.Known {
		return d.Field.Name
	}
	return "unknown tag " + strconv.FormatUint(uint64(d.Tag), 10)
}

// SimObjectData carries values for a data request. ByType is set for
// replies to by-type requests.
type SimObjectData struct {
	Header
	RequestID     uint32              `json:"request_id"`
	ObjectID      uint32              `json:"object_id"`
	DefineID      schema.ID           `json:"define_id"`
	Flags         sim.DataRequestFlag `json:"flags"`
	EntryNumber   uint32              `json:"entry_number"`
	OutOf         uint32              `json:"out_of"`
	DefineCount   uint32              `json:"define_count"`
	ByType        bool                `json:"by_type"`
	Tagged        bool                `json:"tagged"`
	SchemaVersion int                 `json:"schema_version"`
	Data          []Datum             `json:"data"`
}

// Get returns the datum for the named field.
func (d SimObjectData) Get(name string) (Datum, bool) {
	for _, item := range d.Data {
		if item.Known && item.Field.Name == name {
			return item, true
		}
	}
	return Datum{}, false
}

// Float64 returns a numeric field value by name.
func (d SimObjectData) Float64(name string) (float64, bool) {
	item, ok := d.Get(name)
	if !ok {
		return 0, false
	}
	return item.Value.Float64()
}

// Values maps field names to their Go values. Unknown tags are keyed by Datum.Name.
func (d SimObjectData) Values() map[string]any {
	out := make(map[string]any, len(d.Data))
	for _, item := range d.Data {
		out[item.Name()] = item.Value.Interface()
	}
	return out
}

// AssignedObjectID reports the object id given to a created object.
type AssignedObjectID struct {
	Header
	RequestID uint32 `json:"request_id"`
	ObjectID  uint32 `json:"object_id"`
}

// SystemState answers a system state request.
type SystemState struct {
	Header
	RequestID uint32  `json:"request_id"`
	Integer   uint32  `json:"integer"`
	Float     float32 `json:"float"`
	String    string  `json:"string"`
}

// Unknown carries a message whose layout is not decoded. Raw is a copy of
// the whole message.
type Unknown struct {
	Header
	Raw []byte `json:"raw"`
}

func (Null) event()             {}
func (Quit) event()             {}
func (Exception) event()        {}
func (Open) event()             {}
func (SystemEvent) event()      {}
func (ObjectAddRemove) event()  {}
func (Filename) event()         {}
func (Frame) event()            {}
func (SimObjectData) event()    {}
func (AssignedObjectID) event() {}
func (SystemState) event()      {}
func (Unknown) event()          {}
