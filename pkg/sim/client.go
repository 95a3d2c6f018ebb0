package sim

import (
	"errors"
)

var (
	// ErrNotConnected is returned when a call requires an open connection.
	ErrNotConnected = errors.New("simulator not connected")
	// ErrUnsupportedPlatform is returned when the native client library cannot be used.
	ErrUnsupportedPlatform = errors.New("simconnect is only available on windows")
)

// Source yields raw messages one at a time (pull mode).
type Source interface {
	// Next returns the next raw message, or nil when none is available.
	// The returned slice is only valid until the next call.
	Next() ([]byte, error)
}

// Pump hands every currently available raw message to fn, in delivery order,
// for the duration of one bounded call (push mode). fn may run on a thread
// owned by the host and must not call back into the Pump.
type Pump interface {
	CallDispatch(fn func(raw []byte)) error
}

// Conn is a client connection to the simulator host.
type Conn interface {
	Source
	Pump

	// AddToDataDefinition appends a datum to a data definition.
	AddToDataDefinition(defineID uint32, datumName, unitsName string, datumType uint32, epsilon float32, datumID uint32) error
	// ClearDataDefinition removes all datums of a data definition.
	ClearDataDefinition(defineID uint32) error
	// RequestDataOnSimObject requests data for one object, once or periodically.
	RequestDataOnSimObject(requestID, defineID, objectID uint32, period Period, flags DataRequestFlag, origin, interval, limit uint32) error
	// RequestDataOnSimObjectType requests data for all objects of a type within a radius.
	RequestDataOnSimObjectType(requestID, defineID, radiusMeters uint32, objType SimObjectType) error
	// SetDataOnSimObject writes a packed payload laid out per the definition.
	SetDataOnSimObject(defineID, objectID uint32, flags uint32, arrayCount uint32, data []byte) error
	// SubscribeToSystemEvent subscribes to a named system event like "SimStart".
	SubscribeToSystemEvent(eventID uint32, eventName string) error
	// MapClientEventToSimEvent binds a client event id to a sim event name
	// like "brakes", or to a custom name containing a period.
	MapClientEventToSimEvent(eventID uint32, eventName string) error
	// AddClientEventToNotificationGroup routes a mapped event to a group.
	AddClientEventToNotificationGroup(groupID, eventID uint32, maskable bool) error
	// SetNotificationGroupPriority enables a group at the given priority.
	SetNotificationGroupPriority(groupID uint32, priority GroupPriority) error
	// TransmitClientEvent sends a mapped event to the host.
	TransmitClientEvent(objectID, eventID, data, groupID uint32, flags EventFlag) error
	// LastSentPacketID returns the send id of the most recent outbound call.
	LastSentPacketID() (uint32, error)
	// Close terminates the connection.
	Close() error
}
