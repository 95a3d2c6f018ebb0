// Package sim defines the connection contract to the simulator host and the
// request-side enumerations shared by transports.
package sim

// State represents the lifecycle of a host connection.
type State string

const (
	// StateDisconnected indicates no connection to the simulator.
	StateDisconnected State = "disconnected"
	// StateConnected indicates the connection is open but the host has not confirmed it.
	StateConnected State = "connected"
	// StateOpen indicates the host acknowledged the connection.
	StateOpen State = "open"
	// StateQuit indicates the host ended the session.
	StateQuit State = "quit"
)

// Period is the delivery cadence of a data request.
type Period uint32

const (
	PeriodNever       Period = 0
	PeriodOnce        Period = 1
	PeriodVisualFrame Period = 2
	PeriodSimFrame    Period = 3
	PeriodSecond      Period = 4
)

var periodNames = map[string]Period{
	"never":        PeriodNever,
	"once":         PeriodOnce,
	"visual_frame": PeriodVisualFrame,
	"sim_frame":    PeriodSimFrame,
	"second":       PeriodSecond,
}

// ParsePeriod maps a config name like "second" to a Period.
func ParsePeriod(s string) (Period, bool) {
	p, ok := periodNames[s]
	return p, ok
}

func (p Period) String() string {
	for n, v := range periodNames {
		if v == p {
			return n
		}
	}
	return "unknown"
}

// DataRequestFlag modifies how requested data is delivered.
type DataRequestFlag uint32

const (
	DataRequestFlagDefault DataRequestFlag = 0
	// DataRequestFlagChanged sends data only when a value changed.
	DataRequestFlagChanged DataRequestFlag = 0x1
	// DataRequestFlagTagged sends (datum id, value) pairs instead of a packed struct.
	DataRequestFlagTagged DataRequestFlag = 0x2
)

// Has reports whether all bits of other are set.
func (f DataRequestFlag) Has(other DataRequestFlag) bool {
	return f&other == other
}

// SimObjectType selects objects for by-type requests.
type SimObjectType uint32

const (
	SimObjectTypeUser       SimObjectType = 0
	SimObjectTypeAll        SimObjectType = 1
	SimObjectTypeAircraft   SimObjectType = 2
	SimObjectTypeHelicopter SimObjectType = 3
	SimObjectTypeBoat       SimObjectType = 4
	SimObjectTypeGround     SimObjectType = 5
)

// ObjectIDUser addresses the user aircraft.
const ObjectIDUser uint32 = 0

// GroupPriority orders notification groups. Lower values are notified first.
type GroupPriority uint32

const (
	GroupPriorityHighest         GroupPriority = 1
	GroupPriorityHighestMaskable GroupPriority = 10000000
	GroupPriorityStandard        GroupPriority = 1900000000
	GroupPriorityDefault         GroupPriority = 2000000000
	GroupPriorityLowest          GroupPriority = 4000000000
)

// EventFlag modifies TransmitClientEvent.
type EventFlag uint32

const (
	EventFlagDefault         EventFlag = 0
	EventFlagFastRepeatTimer EventFlag = 0x1
	EventFlagSlowRepeatTimer EventFlag = 0x2
	// EventFlagGroupIDIsPriority makes the group argument a GroupPriority.
	EventFlagGroupIDIsPriority EventFlag = 0x10
)
