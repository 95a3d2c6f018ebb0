package recv

import "fmt"

// Kind is the message discriminant (SIMCONNECT_RECV_ID).
type Kind uint32

const (
	KindNull                 Kind = 0
	KindException            Kind = 1
	KindOpen                 Kind = 2
	KindQuit                 Kind = 3
	KindEvent                Kind = 4
	KindEventObjectAddRemove Kind = 5
	KindEventFilename        Kind = 6
	KindEventFrame           Kind = 7
	KindSimObjectData        Kind = 8
	KindSimObjectDataByType  Kind = 9
	KindWeatherObservation   Kind = 10
	KindCloudState           Kind = 11
	KindAssignedObjectID     Kind = 12
	KindReservedKey          Kind = 13
	KindCustomAction         Kind = 14
	KindSystemState          Kind = 15
	KindClientData           Kind = 16
)

var kindNames = [...]string{
	"null",
	"exception",
	"open",
	"quit",
	"event",
	"event_object_addremove",
	"event_filename",
	"event_frame",
	"simobject_data",
	"simobject_data_bytype",
	"weather_observation",
	"cloud_state",
	"assigned_object_id",
	"reserved_key",
	"custom_action",
	"system_state",
	"client_data",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// Known reports whether k is a discriminant this package recognizes.
func (k Kind) Known() bool {
	return int(k) < len(kindNames)
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ExceptionCode is the host's error code (SIMCONNECT_EXCEPTION).
type ExceptionCode uint32

var exceptionNames = [...]string{
	"NONE",
	"ERROR",
	"SIZE_MISMATCH",
	"UNRECOGNIZED_ID",
	"UNOPENED",
	"VERSION_MISMATCH",
	"TOO_MANY_GROUPS",
	"NAME_UNRECOGNIZED",
	"TOO_MANY_EVENT_NAMES",
	"EVENT_ID_DUPLICATE",
	"TOO_MANY_MAPS",
	"TOO_MANY_OBJECTS",
	"TOO_MANY_REQUESTS",
	"WEATHER_INVALID_PORT",
	"WEATHER_INVALID_METAR",
	"WEATHER_UNABLE_TO_GET_OBSERVATION",
	"WEATHER_UNABLE_TO_CREATE_STATION",
	"WEATHER_UNABLE_TO_REMOVE_STATION",
	"INVALID_DATA_TYPE",
	"INVALID_DATA_SIZE",
	"DATA_ERROR",
	"INVALID_ARRAY",
	"CREATE_OBJECT_FAILED",
	"LOAD_FLIGHTPLAN_FAILED",
	"OPERATION_INVALID_FOR_OBJECT_TYPE",
	"ILLEGAL_OPERATION",
	"ALREADY_SUBSCRIBED",
	"INVALID_ENUM",
	"DEFINITION_ERROR",
	"DUPLICATE_ID",
	"DATUM_ID",
	"OUT_OF_BOUNDS",
	"ALREADY_CREATED",
	"OBJECT_OUTSIDE_REALITY_BUBBLE",
	"OBJECT_CONTAINER",
	"OBJECT_AI",
	"OBJECT_ATC",
	"OBJECT_SCHEDULE",
}

// Exception codes referenced by this module.
const (
	ExceptionNone             ExceptionCode = 0
	ExceptionError            ExceptionCode = 1
	ExceptionSizeMismatch     ExceptionCode = 2
	ExceptionUnrecognizedID   ExceptionCode = 3
	ExceptionNameUnrecognized ExceptionCode = 7
	ExceptionEventIDDuplicate ExceptionCode = 9
	ExceptionInvalidDataType  ExceptionCode = 18
	ExceptionDataError        ExceptionCode = 20
	ExceptionDefinitionError  ExceptionCode = 28
	ExceptionDatumID          ExceptionCode = 30
	ExceptionOutOfBounds      ExceptionCode = 31
)

func (c ExceptionCode) String() string {
	if int(c) < len(exceptionNames) {
		return exceptionNames[c]
	}
	return fmt.Sprintf("EXCEPTION_%d", uint32(c))
}

// MarshalText renders the code by name.
func (c ExceptionCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
