package recv

import (
	"errors"
	"fmt"

	"simlink/pkg/schema"
)

var (
	// ErrTruncated is returned when a buffer is shorter than its header claims.
	ErrTruncated = errors.New("truncated buffer")
	// ErrSizeMismatch is returned when the declared item count disagrees with the schema.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrUnknownKind is returned alongside an Unknown event for unrecognized discriminants.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrUnknownTag is returned when a tagged item cannot be delimited.
	ErrUnknownTag = errors.New("unknown datum tag")
	// ErrUnknownSchema is returned when a payload references an undefined schema.
	ErrUnknownSchema = schema.ErrUnknownSchema
)

// DecodeError attributes a decode failure to the message that caused it.
type DecodeError struct {
	Err      error
	Kind     Kind
	Size     int
	SchemaID schema.ID
	Detail   string

	hasSchema bool
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s message (%d bytes)", e.Kind, e.Size)
	if e.hasSchema {
		msg += fmt.Sprintf(" schema %d", e.SchemaID)
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// HasSchema reports whether the failing message referenced a schema.
func (e *DecodeError) HasSchema() bool {
	return e.hasSchema
}

// Reason returns a short label for the error class, used for metrics.
func (e *DecodeError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrTruncated):
		return "truncated"
	case errors.Is(e.Err, ErrSizeMismatch):
		return "size_mismatch"
	case errors.Is(e.Err, ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(e.Err, ErrUnknownTag):
		return "unknown_tag"
	case errors.Is(e.Err, ErrUnknownSchema):
		return "unknown_schema"
	default:
		return "other"
	}
}
