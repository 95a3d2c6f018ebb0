package schema

import "errors"

var (
	// ErrUnknownSchema indicates a definition id that was never defined.
	ErrUnknownSchema = errors.New("unknown schema")
	// ErrInvalidType indicates a data type that cannot be registered.
	ErrInvalidType = errors.New("invalid data type")
	// ErrInvalidField indicates a malformed field descriptor.
	ErrInvalidField = errors.New("invalid field")
	// ErrDuplicateTag indicates a datum tag already used in the same schema.
	ErrDuplicateTag = errors.New("duplicate datum tag")
)
