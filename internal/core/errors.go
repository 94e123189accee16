package core

import "errors"

var (
	// ErrNotFound is returned when a mutation targets an id with no
	// matching record (the gateway reported zero rows affected).
	ErrNotFound = errors.New("record not found")

	// ErrUnauthenticated is returned when no user identity can be resolved.
	ErrUnauthenticated = errors.New("user is not authenticated")
)

// ValidationError reports the first missing or invalid required field.
// It is raised before any durable call is attempted.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing or invalid field: " + e.Field
}

// GatewayError wraps a failure from the persistence gateway. The message
// is opaque to the core; callers surface it as-is.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
