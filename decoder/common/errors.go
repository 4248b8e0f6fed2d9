package common

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every program decoder. Callers match with errors.Is.
var (
	// ErrUnrecognized means no registered program claims the instruction.
	ErrUnrecognized = errors.New("unrecognized instruction")
	// ErrMalformedInput means the wire form could not be normalized.
	ErrMalformedInput = errors.New("malformed input")
	// ErrMalformedPayload means the program was matched but its data is invalid.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnimplemented means the instruction decodes but has no rendered form.
	ErrUnimplemented = errors.New("instruction rendering not implemented")
)

// Payloadf wraps ErrMalformedPayload with a formatted detail.
func Payloadf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// DecodeError annotates decode failures with the program that produced them.
type DecodeError struct {
	Program string
	Err     error
}

func (e *DecodeError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Program, e.Err)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Reason maps an error onto a stable, low-cardinality label.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnrecognized):
		return "unrecognized"
	case errors.Is(err, ErrMalformedInput):
		return "malformed_input"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, ErrUnimplemented):
		return "unimplemented"
	default:
		return "internal"
	}
}
