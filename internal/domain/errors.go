package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is by callers that only care about the
// category of a rule failure.
var (
	ErrValidation  = errors.New("validation error")
	ErrUnknownEnum = errors.New("unknown enum value")
	// ErrNotFound is wrapped by storage errors for missing leads, clients and
	// enrollments.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a malformed rule: a field required for its type is
// missing, a numeric value does not parse, or an action lacks its value.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is reports ErrValidation so callers can use errors.Is.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UnknownEnumError reports a string-typed enum value outside its recognized set.
type UnknownEnumError struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

func (e *UnknownEnumError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}

// Is reports ErrUnknownEnum so callers can use errors.Is.
func (e *UnknownEnumError) Is(target error) bool { return target == ErrUnknownEnum }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func unknown(kind, value string) error {
	return &UnknownEnumError{Kind: kind, Value: value}
}
