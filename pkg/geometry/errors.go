package geometry

import (
	"errors"
	"fmt"
)

// Error kinds returned by the formula core. Use errors.Is to test for them.
var (
	ErrInvalidMeasurement   = errors.New("invalid measurement")
	ErrInvalidCameraProfile = errors.New("invalid camera profile")
)

// FieldError names the input that failed validation.
type FieldError struct {
	Kind   error
	Field  string
	Value  float64
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s %s (got %g)", e.Kind, e.Field, e.Reason, e.Value)
}

func (e *FieldError) Unwrap() error {
	return e.Kind
}

func invalidMeasurement(field string, value float64, reason string) error {
	return &FieldError{Kind: ErrInvalidMeasurement, Field: field, Value: value, Reason: reason}
}

func invalidProfile(field string, value float64, reason string) error {
	return &FieldError{Kind: ErrInvalidCameraProfile, Field: field, Value: value, Reason: reason}
}
