package powerup

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange matches every *RangeError.
	ErrInvalidRange = errors.New("value out of range")
	// ErrConnectInProgress is returned when Connect is called while another
	// Connect on the same session has not finished.
	ErrConnectInProgress = errors.New("connect already in progress")
	// ErrEmptyValue is returned when a characteristic read yields no bytes.
	ErrEmptyValue = errors.New("characteristic returned an empty value")
	// ErrNilCallback is returned by EnableBatteryNotifications for a nil callback.
	ErrNilCallback = errors.New("callback must not be nil")
)

// RangeError reports a command argument outside the range the controller accepts.
type RangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s must be between %d and %d, got %d", e.Field, e.Min, e.Max, e.Value)
}

// Is makes errors.Is(err, ErrInvalidRange) true.
func (e *RangeError) Is(target error) bool {
	return target == ErrInvalidRange
}

// TransportError wraps a failure reported by the BLE stack during Op.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func checkRange(field string, value, lo, hi int) error {
	if value < lo || value > hi {
		return &RangeError{Field: field, Value: value, Min: lo, Max: hi}
	}
	return nil
}
