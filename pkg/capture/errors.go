package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors for capture failures.
var (
	// ErrDeviceOpen is returned when no candidate device could be opened.
	ErrDeviceOpen = errors.New("capture: no camera could be opened")

	// ErrReadTimeout is returned when no valid frame arrived before the deadline.
	ErrReadTimeout = errors.New("capture: timed out waiting for a frame")

	// ErrReleased is returned when reading from a released handle.
	ErrReleased = errors.New("capture: handle released")
)

// OpenError records the last index/attempt pair tried before giving up.
// The driver error is kept for logs only; Error() never includes it.
type OpenError struct {
	Index   int
	Attempt int
	Err     error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("%v (last attempt: index=%d attempt=%d)", ErrDeviceOpen, e.Index, e.Attempt)
}

// Unwrap makes errors.Is(err, ErrDeviceOpen) hold.
func (e *OpenError) Unwrap() error {
	return ErrDeviceOpen
}

// Cause returns the low-level driver error of the last attempt, if any.
func (e *OpenError) Cause() error {
	return e.Err
}
