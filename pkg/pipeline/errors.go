package pipeline

import (
	"context"
	"errors"

	"github.com/teslashibe/entropass/pkg/capture"
	"github.com/teslashibe/entropass/pkg/password"
)

// Category is an opaque error class that is safe to expose.
type Category string

const (
	CategoryNone     Category = ""
	CategoryDevice   Category = "device"
	CategoryCapture  Category = "capture"
	CategoryRequest  Category = "request"
	CategoryTimeout  Category = "timeout"
	CategoryInternal Category = "internal"
)

// ErrCancelled is returned when the caller stops a capture early, e.g. by
// closing the preview, before any frame was taken.
var ErrCancelled = errors.New("pipeline: capture cancelled")

// Classify maps err to its Category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, password.ErrInvalidRequest):
		return CategoryRequest
	case errors.Is(err, capture.ErrDeviceOpen):
		return CategoryDevice
	case errors.Is(err, capture.ErrReadTimeout), errors.Is(err, capture.ErrReleased), errors.Is(err, ErrCancelled):
		return CategoryCapture
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return CategoryTimeout
	default:
		return CategoryInternal
	}
}

// PublicMessage returns a user-safe message for err. Request errors keep
// their reason; everything else is generic.
func PublicMessage(err error) string {
	var reqErr *password.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Reason
	}

	switch Classify(err) {
	case CategoryNone:
		return ""
	case CategoryDevice:
		return "Could not access the camera. Check the camera permissions."
	case CategoryCapture:
		return "Could not read a frame from the camera."
	case CategoryTimeout:
		return "Password generation took too long."
	default:
		return "Password generation failed."
	}
}
