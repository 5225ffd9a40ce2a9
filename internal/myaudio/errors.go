package myaudio

import (
	"fmt"

	"github.com/arribada/audiocontroller/internal/errors"
)

// Error sentinel values for the capture and window layer
var (
	// ErrDevice matches every CaptureError
	ErrDevice = errors.NewStd("audio device error")

	// ErrDeviceStopped is the reason carried when the device stops delivering frames
	ErrDeviceStopped = errors.NewStd("device stopped")

	// ErrSliceLength is returned when a slice does not match the window's slice length
	ErrSliceLength = errors.NewStd("slice length mismatch")

	// ErrDebugArtifact matches failures writing window dumps; they are never fatal
	ErrDebugArtifact = errors.NewStd("debug artifact error")
)

// CaptureError is a device-level failure with the operation that hit it
type CaptureError struct {
	Op     string
	Device string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s on %q: %v", e.Op, e.Device, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Is matches ErrDevice
func (e *CaptureError) Is(target error) bool { return target == ErrDevice }

// ErrorCategory implements errors.CategorizedError
func (e *CaptureError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryAudioSource
}

// newCaptureError wraps a device failure with the device id and rate as
// error context. rate may be 0 when the device has not reported one yet.
func newCaptureError(op, device string, rate uint32, err error) error {
	return errors.New(&CaptureError{Op: op, Device: device, Err: err}).
		Component("myaudio").
		Category(errors.CategoryAudioSource).
		DeviceContext(device, rate).
		Context("operation", op).
		Build()
}
