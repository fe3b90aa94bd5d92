package vision

import (
	"errors"
	"fmt"
)

var (
	ErrClosed  = errors.New("perception port is closed")
	ErrTimeout = errors.New("perception request timed out")
)

// ModelLoadError reports that the detector model is unavailable.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// CaptureError reports that a frame could not be read from the camera.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture frame: %v", e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// DetectError reports a failed detection call.
type DetectError struct {
	Seq uint64
	Err error
}

func (e *DetectError) Error() string {
	return fmt.Sprintf("detect frame %d: %v", e.Seq, e.Err)
}

func (e *DetectError) Unwrap() error {
	return e.Err
}

// IsCaptureError reports whether err is or wraps a CaptureError.
func IsCaptureError(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce)
}
