package vision

import (
	"errors"
	"fmt"
	"io"
)

// Backend is the detector side of the sidecar protocol. An Open error that
// is a CaptureError is reported as a camera failure, anything else as a
// model failure.
type Backend interface {
	Open() error
	Capture() (Frame, error)
	Detect(seq uint64) ([]Detection, error)
	Close() error
}

// Serve answers sidecar requests read from r until the client sends close
// or r reaches EOF.
func Serve(r io.Reader, w io.Writer, b Backend) error {
	for {
		var req request
		if err := readMessage(r, &req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		resp := handle(req, b)
		if err := writeMessage(w, resp); err != nil {
			return err
		}
		if req.Op == opClose {
			return nil
		}
	}
}

func handle(req request, b Backend) response {
	switch req.Op {
	case opOpen:
		if err := b.Open(); err != nil {
			stage := stageModel
			if IsCaptureError(err) {
				stage = stageCamera
			}
			return response{Error: err.Error(), Stage: stage}
		}
		return response{OK: true}

	case opCapture:
		frame, err := b.Capture()
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Frame: &frame}

	case opDetect:
		detections, err := b.Detect(req.Seq)
		if err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true, Detections: detections}

	case opClose:
		if err := b.Close(); err != nil {
			return response{Error: err.Error()}
		}
		return response{OK: true}

	default:
		return response{Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}
