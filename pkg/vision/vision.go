// Package vision defines the perception port used by the drive loop: a
// camera that supplies frames and a detector that turns a frame into
// detections.
package vision

import (
	"context"
	"fmt"
)

// Box is a bounding box in pixel coordinates.
type Box struct {
	X1 int `msgpack:"x1"`
	Y1 int `msgpack:"y1"`
	X2 int `msgpack:"x2"`
	Y2 int `msgpack:"y2"`
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Detection is a single detected object.
type Detection struct {
	ClassID    int     `msgpack:"class_id"`
	ClassName  string  `msgpack:"class_name"`
	Confidence float64 `msgpack:"confidence"`
	Box        Box     `msgpack:"box"`
}

// Label renders "name 0.92" as drawn in the operator overlay.
func (d Detection) Label() string {
	return fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
}

// Frame is one captured camera image. Data may be empty when the image stays
// inside the capture process.
type Frame struct {
	Seq    uint64 `msgpack:"seq"`
	Width  int    `msgpack:"width"`
	Height int    `msgpack:"height"`
	Data   []byte `msgpack:"data"`
}

// Camera supplies frames.
type Camera interface {
	Capture(ctx context.Context) (Frame, error)
}

// Detector runs object detection on a frame.
type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]Detection, error)
}

// Perception is the combined port the drive loop owns for its lifetime.
type Perception interface {
	Camera
	Detector
	Close() error
}
