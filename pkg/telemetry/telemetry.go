// Package telemetry parses the distance telemetry sent by the drive
// microcontroller.
//
// Lines have the form "DIST:<value>" where value is a decimal number of
// centimeters or the token "INF" when nothing is in range. Any other line is
// ignored.
package telemetry

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

const (
	Prefix         = "DIST:"
	InfiniteMarker = "INF"
)

// ErrMalformed reports a DIST line whose payload is not a distance.
var ErrMalformed = errors.New("malformed distance telemetry")

// Kind classifies a distance reading.
type Kind int

const (
	Missing  Kind = iota // no reading this cycle
	Infinite             // no obstacle in range
	Finite
)

func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Infinite:
		return "infinite"
	case Finite:
		return "finite"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Reading is one cycle's distance measurement.
type Reading struct {
	Kind Kind
	CM   float64 // valid only when Kind == Finite
}

// NoReading and NoObstacle are the two sentinel readings.
var (
	NoReading  = Reading{Kind: Missing}
	NoObstacle = Reading{Kind: Infinite}
)

// Distance returns a finite reading of cm centimeters.
func Distance(cm float64) Reading {
	return Reading{Kind: Finite, CM: cm}
}

// IsFinite reports whether the reading carries a measured distance.
func (r Reading) IsFinite() bool {
	return r.Kind == Finite
}

// Effective maps a missing reading to "no obstacle".
func (r Reading) Effective() Reading {
	if r.Kind == Missing {
		return NoObstacle
	}
	return r
}

// Centimeters returns the distance, +Inf for anything that is not finite.
func (r Reading) Centimeters() float64 {
	if r.Kind == Finite {
		return r.CM
	}
	return math.Inf(1)
}

func (r Reading) String() string {
	switch r.Kind {
	case Finite:
		return strconv.FormatFloat(r.CM, 'f', -1, 64) + " cm"
	case Infinite:
		return InfiniteMarker
	default:
		return "none"
	}
}

// Parse converts a single telemetry line. Lines without the DIST prefix
// return NoReading and a nil error.
func Parse(line string) (Reading, error) {
	line = strings.TrimSpace(line)
	payload, ok := strings.CutPrefix(line, Prefix)
	if !ok {
		return NoReading, nil
	}

	payload = strings.TrimSpace(payload)
	if payload == InfiniteMarker {
		return NoObstacle, nil
	}

	cm, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return NoReading, fmt.Errorf("%w: %q", ErrMalformed, payload)
	}
	if math.IsNaN(cm) || math.IsInf(cm, 0) || cm < 0 {
		return NoReading, fmt.Errorf("%w: %q out of range", ErrMalformed, payload)
	}
	return Distance(cm), nil
}

// LineSource yields telemetry lines without blocking. *link.Link satisfies it.
type LineSource interface {
	TryReadLine() (string, bool, error)
}

// Reader pulls at most one telemetry line per call.
type Reader struct {
	src    LineSource
	logger *slog.Logger
}

// NewReader creates a reader over src. A nil logger uses slog.Default.
func NewReader(src LineSource, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{src: src, logger: logger}
}

// Read attempts one non-blocking read. Failures degrade to NoReading.
func (r *Reader) Read() Reading {
	line, ok, err := r.src.TryReadLine()
	if err != nil {
		r.logger.Error("failed to receive distance", "error", err)
		return NoReading
	}
	if !ok {
		return NoReading
	}

	reading, err := Parse(line)
	if err != nil {
		r.logger.Warn("discarding telemetry", "line", line, "error", err)
		return NoReading
	}
	return reading
}
