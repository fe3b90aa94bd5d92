package pilot

import "fmt"

// Outcome tells the run loop whether to keep going.
type Outcome int

const (
	Continue Outcome = iota
	Halt
)

// Reason explains why a cycle halted the loop.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonCancelled
	ReasonCaptureFailed
	ReasonDetectFailed
	ReasonPanic
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonCancelled:
		return "cancelled"
	case ReasonCaptureFailed:
		return "capture failed"
	case ReasonDetectFailed:
		return "detection failed"
	case ReasonPanic:
		return "panic"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// CycleResult is returned by every cycle instead of unwinding with a panic.
type CycleResult struct {
	Outcome  Outcome
	Reason   Reason
	Err      error
	Snapshot Snapshot
}

func halt(reason Reason, err error) CycleResult {
	return CycleResult{Outcome: Halt, Reason: reason, Err: err}
}
