package drive

import (
	"fmt"
	"time"

	"github.com/gwillem/rover/pkg/telemetry"
	"github.com/gwillem/rover/pkg/vision"
)

const (
	DefaultNearObstacleCM      = 20.0
	DefaultConfidenceThreshold = 0.85
	DefaultAvoidSettle         = 500 * time.Millisecond
	DefaultStopSettle          = 500 * time.Millisecond
	DefaultForwardPause        = 100 * time.Millisecond
)

// Policy holds the fixed thresholds and timings of the decision rules.
type Policy struct {
	NearObstacleCM      float64
	ConfidenceThreshold float64
	AvoidSettle         time.Duration // after BACKWARD and after TURN_LEFT
	StopSettle          time.Duration
	ForwardPause        time.Duration
	// FailClosed stops the robot when no distance arrived this cycle instead
	// of assuming the path is clear.
	FailClosed bool
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		NearObstacleCM:      DefaultNearObstacleCM,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		AvoidSettle:         DefaultAvoidSettle,
		StopSettle:          DefaultStopSettle,
		ForwardPause:        DefaultForwardPause,
	}
}

// Rule identifies which decision rule fired.
type Rule int

const (
	RuleAvoid Rule = iota + 1
	RuleObjectAhead
	RuleClear
	RuleUnknown
)

func (r Rule) String() string {
	switch r {
	case RuleAvoid:
		return "AVOID"
	case RuleObjectAhead:
		return "OBJECT_AHEAD"
	case RuleClear:
		return "CLEAR"
	case RuleUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// Step is a command followed by a hold time before the next step.
type Step struct {
	Command Command
	Hold    time.Duration
}

// Decision is the outcome of one cycle's policy evaluation.
type Decision struct {
	Rule Rule
	Plan []Step
}

// Commands returns the plan's commands in order.
func (d Decision) Commands() []Command {
	cmds := make([]Command, len(d.Plan))
	for i, s := range d.Plan {
		cmds[i] = s.Command
	}
	return cmds
}

// Decide selects the drive plan for one cycle. Rules are checked in order
// and the first match wins: near obstacle, confident detection, clear path.
func Decide(distance telemetry.Reading, detections []vision.Detection, p Policy) Decision {
	if distance.Kind == telemetry.Missing && p.FailClosed {
		return Decision{Rule: RuleUnknown, Plan: []Step{{Stop, p.StopSettle}}}
	}

	d := distance.Effective()
	if d.IsFinite() && d.CM < p.NearObstacleCM {
		return Decision{Rule: RuleAvoid, Plan: []Step{
			{Backward, p.AvoidSettle},
			{TurnLeft, p.AvoidSettle},
		}}
	}

	if AnyConfident(detections, p.ConfidenceThreshold) {
		return Decision{Rule: RuleObjectAhead, Plan: []Step{{Stop, p.StopSettle}}}
	}

	return Decision{Rule: RuleClear, Plan: []Step{{Forward, p.ForwardPause}}}
}

// AnyConfident reports whether any detection reaches the threshold.
func AnyConfident(detections []vision.Detection, threshold float64) bool {
	for _, det := range detections {
		if det.Confidence >= threshold {
			return true
		}
	}
	return false
}

// HighestConfidence returns the most confident detection, for display.
func HighestConfidence(detections []vision.Detection) (vision.Detection, bool) {
	if len(detections) == 0 {
		return vision.Detection{}, false
	}
	best := detections[0]
	for _, det := range detections[1:] {
		if det.Confidence > best.Confidence {
			best = det
		}
	}
	return best, true
}
