// Package pilot runs the sense-perceive-decide-act loop and owns the
// shutdown sequence of the rover.
package pilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/telemetry"
	"github.com/gwillem/rover/pkg/vision"
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateUninitialized State = iota
	StateRunning
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Link is the serial channel the controller drives. *link.Link satisfies it.
type Link interface {
	telemetry.LineSource
	drive.LineSender
	Close() error
}

// Config holds configuration for the controller.
type Config struct {
	Policy         drive.Policy
	ShutdownSettle time.Duration // wait after the final STOP before closing the link
	Logger         *slog.Logger
	// LogLevel is the minimum level mirrored to Logs().
	LogLevel slog.Leveler
}

// Snapshot is the observable result of one completed cycle.
type Snapshot struct {
	Cycle      uint64
	Distance   telemetry.Reading
	Detections []vision.Detection
	Decision   drive.Decision
	Frame      vision.Frame
	Timestamp  time.Time
}

// Stats summarizes a run.
type Stats struct {
	Cycles   uint64
	Dispatch drive.DispatchStats
	Last     drive.Decision
}

// Controller owns the link and perception handles for the lifetime of a run.
type Controller struct {
	link       Link
	perception vision.Perception
	reader     *telemetry.Reader
	dispatcher *drive.Dispatcher
	policy     drive.Policy
	settle     time.Duration
	logger     *slog.Logger
	runID      string

	mu    sync.RWMutex
	state State
	stats Stats

	stopOnce sync.Once
	stopErr  error

	snapCh chan Snapshot
	logCh  chan string
}

// New creates a controller over already acquired resources.
func New(cfg Config, l Link, p vision.Perception) *Controller {
	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}
	level := cfg.LogLevel
	if level == nil {
		level = slog.LevelInfo
	}

	logCh := make(chan string, 32)
	runID := uuid.NewString()
	logger := slog.New(newLogTap(base.Handler(), logCh, level)).With("run_id", runID)

	return &Controller{
		link:       l,
		perception: p,
		reader:     telemetry.NewReader(l, logger),
		dispatcher: drive.NewDispatcher(l, logger),
		policy:     cfg.Policy,
		settle:     cfg.ShutdownSettle,
		logger:     logger,
		runID:      runID,
		snapCh:     make(chan Snapshot, 1),
		logCh:      logCh,
	}
}

// RunID identifies this controller in logs.
func (c *Controller) RunID() string {
	return c.runID
}

// Policy returns the decision policy the controller drives with.
func (c *Controller) Policy() drive.Policy {
	return c.policy
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Stats returns the counters accumulated so far.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	st := c.stats
	c.mu.RUnlock()
	st.Dispatch = c.dispatcher.Stats()
	return st
}

// Snapshots returns a channel that receives the latest cycle result.
func (c *Controller) Snapshots() <-chan Snapshot {
	return c.snapCh
}

// Logs returns a channel that receives log lines for display.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run executes cycles until ctx is cancelled or a cycle fails, then runs the
// shutdown sequence. A nil error means the run was stopped on request.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("controller is %s", st)
	}
	c.state = StateRunning
	c.mu.Unlock()

	defer c.Shutdown()

	c.logger.Info("drive loop started",
		"near_obstacle_cm", c.policy.NearObstacleCM,
		"confidence_threshold", c.policy.ConfidenceThreshold,
	)

	for {
		res := c.cycle(ctx)
		switch res.Outcome {
		case Continue:
			c.publish(res.Snapshot)
		case Halt:
			if res.Err != nil {
				c.logger.Error("drive loop halted", "reason", res.Reason, "error", res.Err)
			} else {
				c.logger.Info("drive loop stopping", "reason", res.Reason)
			}
			return res.Err
		}
	}
}

// cycle runs one sense-perceive-decide-act iteration.
func (c *Controller) cycle(ctx context.Context) (res CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			res = halt(ReasonPanic, fmt.Errorf("cycle panic: %v", r))
		}
	}()

	if ctx.Err() != nil {
		return halt(ReasonCancelled, nil)
	}

	distance := c.reader.Read()
	c.logReading(distance)

	frame, err := c.perception.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return halt(ReasonCancelled, nil)
		}
		return halt(ReasonCaptureFailed, err)
	}

	detections, err := c.perception.Detect(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return halt(ReasonCancelled, nil)
		}
		return halt(ReasonDetectFailed, err)
	}

	decision := drive.Decide(distance, detections, c.policy)
	c.logDecision(decision, detections)

	if err := c.dispatcher.Execute(ctx, decision.Plan); err != nil {
		return halt(ReasonCancelled, nil)
	}

	c.mu.Lock()
	c.stats.Cycles++
	c.stats.Last = decision
	n := c.stats.Cycles
	c.mu.Unlock()

	return CycleResult{
		Outcome: Continue,
		Snapshot: Snapshot{
			Cycle:      n,
			Distance:   distance,
			Detections: detections,
			Decision:   decision,
			Frame:      frame,
			Timestamp:  time.Now(),
		},
	}
}

func (c *Controller) logReading(r telemetry.Reading) {
	switch r.Kind {
	case telemetry.Infinite:
		c.logger.Debug("no obstacles nearby")
	case telemetry.Finite:
		c.logger.Debug("distance received", "distance", r)
	default:
		c.logger.Debug("no valid distance received, assuming clear path")
	}
}

func (c *Controller) logDecision(d drive.Decision, detections []vision.Detection) {
	switch d.Rule {
	case drive.RuleAvoid:
		c.logger.Info("obstacle close, backing up and turning")
	case drive.RuleObjectAhead:
		best, _ := drive.HighestConfidence(detections)
		c.logger.Info("object detected, stopping", "object", best.Label())
	case drive.RuleUnknown:
		c.logger.Warn("no distance reading, stopping")
	default:
		c.logger.Debug("path clear, moving forward")
	}
}

// publish replaces any unread snapshot with s.
func (c *Controller) publish(s Snapshot) {
	select {
	case c.snapCh <- s:
	default:
		select {
		case <-c.snapCh:
		default:
		}
		select {
		case c.snapCh <- s:
		default:
		}
	}
}

// Shutdown sends a final STOP, waits for it to drain, then releases the
// link and the perception port. Only the first call has any effect; later
// calls return the first call's error.
func (c *Controller) Shutdown() error {
	c.stopOnce.Do(func() {
		c.setState(StateStopping)
		c.logger.Info("sending stop command before shutdown")

		var errs []error
		guard("stop", &errs, func() error {
			if !c.dispatcher.Dispatch(drive.Stop) {
				return errors.New("final STOP not sent")
			}
			return nil
		})

		if c.settle > 0 {
			time.Sleep(c.settle)
		}

		guard("close link", &errs, c.link.Close)
		guard("close perception", &errs, c.perception.Close)

		c.stopErr = errors.Join(errs...)
		c.setState(StateClosed)

		st := c.Stats()
		c.logger.Info("run summary",
			"cycles", st.Cycles,
			"sent", st.Dispatch.Sent,
			"failed", st.Dispatch.Failed,
			"last_rule", st.Last.Rule,
		)
		if c.stopErr != nil {
			c.logger.Warn("shutdown finished with errors", "error", c.stopErr)
		} else {
			c.logger.Info("serial link closed and camera released")
		}
	})
	return c.stopErr
}

// guard runs one release step, converting a panic into an error so the
// remaining steps still run.
func guard(op string, errs *[]error, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			*errs = append(*errs, fmt.Errorf("%s: panic: %v", op, r))
		}
	}()
	if err := fn(); err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", op, err))
	}
}
