package pilot

import (
	"context"
	"errors"

	"github.com/gwillem/rover/pkg/drive"
	"github.com/gwillem/rover/pkg/vision"
)

// Openers acquire the controller's resources in order.
type Openers struct {
	Link       func() (Link, error)
	Perception func(ctx context.Context) (vision.Perception, error)
}

// Acquire opens the link, then the perception port, and returns a controller
// ready to Run. If the perception port cannot be acquired the link still
// receives a STOP and is closed before the error is returned.
func Acquire(ctx context.Context, cfg Config, open Openers) (*Controller, error) {
	l, err := open.Link()
	if err != nil {
		return nil, err
	}

	p, err := open.Perception(ctx)
	if err != nil {
		logger := cfg.Logger
		if logger != nil {
			logger.Error("perception unavailable, releasing serial link", "error", err)
		}
		drive.NewDispatcher(l, logger).Dispatch(drive.Stop)
		if cerr := l.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	return New(cfg, l, p), nil
}
