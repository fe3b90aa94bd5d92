package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gwillem/rover/pkg/link"
	"github.com/gwillem/rover/pkg/pilot"
	"github.com/gwillem/rover/pkg/robot"
	"github.com/gwillem/rover/pkg/vision"
)

type RunCommand struct {
	Port     string `short:"p" long:"port" description:"Serial port of the microcontroller (auto-detected when empty)"`
	Baud     int    `short:"b" long:"baud" description:"Serial baud rate"`
	Model    string `short:"m" long:"model" description:"Path to the detection model"`
	Headless bool   `long:"headless" description:"Run without the operator view"`
	LogLevel string `long:"log-level" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
}

// apply layers command line flags over the file configuration.
func (c *RunCommand) apply(cfg *robot.Config) {
	if c.Port != "" {
		cfg.Serial.Port = c.Port
	}
	if c.Baud > 0 {
		cfg.Serial.BaudRate = c.Baud
	}
	if c.Model != "" {
		cfg.Vision.Model = c.Model
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
	}
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := robot.LoadOrDefault(opts.Config)
	if err != nil {
		return fmt.Errorf("load config %q: %w", opts.Config, err)
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := robot.ParseLevel(cfg.Log.Level)
	logger, closeLog, err := newLogger(cfg.Log, level, c.Headless)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.Serial.Port == "" {
		port, err := link.FindController()
		if err != nil {
			logger.Error("no microcontroller found, pass --port", "error", err)
			return err
		}
		logger.Info("microcontroller detected", "port", port.Name, "board", port.Board())
		cfg.Serial.Port = port.Name
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := pilot.Acquire(ctx, pilot.Config{
		Policy:         cfg.DrivePolicy(),
		ShutdownSettle: cfg.ShutdownSettle,
		Logger:         logger,
		LogLevel:       level,
	}, pilot.Openers{
		Link: func() (pilot.Link, error) {
			l, err := link.Open(cfg.LinkConfig())
			if err != nil {
				return nil, err
			}
			logger.Info("connected to microcontroller", "port", l.Name(), "baud", cfg.Serial.BaudRate)
			return l, nil
		},
		Perception: func(ctx context.Context) (vision.Perception, error) {
			s, err := vision.StartSidecar(ctx, cfg.SidecarConfig(logger))
			if err != nil {
				return nil, err
			}
			logger.Info("detection model loaded", "model", cfg.Vision.Model)
			return s, nil
		},
	})
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}

	if c.Headless {
		logger.Info("drive loop running, press ctrl+c to stop")
		return ctrl.Run(ctx)
	}
	return runWithView(ctx, ctrl)
}

// runWithView runs the controller in the background and the operator view
// in the foreground. Quitting the view cancels the controller, which then
// runs its shutdown sequence before this returns.
func runWithView(ctx context.Context, ctrl *pilot.Controller) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newOperatorModel(ctrl, cancel), tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := ctrl.Run(ctx)
		p.Send(stoppedMsg{err: err})
		done <- err
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("operator view: %w", err)
	}

	cancel()
	return <-done
}

// newLogger returns the process logger. With the operator view on screen,
// records go to the configured file or are discarded; the view shows the
// mirrored lines instead.
func newLogger(lc robot.LogConfig, level slog.Level, headless bool) (*slog.Logger, func(), error) {
	hopts := &slog.HandlerOptions{Level: level}

	var w io.Writer = os.Stderr
	closer := func() {}
	switch {
	case lc.File != "":
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = func() { f.Close() }
	case !headless:
		w = io.Discard
	}

	logger := slog.New(slog.NewTextHandler(w, hopts))
	slog.SetDefault(logger)
	return logger, closer, nil
}
