package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gwillem/rover/pkg/vision"
)

// Scene is the scripted input. Frames are replayed in order and wrap.
type Scene struct {
	Width  int             `yaml:"width"`
	Height int             `yaml:"height"`
	Frames [][]SceneObject `yaml:"frames"`
}

type SceneObject struct {
	ClassID    int     `yaml:"class_id"`
	Class      string  `yaml:"class"`
	Confidence float64 `yaml:"confidence"`
	Box        [4]int  `yaml:"box"` // x1, y1, x2, y2
}

func loadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scene
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &sc, nil
}

type scripted struct {
	opts   Options
	logger *slog.Logger
	scene  *Scene
	seq    uint64
}

func newScripted(opts Options, logger *slog.Logger) *scripted {
	return &scripted{opts: opts, logger: logger}
}

func (s *scripted) Open() error {
	if _, err := os.Stat(s.opts.Model); err != nil {
		return fmt.Errorf("model %s: %w", s.opts.Model, err)
	}
	if s.opts.Camera < 0 {
		return &vision.CaptureError{Err: fmt.Errorf("camera %d not available", s.opts.Camera)}
	}

	s.scene = &Scene{}
	if s.opts.Scene != "" {
		sc, err := loadScene(s.opts.Scene)
		if err != nil {
			return err
		}
		s.scene = sc
	}
	if s.scene.Width <= 0 {
		s.scene.Width = s.opts.ImageSize
	}
	if s.scene.Height <= 0 {
		s.scene.Height = s.scene.Width * 3 / 4
	}

	s.logger.Info("scripted detector ready",
		"model", s.opts.Model,
		"scene", s.opts.Scene,
		"frames", len(s.scene.Frames),
	)
	return nil
}

func (s *scripted) Capture() (vision.Frame, error) {
	if s.scene == nil {
		return vision.Frame{}, errors.New("camera not open")
	}
	s.seq++
	return vision.Frame{Seq: s.seq, Width: s.scene.Width, Height: s.scene.Height}, nil
}

func (s *scripted) Detect(seq uint64) ([]vision.Detection, error) {
	if s.scene == nil {
		return nil, errors.New("model not loaded")
	}
	if seq == 0 || seq != s.seq {
		return nil, fmt.Errorf("frame %d is not the last captured frame", seq)
	}
	if len(s.scene.Frames) == 0 {
		return nil, nil
	}

	objects := s.scene.Frames[(seq-1)%uint64(len(s.scene.Frames))]
	var out []vision.Detection
	for _, o := range objects {
		if o.Confidence < s.opts.Conf {
			continue
		}
		out = append(out, vision.Detection{
			ClassID:    o.ClassID,
			ClassName:  o.Class,
			Confidence: o.Confidence,
			Box:        vision.Box{X1: o.Box[0], Y1: o.Box[1], X2: o.Box[2], Y2: o.Box[3]},
		})
	}
	return out, nil
}

func (s *scripted) Close() error {
	s.logger.Info("camera released")
	s.scene = nil
	return nil
}
