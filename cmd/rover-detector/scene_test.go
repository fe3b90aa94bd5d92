package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/rover/pkg/vision"
)

const testScene = `
width: 320
frames:
  - []
  - - class: person
      confidence: 0.92
      box: [10, 20, 110, 220]
    - class: chair
      class_id: 56
      confidence: 0.40
      box: [1, 2, 3, 4]
`

func newTestScripted(t *testing.T, mutate func(*Options)) *scripted {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "best.pt")
	scene := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(model, []byte("weights"), 0644))
	require.NoError(t, os.WriteFile(scene, []byte(testScene), 0644))

	opts := Options{Model: model, ImageSize: 640, Conf: 0.5, Scene: scene}
	if mutate != nil {
		mutate(&opts)
	}
	return newScripted(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScripted_ReplaysSceneAndWraps(t *testing.T) {
	s := newTestScripted(t, nil)
	require.NoError(t, s.Open())

	tests := []struct {
		seq     uint64
		classes []string
	}{
		{1, nil},
		{2, []string{"person"}}, // chair is below --conf
		{3, nil},
		{4, []string{"person"}},
	}

	for _, tt := range tests {
		frame, err := s.Capture()
		require.NoError(t, err)
		assert.Equal(t, tt.seq, frame.Seq)
		assert.Equal(t, 320, frame.Width)
		assert.Equal(t, 240, frame.Height)

		detections, err := s.Detect(frame.Seq)
		require.NoError(t, err)
		var classes []string
		for _, d := range detections {
			classes = append(classes, d.ClassName)
		}
		assert.Equal(t, tt.classes, classes, "frame %d", tt.seq)
	}
}

func TestScripted_DetectBox(t *testing.T) {
	s := newTestScripted(t, nil)
	require.NoError(t, s.Open())
	s.Capture()
	f, _ := s.Capture()

	detections, err := s.Detect(f.Seq)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, vision.Box{X1: 10, Y1: 20, X2: 110, Y2: 220}, detections[0].Box)
	assert.Equal(t, "person 0.92", detections[0].Label())
}

func TestScripted_OpenFailures(t *testing.T) {
	s := newTestScripted(t, func(o *Options) { o.Camera = -1 })
	assert.True(t, vision.IsCaptureError(s.Open()))

	s = newTestScripted(t, func(o *Options) { o.Model = filepath.Join(t.TempDir(), "missing.pt") })
	err := s.Open()
	require.Error(t, err)
	assert.False(t, vision.IsCaptureError(err))

	s = newTestScripted(t, func(o *Options) { o.Scene = filepath.Join(t.TempDir(), "missing.yaml") })
	assert.Error(t, s.Open())
}

func TestScripted_NoScene(t *testing.T) {
	s := newTestScripted(t, func(o *Options) { o.Scene = "" })
	require.NoError(t, s.Open())
	f, err := s.Capture()
	require.NoError(t, err)
	assert.Equal(t, 640, f.Width)

	detections, err := s.Detect(f.Seq)
	require.NoError(t, err)
	assert.Empty(t, detections)

	_, err = s.Detect(f.Seq + 1)
	assert.Error(t, err)
}

func TestScripted_CaptureBeforeOpen(t *testing.T) {
	s := newTestScripted(t, nil)
	_, err := s.Capture()
	assert.Error(t, err)
}
