package vision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// detectorHelperEnv turns the test binary into a detector process that
// answers the open request with a camera failure and exits at once.
const detectorHelperEnv = "ROVER_TEST_DETECTOR"

func TestMain(m *testing.M) {
	if os.Getenv(detectorHelperEnv) == "1" {
		var req request
		if err := readMessage(os.Stdin, &req); err != nil {
			os.Exit(2)
		}
		writeMessage(os.Stdout, response{Stage: stageCamera, Error: "camera 0 not found"})
		os.Stderr.WriteString("[ERROR] camera 0 not found\n")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fakeDetector serves the sidecar protocol over pipes.
type fakeDetector struct {
	handle func(req request) (response, bool) // false: never reply
	reqs   chan request
}

func startFake(t *testing.T, timeout time.Duration, handle func(req request) (response, bool)) (*Sidecar, *fakeDetector) {
	t.Helper()

	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	fd := &fakeDetector{handle: handle, reqs: make(chan request, 16)}
	go func() {
		defer serverW.Close()
		for {
			var req request
			if err := readMessage(serverR, &req); err != nil {
				return
			}
			fd.reqs <- req
			resp, reply := fd.handle(req)
			if !reply {
				continue
			}
			if err := writeMessage(serverW, resp); err != nil {
				return
			}
		}
	}()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := newSidecar(clientW, clientR, timeout, logger)
	t.Cleanup(func() {
		s.Close()
		serverR.Close()
	})
	return s, fd
}

func TestSidecar_CaptureAndDetect(t *testing.T) {
	want := []Detection{
		{ClassID: 0, ClassName: "person", Confidence: 0.91, Box: Box{X1: 10, Y1: 20, X2: 110, Y2: 220}},
		{ClassID: 56, ClassName: "chair", Confidence: 0.4, Box: Box{X1: 1, Y1: 2, X2: 3, Y2: 4}},
	}
	s, fd := startFake(t, time.Second, func(req request) (response, bool) {
		switch req.Op {
		case opCapture:
			return response{OK: true, Frame: &Frame{Seq: 7, Width: 640, Height: 480}}, true
		case opDetect:
			if req.Seq != 7 {
				return response{Error: "unknown frame"}, true
			}
			return response{OK: true, Detections: want}, true
		default:
			return response{OK: true}, true
		}
	})

	ctx := context.Background()
	frame, err := s.Capture(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), frame.Seq)
	assert.Equal(t, 640, frame.Width)

	got, err := s.Detect(ctx, frame)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, opCapture, (<-fd.reqs).Op)
	req := <-fd.reqs
	assert.Equal(t, opDetect, req.Op)
	assert.Equal(t, uint64(7), req.Seq)
}

func TestSidecar_CaptureFailure(t *testing.T) {
	s, _ := startFake(t, time.Second, func(req request) (response, bool) {
		return response{Error: "camera unplugged"}, true
	})

	_, err := s.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, IsCaptureError(err))
	assert.Contains(t, err.Error(), "camera unplugged")
}

func TestSidecar_DetectFailure(t *testing.T) {
	s, _ := startFake(t, time.Second, func(req request) (response, bool) {
		return response{Error: "cuda out of memory"}, true
	})

	_, err := s.Detect(context.Background(), Frame{Seq: 3})
	var de *DetectError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, uint64(3), de.Seq)
}

func TestSidecar_TimeoutBreaksStream(t *testing.T) {
	s, _ := startFake(t, 50*time.Millisecond, func(req request) (response, bool) {
		return response{}, false
	})

	_, err := s.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, IsCaptureError(err))
	assert.ErrorIs(t, err, ErrTimeout)

	// later requests fail fast
	start := time.Now()
	_, err = s.Capture(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestSidecar_ContextCancel(t *testing.T) {
	s, _ := startFake(t, time.Second, func(req request) (response, bool) {
		return response{}, false
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Detect(ctx, Frame{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSidecar_OpenStages(t *testing.T) {
	tests := []struct {
		name    string
		resp    response
		capture bool
		model   bool
	}{
		{"ready", response{OK: true}, false, false},
		{"camera", response{Stage: stageCamera, Error: "no camera 0"}, true, false},
		{"model", response{Stage: stageModel, Error: "bad weights"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := startFake(t, time.Second, func(req request) (response, bool) {
				return tt.resp, true
			})

			err := s.open(context.Background(), "best.pt")
			if !tt.capture && !tt.model {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, tt.capture, IsCaptureError(err))
			var me *ModelLoadError
			assert.Equal(t, tt.model, errors.As(err, &me))
		})
	}
}

func TestSidecar_CloseIdempotent(t *testing.T) {
	s, fd := startFake(t, time.Second, func(req request) (response, bool) {
		return response{OK: true}, true
	})

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, opClose, (<-fd.reqs).Op)

	_, err := s.Capture(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStartSidecar_MissingModel(t *testing.T) {
	_, err := StartSidecar(context.Background(), SidecarConfig{
		Command:   "true",
		ModelPath: filepath.Join(t.TempDir(), "missing.pt"),
	})
	var me *ModelLoadError
	require.ErrorAs(t, err, &me)

	_, err = StartSidecar(context.Background(), SidecarConfig{Command: "true"})
	require.ErrorAs(t, err, &me)
}

func TestStartSidecar_DetectorExitsAfterReply(t *testing.T) {
	t.Setenv(detectorHelperEnv, "1")
	model := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(model, []byte("weights"), 0644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for i := 0; i < 25; i++ {
		_, err := StartSidecar(context.Background(), SidecarConfig{
			Command:        os.Args[0],
			ModelPath:      model,
			RequestTimeout: 5 * time.Second,
			Logger:         logger,
		})
		require.Error(t, err)
		require.True(t, IsCaptureError(err), "attempt %d: %v", i, err)
		assert.Contains(t, err.Error(), "camera 0 not found")
	}
}

func TestStartSidecar_StartFailureClosesPipes(t *testing.T) {
	fds, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no /proc/self/fd on this platform")
	}
	before := len(fds)

	model := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(model, []byte("weights"), 0644))
	for i := 0; i < 50; i++ {
		_, err := StartSidecar(context.Background(), SidecarConfig{
			Command:   filepath.Join(t.TempDir(), "no-such-detector"),
			ModelPath: model,
		})
		var me *ModelLoadError
		require.ErrorAs(t, err, &me)
	}

	fds, err = os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(fds), before+2)
}

func TestDetection_Label(t *testing.T) {
	d := Detection{ClassName: "dog", Confidence: 0.876}
	assert.Equal(t, "dog 0.88", d.Label())
	assert.Equal(t, 30, Box{X1: 10, X2: 40}.Width())
}
