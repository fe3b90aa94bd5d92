package vision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	openErr    error
	seq        uint64
	detections []Detection
	closed     bool
}

func (b *stubBackend) Open() error { return b.openErr }

func (b *stubBackend) Capture() (Frame, error) {
	b.seq++
	return Frame{Seq: b.seq, Width: 320, Height: 240}, nil
}

func (b *stubBackend) Detect(seq uint64) ([]Detection, error) {
	if seq != b.seq {
		return nil, errors.New("stale frame")
	}
	return b.detections, nil
}

func (b *stubBackend) Close() error {
	b.closed = true
	return nil
}

// serveOverPipes connects a Sidecar client to Serve running b.
func serveOverPipes(t *testing.T, b Backend) (*Sidecar, <-chan error) {
	t.Helper()
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		err := Serve(serverR, serverW, b)
		serverW.Close()
		done <- err
	}()

	s := newSidecar(clientW, clientR, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		s.Close()
		serverR.Close()
	})
	return s, done
}

func TestServe_RoundTrip(t *testing.T) {
	b := &stubBackend{detections: []Detection{{ClassName: "bottle", Confidence: 0.9, Box: Box{X1: 1, Y1: 2, X2: 3, Y2: 4}}}}
	s, done := serveOverPipes(t, b)
	ctx := context.Background()

	require.NoError(t, s.open(ctx, "best.pt"))

	frame, err := s.Capture(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), frame.Seq)
	assert.Equal(t, 320, frame.Width)

	got, err := s.Detect(ctx, frame)
	require.NoError(t, err)
	assert.Equal(t, b.detections, got)

	_, err = s.Detect(ctx, Frame{Seq: 7})
	var de *DetectError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "stale frame")

	require.NoError(t, s.Close())
	require.NoError(t, <-done)
	assert.True(t, b.closed)
}

func TestServe_OpenStages(t *testing.T) {
	t.Run("camera", func(t *testing.T) {
		s, _ := serveOverPipes(t, &stubBackend{openErr: &CaptureError{Err: errors.New("camera 2 busy")}})
		err := s.open(context.Background(), "best.pt")
		assert.True(t, IsCaptureError(err))
		assert.Contains(t, err.Error(), "camera 2 busy")
	})
	t.Run("model", func(t *testing.T) {
		s, _ := serveOverPipes(t, &stubBackend{openErr: errors.New("bad weights")})
		err := s.open(context.Background(), "best.pt")
		var me *ModelLoadError
		require.ErrorAs(t, err, &me)
		assert.Contains(t, err.Error(), "bad weights")
	})
}

func TestServe_EOFEndsCleanly(t *testing.T) {
	r, w := io.Pipe()
	w.Close()
	assert.NoError(t, Serve(r, io.Discard, &stubBackend{}))
}

func TestHandle_UnknownOp(t *testing.T) {
	resp := handle(request{Op: "reboot"}, &stubBackend{})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "reboot")
}
