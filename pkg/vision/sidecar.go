package vision

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	DefaultImageSize       = 640
	DefaultConfidenceFloor = 0.85
	DefaultRequestTimeout  = 5 * time.Second

	// maxMessage bounds a single framed message from the sidecar.
	maxMessage = 64 << 20

	stopTimeout = 2 * time.Second
)

// Sidecar request operations.
const (
	opOpen    = "open"
	opCapture = "capture"
	opDetect  = "detect"
	opClose   = "close"
)

// Failure stages reported by the sidecar in response to opOpen.
const (
	stageModel  = "model"
	stageCamera = "camera"
)

type request struct {
	Op  string `msgpack:"op"`
	Seq uint64 `msgpack:"seq,omitempty"`
}

type response struct {
	OK         bool        `msgpack:"ok"`
	Error      string      `msgpack:"error,omitempty"`
	Stage      string      `msgpack:"stage,omitempty"`
	Frame      *Frame      `msgpack:"frame,omitempty"`
	Detections []Detection `msgpack:"detections,omitempty"`
}

// SidecarConfig configures the external detector process.
type SidecarConfig struct {
	Command         string   // executable that hosts the camera and model
	Args            []string // extra arguments passed before the standard flags
	ModelPath       string
	Camera          int
	ImageSize       int
	ConfidenceFloor float64
	RequestTimeout  time.Duration
	Logger          *slog.Logger
}

// Sidecar is a Perception backed by a detector subprocess. Requests and
// responses are msgpack maps framed by a 4-byte big-endian length on the
// process stdin and stdout.
type Sidecar struct {
	cmd     *exec.Cmd
	w       io.WriteCloser
	r       io.Reader
	timeout time.Duration
	logger  *slog.Logger
	pipes   []io.Closer // read ends, closed after the process exits
	relayed chan struct{}

	mu     sync.Mutex
	broken error
	closed bool
	exited chan struct{}
}

// StartSidecar validates the model path, spawns the detector process and
// waits until it reports the model and camera ready.
func StartSidecar(ctx context.Context, cfg SidecarConfig) (*Sidecar, error) {
	if cfg.ModelPath == "" {
		return nil, &ModelLoadError{Path: "<none>", Err: errors.New("model path is required")}
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, &ModelLoadError{Path: cfg.ModelPath, Err: err}
	}
	if cfg.Command == "" {
		return nil, &ModelLoadError{Path: cfg.ModelPath, Err: errors.New("detector command is required")}
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = DefaultImageSize
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = DefaultConfidenceFloor
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	args := append([]string{}, cfg.Args...)
	args = append(args,
		"--model", cfg.ModelPath,
		"--imgsz", strconv.Itoa(cfg.ImageSize),
		"--conf", strconv.FormatFloat(cfg.ConfidenceFloor, 'f', 2, 64),
		"--camera", strconv.Itoa(cfg.Camera),
	)

	// Not CommandContext: the process must outlive a cancelled run context
	// so the shutdown sequence can close it in order.
	cmd := exec.Command(cfg.Command, args...)

	// stdout and stderr are plain pipes rather than StdoutPipe/StderrPipe:
	// Wait would close those read ends while a reply is still unread.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	closeAll := func() {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	stdin, err := cmd.StdinPipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		closeAll()
		return nil, &ModelLoadError{Path: cfg.ModelPath, Err: fmt.Errorf("start detector: %w", err)}
	}
	// The child holds its own copies; readers see EOF once it exits.
	stdoutW.Close()
	stderrW.Close()

	cfg.Logger.Info("detector process spawned",
		"command", cfg.Command,
		"pid", cmd.Process.Pid,
		"model", cfg.ModelPath,
		"imgsz", cfg.ImageSize,
		"conf", cfg.ConfidenceFloor,
	)

	s := newSidecar(stdin, stdoutR, cfg.RequestTimeout, cfg.Logger)
	s.cmd = cmd
	s.pipes = []io.Closer{stdoutR, stderrR}

	s.relayed = make(chan struct{})
	go func() {
		relayStderr(stderrR, cfg.Logger)
		close(s.relayed)
	}()
	go func() {
		err := cmd.Wait()
		cfg.Logger.Debug("detector process exited", "error", err)
		close(s.exited)
	}()

	if err := s.open(ctx, cfg.ModelPath); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newSidecar(w io.WriteCloser, r io.Reader, timeout time.Duration, logger *slog.Logger) *Sidecar {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sidecar{
		w:       w,
		r:       r,
		timeout: timeout,
		logger:  logger,
		exited:  make(chan struct{}),
	}
}

func (s *Sidecar) open(ctx context.Context, modelPath string) error {
	var resp response
	if err := s.roundTrip(ctx, request{Op: opOpen}, &resp); err != nil {
		return &ModelLoadError{Path: modelPath, Err: err}
	}
	if resp.OK {
		return nil
	}
	msg := errors.New(resp.Error)
	if resp.Stage == stageCamera {
		return &CaptureError{Err: fmt.Errorf("open camera: %w", msg)}
	}
	return &ModelLoadError{Path: modelPath, Err: msg}
}

// Capture asks the sidecar for the next camera frame.
func (s *Sidecar) Capture(ctx context.Context) (Frame, error) {
	var resp response
	if err := s.roundTrip(ctx, request{Op: opCapture}, &resp); err != nil {
		return Frame{}, &CaptureError{Err: err}
	}
	if !resp.OK {
		return Frame{}, &CaptureError{Err: errors.New(resp.Error)}
	}
	if resp.Frame == nil {
		return Frame{}, &CaptureError{Err: errors.New("empty frame")}
	}
	return *resp.Frame, nil
}

// Detect runs the model on the frame the sidecar captured last.
func (s *Sidecar) Detect(ctx context.Context, frame Frame) ([]Detection, error) {
	var resp response
	if err := s.roundTrip(ctx, request{Op: opDetect, Seq: frame.Seq}, &resp); err != nil {
		return nil, &DetectError{Seq: frame.Seq, Err: err}
	}
	if !resp.OK {
		return nil, &DetectError{Seq: frame.Seq, Err: errors.New(resp.Error)}
	}
	return resp.Detections, nil
}

// Close asks the sidecar to release the camera, then stops the process.
// Safe to call more than once.
func (s *Sidecar) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	broken := s.broken
	s.mu.Unlock()

	if broken == nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		var resp response
		if err := s.roundTrip(ctx, request{Op: opClose}, &resp); err != nil {
			s.logger.Warn("detector did not acknowledge close", "error", err)
		}
		cancel()
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.w.Close()

	if s.cmd == nil {
		return err
	}

	select {
	case <-s.exited:
	case <-time.After(stopTimeout):
		s.logger.Warn("detector stop timeout, killing process", "pid", s.cmd.Process.Pid)
		if kerr := s.cmd.Process.Kill(); kerr != nil {
			s.logger.Error("failed to kill detector process", "error", kerr)
		}
		<-s.exited
	}
	// Let trailing stderr lines through before the read end goes away.
	select {
	case <-s.relayed:
	case <-time.After(stopTimeout):
	}
	for _, p := range s.pipes {
		p.Close()
	}
	return err
}

// roundTrip sends one request and decodes the reply within the request
// timeout. A timed out exchange leaves the stream unusable.
func (s *Sidecar) roundTrip(ctx context.Context, req request, resp *response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.broken != nil {
		return fmt.Errorf("detector stream unusable: %w", s.broken)
	}

	done := make(chan error, 1)
	go func() {
		if err := writeMessage(s.w, req); err != nil {
			done <- err
			return
		}
		done <- readMessage(s.r, resp)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			s.broken = err
		}
		return err
	case <-timer.C:
		s.broken = ErrTimeout
		return ErrTimeout
	case <-ctx.Done():
		s.broken = ctx.Err()
		return ctx.Err()
	}
}

func writeMessage(w io.Writer, v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(payload)))
	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func readMessage(r io.Reader, v any) error {
	prefix := make([]byte, 4)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix)
	if n > maxMessage {
		return fmt.Errorf("message of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// relayStderr forwards detector log lines, mapping their level markers.
func relayStderr(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]") || strings.Contains(line, "[CRITICAL]") ||
			strings.Contains(line, "level=ERROR"):
			logger.Error("detector", "log", line)
		case strings.Contains(line, "[WARNING]") || strings.Contains(line, "[WARN]") ||
			strings.Contains(line, "level=WARN"):
			logger.Warn("detector", "log", line)
		default:
			logger.Debug("detector", "log", line)
		}
	}
}
