// Package link provides the line-oriented serial channel to the drive
// microcontroller.
package link

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaudRate    = 9600
	DefaultResetDelay  = 2 * time.Second
	DefaultPollTimeout = 5 * time.Millisecond

	// maxPending bounds the bytes buffered while waiting for a newline.
	maxPending = 1024
)

// Port is the minimal serial port surface the link needs.
// serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Config holds configuration for opening a serial link.
type Config struct {
	Port        string
	BaudRate    int
	ResetDelay  time.Duration // wait after open, the board resets on DTR
	PollTimeout time.Duration // upper bound for a single TryReadLine read
}

// Link is a duplex channel of newline-terminated ASCII lines.
type Link struct {
	mu      sync.Mutex
	port    Port
	name    string
	closed  bool
	pending []byte
	chunk   []byte
}

// Open opens the serial device described by cfg.
func Open(cfg Config) (*Link, error) {
	if cfg.Port == "" {
		return nil, &ConnectionError{Port: "<none>", Err: errors.New("serial port path is required")}
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, &ConnectionError{Port: cfg.Port, Err: err}
	}

	if err := port.SetReadTimeout(cfg.PollTimeout); err != nil {
		port.Close()
		return nil, &ConnectionError{Port: cfg.Port, Err: fmt.Errorf("set read timeout: %w", err)}
	}

	if cfg.ResetDelay > 0 {
		time.Sleep(cfg.ResetDelay)
	}

	l := New(port)
	l.name = cfg.Port
	return l, nil
}

// New wraps an already opened port.
func New(port Port) *Link {
	return &Link{
		port:  port,
		chunk: make([]byte, 256),
	}
}

// Name returns the device path, empty for wrapped ports.
func (l *Link) Name() string {
	return l.name
}

// SendLine writes text followed by a single newline.
func (l *Link) SendLine(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.port == nil {
		return ErrClosed
	}
	if _, err := l.port.Write([]byte(text + "\n")); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// TryReadLine returns the next complete line without blocking longer than
// the poll timeout. ok is false when no complete line is buffered.
func (l *Link) TryReadLine() (line string, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.port == nil {
		return "", false, ErrClosed
	}

	if line, ok := l.popLine(); ok {
		return line, true, nil
	}

	n, err := l.port.Read(l.chunk)
	if n > 0 {
		l.pending = append(l.pending, l.chunk[:n]...)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, &IOError{Op: "read", Err: err}
	}

	if line, ok := l.popLine(); ok {
		return line, true, nil
	}

	// Drop runaway input that never produced a newline.
	if len(l.pending) > maxPending {
		l.pending = l.pending[:0]
	}
	return "", false, nil
}

func (l *Link) popLine() (string, bool) {
	idx := bytes.IndexByte(l.pending, '\n')
	if idx < 0 {
		return "", false
	}
	line := strings.TrimRight(string(l.pending[:idx]), "\r \t")
	l.pending = append(l.pending[:0], l.pending[idx+1:]...)
	return line, true
}

// Close releases the port. It is safe to call more than once and on a link
// whose port was never opened.
func (l *Link) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.pending = nil
	if l.port == nil {
		return nil
	}
	return l.port.Close()
}
