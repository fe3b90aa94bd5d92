package link

import (
	"errors"
	"fmt"
)

// Sentinel errors for link failures.
var (
	ErrClosed       = errors.New("link is closed")
	ErrNoController = errors.New("no microcontroller found")
)

// ConnectionError is returned when the serial device cannot be opened.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IOError is a transient send or receive failure on an open link.
type IOError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
