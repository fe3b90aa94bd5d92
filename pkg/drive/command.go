// Package drive turns sensor state into drive commands and sends them to the
// microcontroller.
package drive

import (
	"fmt"
	"strings"
)

// Command is one of the discrete drive commands understood by the
// microcontroller.
type Command int

const (
	Forward Command = iota + 1
	Backward
	TurnLeft
	TurnRight
	Stop
)

// String returns the wire token for the command.
func (c Command) String() string {
	switch c {
	case Forward:
		return "FORWARD"
	case Backward:
		return "BACKWARD"
	case TurnLeft:
		return "TURN_LEFT"
	case TurnRight:
		return "TURN_RIGHT"
	case Stop:
		return "STOP"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return c >= Forward && c <= Stop
}

// AllCommands returns every command in wire order.
func AllCommands() []Command {
	return []Command{Forward, Backward, TurnLeft, TurnRight, Stop}
}

// ParseCommand converts a wire token back into a Command.
func ParseCommand(s string) (Command, error) {
	token := strings.ToUpper(strings.TrimSpace(s))
	for _, c := range AllCommands() {
		if c.String() == token {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown drive command %q", s)
}
