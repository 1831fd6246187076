// Package gpio provides a single bidirectional signal line with hardware abstraction.
// The line is always in exactly one mode. Switching modes consumes the current
// handle and returns a new one typed to the new capability, so input-only and
// output-only operations cannot be called in the wrong mode.
// The real implementations use the Linux GPIO character device or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// Level is the electrical level of the line.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Pull is the bias applied while the line is sampled as an input.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "pull-up"
	case PullDown:
		return "pull-down"
	default:
		return "none"
	}
}

// ErrStale is returned when a handle is used after the line was switched to
// the other mode through it.
var ErrStale = errors.New("gpio: line handle is stale")

// Output is the line in driven-output mode.
type Output interface {
	// Set drives the line to the given level.
	Set(l Level) error

	// Input switches the line to sampled-input mode with the given bias.
	// The receiver is stale afterwards.
	Input(p Pull) (Input, error)
}

// Input is the line in sampled-input mode.
type Input interface {
	// Get samples the current level of the line.
	Get() (Level, error)

	// Output switches the line back to driven-output mode at level l.
	// The receiver is stale afterwards.
	Output(l Level) (Output, error)
}

// Default line settings (BCM numbering on the Raspberry Pi header).
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 4
)

// Mode reports which capability a line currently has.
type Mode int

const (
	ModeOutput Mode = iota
	ModeInput
)

func (m Mode) String() string {
	if m == ModeInput {
		return "input"
	}
	return "output"
}

// modeGuard invalidates handles on every mode switch.
// Not safe for concurrent use; the owner of the line serialises access.
type modeGuard struct {
	gen uint64
}

func (g *modeGuard) check(gen uint64) error {
	if gen != g.gen {
		return ErrStale
	}
	return nil
}

func (g *modeGuard) next() uint64 {
	g.gen++
	return g.gen
}
