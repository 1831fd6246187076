package gpio

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphLine drives a single sensor line through periph.io. It works on any
// host periph.io supports, including the memory-mapped Raspberry Pi driver
// which samples faster than the character device.
type PeriphLine struct {
	pin   pgpio.PinIO
	mode  Mode
	guard modeGuard
}

// OpenPeriph initialises the periph.io host drivers, looks the pin up by name
// (e.g. "GPIO4") and drives it high.
func OpenPeriph(name string) (*PeriphLine, Output, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, nil, fmt.Errorf("periph: pin %q not found", name)
	}
	return NewPeriphLine(pin)
}

// NewPeriphLine wraps an already resolved periph.io pin and drives it high.
func NewPeriphLine(pin pgpio.PinIO) (*PeriphLine, Output, error) {
	if err := pin.Out(pgpio.High); err != nil {
		return nil, nil, fmt.Errorf("pin %s out high: %w", pin, err)
	}
	l := &PeriphLine{pin: pin}
	return l, &periphOutput{l: l, gen: l.guard.gen}, nil
}

// Mode reports the current direction of the line.
func (l *PeriphLine) Mode() Mode {
	return l.mode
}

// Close leaves the pin as an input with pull-up and halts it.
func (l *PeriphLine) Close() error {
	l.guard.next()
	if err := l.pin.In(pgpio.PullUp, pgpio.NoEdge); err != nil {
		return fmt.Errorf("pin %s in: %w", l.pin, err)
	}
	return l.pin.Halt()
}

type periphOutput struct {
	l   *PeriphLine
	gen uint64
}

func (o *periphOutput) Set(v Level) error {
	if err := o.l.guard.check(o.gen); err != nil {
		return err
	}
	if err := o.l.pin.Out(periphLevel(v)); err != nil {
		return fmt.Errorf("pin %s out %s: %w", o.l.pin, v, err)
	}
	return nil
}

func (o *periphOutput) Input(p Pull) (Input, error) {
	if err := o.l.guard.check(o.gen); err != nil {
		return nil, err
	}
	if err := o.l.pin.In(periphPull(p), pgpio.NoEdge); err != nil {
		return nil, fmt.Errorf("pin %s in: %w", o.l.pin, err)
	}
	o.l.mode = ModeInput
	return &periphInput{l: o.l, gen: o.l.guard.next()}, nil
}

type periphInput struct {
	l   *PeriphLine
	gen uint64
}

func (i *periphInput) Get() (Level, error) {
	if err := i.l.guard.check(i.gen); err != nil {
		return Low, err
	}
	return Level(i.l.pin.Read()), nil
}

func (i *periphInput) Output(v Level) (Output, error) {
	if err := i.l.guard.check(i.gen); err != nil {
		return nil, err
	}
	if err := i.l.pin.Out(periphLevel(v)); err != nil {
		return nil, fmt.Errorf("pin %s out %s: %w", i.l.pin, v, err)
	}
	i.l.mode = ModeOutput
	return &periphOutput{l: i.l, gen: i.l.guard.next()}, nil
}

func periphLevel(v Level) pgpio.Level {
	return pgpio.Level(v)
}

func periphPull(p Pull) pgpio.Pull {
	switch p {
	case PullUp:
		return pgpio.PullUp
	case PullDown:
		return pgpio.PullDown
	default:
		return pgpio.Float
	}
}
