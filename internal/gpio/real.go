//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Line drives a single sensor line through the Linux GPIO character device.
type Line struct {
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	offset int
	mode   Mode
	guard  modeGuard
}

// OpenLine requests the given line offset on chipName as an output driven high
// (the sensor's idle level) and returns the output handle.
func OpenLine(chipName string, offset int) (*Line, Output, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, nil, fmt.Errorf("open gpio chip: %w", err)
	}

	l, err := chip.RequestLine(offset, gpiocdev.AsOutput(1))
	if err != nil {
		chip.Close()
		return nil, nil, fmt.Errorf("request pin %d: %w", offset, err)
	}

	line := &Line{chip: chip, line: l, offset: offset}
	return line, &cdevOutput{l: line, gen: line.guard.gen}, nil
}

// Mode reports the current direction of the line.
func (l *Line) Mode() Mode {
	return l.mode
}

// Close releases GPIO resources.
// The line is left as an input with pull-up so the bus idles high while the
// daemon is not running.
func (l *Line) Close() error {
	var errs []error

	l.guard.next()
	if l.line != nil {
		if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.offset, err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", l.offset, err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

type cdevOutput struct {
	l   *Line
	gen uint64
}

func (o *cdevOutput) Set(v Level) error {
	if err := o.l.guard.check(o.gen); err != nil {
		return err
	}
	if err := o.l.line.SetValue(levelValue(v)); err != nil {
		return fmt.Errorf("set pin %d %s: %w", o.l.offset, v, err)
	}
	return nil
}

func (o *cdevOutput) Input(p Pull) (Input, error) {
	if err := o.l.guard.check(o.gen); err != nil {
		return nil, err
	}
	if err := o.l.line.Reconfigure(gpiocdev.AsInput, cdevBias(p)); err != nil {
		return nil, fmt.Errorf("reconfigure pin %d as input: %w", o.l.offset, err)
	}
	o.l.mode = ModeInput
	return &cdevInput{l: o.l, gen: o.l.guard.next()}, nil
}

type cdevInput struct {
	l   *Line
	gen uint64
}

func (i *cdevInput) Get() (Level, error) {
	if err := i.l.guard.check(i.gen); err != nil {
		return Low, err
	}
	v, err := i.l.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", i.l.offset, err)
	}
	return v != 0, nil
}

func (i *cdevInput) Output(v Level) (Output, error) {
	if err := i.l.guard.check(i.gen); err != nil {
		return nil, err
	}
	if err := i.l.line.Reconfigure(gpiocdev.AsOutput(levelValue(v))); err != nil {
		return nil, fmt.Errorf("reconfigure pin %d as output: %w", i.l.offset, err)
	}
	i.l.mode = ModeOutput
	return &cdevOutput{l: i.l, gen: i.l.guard.next()}, nil
}

func cdevBias(p Pull) gpiocdev.LineConfigOption {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

func levelValue(v Level) int {
	if v {
		return 1
	}
	return 0
}
