package dht

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/climate-sensor/internal/gpio"
)

// Clock is a monotonic busy-wait delay source.
type Clock interface {
	Delay(d time.Duration)
}

// Config holds the protocol timings. The zero value of any field means the
// default.
type Config struct {
	// Idle is how long the line is held high before the start pulse. Far
	// above the sensor's ~1ms minimum so the first read after power-on works.
	Idle time.Duration
	// Start is the length of the host start pulse (line low).
	Start time.Duration
	// Release is how long the line is driven high before switching to input.
	Release time.Duration
	// Tick is the sampling period while waiting for a transition.
	Tick time.Duration
	// Transitions is the number of transitions tracked per frame.
	Transitions int
	// Preamble is the number of leading transitions sent by the sensor
	// before the first data bit.
	Preamble int
	// MaxTicks is the tick count at which a transition wait gives up.
	MaxTicks int
	// Threshold is the tick count above which a high pulse is a 1 bit.
	// Calibrated for an 80 MHz host; re-derive it for other timing hardware.
	Threshold int
}

// DefaultConfig is the calibrated configuration.
var DefaultConfig = Config{
	Idle:        250 * time.Millisecond,
	Start:       20 * time.Millisecond,
	Release:     40 * time.Microsecond,
	Tick:        time.Microsecond,
	Transitions: 85,
	Preamble:    4,
	MaxTicks:    255,
	Threshold:   22,
}

// Decoder captures frames from the sensor line.
type Decoder struct {
	cfg Config
}

// NewDecoder returns a Decoder, filling unset fields of cfg from DefaultConfig.
func NewDecoder(cfg Config) *Decoder {
	d := DefaultConfig
	if cfg.Idle > 0 {
		d.Idle = cfg.Idle
	}
	if cfg.Start > 0 {
		d.Start = cfg.Start
	}
	if cfg.Release > 0 {
		d.Release = cfg.Release
	}
	if cfg.Tick > 0 {
		d.Tick = cfg.Tick
	}
	if cfg.Transitions > 0 {
		d.Transitions = cfg.Transitions
	}
	if cfg.Preamble > 0 {
		d.Preamble = cfg.Preamble
	}
	if cfg.MaxTicks > 0 {
		d.MaxTicks = cfg.MaxTicks
	}
	if cfg.Threshold > 0 {
		d.Threshold = cfg.Threshold
	}
	return &Decoder{cfg: d}
}

// Config returns the effective configuration.
func (d *Decoder) Config() Config {
	return d.cfg
}

var defaultDecoder = NewDecoder(DefaultConfig)

// Decode captures one frame with DefaultConfig. See Decoder.Decode.
func Decode(line gpio.Output, clock Clock) (Frame, gpio.Output, error) {
	return defaultDecoder.Decode(line, clock)
}

// Decode triggers the sensor and captures one frame. line must be in output
// mode, idle high. The line is handed back in output mode, driven high, on
// every path; it is nil only when that restore itself failed, in which case
// the error wraps ErrRestore.
func (d *Decoder) Decode(line gpio.Output, clock Clock) (Frame, gpio.Output, error) {
	if err := d.startSignal(line, clock); err != nil {
		line.Set(gpio.High)
		return Frame{}, line, fmt.Errorf("dht: start signal: %w", err)
	}

	in, err := line.Input(gpio.PullUp)
	if err != nil {
		line.Set(gpio.High)
		return Frame{}, line, fmt.Errorf("dht: switch to input: %w", err)
	}

	c := d.capture(in, clock)

	out, err := in.Output(gpio.High)
	if err != nil {
		return Frame{}, nil, &CaptureError{
			Bits:        c.bits,
			Transitions: c.transitions,
			Frame:       c.frame,
			Err:         fmt.Errorf("%w: %v", ErrRestore, err),
		}
	}

	if err := c.result(); err != nil {
		return Frame{}, out, err
	}
	return c.frame, out, nil
}

func (d *Decoder) startSignal(line gpio.Output, clock Clock) error {
	if err := line.Set(gpio.High); err != nil {
		return err
	}
	clock.Delay(d.cfg.Idle)

	if err := line.Set(gpio.Low); err != nil {
		return err
	}
	clock.Delay(d.cfg.Start)

	if err := line.Set(gpio.High); err != nil {
		return err
	}
	clock.Delay(d.cfg.Release)
	return nil
}

type capture struct {
	frame       Frame
	bits        int
	transitions int
	err         error // why the loop stopped early, if it did
}

// capture records transition durations and packs data bits MSB-first.
// Only even-indexed transitions after the preamble carry a bit; the odd ones
// are the low separators between bits.
func (d *Decoder) capture(in gpio.Input, clock Clock) capture {
	var c capture
	last := gpio.High
	for i := 0; i < d.cfg.Transitions; i++ {
		ticks, level, err := d.waitEdge(in, clock, last)
		if err != nil {
			c.err = err
			return c
		}
		last = level
		c.transitions++

		if i >= d.cfg.Preamble && i%2 == 0 && c.bits < FrameBits {
			idx := c.bits / 8
			c.frame[idx] <<= 1
			if ticks > d.cfg.Threshold {
				c.frame[idx] |= 1
			}
			c.bits++
		}
	}
	return c
}

// waitEdge spins until the line leaves level last and returns the number of
// ticks spent. It returns ErrTimeout once MaxTicks ticks pass with no change.
func (d *Decoder) waitEdge(in gpio.Input, clock Clock, last gpio.Level) (int, gpio.Level, error) {
	ticks := 0
	for {
		level, err := in.Get()
		if err != nil {
			return ticks, last, err
		}
		if level != last {
			return ticks, level, nil
		}
		ticks++
		clock.Delay(d.cfg.Tick)
		if ticks >= d.cfg.MaxTicks {
			return ticks, last, ErrTimeout
		}
	}
}

// result validates the capture. The sensor releases the line high after the
// last bit, so a timeout once all 40 bits are in is the normal end of frame.
func (c capture) result() error {
	fail := func(err error) error {
		return &CaptureError{Bits: c.bits, Transitions: c.transitions, Frame: c.frame, Err: err}
	}

	if c.err != nil && !errors.Is(c.err, ErrTimeout) {
		return fail(fmt.Errorf("dht: read line: %w", c.err))
	}
	if c.bits < FrameBits {
		if c.err != nil {
			return fail(ErrTimeout)
		}
		return fail(ErrIncomplete)
	}
	if !c.frame.Valid() {
		return fail(ErrChecksum)
	}
	return nil
}
