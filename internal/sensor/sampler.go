// Package sensor schedules decodes of the sensor line and stores the outcome.
// The Sampler owns the line and the delay source. Every access to them
// happens inside one critical section that also pauses the garbage collector
// and pins the goroutine to its thread, so nothing stretches the measured
// pulse widths mid-capture.
package sensor

import (
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/sweeney/climate-sensor/internal/dht"
	"github.com/sweeney/climate-sensor/internal/gpio"
	"github.com/sweeney/climate-sensor/internal/timing"
)

// ErrNoLine is returned when the line was lost and cannot be reopened.
var ErrNoLine = errors.New("sensor: line unavailable")

// Store receives the outcome of every scheduled sample.
// status.Tracker satisfies it.
type Store interface {
	SetReading(r dht.Reading, at time.Time, err error)
}

// Opener reacquires the line in output mode, driven high.
type Opener func() (gpio.Output, error)

// Config controls the sampling cadence and the protocol timings.
type Config struct {
	// Interval decodes on every Nth tick. Values below 1 mean every tick.
	Interval int
	Decoder  dht.Config
}

// Sampler runs decode+convert on a tick cadence.
type Sampler struct {
	mu       sync.Mutex // critical section: line, clock, counter
	line     gpio.Output
	clock    dht.Clock
	decoder  *dht.Decoder
	reopen   Opener
	interval uint64
	counter  uint64

	store Store
	name  string
}

// New creates a Sampler. line must be in output mode, idle high.
func New(name string, line gpio.Output, clock dht.Clock, store Store, cfg Config) *Sampler {
	interval := cfg.Interval
	if interval < 1 {
		interval = 1
	}
	return &Sampler{
		line:     line,
		clock:    clock,
		decoder:  dht.NewDecoder(cfg.Decoder),
		interval: uint64(interval),
		store:    store,
		name:     name,
	}
}

// SetOpener sets how the line is reacquired after a failed restore.
func (s *Sampler) SetOpener(o Opener) {
	s.mu.Lock()
	s.reopen = o
	s.mu.Unlock()
}

// Tick counts one timer tick and samples when the tick is due
// (counter % Interval == 0, so the very first tick samples).
// A failed decode stores dht.Sentinel together with the error.
// It reports whether a sample was taken.
func (s *Sampler) Tick(now time.Time) bool {
	s.mu.Lock()
	due := s.counter%s.interval == 0
	s.counter++
	s.mu.Unlock()

	if !due {
		return false
	}

	r, err := s.Read()
	if err != nil {
		log.Printf("sensor: %s: decode failed (%s): %v", s.name, dht.Cause(err), err)
	}
	s.store.SetReading(r, now, err)
	return true
}

// Read decodes one frame now and converts it. On failure it returns
// dht.Sentinel and the error.
func (s *Sampler) Read() (dht.Reading, error) {
	frame, err := s.decode()
	if err != nil {
		return dht.Sentinel, err
	}
	return dht.Convert(frame), nil
}

func (s *Sampler) decode() (dht.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.line == nil {
		if s.reopen == nil {
			return dht.Frame{}, ErrNoLine
		}
		line, err := s.reopen()
		if err != nil {
			return dht.Frame{}, fmt.Errorf("%w: reopen: %v", ErrNoLine, err)
		}
		log.Printf("sensor: %s: line reopened", s.name)
		s.line = line
	}

	defer critical()()
	frame, line, err := s.decoder.Decode(s.line, s.clock)
	s.line = line
	return frame, err
}

// critical pauses the GC and pins the goroutine until the returned func runs.
func critical() func() {
	unpin := timing.Pin()
	gcPercent := debug.SetGCPercent(-1)
	return func() {
		debug.SetGCPercent(gcPercent)
		unpin()
	}
}

// Sense decodes one frame and stores it in e, periph.io style.
// It does not touch the tick counter or the Store.
func (s *Sampler) Sense(e *physic.Env) error {
	r, err := s.Read()
	if err != nil {
		return err
	}
	*e = r.Env()
	return nil
}

// Precision reports the sensor resolution: 1°C and 1%RH.
func (s *Sampler) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin
	e.Humidity = physic.PercentRH
	e.Pressure = 0
}

func (s *Sampler) String() string {
	return "DHT11{" + s.name + "}"
}

// Halt is a no-op; a decode always runs to completion.
func (s *Sampler) Halt() error {
	return nil
}
