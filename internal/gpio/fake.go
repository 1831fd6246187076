package gpio

import (
	"errors"
	"time"
)

// Elapsed reports virtual time. timing.Fake satisfies it.
type Elapsed interface {
	Elapsed() time.Duration
}

// Segment is one stretch of a scripted waveform.
type Segment struct {
	Level    Level
	Duration time.Duration
}

// FakeLine is a test double that records driven levels and plays back a
// scripted waveform while in input mode.
type FakeLine struct {
	// Wave is played back from the moment the line switches to input mode.
	Wave []Segment

	// Idle is the level reported once Wave is exhausted, and before any
	// input switch.
	Idle Level

	// Driven records every level set while in output mode.
	Driven []Level

	// Switches counts mode transitions in either direction.
	Switches int

	// InputError, if set, is returned by Output.Input.
	InputError error

	// OutputError, if set, is returned by Input.Output.
	OutputError error

	// SetError, if set, is returned by Output.Set.
	SetError error

	// GetError, if set, is returned by Input.Get.
	GetError error

	clock   Elapsed
	mode    Mode
	inputAt time.Duration
	guard   modeGuard
}

// NewFakeLine creates a FakeLine in output mode that reads time from clock.
func NewFakeLine(clock Elapsed, wave []Segment) (*FakeLine, Output) {
	f := &FakeLine{Wave: wave, Idle: High, clock: clock}
	return f, &fakeOutput{f: f, gen: f.guard.gen}
}

// Mode reports the current mode of the line.
func (f *FakeLine) Mode() Mode {
	return f.mode
}

// Close invalidates all handles.
func (f *FakeLine) Close() error {
	f.guard.next()
	return nil
}

// levelAt returns the scripted level at offset t from the input switch.
func (f *FakeLine) levelAt(t time.Duration) Level {
	for _, s := range f.Wave {
		if t < s.Duration {
			return s.Level
		}
		t -= s.Duration
	}
	return f.Idle
}

type fakeOutput struct {
	f   *FakeLine
	gen uint64
}

func (o *fakeOutput) Set(v Level) error {
	if err := o.f.guard.check(o.gen); err != nil {
		return err
	}
	if o.f.SetError != nil {
		return o.f.SetError
	}
	o.f.Driven = append(o.f.Driven, v)
	return nil
}

func (o *fakeOutput) Input(p Pull) (Input, error) {
	if err := o.f.guard.check(o.gen); err != nil {
		return nil, err
	}
	if o.f.InputError != nil {
		return nil, o.f.InputError
	}
	if p != PullUp {
		return nil, errors.New("fake: sensor line needs pull-up")
	}
	o.f.mode = ModeInput
	o.f.Switches++
	o.f.inputAt = o.f.clock.Elapsed()
	return &fakeInput{f: o.f, gen: o.f.guard.next()}, nil
}

type fakeInput struct {
	f   *FakeLine
	gen uint64
}

func (i *fakeInput) Get() (Level, error) {
	if err := i.f.guard.check(i.gen); err != nil {
		return Low, err
	}
	if i.f.GetError != nil {
		return Low, i.f.GetError
	}
	return i.f.levelAt(i.f.clock.Elapsed() - i.f.inputAt), nil
}

func (i *fakeInput) Output(v Level) (Output, error) {
	if err := i.f.guard.check(i.gen); err != nil {
		return nil, err
	}
	if i.f.OutputError != nil {
		return nil, i.f.OutputError
	}
	i.f.mode = ModeOutput
	i.f.Switches++
	i.f.Driven = append(i.f.Driven, v)
	return &fakeOutput{f: i.f, gen: i.f.guard.next()}, nil
}
