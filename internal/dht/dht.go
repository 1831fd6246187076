// Package dht decodes the single-wire protocol of DHT11-family
// humidity/temperature sensors and converts the raw frame into a Reading.
// This package has NO hardware dependencies: the line and the delay source
// are passed in, so every decode path can be driven from a scripted waveform.
package dht

import (
	"errors"
	"fmt"
)

// FrameBits is the number of data bits in one frame.
const FrameBits = 40

// Frame is the 5-byte payload sent by the sensor:
// humidity integer, humidity fraction, temperature integer,
// temperature fraction with sign flag in bit 7, checksum.
type Frame [5]byte

// Checksum returns the truncated 8-bit sum of the four data bytes.
func (f Frame) Checksum() byte {
	return f[0] + f[1] + f[2] + f[3]
}

// Valid reports whether the checksum byte matches the data bytes.
func (f Frame) Valid() bool {
	return f[4] == f.Checksum()
}

func (f Frame) String() string {
	return fmt.Sprintf("[%d %d %d %d %d]", f[0], f[1], f[2], f[3], f[4])
}

var (
	// ErrTimeout means a transition wait hit the tick cap before 40 bits were in.
	ErrTimeout = errors.New("dht: timed out waiting for transition")

	// ErrIncomplete means the transition budget ran out before 40 bits were in.
	ErrIncomplete = errors.New("dht: incomplete capture")

	// ErrChecksum means 40 bits were captured but the checksum did not match.
	ErrChecksum = errors.New("dht: checksum mismatch")

	// ErrRestore means the line could not be switched back to output mode.
	ErrRestore = errors.New("dht: restore line to output")
)

// CaptureError describes a failed decode.
type CaptureError struct {
	Bits        int   // data bits packed before the capture ended
	Transitions int   // transitions observed
	Frame       Frame // partially filled on timeout
	Err         error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%v (bits=%d transitions=%d frame=%s)", e.Err, e.Bits, e.Transitions, e.Frame)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Cause classifies err for counters and logs. It returns "" for nil.
func Cause(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrIncomplete):
		return "incomplete"
	case errors.Is(err, ErrChecksum):
		return "checksum"
	case errors.Is(err, ErrRestore):
		return "restore"
	default:
		return "line"
	}
}
