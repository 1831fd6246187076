package dht

import (
	"time"

	"github.com/sweeney/climate-sensor/internal/gpio"
)

// Pulse widths used by Waveform. A zero bit stays under the default
// threshold, a one bit well above it.
const (
	WaveResponse = 30 * time.Microsecond
	WavePreamble = 80 * time.Microsecond
	WaveBitLow   = 50 * time.Microsecond
	WaveZeroHigh = 12 * time.Microsecond
	WaveOneHigh  = 70 * time.Microsecond
)

// Waveform returns the sensor's response to a start signal for frame f, for
// playback through gpio.FakeLine: a short high, the low/high preamble, a
// low/high pair per bit MSB-first, then a trailing low before the line idles
// high.
func Waveform(f Frame) []gpio.Segment {
	w := make([]gpio.Segment, 0, 3+2*FrameBits+1)
	w = append(w,
		gpio.Segment{Level: gpio.High, Duration: WaveResponse},
		gpio.Segment{Level: gpio.Low, Duration: WavePreamble},
		gpio.Segment{Level: gpio.High, Duration: WavePreamble},
	)
	for _, b := range f {
		for bit := 7; bit >= 0; bit-- {
			high := WaveZeroHigh
			if b>>uint(bit)&1 == 1 {
				high = WaveOneHigh
			}
			w = append(w,
				gpio.Segment{Level: gpio.Low, Duration: WaveBitLow},
				gpio.Segment{Level: gpio.High, Duration: high},
			)
		}
	}
	return append(w, gpio.Segment{Level: gpio.Low, Duration: WaveBitLow})
}

// FrameFor returns the checksum-valid frame that Convert maps to r.
// Fractions are dropped; a negative temperature sets the sign bit.
func FrameFor(r Reading) Frame {
	var f Frame
	f[0] = byte(r.Humidity)
	t := r.Temperature
	if t < 0 {
		t = -t
		f[3] = 0x80
	}
	f[2] = byte(t)
	f[4] = f.Checksum()
	return f
}
