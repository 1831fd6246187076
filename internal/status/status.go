// Package status provides a thread-safe status tracker for the climate-sensor daemon.
// It holds the last known reading and is read by the HTTP handlers, the
// heartbeat and the shutdown path while the sampler writes to it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/climate-sensor/internal/dht"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	Pin         string
	TickMs      int64
	Interval    int
	Threshold   int
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
}

// Counts tracks sample outcomes since startup.
type Counts struct {
	OK         int
	Timeout    int
	Incomplete int
	Checksum   int
	Restore    int
	Line       int
}

// Total returns the number of samples taken.
func (c Counts) Total() int {
	return c.OK + c.Failed()
}

// Failed returns the number of failed samples.
func (c Counts) Failed() int {
	return c.Timeout + c.Incomplete + c.Checksum + c.Restore + c.Line
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Reading       dht.Reading
	ReadingAt     time.Time // zero until the first sample
	LastError     string    // error of the most recent sample, "" on success
	LastCause     string
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Sampled reports whether at least one sample has been taken.
func (s Snapshot) Sampled() bool {
	return !s.ReadingAt.IsZero()
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	lastErr error
}

// NewTracker creates a Tracker holding the neutral reading.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Reading:   dht.Neutral,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetReading stores the outcome of one sample. The reading, its timestamp and
// its error are replaced together, so readers never see a mixed pair.
func (t *Tracker) SetReading(r dht.Reading, at time.Time, err error) {
	cause := dht.Cause(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	t.mu.Lock()
	t.snap.Reading = r
	t.snap.ReadingAt = at
	t.snap.LastError = msg
	t.snap.LastCause = cause
	t.lastErr = err
	switch cause {
	case "":
		t.snap.Counts.OK++
	case "timeout":
		t.snap.Counts.Timeout++
	case "incomplete":
		t.snap.Counts.Incomplete++
	case "checksum":
		t.snap.Counts.Checksum++
	case "restore":
		t.snap.Counts.Restore++
	default:
		t.snap.Counts.Line++
	}
	t.mu.Unlock()
}

// Reading returns the last known reading, when it was taken and the error
// of that sample, all from the same SetReading call.
func (t *Tracker) Reading() (dht.Reading, time.Time, error) {
	t.mu.RLock()
	r, at, err := t.snap.Reading, t.snap.ReadingAt, t.lastErr
	t.mu.RUnlock()
	return r, at, err
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
