package main

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/climate-sensor/internal/dht"
	"github.com/sweeney/climate-sensor/internal/gpio"
	"github.com/sweeney/climate-sensor/internal/mqtt"
	"github.com/sweeney/climate-sensor/internal/sensor"
	"github.com/sweeney/climate-sensor/internal/status"
	"github.com/sweeney/climate-sensor/internal/timing"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	info := readNetworkInfo()
	if info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.Type != "" || info.IP != "" || info.SSID != "" {
		t.Errorf("unset fields should be empty, got %+v", info)
	}
}

// --- runLoop tests ---

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func badFrame(r dht.Reading) dht.Frame {
	f := dht.FrameFor(r)
	f[4]++
	return f
}

// newSampler returns a sampler reading a simulated sensor that answers every
// start signal with frame.
func newSampler(t *testing.T, tracker *status.Tracker, frame dht.Frame, interval int) (*sensor.Sampler, *gpio.FakeLine) {
	t.Helper()
	clock := timing.NewFake()
	line, out := gpio.NewFakeLine(clock, dht.Waveform(frame))
	return sensor.New("test", out, clock, tracker, sensor.Config{Interval: interval}), line
}

func newTracker() *status.Tracker {
	return status.NewTracker(start, status.Config{Backend: backendFake, Interval: 1})
}

// runRunLoop drives runLoop for nTicks then sends signal, returning the error.
func runRunLoop(t *testing.T, sampler *sensor.Sampler, pub *mqtt.FakePublisher, tracker *status.Tracker, heartbeat time.Duration, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(sampler, pub, pub, tracker, heartbeat, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func TestOptionsValidate(t *testing.T) {
	for _, tick := range []time.Duration{0, -time.Second} {
		if err := (options{tick: tick}).validate(); err == nil {
			t.Errorf("tick %v: expected error", tick)
		}
	}
	if err := (options{tick: time.Second}).validate(); err != nil {
		t.Errorf("tick 1s: unexpected error: %v", err)
	}
}

func TestRunRejectsNonPositiveTick(t *testing.T) {
	err := run(options{tick: 0, backend: "fake"})
	if err == nil || !strings.Contains(err.Error(), "-tick") {
		t.Fatalf("expected -tick error, got %v", err)
	}
}

func TestRunLoopPublishesReadings(t *testing.T) {
	tracker := newTracker()
	sampler, _ := newSampler(t, tracker, dht.FrameFor(dht.Reading{Temperature: 25, Humidity: 65}), 1)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, time.Second)

	if err := runRunLoop(t, sampler, pub, tracker, 0, clock, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 3 {
		t.Fatalf("expected 3 reading events, got %d", len(pub.Events))
	}
	for i, ev := range pub.Events {
		if ev.Reading.Temperature != 25 || ev.Reading.Humidity != 65 {
			t.Errorf("event %d: got %v", i, ev.Reading)
		}
		if ev.Cause != "" {
			t.Errorf("event %d: unexpected cause %q", i, ev.Cause)
		}
		if want := start.Add(time.Duration(i+1) * time.Second); !ev.Timestamp.Equal(want) {
			t.Errorf("event %d: timestamp %v, want %v", i, ev.Timestamp, want)
		}
	}

	r, _, _ := tracker.Reading()
	if r != (dht.Reading{Temperature: 25, Humidity: 65}) {
		t.Errorf("tracker reading: got %v", r)
	}
}

func TestRunLoopInterval(t *testing.T) {
	tracker := newTracker()
	sampler, line := newSampler(t, tracker, dht.FrameFor(dht.Reading{Temperature: 20, Humidity: 40}), 3)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, time.Second)

	// Ticks 0..6 sample at 0, 3 and 6.
	if err := runRunLoop(t, sampler, pub, tracker, 0, clock, 7, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 3 {
		t.Fatalf("expected 3 reading events, got %d", len(pub.Events))
	}
	wantTimes := []time.Time{start.Add(1 * time.Second), start.Add(4 * time.Second), start.Add(7 * time.Second)}
	for i, ev := range pub.Events {
		if !ev.Timestamp.Equal(wantTimes[i]) {
			t.Errorf("event %d: timestamp %v, want %v", i, ev.Timestamp, wantTimes[i])
		}
	}
	// Each decode switches to input and back.
	if line.Switches != 6 {
		t.Errorf("line switches: got %d, want 6", line.Switches)
	}
}

func TestRunLoopChecksumFailure(t *testing.T) {
	tracker := newTracker()
	sampler, _ := newSampler(t, tracker, badFrame(dht.Reading{Temperature: 25, Humidity: 65}), 1)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, time.Second)

	if err := runRunLoop(t, sampler, pub, tracker, 0, clock, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 2 {
		t.Fatalf("expected 2 reading events, got %d", len(pub.Events))
	}
	ev := pub.Events[0]
	if ev.Reading != dht.Sentinel {
		t.Errorf("expected sentinel reading, got %v", ev.Reading)
	}
	if ev.Cause != "checksum" {
		t.Errorf("cause: got %q, want checksum", ev.Cause)
	}
	if !strings.Contains(ev.Error, "checksum mismatch") {
		t.Errorf("error: got %q, want checksum mismatch", ev.Error)
	}

	var parsed mqtt.Payload
	if err := json.Unmarshal(pub.Payloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Reading.Event != mqtt.EventReadError {
		t.Errorf("event: got %q, want %s", parsed.Reading.Event, mqtt.EventReadError)
	}

	snap := tracker.Snapshot()
	if snap.Counts.Checksum != 2 {
		t.Errorf("checksum count: got %d, want 2", snap.Counts.Checksum)
	}
}

func TestRunLoopReopensLineAfterRestoreFailure(t *testing.T) {
	tracker := newTracker()
	frame := dht.FrameFor(dht.Reading{Temperature: 18, Humidity: 55})

	// Replacement lines must read the sampler's clock.
	clock := timing.NewFake()
	line, out := gpio.NewFakeLine(clock, dht.Waveform(frame))
	line.OutputError = errors.New("reconfigure failed")

	sampler := sensor.New("test", out, clock, tracker, sensor.Config{Interval: 1})
	reopened := 0
	sampler.SetOpener(func() (gpio.Output, error) {
		reopened++
		_, out := gpio.NewFakeLine(clock, dht.Waveform(frame))
		return out, nil
	})

	pub := mqtt.NewFakePublisher()
	if err := runRunLoop(t, sampler, pub, tracker, 0, fakeClock(start, time.Second), 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 3 {
		t.Fatalf("expected 3 reading events, got %d", len(pub.Events))
	}
	if pub.Events[0].Cause != "restore" {
		t.Errorf("first sample cause: got %q, want restore", pub.Events[0].Cause)
	}
	for i := 1; i < 3; i++ {
		if pub.Events[i].Cause != "" || pub.Events[i].Reading != dht.Convert(frame) {
			t.Errorf("event %d: got %+v", i, pub.Events[i])
		}
	}
	if reopened != 1 {
		t.Errorf("reopened: got %d, want 1", reopened)
	}
	if got := tracker.Snapshot().Counts.Restore; got != 1 {
		t.Errorf("restore count: got %d, want 1", got)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.42")
	t.Setenv(envNetworkWifiSSID, "HomeNet")

	tracker := newTracker()
	sampler, _ := newSampler(t, tracker, dht.FrameFor(dht.Reading{Temperature: 22, Humidity: 50}), 1)
	pub := mqtt.NewFakePublisher()

	// Clock calls: t0 (loop start), t1..t4 ticks at 5-minute steps.
	// With a 15-minute heartbeat it fires once, at t3.
	clock := fakeClock(start, 5*time.Minute)

	if err := runRunLoop(t, sampler, pub, tracker, 15*time.Minute, clock, 4, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats []mqtt.SystemEvent
	var shutdowns int
	for _, se := range pub.SystemEvents {
		switch se.Event {
		case "HEARTBEAT":
			heartbeats = append(heartbeats, se)
		case "SHUTDOWN":
			shutdowns++
		}
	}
	if len(heartbeats) != 1 {
		t.Fatalf("expected 1 HEARTBEAT event, got %d", len(heartbeats))
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}

	hb := heartbeats[0]
	if !hb.Timestamp.Equal(start.Add(15 * time.Minute)) {
		t.Errorf("heartbeat timestamp: got %v", hb.Timestamp)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(hb.RawPayload, &sj); err != nil {
		t.Fatalf("invalid heartbeat JSON: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" {
		t.Errorf("event: got %q, want HEARTBEAT", sj.Status.Event)
	}
	if sj.Status.Counts.OK != 3 {
		t.Errorf("ok count at heartbeat: got %d, want 3", sj.Status.Counts.OK)
	}
	if sj.Status.Reading.DisplayTemp != "22°C" {
		t.Errorf("reading: got %q, want 22°C", sj.Status.Reading.DisplayTemp)
	}
	if sj.Status.Network == nil {
		t.Fatal("HEARTBEAT event missing network info")
	}
	if sj.Status.Network.IP != "192.168.1.42" || sj.Status.Network.SSID != "HomeNet" {
		t.Errorf("network: got %+v", sj.Status.Network)
	}
}

func TestRunLoopPublishError(t *testing.T) {
	tracker := newTracker()
	sampler, _ := newSampler(t, tracker, dht.FrameFor(dht.Reading{Temperature: 25, Humidity: 65}), 1)
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker unavailable")

	if err := runRunLoop(t, sampler, pub, tracker, 0, fakeClock(start, time.Second), 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(pub.Events) != 0 {
		t.Errorf("expected 0 recorded events (publish failed), got %d", len(pub.Events))
	}
	// Sampling continues regardless of the broker.
	if got := tracker.Snapshot().Counts.OK; got != 3 {
		t.Errorf("ok count: got %d, want 3", got)
	}
	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN system event despite publish errors, got %+v", pub.SystemEvents)
	}
}

func TestRunLoopShutdown(t *testing.T) {
	tests := []struct {
		signal os.Signal
		reason string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			tracker := newTracker()
			sampler, _ := newSampler(t, tracker, dht.FrameFor(dht.Reading{Temperature: 25, Humidity: 65}), 1)
			pub := mqtt.NewFakePublisher()
			pub.Connected = true

			if err := runRunLoop(t, sampler, pub, tracker, 0, fakeClock(start, time.Second), 1, tt.signal); err != nil {
				t.Fatalf("runLoop returned error: %v", err)
			}

			if len(pub.SystemEvents) != 1 {
				t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
			}
			se := pub.SystemEvents[0]
			if se.Event != "SHUTDOWN" {
				t.Errorf("expected SHUTDOWN, got %q", se.Event)
			}
			if se.Reason != tt.reason {
				t.Errorf("expected reason %s, got %q", tt.reason, se.Reason)
			}
			if !se.Retained {
				t.Error("expected Retained=true for SHUTDOWN")
			}

			var sj status.StatusJSON
			if err := json.Unmarshal(se.RawPayload, &sj); err != nil {
				t.Fatalf("invalid shutdown JSON: %v", err)
			}
			if sj.Status.Reason != tt.reason {
				t.Errorf("payload reason: got %q, want %s", sj.Status.Reason, tt.reason)
			}
			if !sj.Status.MQTT.Connected {
				t.Error("expected MQTT connected in shutdown snapshot")
			}
		})
	}
}

// --- printReading and line source ---

func TestPrintReading(t *testing.T) {
	sampler, _ := newSampler(t, nil, dht.FrameFor(dht.Reading{Temperature: 21, Humidity: 45}), 1)

	var out strings.Builder
	if err := printReading(&out, sampler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "21°C") {
		t.Errorf("output missing temperature: %q", out.String())
	}
	if !strings.Contains(out.String(), "45%") {
		t.Errorf("output missing humidity: %q", out.String())
	}
}

func TestPrintReadingError(t *testing.T) {
	sampler, _ := newSampler(t, nil, badFrame(dht.Reading{Temperature: 21, Humidity: 45}), 1)

	var out strings.Builder
	err := printReading(&out, sampler)
	if !errors.Is(err, dht.ErrChecksum) {
		t.Fatalf("expected checksum error, got %v", err)
	}
	want := "Temperature: ERR, Humidity: ERR\n"
	if out.String() != want {
		t.Errorf("output: got %q, want %q", out.String(), want)
	}
}

func TestLineSourceFake(t *testing.T) {
	src, clock, err := newLineSource(backendFake, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.name != "fake" {
		t.Errorf("name: got %q, want fake", src.name)
	}

	out, err := src.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	frame, _, err := dht.Decode(out, clock)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := dht.Convert(frame); got != fakeReading {
		t.Errorf("reading: got %v, want %v", got, fakeReading)
	}
}

func TestLineSourceReopenInvalidatesOldHandle(t *testing.T) {
	src, _, err := newLineSource(backendFake, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := src.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := src.Open()
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if err := first.Set(gpio.High); !errors.Is(err, gpio.ErrStale) {
		t.Errorf("old handle: got %v, want ErrStale", err)
	}
	if err := second.Set(gpio.High); err != nil {
		t.Errorf("new handle: %v", err)
	}

	if err := src.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if err := second.Set(gpio.High); !errors.Is(err, gpio.ErrStale) {
		t.Errorf("handle after close: got %v, want ErrStale", err)
	}
}

func TestLineSourceNames(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{backendGPIOCDev, "gpiochip0/4"},
		{backendPeriph, "GPIO4"},
	}
	for _, tt := range tests {
		src, _, err := newLineSource(tt.backend, "gpiochip0", 4)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.backend, err)
		}
		if src.name != tt.want {
			t.Errorf("%s: name got %q, want %q", tt.backend, src.name, tt.want)
		}
	}
}

func TestLineSourceUnknownBackend(t *testing.T) {
	if _, _, err := newLineSource("serial", "", 0); err == nil {
		t.Error("expected error for unknown backend")
	}
}
