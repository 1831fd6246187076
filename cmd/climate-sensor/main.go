// Command climate-sensor samples a DHT11 temperature/humidity sensor on a
// single GPIO line and publishes readings to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/sweeney/climate-sensor/internal/dht"
	"github.com/sweeney/climate-sensor/internal/gpio"
	"github.com/sweeney/climate-sensor/internal/mqtt"
	"github.com/sweeney/climate-sensor/internal/sensor"
	"github.com/sweeney/climate-sensor/internal/status"
	"github.com/sweeney/climate-sensor/internal/timing"
	"github.com/sweeney/climate-sensor/internal/web"
)

// Backend names accepted by -backend.
const (
	backendGPIOCDev = "gpiocdev"
	backendPeriph   = "periph"
	backendFake     = "fake"
)

// fakeReading is what the fake backend's simulated sensor reports.
var fakeReading = dht.Reading{Temperature: 21, Humidity: 45}

type options struct {
	backend      string
	chip         string
	pin          int
	tick         time.Duration
	interval     int
	threshold    int
	broker       string
	heartbeat    time.Duration
	httpAddr     string
	printReading bool
}

func main() {
	var o options
	flag.StringVar(&o.backend, "backend", backendGPIOCDev, "GPIO backend: gpiocdev, periph or fake")
	flag.StringVar(&o.chip, "chip", gpio.DefaultChip, "GPIO chip for the gpiocdev backend")
	flag.IntVar(&o.pin, "pin", gpio.DefaultPin, "BCM pin number of the sensor data line")
	flag.DurationVar(&o.tick, "tick", time.Second, "Timer tick period")
	flag.IntVar(&o.interval, "interval", 5, "Sample on every Nth tick")
	flag.IntVar(&o.threshold, "threshold", dht.DefaultConfig.Threshold, "Tick count above which a high pulse is a 1 bit")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.BoolVar(&o.printReading, "print-reading", false, "Take one reading, print it and exit")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// validate rejects option values the daemon cannot run with.
func (o options) validate() error {
	if o.tick <= 0 {
		return fmt.Errorf("-tick must be positive, got %v", o.tick)
	}
	return nil
}

func run(o options) error {
	if err := o.validate(); err != nil {
		return err
	}

	src, clock, err := newLineSource(o.backend, o.chip, o.pin)
	if err != nil {
		return err
	}
	line, err := src.Open()
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer src.Close()

	// Zero or negative decoder options fall back to the defaults; report the
	// values actually in use.
	decoderCfg := dht.NewDecoder(dht.Config{Threshold: o.threshold}).Config()
	cfg := sensor.Config{
		Interval: o.interval,
		Decoder:  decoderCfg,
	}

	// Print reading mode
	if o.printReading {
		sampler := sensor.New(src.name, line, clock, nil, cfg)
		return printReading(os.Stdout, sampler)
	}

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(o.broker)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:     o.backend,
		Pin:         src.name,
		TickMs:      o.tick.Milliseconds(),
		Interval:    o.interval,
		Threshold:   decoderCfg.Threshold,
		HeartbeatMs: o.heartbeat.Milliseconds(),
		Broker:      o.broker,
		HTTPPort:    o.httpAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	sampler := sensor.New(src.name, line, clock, tracker, cfg)
	sampler.SetOpener(src.Open)

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	log.Printf("started: sensor=%s tick=%v interval=%d broker=%s heartbeat=%v",
		sampler, o.tick, o.interval, o.broker, o.heartbeat)

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sampler, publisher, publisher, tracker, o.heartbeat, time.Now, ticker.C, sigCh)
}

func runLoop(sampler *sensor.Sampler, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()

			if sampler.Tick(t) {
				r, at, readErr := tracker.Reading()
				log.Printf("reading: %s", r)
				if err := publisher.Publish(mqtt.NewReadingEvent(at, r, readErr)); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
			}

			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v samples=%d failed=%d",
					t.Sub(snap.StartTime).Truncate(time.Second), snap.Counts.Total(), snap.Counts.Failed())

				hbEvent := mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// printReading takes one reading and writes it to w.
func printReading(w io.Writer, sampler *sensor.Sampler) error {
	var e physic.Env
	if err := sampler.Sense(&e); err != nil {
		temp, hum := dht.Sentinel.Display()
		fmt.Fprintf(w, "Temperature: %s, Humidity: %s\n", temp, hum)
		return fmt.Errorf("read sensor: %w", err)
	}
	fmt.Fprintf(w, "Temperature: %s, Humidity: %s\n", e.Temperature, e.Humidity)
	return nil
}

// lineSource opens the sensor line and reopens it after a failed restore.
type lineSource struct {
	name string
	open func() (io.Closer, gpio.Output, error)
	cur  io.Closer
}

func newLineSource(backend, chip string, pin int) (*lineSource, dht.Clock, error) {
	switch backend {
	case backendGPIOCDev:
		return &lineSource{
			name: fmt.Sprintf("%s/%d", chip, pin),
			open: func() (io.Closer, gpio.Output, error) {
				l, out, err := gpio.OpenLine(chip, pin)
				if err != nil {
					return nil, nil, err
				}
				return l, out, nil
			},
		}, timing.Busy{}, nil

	case backendPeriph:
		name := fmt.Sprintf("GPIO%d", pin)
		return &lineSource{
			name: name,
			open: func() (io.Closer, gpio.Output, error) {
				l, out, err := gpio.OpenPeriph(name)
				if err != nil {
					return nil, nil, err
				}
				return l, out, nil
			},
		}, timing.Busy{}, nil

	case backendFake:
		clock := timing.NewFake()
		wave := dht.Waveform(dht.FrameFor(fakeReading))
		return &lineSource{
			name: "fake",
			open: func() (io.Closer, gpio.Output, error) {
				l, out := gpio.NewFakeLine(clock, wave)
				return l, out, nil
			},
		}, clock, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", backend)
}

// Open releases the current line, if any, and acquires it again.
func (s *lineSource) Open() (gpio.Output, error) {
	if s.cur != nil {
		if err := s.cur.Close(); err != nil {
			log.Printf("gpio: close %s: %v", s.name, err)
		}
		s.cur = nil
	}
	c, out, err := s.open()
	if err != nil {
		return nil, err
	}
	s.cur = c
	return out, nil
}

// Close releases the line.
func (s *lineSource) Close() error {
	if s.cur == nil {
		return nil
	}
	err := s.cur.Close()
	s.cur = nil
	return err
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
