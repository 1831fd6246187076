// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/climate-sensor/internal/dht"
)

// Topic is the MQTT topic for sensor readings.
const Topic = "climate/dht/sensor/reading"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "climate/dht/sensor/system"

// Reading event names.
const (
	EventReading   = "READING"
	EventReadError = "READ_ERROR"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a reading event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event ReadingEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ReadingEvent is the outcome of one scheduled sample.
type ReadingEvent struct {
	Timestamp time.Time
	Reading   dht.Reading
	Cause     string // dht.Cause of the failure, "" on success
	Error     string
}

// NewReadingEvent builds a ReadingEvent from a sample outcome.
func NewReadingEvent(at time.Time, r dht.Reading, err error) ReadingEvent {
	ev := ReadingEvent{Timestamp: at, Reading: r, Cause: dht.Cause(err)}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Reading ReadingPayload `json:"reading"`
}

// ReadingPayload contains the reading details. Values are omitted when the
// sample failed.
type ReadingPayload struct {
	Timestamp   string   `json:"timestamp"`
	Event       string   `json:"event"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Cause       string   `json:"cause,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a reading event.
func FormatPayload(event ReadingEvent) ([]byte, error) {
	rp := ReadingPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     EventReading,
		Cause:     event.Cause,
		Error:     event.Error,
	}
	if event.Cause != "" || !event.Reading.Valid() {
		rp.Event = EventReadError
	} else {
		t, h := event.Reading.Temperature, event.Reading.Humidity
		rp.Temperature = &t
		rp.Humidity = &h
	}
	return json.Marshal(Payload{Reading: rp})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
