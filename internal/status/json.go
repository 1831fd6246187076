package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Reading       ReadingJSON  `json:"reading"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"sample_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ReadingJSON is the JSON representation of the last known reading.
// Temperature and Humidity are omitted while the reading is not valid.
type ReadingJSON struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Valid       bool     `json:"valid"`
	DisplayTemp string   `json:"display_temperature"`
	DisplayHum  string   `json:"display_humidity"`
	Timestamp   string   `json:"timestamp,omitempty"`
	Error       string   `json:"error,omitempty"`
	ErrorCause  string   `json:"error_cause,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of sample counts.
type CountsJSON struct {
	OK         int `json:"ok"`
	Timeout    int `json:"timeout"`
	Incomplete int `json:"incomplete"`
	Checksum   int `json:"checksum"`
	Restore    int `json:"restore"`
	Line       int `json:"line"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	Pin         string `json:"pin"`
	TickMs      int64  `json:"tick_ms"`
	Interval    int    `json:"interval"`
	Threshold   int    `json:"threshold"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
}

// BuildReading returns the JSON view of the snapshot's reading.
func BuildReading(snap Snapshot) ReadingJSON {
	r := snap.Reading
	temp, hum := r.Display()
	rj := ReadingJSON{
		Valid:       r.Valid(),
		DisplayTemp: temp,
		DisplayHum:  hum,
		Error:       snap.LastError,
		ErrorCause:  snap.LastCause,
	}
	if rj.Valid {
		t, h := r.Temperature, r.Humidity
		rj.Temperature = &t
		rj.Humidity = &h
	}
	if snap.Sampled() {
		rj.Timestamp = snap.ReadingAt.UTC().Format(time.RFC3339)
	}
	return rj
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Reading:       BuildReading(snap),
		Ready:         snap.Sampled(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			OK:         snap.Counts.OK,
			Timeout:    snap.Counts.Timeout,
			Incomplete: snap.Counts.Incomplete,
			Checksum:   snap.Counts.Checksum,
			Restore:    snap.Counts.Restore,
			Line:       snap.Counts.Line,
		},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			Pin:         snap.Config.Pin,
			TickMs:      snap.Config.TickMs,
			Interval:    snap.Config.Interval,
			Threshold:   snap.Config.Threshold,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
