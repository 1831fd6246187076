package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// BufferSize is how many messages are kept while the broker is unreachable.
const BufferSize = 256

const publishTimeout = 5 * time.Second

// client is the subset of paho.Client used by RealPublisher.
type client interface {
	IsConnected() bool
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client client

	mu        sync.Mutex
	buf       *outbox
	connected int // number of successful connects
	now       func() time.Time
}

// NewRealPublisher creates a publisher for the given broker. It connects in
// the background and keeps retrying, so a missing broker never blocks startup.
func NewRealPublisher(broker string) *RealPublisher {
	p := &RealPublisher{
		buf: newOutbox(BufferSize),
		now: time.Now,
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("climate-sensor").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c
	c.Connect()
	return p
}

// onConnect replays buffered messages and announces reconnections.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	p.connected++
	reconnect := p.connected > 1
	pending := p.buf.drain()
	p.mu.Unlock()

	log.Printf("mqtt: connected (replaying %d buffered messages)", len(pending))

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		pending = append(pending, bufferedMsg{topic: TopicSystem, payload: payload, qos: 1})
	}
	for _, msg := range pending {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: replay to %s failed: %v", msg.topic, err)
			p.mu.Lock()
			p.buf.push(msg)
			p.mu.Unlock()
		}
	}
}

// Publish sends a reading event to the MQTT broker.
func (p *RealPublisher) Publish(event ReadingEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), retained so new subscribers see the last reading
	return p.publish(bufferedMsg{topic: Topic, payload: payload, qos: 0, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	if err := p.send(msg); err != nil {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the client is connected to the broker.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
