package mqtt

import "sync"

// FakePublisher records what would have been sent to the broker.
// Recorded fields may be read once publishing has stopped.
type FakePublisher struct {
	mu sync.Mutex

	Events         []ReadingEvent
	Payloads       [][]byte
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// Topics lists the topic of every accepted message in publish order.
	Topics []string

	// Errors returned instead of recording.
	PublishError       error
	PublishSystemError error

	Closed    bool
	Connected bool // reported by IsConnected
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the reading event and its payload.
func (f *FakePublisher) Publish(event ReadingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	f.Topics = append(f.Topics, Topic)
	return nil
}

// PublishSystem records the system event and its payload.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	f.Topics = append(f.Topics, TopicSystem)
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset returns the publisher to its initial state.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events, f.Payloads = nil, nil
	f.SystemEvents, f.SystemPayloads = nil, nil
	f.Topics = nil
	f.PublishError, f.PublishSystemError = nil, nil
	f.Closed, f.Connected = false, false
}
