package mqtt

import "log"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable.
// When full it evicts the oldest reading first, so lifecycle events on the
// system topic survive a long outage. Not safe for concurrent use.
type outbox struct {
	msgs    []bufferedMsg
	limit   int
	dropped int // evicted since the last drain
}

func newOutbox(limit int) *outbox {
	if limit < 1 {
		limit = 1
	}
	return &outbox{limit: limit}
}

func (o *outbox) push(msg bufferedMsg) {
	if len(o.msgs) == o.limit {
		o.evict()
	}
	o.msgs = append(o.msgs, msg)
}

func (o *outbox) evict() {
	victim := 0
	for i, m := range o.msgs {
		if m.topic == Topic {
			victim = i
			break
		}
	}
	if o.dropped == 0 {
		log.Printf("mqtt: outbox full (%d messages), dropping oldest", o.limit)
	}
	o.dropped++
	o.msgs = append(o.msgs[:victim], o.msgs[victim+1:]...)
}

// drain returns the held messages oldest first and empties the outbox.
func (o *outbox) drain() []bufferedMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	if o.dropped > 0 {
		log.Printf("mqtt: replaying %d messages, %d dropped while offline", len(o.msgs), o.dropped)
	}
	out := o.msgs
	o.msgs = nil
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return len(o.msgs)
}
