package events

import "context"

// Publisher delivers domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Outbox buffers events during a mutation so nothing is published until the
// operation succeeds. Flush delivers in order; Discard drops everything.
type Outbox struct {
	pending []Event
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{}
}

// Add buffers an event for later delivery.
func (o *Outbox) Add(event Event) {
	o.pending = append(o.pending, event)
}

// Pending returns the number of buffered events.
func (o *Outbox) Pending() int {
	return len(o.pending)
}

// Flush publishes all buffered events in the order they were added. Events
// already delivered stay delivered if a later publish fails; the remainder is
// kept in the outbox.
func (o *Outbox) Flush(ctx context.Context, publisher Publisher) error {
	for len(o.pending) > 0 {
		event := o.pending[0]
		if err := publisher.Publish(ctx, event); err != nil {
			return err
		}
		o.pending = o.pending[1:]
	}
	return nil
}

// Discard drops all buffered events without publishing.
func (o *Outbox) Discard() {
	o.pending = nil
}
