package automation

import (
	"sync"
	"time"

	"github.com/entrhq/autopilot/pkg/discovery"
)

// EventType defines the type of event emitted by the automation subsystem.
type EventType string

const (
	EventConnectionVerified EventType = "connection_verified" // EventConnectionVerified indicates a descriptor was verified and the channel opened.
	EventChannelClosed      EventType = "channel_closed"      // EventChannelClosed indicates the control channel died and rediscovery is scheduled.
	EventPollResult         EventType = "poll_result"         // EventPollResult carries the outcome of one poll cycle.
)

// Event is a typed notification for external collaborators (status display
// and the like). Events are consumed for presentation only and never feed
// back into automation decisions.
type Event struct {
	// Type indicates the kind of event.
	Type EventType

	// Time is when the event was produced.
	Time time.Time

	// Descriptor is set on connection events.
	Descriptor *discovery.Descriptor

	// Result is set on poll-result events.
	Result *PollResult

	// Err carries the transport error on channel-closed events, if any.
	Err error
}

// Broadcaster fans events out to registered subscribers. Subscriptions are
// registered and released with the owning lifecycle; a slow subscriber
// drops events rather than stalling the automation loop.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its event channel along
// with a release function. Release closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	release := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, release
}

// Publish delivers an event to every subscriber without blocking.
func (b *Broadcaster) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
