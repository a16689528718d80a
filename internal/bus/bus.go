// Package bus provides the in-process broadcast hub that fans out session
// events to every connected stream.
//
// Producers publish without blocking: each subscriber has a bounded buffer,
// and a subscriber that cannot drain its buffer is closed rather than being
// allowed to slow the publisher or any other subscriber down. There is no
// history: a subscriber only sees events published after it subscribed.
package bus

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/inercia/specula/internal/event"
)

// DefaultBufferSize is the per-subscriber event buffer size.
const DefaultBufferSize = 256

// ErrClosed is returned by Publish and Subscribe after the bus has been shut down.
var ErrClosed = errors.New("bus is closed")

// Bus is the process-wide event hub. It is safe for concurrent use.
// Create one with New at process start and Close it at process stop; it is
// passed by reference to producers and connection handlers, never accessed
// through a global.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	bufferSize int
	logger     *slog.Logger
}

// Option configures the bus.
type Option func(*Bus)

// WithBufferSize sets the per-subscriber buffer size.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithLogger sets the logger used for subscriber lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// New creates a new bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:       make(map[string]*Subscription),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one subscriber's handle on the bus.
type Subscription struct {
	id     string
	events chan event.Event
	done   chan struct{}

	closeOnce sync.Once
	bus       *Bus
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id }

// Events returns the channel on which bus events are delivered, in publish
// order. The channel is closed when the subscription ends.
func (s *Subscription) Events() <-chan event.Event { return s.events }

// Done returns a channel that is closed when the subscription ends, either
// by Close, by the bus shutting down, or by the subscriber falling too far
// behind.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close detaches the subscription from the bus and closes its channels.
// It is idempotent and safe to call from disconnect paths that may race.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.remove(s.id)
		close(s.done)
		close(s.events)
	})
}

// Subscribe registers a new subscriber. Events published before Subscribe
// returns are not delivered.
func (b *Bus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		id:     uuid.NewString(),
		events: make(chan event.Event, b.bufferSize),
		done:   make(chan struct{}),
		bus:    b,
	}
	b.subs[sub.id] = sub

	if b.logger != nil {
		b.logger.Debug("Subscriber attached",
			"subscription_id", sub.id,
			"subscriber_count", len(b.subs))
	}
	return sub, nil
}

// Publish enqueues the event for delivery to every current subscriber and
// returns immediately. A subscriber whose buffer is full is dropped: its
// subscription is closed so the owning connection tears down, instead of the
// publisher waiting on it.
func (b *Bus) Publish(ev event.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}

	var stalled []*Subscription
	for _, sub := range b.subs {
		select {
		case sub.events <- ev:
		case <-sub.done:
			// Already closing; nothing to deliver.
		default:
			stalled = append(stalled, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range stalled {
		if b.logger != nil {
			b.logger.Warn("Dropping stalled subscriber",
				"subscription_id", sub.id,
				"buffer_size", cap(sub.events))
		}
		sub.Close()
	}
	return nil
}

// SubscriberCount returns the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts down the bus and ends every subscription.
// Publish and Subscribe fail with ErrClosed afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}

	if b.logger != nil {
		b.logger.Debug("Bus closed", "subscriber_count", len(subs))
	}
}

// remove detaches a subscription without closing its channels.
func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}
