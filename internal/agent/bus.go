package agent

import (
	"sync"
	"sync/atomic"

	"github.com/quanhua92/buildscale-ai-sub000/pkg/models"
)

// Bus fans actor events out to per-chat subscribers. Delivery is
// ordered per subscriber and lag-tolerant: a subscriber that stops
// draining its channel loses events and observes a gap in Seq instead
// of blocking the publishing actor.
type Bus struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// NewBus returns a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is one attached receiver. Events delivers from the
// attach point forward; there is no replay of earlier events.
type Subscription struct {
	bus        *Bus
	chatFileID string
	ch         chan models.Event
	dropped    atomic.Uint64
	closeOnce  sync.Once
}

// Subscribe attaches a receiver to a chat's event stream. Subscribing
// does not require a live actor; events published later are delivered
// in order.
func (b *Bus) Subscribe(chatFileID string) *Subscription {
	sub := &Subscription{
		bus:        b,
		chatFileID: chatFileID,
		ch:         make(chan models.Event, b.buffer),
	}

	b.mu.Lock()
	listeners := b.subs[chatFileID]
	if listeners == nil {
		listeners = make(map[*Subscription]struct{})
		b.subs[chatFileID] = listeners
	}
	listeners[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers an event to every subscriber of the chat. Full
// subscriber channels drop the event and count the gap.
func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	for sub := range b.subs[ev.ChatFileID] {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
	b.mu.RUnlock()
}

// Subscribers reports how many receivers a chat currently has.
func (b *Bus) Subscribers(chatFileID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[chatFileID])
}

// Events is the receive side of the subscription. The channel is
// closed by Close, never by the bus.
func (s *Subscription) Events() <-chan models.Event {
	return s.ch
}

// Lagged reports how many events were dropped because the subscriber
// fell behind.
func (s *Subscription) Lagged() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		b := s.bus
		b.mu.Lock()
		if listeners := b.subs[s.chatFileID]; listeners != nil {
			delete(listeners, s)
			if len(listeners) == 0 {
				delete(b.subs, s.chatFileID)
			}
		}
		b.mu.Unlock()
		close(s.ch)
	})
}
