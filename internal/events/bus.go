// Package events is the in-process event surface: plain observer lists keyed
// by subscription token. The NATS bridge and embedding experience code both
// subscribe here.
package events

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dmxctl/dmxctl-server/internal/models"
)

// Subscriber is a set of optional callbacks; nil fields are skipped.
// Callbacks run synchronously on the publishing goroutine and must not block.
type Subscriber struct {
	IntensityChanged  func(virtualID int, value float64)
	ColorChanged      func(virtualID int, r, g, b float64)
	FixtureDiscovered func(f models.DiscoveredFixture)
	FixtureOnline     func(virtualID int)
	FixtureOffline    func(virtualID int)
	NodeDiscovered    func(n models.Node)
}

// Bus fans events out to every subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscriber
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uuid.UUID]*Subscriber)}
}

// Subscribe registers callbacks and returns a token for Unsubscribe.
func (b *Bus) Subscribe(s *Subscriber) uuid.UUID {
	id := uuid.New()
	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *Bus) each(fn func(*Subscriber)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		fn(s)
	}
}

// PublishIntensityChanged announces a fixture's new intensity.
func (b *Bus) PublishIntensityChanged(virtualID int, value float64) {
	b.each(func(s *Subscriber) {
		if s.IntensityChanged != nil {
			s.IntensityChanged(virtualID, value)
		}
	})
}

// PublishColorChanged announces a fixture's new color.
func (b *Bus) PublishColorChanged(virtualID int, r, g, bl float64) {
	b.each(func(s *Subscriber) {
		if s.ColorChanged != nil {
			s.ColorChanged(virtualID, r, g, bl)
		}
	})
}

// PublishFixtureDiscovered announces a new RDM discovery cache entry.
func (b *Bus) PublishFixtureDiscovered(f models.DiscoveredFixture) {
	b.each(func(s *Subscriber) {
		if s.FixtureDiscovered != nil {
			s.FixtureDiscovered(f)
		}
	})
}

// PublishFixtureOnline announces an offline fixture answering again. Keyed by
// virtual fixture ID; models.UnboundVirtualID when not yet auto-registered.
func (b *Bus) PublishFixtureOnline(virtualID int) {
	b.each(func(s *Subscriber) {
		if s.FixtureOnline != nil {
			s.FixtureOnline(virtualID)
		}
	})
}

// PublishFixtureOffline announces a fixture passing the offline threshold.
func (b *Bus) PublishFixtureOffline(virtualID int) {
	b.each(func(s *Subscriber) {
		if s.FixtureOffline != nil {
			s.FixtureOffline(virtualID)
		}
	})
}

// PublishNodeDiscovered announces an Art-Net node first seen on the network.
func (b *Bus) PublishNodeDiscovered(n models.Node) {
	b.each(func(s *Subscriber) {
		if s.NodeDiscovered != nil {
			s.NodeDiscovered(n)
		}
	})
}
