// Package dmx holds the per-universe channel state. It is pure storage: no
// protocol framing and no transport knowledge.
package dmx

import (
	"fmt"
	"sort"
)

// UniverseSize is the number of channels in one DMX universe.
const UniverseSize = 512

// Universe is one universe's channel values, indexed 0-based internally and
// addressed 1-based at the API boundary.
type Universe [UniverseSize]byte

// Buffer maps universe numbers to their channel state. Universes are created
// lazily at fixture registration and overwritten in place for the controller's
// lifetime. The buffer is not safe for concurrent use; the controller
// serializes all access.
type Buffer struct {
	universes map[int]*Universe
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{universes: make(map[int]*Universe)}
}

// EnsureUniverse creates a zero-filled universe if absent. Idempotent.
func (b *Buffer) EnsureUniverse(universe int) {
	if _, ok := b.universes[universe]; !ok {
		b.universes[universe] = &Universe{}
	}
}

// SetChannel writes one channel value. Writes to a universe that was never
// ensured are dropped, since registration ensures the universe before any
// driver can touch it. An out-of-range channel is an error: a silent drop
// there would hide a broken driver offset.
func (b *Buffer) SetChannel(universe, channel int, value byte) error {
	if channel < 1 || channel > UniverseSize {
		return fmt.Errorf("channel %d out of range 1..%d", channel, UniverseSize)
	}
	if u, ok := b.universes[universe]; ok {
		u[channel-1] = value
	}
	return nil
}

// GetChannel reads back the last written value; zero for unknown universes.
func (b *Buffer) GetChannel(universe, channel int) (byte, error) {
	if channel < 1 || channel > UniverseSize {
		return 0, fmt.Errorf("channel %d out of range 1..%d", channel, UniverseSize)
	}
	if u, ok := b.universes[universe]; ok {
		return u[channel-1], nil
	}
	return 0, nil
}

// Snapshot copies a universe's current state for transmission.
func (b *Buffer) Snapshot(universe int) (Universe, bool) {
	if u, ok := b.universes[universe]; ok {
		return *u, true
	}
	return Universe{}, false
}

// Universes returns the live universe numbers in ascending order, for the
// controller's flush loop.
func (b *Buffer) Universes() []int {
	list := make([]int, 0, len(b.universes))
	for u := range b.universes {
		list = append(list, u)
	}
	sort.Ints(list)
	return list
}

// Blackout zeroes every live universe in place.
func (b *Buffer) Blackout() {
	for _, u := range b.universes {
		*u = Universe{}
	}
}

// Reset drops all universes. Used by controller shutdown.
func (b *Buffer) Reset() {
	b.universes = make(map[int]*Universe)
}
