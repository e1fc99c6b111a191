// Package fixture implements the virtual-fixture layer: the registry keyed by
// virtual ID, placement validation, the driver family translating semantic
// commands into channel writes, and the service tying them together.
package fixture

import (
	"sort"
	"time"

	"github.com/dmxctl/dmxctl-server/internal/models"
)

// Registry owns the set of registered virtual fixtures. It has no protocol or
// transport knowledge and is not safe for concurrent use; the controller
// serializes all access.
type Registry struct {
	fixtures map[int]*models.Fixture
	nextID   int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fixtures: make(map[int]*models.Fixture),
		nextID:   1,
	}
}

// Register validates the fixture's placement and stores it. A zero VirtualID
// is auto-assigned. Rejections leave the registry unchanged.
func (r *Registry) Register(f *models.Fixture) error {
	if f.VirtualID == 0 {
		f.VirtualID = r.nextID
	}

	if err := ValidatePlacement(f, r.All()); err != nil {
		return err
	}

	if f.ChannelCount == 0 {
		f.ChannelCount = f.RequiredChannels()
	}
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	r.fixtures[f.VirtualID] = f
	if f.VirtualID >= r.nextID {
		r.nextID = f.VirtualID + 1
	}
	return nil
}

// Unregister removes a fixture. It reports whether the ID was present.
func (r *Registry) Unregister(virtualID int) bool {
	if _, ok := r.fixtures[virtualID]; !ok {
		return false
	}
	delete(r.fixtures, virtualID)
	return true
}

// Find looks up a fixture by virtual ID. Absence is reported explicitly,
// never as a zero fixture.
func (r *Registry) Find(virtualID int) (*models.Fixture, bool) {
	f, ok := r.fixtures[virtualID]
	return f, ok
}

// All returns the registered fixtures ordered by virtual ID.
func (r *Registry) All() []*models.Fixture {
	list := make([]*models.Fixture, 0, len(r.fixtures))
	for _, f := range r.fixtures {
		list = append(list, f)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].VirtualID < list[j].VirtualID })
	return list
}

// Len returns the number of registered fixtures.
func (r *Registry) Len() int {
	return len(r.fixtures)
}

// Clear drops every fixture. Used by controller shutdown.
func (r *Registry) Clear() {
	r.fixtures = make(map[int]*models.Fixture)
	r.nextID = 1
}
