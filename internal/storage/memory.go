package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/dmxctl/dmxctl-server/internal/models"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// MemoryStore is an in-memory Store for running without a database. Nothing
// survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	fixtures   map[int]*models.Fixture
	discovered map[rdm.UID]*models.DiscoveredFixture
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fixtures:   make(map[int]*models.Fixture),
		discovered: make(map[rdm.UID]*models.DiscoveredFixture),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) CreateFixture(ctx context.Context, fixture *models.Fixture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fixtures[fixture.VirtualID]; ok {
		return ErrDuplicateKey
	}
	cp := *fixture
	s.fixtures[fixture.VirtualID] = &cp
	return nil
}

func (s *MemoryStore) GetFixture(ctx context.Context, virtualID int) (*models.Fixture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fixtures[virtualID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) UpdateFixture(ctx context.Context, fixture *models.Fixture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fixtures[fixture.VirtualID]; !ok {
		return ErrNotFound
	}
	cp := *fixture
	s.fixtures[fixture.VirtualID] = &cp
	return nil
}

func (s *MemoryStore) DeleteFixture(ctx context.Context, virtualID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fixtures[virtualID]; !ok {
		return ErrNotFound
	}
	delete(s.fixtures, virtualID)
	return nil
}

func (s *MemoryStore) ListFixtures(ctx context.Context) ([]*models.Fixture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*models.Fixture, 0, len(s.fixtures))
	for _, f := range s.fixtures {
		cp := *f
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].VirtualID < list[j].VirtualID })
	return list, nil
}

func (s *MemoryStore) SaveDiscoveredFixture(ctx context.Context, fixture *models.DiscoveredFixture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fixture
	s.discovered[fixture.UID] = &cp
	return nil
}

func (s *MemoryStore) GetDiscoveredFixture(ctx context.Context, uid rdm.UID) (*models.DiscoveredFixture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.discovered[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) DeleteDiscoveredFixture(ctx context.Context, uid rdm.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.discovered[uid]; !ok {
		return ErrNotFound
	}
	delete(s.discovered, uid)
	return nil
}

func (s *MemoryStore) ListDiscoveredFixtures(ctx context.Context) ([]*models.DiscoveredFixture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*models.DiscoveredFixture, 0, len(s.discovered))
	for _, f := range s.discovered {
		cp := *f
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UID.String() < list[j].UID.String() })
	return list, nil
}
