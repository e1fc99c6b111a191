package storage

import (
	"context"
	"errors"

	"github.com/dmxctl/dmxctl-server/internal/models"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store persists the fixture patch and the RDM discovery cache so both
// survive a restart. Channel values are deliberately not stored; the buffer
// starts dark and the show restates it.
type Store interface {
	// Fixture methods
	CreateFixture(ctx context.Context, fixture *models.Fixture) error
	GetFixture(ctx context.Context, virtualID int) (*models.Fixture, error)
	UpdateFixture(ctx context.Context, fixture *models.Fixture) error
	DeleteFixture(ctx context.Context, virtualID int) error
	ListFixtures(ctx context.Context) ([]*models.Fixture, error)

	// Discovered fixture methods
	SaveDiscoveredFixture(ctx context.Context, fixture *models.DiscoveredFixture) error
	GetDiscoveredFixture(ctx context.Context, uid rdm.UID) (*models.DiscoveredFixture, error)
	DeleteDiscoveredFixture(ctx context.Context, uid rdm.UID) error
	ListDiscoveredFixtures(ctx context.Context) ([]*models.DiscoveredFixture, error)

	// Close the store
	Close() error
}
