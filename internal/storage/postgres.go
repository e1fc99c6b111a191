package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/dmxctl/dmxctl-server/internal/models"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// PostgresStore implements Store interface for PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database, verifies connectivity and ensures the
// schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS fixtures (
            virtual_id INTEGER PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            type TEXT NOT NULL,
            universe INTEGER NOT NULL,
            dmx_channel INTEGER NOT NULL,
            channel_count INTEGER NOT NULL,
            custom_channel_mapping INTEGER[] NOT NULL DEFAULT '{}',
            rdm_uid TEXT NOT NULL DEFAULT '',
            rdm_capable BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS discovered_fixtures (
            uid TEXT PRIMARY KEY,
            manufacturer_id INTEGER NOT NULL,
            manufacturer TEXT NOT NULL DEFAULT '',
            model_id INTEGER NOT NULL,
            model TEXT NOT NULL DEFAULT '',
            universe INTEGER NOT NULL,
            dmx_address INTEGER NOT NULL,
            channel_count INTEGER NOT NULL,
            type TEXT NOT NULL,
            online BOOLEAN NOT NULL DEFAULT TRUE,
            last_seen TIMESTAMPTZ NOT NULL,
            virtual_fixture_id INTEGER NOT NULL DEFAULT -1
        )`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ========== Fixture Methods ==========

// CreateFixture inserts a registered fixture.
func (s *PostgresStore) CreateFixture(ctx context.Context, fixture *models.Fixture) error {
	query := `
        INSERT INTO fixtures (
            virtual_id, name, type, universe, dmx_channel, channel_count,
            custom_channel_mapping, rdm_uid, rdm_capable, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		fixture.VirtualID, fixture.Name, string(fixture.Type), fixture.Universe,
		fixture.DMXChannel, fixture.ChannelCount, pq.Array(intsTo64(fixture.CustomChannelMapping)),
		uidColumn(fixture.RDMUID), fixture.RDMCapable, fixture.CreatedAt, fixture.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

// GetFixture loads one registered fixture by virtual ID.
func (s *PostgresStore) GetFixture(ctx context.Context, virtualID int) (*models.Fixture, error) {
	query := `
        SELECT virtual_id, name, type, universe, dmx_channel, channel_count,
               custom_channel_mapping, rdm_uid, rdm_capable, created_at, updated_at
        FROM fixtures WHERE virtual_id = $1`

	f, err := scanFixture(s.db.QueryRowContext(ctx, query, virtualID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// UpdateFixture rewrites an existing fixture row.
func (s *PostgresStore) UpdateFixture(ctx context.Context, fixture *models.Fixture) error {
	query := `
        UPDATE fixtures SET
            name = $2, type = $3, universe = $4, dmx_channel = $5,
            channel_count = $6, custom_channel_mapping = $7, rdm_uid = $8,
            rdm_capable = $9, updated_at = $10
        WHERE virtual_id = $1`

	result, err := s.db.ExecContext(ctx, query,
		fixture.VirtualID, fixture.Name, string(fixture.Type), fixture.Universe,
		fixture.DMXChannel, fixture.ChannelCount, pq.Array(intsTo64(fixture.CustomChannelMapping)),
		uidColumn(fixture.RDMUID), fixture.RDMCapable, fixture.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFixture removes a fixture row.
func (s *PostgresStore) DeleteFixture(ctx context.Context, virtualID int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fixtures WHERE virtual_id = $1`, virtualID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFixtures loads the whole patch ordered by virtual ID.
func (s *PostgresStore) ListFixtures(ctx context.Context) ([]*models.Fixture, error) {
	query := `
        SELECT virtual_id, name, type, universe, dmx_channel, channel_count,
               custom_channel_mapping, rdm_uid, rdm_capable, created_at, updated_at
        FROM fixtures ORDER BY virtual_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixtures []*models.Fixture
	for rows.Next() {
		f, err := scanFixture(rows)
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, rows.Err()
}

// ========== Discovered Fixture Methods ==========

// SaveDiscoveredFixture upserts a discovery cache entry keyed by UID.
func (s *PostgresStore) SaveDiscoveredFixture(ctx context.Context, fixture *models.DiscoveredFixture) error {
	query := `
        INSERT INTO discovered_fixtures (
            uid, manufacturer_id, manufacturer, model_id, model, universe,
            dmx_address, channel_count, type, online, last_seen, virtual_fixture_id
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (uid) DO UPDATE SET
            manufacturer_id = EXCLUDED.manufacturer_id,
            manufacturer = EXCLUDED.manufacturer,
            model_id = EXCLUDED.model_id,
            model = EXCLUDED.model,
            universe = EXCLUDED.universe,
            dmx_address = EXCLUDED.dmx_address,
            channel_count = EXCLUDED.channel_count,
            type = EXCLUDED.type,
            online = EXCLUDED.online,
            last_seen = EXCLUDED.last_seen,
            virtual_fixture_id = EXCLUDED.virtual_fixture_id`

	_, err := s.db.ExecContext(ctx, query,
		fixture.UID.String(), int(fixture.ManufacturerID), fixture.Manufacturer,
		int(fixture.ModelID), fixture.Model, fixture.Universe, fixture.DMXAddress,
		fixture.ChannelCount, string(fixture.Type), fixture.Online,
		fixture.LastSeen, fixture.VirtualID,
	)
	return err
}

// GetDiscoveredFixture loads one cache entry by UID.
func (s *PostgresStore) GetDiscoveredFixture(ctx context.Context, uid rdm.UID) (*models.DiscoveredFixture, error) {
	query := `
        SELECT uid, manufacturer_id, manufacturer, model_id, model, universe,
               dmx_address, channel_count, type, online, last_seen, virtual_fixture_id
        FROM discovered_fixtures WHERE uid = $1`

	f, err := scanDiscovered(s.db.QueryRowContext(ctx, query, uid.String()))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// DeleteDiscoveredFixture removes a cache entry.
func (s *PostgresStore) DeleteDiscoveredFixture(ctx context.Context, uid rdm.UID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM discovered_fixtures WHERE uid = $1`, uid.String())
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDiscoveredFixtures loads the whole discovery cache ordered by UID.
func (s *PostgresStore) ListDiscoveredFixtures(ctx context.Context) ([]*models.DiscoveredFixture, error) {
	query := `
        SELECT uid, manufacturer_id, manufacturer, model_id, model, universe,
               dmx_address, channel_count, type, online, last_seen, virtual_fixture_id
        FROM discovered_fixtures ORDER BY uid`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixtures []*models.DiscoveredFixture
	for rows.Next() {
		f, err := scanDiscovered(rows)
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, rows.Err()
}

// ========== Scan Helpers ==========

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFixture(row rowScanner) (*models.Fixture, error) {
	var (
		f       models.Fixture
		typ     string
		mapping pq.Int64Array
		uid     string
	)
	err := row.Scan(
		&f.VirtualID, &f.Name, &typ, &f.Universe, &f.DMXChannel, &f.ChannelCount,
		&mapping, &uid, &f.RDMCapable, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Type = models.FixtureType(typ)
	f.CustomChannelMapping = int64sToInts(mapping)
	if uid != "" {
		parsed, err := rdm.ParseUID(uid)
		if err != nil {
			return nil, fmt.Errorf("%w: rdm uid %q", ErrInvalidData, uid)
		}
		f.RDMUID = parsed
	}
	return &f, nil
}

func scanDiscovered(row rowScanner) (*models.DiscoveredFixture, error) {
	var (
		f              models.DiscoveredFixture
		uid, typ       string
		mfgID, modelID int
	)
	err := row.Scan(
		&uid, &mfgID, &f.Manufacturer, &modelID, &f.Model, &f.Universe,
		&f.DMXAddress, &f.ChannelCount, &typ, &f.Online, &f.LastSeen, &f.VirtualID,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := rdm.ParseUID(uid)
	if err != nil {
		return nil, fmt.Errorf("%w: rdm uid %q", ErrInvalidData, uid)
	}
	f.UID = parsed
	f.ManufacturerID = uint16(mfgID)
	f.ModelID = uint16(modelID)
	f.Type = models.FixtureType(typ)
	return &f, nil
}

// uidColumn renders a UID for storage, keeping the zero UID as an empty
// string so unprovisioned fixtures round-trip.
func uidColumn(uid rdm.UID) string {
	if uid.IsZero() {
		return ""
	}
	return uid.String()
}

func intsTo64(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func int64sToInts(in []int64) []int {
	if len(in) == 0 {
		return nil
	}
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
