// Package discovery implements the RDM side of the controller: the discovery
// cache of physical fixtures keyed by RDM unique ID and the
// online/offline/removed lifecycle driven by the poll clock.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/models"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// Liveness thresholds, in multiples of the poll interval. A device missing
// for 3 intervals goes offline; missing for 10 it is removed from the cache
// entirely and a later response counts as a fresh discovery.
const (
	offlineMultiplier = 3
	removalMultiplier = 10
)

// Poller is the transport's RDM side-channel.
type Poller interface {
	// DiscoverDevices runs a full discovery pass on the wire.
	DiscoverDevices(ctx context.Context) ([]rdm.DeviceInfo, error)
	// QueryDevice fetches device info for one known UID.
	QueryDevice(ctx context.Context, uid rdm.UID) (*rdm.DeviceInfo, error)
}

// Config holds the poll cadence and per-pass query budget.
type Config struct {
	PollInterval     time.Duration
	DiscoveryTimeout time.Duration
}

// Service maintains the discovery cache. Poll passes run on their own
// goroutine so a slow fixture cannot stall the tick loop; the mutex guards
// the cache between the tick thread and poll completions.
type Service struct {
	cfg    Config
	poller Poller
	bus    *events.Bus

	mu        sync.RWMutex
	cache     map[rdm.UID]*models.DiscoveredFixture
	byVirtual map[int]rdm.UID

	accumulated time.Duration
	polling     bool

	now func() time.Time
}

// NewService creates a discovery service over the given poller.
func NewService(cfg Config, poller Poller, bus *events.Bus) *Service {
	return &Service{
		cfg:       cfg,
		poller:    poller,
		bus:       bus,
		cache:     make(map[rdm.UID]*models.DiscoveredFixture),
		byVirtual: make(map[int]rdm.UID),
		now:       time.Now,
	}
}

// Tick accumulates wall-clock time and launches the next poll pass once the
// accumulated time reaches the poll interval. At most one pass is in flight.
func (s *Service) Tick(dt time.Duration) {
	s.mu.Lock()
	s.accumulated += dt
	due := s.accumulated >= s.cfg.PollInterval && !s.polling
	if due {
		s.accumulated = 0
		s.polling = true
	}
	s.mu.Unlock()

	if due {
		go s.pollPass()
	}
}

// pollPass queries every tracked device once.
func (s *Service) pollPass() {
	defer func() {
		s.mu.Lock()
		s.polling = false
		s.mu.Unlock()
	}()

	s.mu.RLock()
	uids := make([]rdm.UID, 0, len(s.cache))
	for uid := range s.cache {
		uids = append(uids, uid)
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DiscoveryTimeout)
	defer cancel()

	for _, uid := range uids {
		info, err := s.poller.QueryDevice(ctx, uid)
		if err != nil {
			// Transient by taxonomy: the prune pass decides liveness.
			log.Debug().Err(err).Str("uid", uid.String()).Msg("RDM poll failed")
			continue
		}
		s.MarkSeen(info)
	}
}

// Discover runs a full discovery pass and folds every response into the
// cache. This is the controller's explicit entry point; the periodic poll
// only re-queries devices already known.
func (s *Service) Discover(ctx context.Context) (int, error) {
	infos, err := s.poller.DiscoverDevices(ctx)
	if err != nil {
		return 0, fmt.Errorf("RDM discovery: %w", err)
	}
	for i := range infos {
		s.MarkSeen(&infos[i])
	}
	return len(infos), nil
}

// MarkSeen folds one successful poll/discovery response into the cache:
// unknown UIDs become new online entries and fire "discovered"; offline
// entries flip back online and fire "came online" keyed by virtual ID.
func (s *Service) MarkSeen(info *rdm.DeviceInfo) {
	var discovered *models.DiscoveredFixture
	cameOnline := models.UnboundVirtualID - 1 // sentinel: no event

	s.mu.Lock()
	entry, ok := s.cache[info.UID]
	if !ok {
		entry = &models.DiscoveredFixture{
			UID:            info.UID,
			ManufacturerID: info.ManufacturerID,
			Manufacturer:   info.Manufacturer,
			ModelID:        info.ModelID,
			Model:          info.Model,
			DMXAddress:     int(info.DMXStartAddress),
			ChannelCount:   int(info.DMXFootprint),
			Type:           inferType(int(info.DMXFootprint)),
			Online:         true,
			LastSeen:       s.now(),
			VirtualID:      models.UnboundVirtualID,
		}
		s.cache[info.UID] = entry
		copied := *entry
		discovered = &copied
	} else {
		entry.LastSeen = s.now()
		if !entry.Online {
			entry.Online = true
			cameOnline = entry.VirtualID
		}
	}
	s.mu.Unlock()

	if discovered != nil {
		log.Info().Str("uid", info.UID.String()).Str("model", info.Model).Msg("RDM fixture discovered")
		s.bus.PublishFixtureDiscovered(*discovered)
	}
	if cameOnline >= models.UnboundVirtualID {
		log.Info().Str("uid", info.UID.String()).Int("fixture", cameOnline).Msg("RDM fixture came online")
		s.bus.PublishFixtureOnline(cameOnline)
	}
}

// Prune evaluates the offline and removal thresholds for every entry. It is
// driven by the controller independently of the poll cadence, so devices are
// declared dead even when transport failures keep polls from completing.
func (s *Service) Prune() {
	type transition struct {
		virtualID int
		removed   bool
		uid       rdm.UID
	}
	var transitions []transition

	now := s.now()
	offlineAfter := time.Duration(offlineMultiplier) * s.cfg.PollInterval
	removeAfter := time.Duration(removalMultiplier) * s.cfg.PollInterval

	s.mu.Lock()
	for uid, entry := range s.cache {
		gap := now.Sub(entry.LastSeen)
		switch {
		case gap > removeAfter:
			delete(s.cache, uid)
			if entry.VirtualID != models.UnboundVirtualID {
				delete(s.byVirtual, entry.VirtualID)
			}
			transitions = append(transitions, transition{entry.VirtualID, true, uid})
		case gap > offlineAfter && entry.Online:
			entry.Online = false
			transitions = append(transitions, transition{entry.VirtualID, false, uid})
		}
	}
	s.mu.Unlock()

	for _, tr := range transitions {
		if tr.removed {
			log.Info().Str("uid", tr.uid.String()).Msg("RDM fixture removed from cache")
			continue
		}
		log.Info().Str("uid", tr.uid.String()).Int("fixture", tr.virtualID).Msg("RDM fixture went offline")
		s.bus.PublishFixtureOffline(tr.virtualID)
	}
}

// Bind records the UID-to-virtual-ID join used to route liveness events into
// the caller's virtual-fixture namespace.
func (s *Service) Bind(uid rdm.UID, virtualID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[uid]
	if !ok {
		return fmt.Errorf("unknown RDM UID %s", uid)
	}
	if entry.VirtualID != models.UnboundVirtualID {
		delete(s.byVirtual, entry.VirtualID)
	}
	entry.VirtualID = virtualID
	s.byVirtual[virtualID] = uid
	return nil
}

// Unbind drops the join for a virtual fixture, keeping the cache entry.
func (s *Service) Unbind(virtualID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.byVirtual[virtualID]
	if !ok {
		return
	}
	delete(s.byVirtual, virtualID)
	if entry, ok := s.cache[uid]; ok {
		entry.VirtualID = models.UnboundVirtualID
	}
}

// Get returns a copy of one cache entry.
func (s *Service) Get(uid rdm.UID) (models.DiscoveredFixture, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.cache[uid]; ok {
		return *entry, true
	}
	return models.DiscoveredFixture{}, false
}

// All returns the cache entries ordered by UID.
func (s *Service) All() []models.DiscoveredFixture {
	s.mu.RLock()
	list := make([]models.DiscoveredFixture, 0, len(s.cache))
	for _, entry := range s.cache {
		list = append(list, *entry)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].UID.String() < list[j].UID.String() })
	return list
}

// Restore loads a persisted cache entry without firing events. Used when the
// controller reloads its state on startup.
func (s *Service) Restore(entry models.DiscoveredFixture) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := entry
	s.cache[entry.UID] = &copied
	if entry.VirtualID != models.UnboundVirtualID {
		s.byVirtual[entry.VirtualID] = entry.UID
	}
}

// Clear drops the cache and joins. Used by controller shutdown.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = make(map[rdm.UID]*models.DiscoveredFixture)
	s.byVirtual = make(map[int]rdm.UID)
	s.accumulated = 0
}

// inferType guesses a fixture type from the DMX footprint reported by the
// device.
func inferType(footprint int) models.FixtureType {
	switch footprint {
	case 1:
		return models.FixtureDimmable
	case 3:
		return models.FixtureRGB
	case 4:
		return models.FixtureRGBW
	case 8:
		return models.FixtureMovingHead
	default:
		return models.FixtureCustom
	}
}
