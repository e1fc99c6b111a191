// Package controller is the composition root: it owns the channel buffer,
// fixture service, fade engine, discovery cache and transport, and serializes
// every mutation behind one mutex. The tick loop drives fades, frame
// transmission and housekeeping at the configured rate.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/internal/config"
	"github.com/dmxctl/dmxctl-server/internal/discovery"
	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/fixture"
	"github.com/dmxctl/dmxctl-server/internal/models"
	"github.com/dmxctl/dmxctl-server/internal/storage"
	"github.com/dmxctl/dmxctl-server/internal/transport"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// artnetPollEvery is the OpPoll cadence; the Art-Net convention is a poll
// every few seconds so nodes stay in the cache.
const artnetPollEvery = 3 * time.Second

// Controller ties the engine together. All exported methods are safe for
// concurrent use; they serialize on the controller mutex alongside the tick.
type Controller struct {
	cfg   *config.Config
	store storage.Store
	tr    transport.Transport
	bus   *events.Bus

	// artnet is set when the transport is Art-Net; node housekeeping only
	// applies there.
	artnet *transport.ArtNet

	mu        sync.Mutex
	buffer    *dmx.Buffer
	fixtures  *fixture.Service
	discovery *discovery.Service
	lastTick  time.Time
	pollAccum time.Duration

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New assembles a controller over the given store and transport.
func New(cfg *config.Config, store storage.Store, tr transport.Transport, bus *events.Bus) *Controller {
	buffer := dmx.NewBuffer()
	c := &Controller{
		cfg:      cfg,
		store:    store,
		tr:       tr,
		bus:      bus,
		buffer:   buffer,
		fixtures: fixture.NewService(buffer, bus),
		discovery: discovery.NewService(discovery.Config{
			PollInterval:     cfg.RDM.PollInterval,
			DiscoveryTimeout: cfg.RDM.DiscoveryTimeout,
		}, tr, bus),
		done: make(chan struct{}),
	}
	if an, ok := tr.(*transport.ArtNet); ok {
		c.artnet = an
	}
	return c
}

// Start reloads persisted state and launches the tick loop.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.restore(ctx); err != nil {
		return err
	}

	// Write discovery cache changes through to the store as they happen; the
	// remaining lifecycle state is flushed on Stop.
	c.bus.Subscribe(&events.Subscriber{
		FixtureDiscovered: func(f models.DiscoveredFixture) {
			if err := c.store.SaveDiscoveredFixture(context.Background(), &f); err != nil {
				log.Error().Err(err).Str("uid", f.UID.String()).Msg("persist discovered fixture")
			}
		},
	})

	c.mu.Lock()
	c.lastTick = time.Now()
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	log.Info().Int("tick_rate", c.cfg.DMX.TickRate).Str("transport", c.tr.Name()).
		Bool("rdm", c.cfg.RDM.Enabled).Msg("controller started")
	return nil
}

// restore reloads the fixture patch and discovery cache. The channel buffer
// starts dark; persisted levels would be stale anyway.
func (c *Controller) restore(ctx context.Context) error {
	fixtures, err := c.store.ListFixtures(ctx)
	if err != nil {
		return fmt.Errorf("load fixtures: %w", err)
	}
	for _, f := range fixtures {
		if regErr := c.fixtures.Register(f); regErr != nil {
			log.Error().Err(regErr).Int("fixture", f.VirtualID).Msg("skipping persisted fixture")
		}
	}

	discovered, err := c.store.ListDiscoveredFixtures(ctx)
	if err != nil {
		return fmt.Errorf("load discovered fixtures: %w", err)
	}
	for _, d := range discovered {
		c.discovery.Restore(*d)
	}

	log.Info().Int("fixtures", len(fixtures)).Int("discovered", len(discovered)).Msg("state restored")
	return nil
}

// Stop halts the tick loop, flushes the discovery cache and closes the
// transport. The controller cannot be restarted.
func (c *Controller) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()

		for _, d := range c.discovery.All() {
			entry := d
			if saveErr := c.store.SaveDiscoveredFixture(ctx, &entry); saveErr != nil {
				log.Error().Err(saveErr).Str("uid", d.UID.String()).Msg("flush discovered fixture")
			}
		}

		c.mu.Lock()
		c.fixtures.Reset()
		c.discovery.Clear()
		c.mu.Unlock()

		err = c.tr.Close()
		log.Info().Msg("controller stopped")
	})
	return err
}

func (c *Controller) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

// tick is one frame: advance fades, transmit every universe, then run
// transport and discovery housekeeping. Fade writes land in the buffer
// before the flush, so this frame carries them.
func (c *Controller) tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dt := now.Sub(c.lastTick)
	c.lastTick = now
	if dt <= 0 {
		return
	}

	c.fixtures.Tick(dt.Seconds())

	for _, universe := range c.buffer.Universes() {
		snapshot, ok := c.buffer.Snapshot(universe)
		if !ok {
			continue
		}
		// Fire and forget: UDP losses are healed by the next frame.
		if err := c.tr.SendDMX(universe, snapshot); err != nil {
			log.Debug().Err(err).Int("universe", universe).Msg("frame send failed")
		}
	}

	if c.artnet != nil {
		c.pollAccum += dt
		if c.pollAccum >= artnetPollEvery {
			c.pollAccum = 0
			if err := c.artnet.SendPoll(); err != nil {
				log.Debug().Err(err).Msg("OpPoll send failed")
			}
			c.artnet.AgeNodes()
		}
	}

	if c.cfg.RDM.Enabled {
		c.discovery.Tick(dt)
		c.discovery.Prune()
	}
}

// ========== Fixture commands ==========

// RegisterFixture validates, registers and persists a fixture. A zero
// VirtualID is auto-assigned.
func (c *Controller) RegisterFixture(ctx context.Context, f *models.Fixture) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// RDM-only installations take their patch from discovery alone.
	if c.cfg.RDM.RDMOnly && f.RDMUID.IsZero() {
		return fmt.Errorf("rdm_only mode: fixtures must be registered from RDM discovery")
	}

	if err := c.fixtures.Register(f); err != nil {
		return err
	}
	if err := c.store.CreateFixture(ctx, f); err != nil {
		c.fixtures.Unregister(f.VirtualID)
		return fmt.Errorf("persist fixture: %w", err)
	}
	if f.RDMCapable && !f.RDMUID.IsZero() {
		if err := c.discovery.Bind(f.RDMUID, f.VirtualID); err != nil {
			log.Debug().Err(err).Int("fixture", f.VirtualID).Msg("RDM bind skipped")
		}
	}
	return nil
}

// UnregisterFixture removes a fixture from the patch and the store. Unknown
// IDs return storage.ErrNotFound.
func (c *Controller) UnregisterFixture(ctx context.Context, virtualID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fixtures.Unregister(virtualID) {
		return storage.ErrNotFound
	}
	c.discovery.Unbind(virtualID)
	if err := c.store.DeleteFixture(ctx, virtualID); err != nil && err != storage.ErrNotFound {
		log.Error().Err(err).Int("fixture", virtualID).Msg("delete persisted fixture")
	}
	return nil
}

// Fixture looks up one registered fixture.
func (c *Controller) Fixture(virtualID int) (*models.Fixture, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixtures.Find(virtualID)
}

// Fixtures returns the patch ordered by virtual ID.
func (c *Controller) Fixtures() []*models.Fixture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixtures.All()
}

// SetIntensity sets a fixture's intensity. Returns the fixture's universe,
// or fixture.UniverseNotFound for unknown IDs.
func (c *Controller) SetIntensity(virtualID int, value float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixtures.SetIntensity(virtualID, value)
}

// SetColor sets a fixture's color; w < 0 means no white component.
func (c *Controller) SetColor(virtualID int, r, g, b, w float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixtures.SetColor(virtualID, r, g, b, w)
}

// SetChannel writes a raw value at an offset within the fixture's span. An
// out-of-span offset is rejected with an error.
func (c *Controller) SetChannel(virtualID, offset, value int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixtures.SetChannel(virtualID, offset, value)
}

// StartFade begins a linear intensity fade over duration seconds.
func (c *Controller) StartFade(virtualID int, target, duration float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixtures.StartFade(virtualID, target, duration)
}

// CancelFade freezes a fixture's in-flight fade.
func (c *Controller) CancelFade(virtualID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixtures.CancelFade(virtualID)
}

// AllOff cancels every fade and blacks out every universe.
func (c *Controller) AllOff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixtures.AllOff()
}

// ActiveFades reports the number of in-flight fades.
func (c *Controller) ActiveFades() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fixtures.ActiveFades()
}

// ========== Discovery commands ==========

// Discovered returns the RDM discovery cache ordered by UID.
func (c *Controller) Discovered() []models.DiscoveredFixture {
	return c.discovery.All()
}

// DiscoveredByUID looks up one discovery cache entry.
func (c *Controller) DiscoveredByUID(uid rdm.UID) (models.DiscoveredFixture, bool) {
	return c.discovery.Get(uid)
}

// DiscoverNow runs an explicit RDM discovery pass.
func (c *Controller) DiscoverNow(ctx context.Context) (int, error) {
	return c.discovery.Discover(ctx)
}

// AutoRegister promotes a discovered fixture into the patch at its reported
// address and binds it for liveness events.
func (c *Controller) AutoRegister(ctx context.Context, uid rdm.UID) (*models.Fixture, error) {
	entry, ok := c.discovery.Get(uid)
	if !ok {
		return nil, fmt.Errorf("unknown RDM UID %s", uid)
	}
	if entry.VirtualID != models.UnboundVirtualID {
		return nil, fmt.Errorf("RDM fixture %s already bound to fixture %d", uid, entry.VirtualID)
	}

	name := entry.Model
	if name == "" {
		name = uid.String()
	}
	f := &models.Fixture{
		Name:         name,
		Type:         entry.Type,
		Universe:     entry.Universe,
		DMXChannel:   entry.DMXAddress,
		ChannelCount: entry.ChannelCount,
		RDMUID:       uid,
		RDMCapable:   true,
	}
	if err := c.RegisterFixture(ctx, f); err != nil {
		return nil, err
	}

	entry.VirtualID = f.VirtualID
	if err := c.store.SaveDiscoveredFixture(ctx, &entry); err != nil {
		log.Error().Err(err).Str("uid", uid.String()).Msg("persist RDM binding")
	}
	return f, nil
}

// Nodes returns the Art-Net nodes seen on the network; empty for other
// transports.
func (c *Controller) Nodes() []models.Node {
	if c.artnet == nil {
		return nil
	}
	return c.artnet.Nodes()
}

// Transport returns the active transport's name for status reporting.
func (c *Controller) Transport() string {
	return c.tr.Name()
}
