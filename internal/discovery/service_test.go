package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/models"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

type fakePoller struct {
	mu      sync.Mutex
	devices map[rdm.UID]rdm.DeviceInfo
	queries int
}

func (p *fakePoller) DiscoverDevices(ctx context.Context) ([]rdm.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := make([]rdm.DeviceInfo, 0, len(p.devices))
	for _, d := range p.devices {
		list = append(list, d)
	}
	return list, nil
}

func (p *fakePoller) QueryDevice(ctx context.Context, uid rdm.UID) (*rdm.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries++
	if d, ok := p.devices[uid]; ok {
		return &d, nil
	}
	return nil, context.DeadlineExceeded
}

func (p *fakePoller) queryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries
}

func mustUID(t *testing.T, s string) rdm.UID {
	t.Helper()
	uid, err := rdm.ParseUID(s)
	if err != nil {
		t.Fatalf("parse uid: %v", err)
	}
	return uid
}

func newTestService(t *testing.T) (*Service, *fakePoller, *events.Bus, *time.Time) {
	t.Helper()
	poller := &fakePoller{devices: make(map[rdm.UID]rdm.DeviceInfo)}
	bus := events.NewBus()
	s := NewService(Config{PollInterval: time.Second, DiscoveryTimeout: 5 * time.Second}, poller, bus)

	clock := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	return s, poller, bus, &clock
}

func TestDiscoverFiresDiscoveredOnce(t *testing.T) {
	s, poller, bus, _ := newTestService(t)
	uid := mustUID(t, "02a1:00000001")
	poller.devices[uid] = rdm.DeviceInfo{UID: uid, Model: "PAR-64", DMXStartAddress: 17, DMXFootprint: 4}

	var discovered []models.DiscoveredFixture
	bus.Subscribe(&events.Subscriber{
		FixtureDiscovered: func(f models.DiscoveredFixture) { discovered = append(discovered, f) },
	})

	if n, err := s.Discover(context.Background()); err != nil || n != 1 {
		t.Fatalf("discover: n=%d err=%v", n, err)
	}
	// Re-discovering a known device refreshes it, no second event.
	if _, err := s.Discover(context.Background()); err != nil {
		t.Fatalf("second discover: %v", err)
	}

	if len(discovered) != 1 {
		t.Fatalf("expected exactly one discovered event, got %d", len(discovered))
	}
	if discovered[0].Type != models.FixtureRGBW {
		t.Fatalf("footprint 4 should infer rgbw, got %s", discovered[0].Type)
	}
	if discovered[0].DMXAddress != 17 {
		t.Fatalf("expected DMX address 17, got %d", discovered[0].DMXAddress)
	}
	if discovered[0].VirtualID != models.UnboundVirtualID {
		t.Fatalf("new entry should be unbound, got %d", discovered[0].VirtualID)
	}
}

func TestLivenessThresholds(t *testing.T) {
	s, poller, bus, clock := newTestService(t)
	uid := mustUID(t, "02a1:00000002")
	poller.devices[uid] = rdm.DeviceInfo{UID: uid, DMXFootprint: 1}

	var offline, online []int
	bus.Subscribe(&events.Subscriber{
		FixtureOffline: func(id int) { offline = append(offline, id) },
		FixtureOnline:  func(id int) { online = append(online, id) },
	})

	if _, err := s.Discover(context.Background()); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if err := s.Bind(uid, 42); err != nil {
		t.Fatalf("bind: %v", err)
	}

	// Exactly 3x the poll interval: still online, threshold not yet exceeded.
	*clock = clock.Add(3 * time.Second)
	s.Prune()
	if len(offline) != 0 {
		t.Fatalf("no offline event expected at exactly 3x interval, got %v", offline)
	}

	// Past 3x: offline, keyed by the virtual ID from the bind.
	*clock = clock.Add(time.Millisecond)
	s.Prune()
	if len(offline) != 1 || offline[0] != 42 {
		t.Fatalf("expected offline event for virtual 42, got %v", offline)
	}

	// A second prune while still offline must not re-fire.
	s.Prune()
	if len(offline) != 1 {
		t.Fatalf("offline event fired twice: %v", offline)
	}

	// A successful poll restores online, exactly once.
	s.MarkSeen(&rdm.DeviceInfo{UID: uid, DMXFootprint: 1})
	s.MarkSeen(&rdm.DeviceInfo{UID: uid, DMXFootprint: 1})
	if len(online) != 1 || online[0] != 42 {
		t.Fatalf("expected one came-online event for virtual 42, got %v", online)
	}

	entry, ok := s.Get(uid)
	if !ok || !entry.Online {
		t.Fatalf("entry should be online again: %+v", entry)
	}
}

func TestRemovalThresholdDeletesEntry(t *testing.T) {
	s, poller, bus, clock := newTestService(t)
	uid := mustUID(t, "02a1:00000003")
	poller.devices[uid] = rdm.DeviceInfo{UID: uid, DMXFootprint: 3}

	var discovered int
	bus.Subscribe(&events.Subscriber{
		FixtureDiscovered: func(models.DiscoveredFixture) { discovered++ },
	})

	s.Discover(context.Background())

	*clock = clock.Add(10*time.Second + time.Millisecond)
	s.Prune()

	if _, ok := s.Get(uid); ok {
		t.Fatal("entry past the removal threshold should be deleted")
	}
	if len(s.All()) != 0 {
		t.Fatal("cache should be empty")
	}

	// Rediscovery after removal is a fresh discovery.
	s.MarkSeen(&rdm.DeviceInfo{UID: uid, DMXFootprint: 3})
	if discovered != 2 {
		t.Fatalf("expected rediscovery to fire a new discovered event, got %d", discovered)
	}
}

func TestBindUnknownUID(t *testing.T) {
	s, _, _, _ := newTestService(t)
	if err := s.Bind(mustUID(t, "ffff:ffffffff"), 1); err == nil {
		t.Fatal("expected error binding unknown UID")
	}
}

func TestTickTriggersPollAtCadence(t *testing.T) {
	s, poller, _, _ := newTestService(t)
	uid := mustUID(t, "02a1:00000004")
	poller.devices[uid] = rdm.DeviceInfo{UID: uid, DMXFootprint: 1}
	s.Discover(context.Background())

	// Below the interval: no pass.
	s.Tick(400 * time.Millisecond)
	if poller.queryCount() != 0 {
		t.Fatalf("poll pass ran early: %d queries", poller.queryCount())
	}

	// Crossing the interval launches one pass.
	s.Tick(700 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for poller.queryCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("poll pass never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if poller.queryCount() != 1 {
		t.Fatalf("expected one query, got %d", poller.queryCount())
	}
}

func TestRestoreDoesNotFireEvents(t *testing.T) {
	s, _, bus, _ := newTestService(t)

	fired := false
	bus.Subscribe(&events.Subscriber{
		FixtureDiscovered: func(models.DiscoveredFixture) { fired = true },
	})

	uid := mustUID(t, "02a1:00000005")
	s.Restore(models.DiscoveredFixture{UID: uid, VirtualID: 9, Online: true, LastSeen: s.now()})

	if fired {
		t.Fatal("restore must not fire discovery events")
	}
	if entry, ok := s.Get(uid); !ok || entry.VirtualID != 9 {
		t.Fatalf("restored entry missing or unbound: %+v", entry)
	}
}
