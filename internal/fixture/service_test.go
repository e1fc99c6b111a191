package fixture

import (
	"testing"

	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/models"
)

func newService() (*Service, *dmx.Buffer, *events.Bus) {
	buf := dmx.NewBuffer()
	bus := events.NewBus()
	return NewService(buf, bus), buf, bus
}

func TestRegisterSetIntensityEndToEnd(t *testing.T) {
	s, buf, _ := newService()

	f := &models.Fixture{VirtualID: 1, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1}
	if err := s.Register(f); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if u := s.SetIntensity(1, 0.5); u != 0 {
		t.Fatalf("expected universe 0, got %d", u)
	}
	if got, _ := buf.GetChannel(0, 1); got != 128 {
		t.Fatalf("expected channel value 128, got %d", got)
	}

	// Same channel, same universe: must be rejected, registry unchanged.
	second := &models.Fixture{VirtualID: 2, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1}
	if err := s.Register(second); err == nil {
		t.Fatal("expected overlap rejection")
	}
	if _, ok := s.Find(2); ok {
		t.Fatal("rejected fixture must not be stored")
	}
}

func TestSettersReturnNotFoundSentinel(t *testing.T) {
	s, _, _ := newService()

	if u := s.SetIntensity(99, 1.0); u != UniverseNotFound {
		t.Fatalf("expected %d, got %d", UniverseNotFound, u)
	}
	if u := s.SetColor(99, 1, 1, 1, 1); u != UniverseNotFound {
		t.Fatalf("expected %d, got %d", UniverseNotFound, u)
	}
	if u, _ := s.SetChannel(99, 0, 255); u != UniverseNotFound {
		t.Fatalf("expected %d, got %d", UniverseNotFound, u)
	}
	if u := s.StartFade(99, 1.0, 2.0); u != UniverseNotFound {
		t.Fatalf("expected %d, got %d", UniverseNotFound, u)
	}
}

func TestSetChannelRejectsOffsetOutsideSpan(t *testing.T) {
	s, buf, _ := newService()
	s.Register(&models.Fixture{VirtualID: 1, Type: models.FixtureRGB, Universe: 0, DMXChannel: 1})
	s.Register(&models.Fixture{VirtualID: 2, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 4})

	s.SetIntensity(2, 1.0)

	// Offset 3 is past the RGB fixture's three channels; the write must be
	// rejected instead of spilling onto the dimmer at channel 4.
	u, err := s.SetChannel(1, 3, 0)
	if u != 0 {
		t.Fatalf("expected universe 0, got %d", u)
	}
	if err == nil {
		t.Fatal("expected rejection of out-of-span offset")
	}
	if v, _ := buf.GetChannel(0, 4); v != 255 {
		t.Fatalf("neighbor channel clobbered: got %d, want 255", v)
	}

	if _, err := s.SetChannel(1, 2, 200); err != nil {
		t.Fatalf("in-span write should succeed: %v", err)
	}
	if v, _ := buf.GetChannel(0, 3); v != 200 {
		t.Fatalf("expected 200 at channel 3, got %d", v)
	}
}

func TestAutoAssignedVirtualID(t *testing.T) {
	s, _, _ := newService()

	a := &models.Fixture{Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1}
	b := &models.Fixture{Type: models.FixtureDimmable, Universe: 0, DMXChannel: 2}
	if err := s.Register(a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := s.Register(b); err != nil {
		t.Fatalf("register b: %v", err)
	}

	if a.VirtualID != 1 || b.VirtualID != 2 {
		t.Fatalf("expected auto IDs 1 and 2, got %d and %d", a.VirtualID, b.VirtualID)
	}
}

func TestFadeTickWritesBufferSameTick(t *testing.T) {
	s, buf, _ := newService()
	s.Register(&models.Fixture{VirtualID: 1, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1})

	if u := s.StartFade(1, 1.0, 1.0); u != 0 {
		t.Fatalf("expected universe 0, got %d", u)
	}

	s.Tick(0.5)
	mid, _ := buf.GetChannel(0, 1)
	if mid == 0 || mid == 255 {
		t.Fatalf("expected intermediate value after half fade, got %d", mid)
	}

	s.Tick(0.5)
	final, _ := buf.GetChannel(0, 1)
	if final != 255 {
		t.Fatalf("expected 255 after full fade, got %d", final)
	}
	if s.ActiveFades() != 0 {
		t.Fatal("completed fade should be removed")
	}
}

func TestFadeSeedsFromBufferState(t *testing.T) {
	s, buf, _ := newService()
	s.Register(&models.Fixture{VirtualID: 1, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1})

	s.SetIntensity(1, 1.0)
	s.StartFade(1, 0.0, 1.0)

	// After half the duration the ramp from 1.0 should be near 0.5, proving
	// the fade started from the current DMX state rather than zero.
	s.Tick(0.5)
	v, _ := buf.GetChannel(0, 1)
	if v < 120 || v > 135 {
		t.Fatalf("expected roughly half intensity, got %d", v)
	}
}

func TestImmediateFadeAppliesDirectly(t *testing.T) {
	s, buf, _ := newService()
	s.Register(&models.Fixture{VirtualID: 1, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1})

	if u := s.StartFade(1, 1.0, 0); u != 0 {
		t.Fatalf("expected universe 0, got %d", u)
	}
	if s.ActiveFades() != 0 {
		t.Fatal("immediate fade must not create an entry")
	}
	if v, _ := buf.GetChannel(0, 1); v != 255 {
		t.Fatalf("expected 255 applied immediately, got %d", v)
	}
}

func TestUnregisterCancelsFade(t *testing.T) {
	s, _, _ := newService()
	s.Register(&models.Fixture{VirtualID: 1, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1})

	s.StartFade(1, 1.0, 5.0)
	if !s.Unregister(1) {
		t.Fatal("unregister should succeed")
	}
	if s.ActiveFades() != 0 {
		t.Fatal("unregister must cancel the in-flight fade")
	}
	if s.Unregister(1) {
		t.Fatal("second unregister should report not found")
	}
}

func TestAllOff(t *testing.T) {
	s, buf, _ := newService()
	s.Register(&models.Fixture{VirtualID: 1, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1})
	s.Register(&models.Fixture{VirtualID: 2, Type: models.FixtureRGB, Universe: 1, DMXChannel: 1})

	s.SetIntensity(1, 1.0)
	s.SetColor(2, 1, 1, 1, -1)
	s.StartFade(1, 0.5, 10.0)

	s.AllOff()

	if s.ActiveFades() != 0 {
		t.Fatal("all-off must cancel fades")
	}
	for _, u := range []int{0, 1} {
		for ch := 1; ch <= 3; ch++ {
			if v, _ := buf.GetChannel(u, ch); v != 0 {
				t.Fatalf("universe %d channel %d not zeroed: %d", u, ch, v)
			}
		}
	}
}

func TestIntensityEventPublished(t *testing.T) {
	s, _, bus := newService()
	s.Register(&models.Fixture{VirtualID: 7, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1})

	var gotID int
	var gotValue float64
	bus.Subscribe(&events.Subscriber{
		IntensityChanged: func(id int, v float64) { gotID, gotValue = id, v },
	})

	s.SetIntensity(7, 2.0) // clamped

	if gotID != 7 {
		t.Fatalf("expected event for fixture 7, got %d", gotID)
	}
	if gotValue != 1.0 {
		t.Fatalf("expected clamped value 1.0, got %f", gotValue)
	}
}
