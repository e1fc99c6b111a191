package fixture

import (
	"testing"

	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/internal/models"
)

func newBuffer(universe int) *dmx.Buffer {
	b := dmx.NewBuffer()
	b.EnsureUniverse(universe)
	return b
}

func channel(t *testing.T, b *dmx.Buffer, universe, ch int) byte {
	t.Helper()
	v, err := b.GetChannel(universe, ch)
	if err != nil {
		t.Fatalf("get channel %d: %v", ch, err)
	}
	return v
}

func TestDimmableIntensity(t *testing.T) {
	b := newBuffer(0)
	f := &models.Fixture{VirtualID: 1, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1}

	if err := DriverFor(f.Type).ApplyIntensity(f, 0.5, b); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got := channel(t, b, 0, 1); got != 128 {
		t.Fatalf("expected 128 (round of 0.5*255), got %d", got)
	}
}

func TestIntensityClamping(t *testing.T) {
	b := newBuffer(0)
	f := &models.Fixture{VirtualID: 1, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1}
	d := DriverFor(f.Type)

	d.ApplyIntensity(f, 1.7, b)
	if got := channel(t, b, 0, 1); got != 255 {
		t.Fatalf("over-range should clamp to 255, got %d", got)
	}
	d.ApplyIntensity(f, -0.3, b)
	if got := channel(t, b, 0, 1); got != 0 {
		t.Fatalf("under-range should clamp to 0, got %d", got)
	}
}

func TestDimmableIgnoresColor(t *testing.T) {
	b := newBuffer(0)
	f := &models.Fixture{VirtualID: 1, Type: models.FixtureDimmable, Universe: 0, DMXChannel: 1}

	if err := DriverFor(f.Type).ApplyColor(f, 1, 1, 1, 1, b); err != nil {
		t.Fatalf("color on dimmable should be ignored, not fail: %v", err)
	}
	if got := channel(t, b, 0, 1); got != 0 {
		t.Fatalf("color on dimmable must not write channels, got %d", got)
	}
}

func TestRGBColor(t *testing.T) {
	b := newBuffer(0)
	f := &models.Fixture{VirtualID: 1, Type: models.FixtureRGB, Universe: 0, DMXChannel: 10}

	if err := DriverFor(f.Type).ApplyColor(f, 1.0, 0.5, 0.0, -1, b); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got := channel(t, b, 0, 10); got != 255 {
		t.Fatalf("red: expected 255, got %d", got)
	}
	if got := channel(t, b, 0, 11); got != 128 {
		t.Fatalf("green: expected 128, got %d", got)
	}
	if got := channel(t, b, 0, 12); got != 0 {
		t.Fatalf("blue: expected 0, got %d", got)
	}
}

func TestRGBWWhiteChannel(t *testing.T) {
	b := newBuffer(0)
	f := &models.Fixture{VirtualID: 1, Type: models.FixtureRGBW, Universe: 0, DMXChannel: 1}
	d := DriverFor(f.Type)

	d.ApplyColor(f, 0, 0, 0, 1.0, b)
	if got := channel(t, b, 0, 4); got != 255 {
		t.Fatalf("white: expected 255, got %d", got)
	}

	// w < 0 means "no white channel": the white byte stays untouched.
	d.ApplyColor(f, 1, 1, 1, -1, b)
	if got := channel(t, b, 0, 4); got != 255 {
		t.Fatalf("negative w must leave white untouched, got %d", got)
	}
}

func TestColorIntensityIsUniformAndIndependent(t *testing.T) {
	b := newBuffer(0)
	f := &models.Fixture{VirtualID: 1, Type: models.FixtureRGB, Universe: 0, DMXChannel: 1}
	d := DriverFor(f.Type)

	d.ApplyColor(f, 1.0, 0.0, 0.0, -1, b)
	d.ApplyIntensity(f, 0.5, b)

	// Intensity overwrites all color channels uniformly; no color*intensity
	// multiplication is performed.
	for ch := 1; ch <= 3; ch++ {
		if got := channel(t, b, 0, ch); got != 128 {
			t.Fatalf("channel %d: expected uniform 128, got %d", ch, got)
		}
	}
}

func TestMovingHeadLayout(t *testing.T) {
	b := newBuffer(0)
	f := &models.Fixture{VirtualID: 1, Type: models.FixtureMovingHead, Universe: 0, DMXChannel: 100}
	d := DriverFor(f.Type)

	if err := d.ApplyIntensity(f, 1.0, b); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	// Intensity lives at offset 6 of the 8-channel layout.
	if got := channel(t, b, 0, 106); got != 255 {
		t.Fatalf("intensity channel: expected 255, got %d", got)
	}
	for _, ch := range []int{100, 101, 102, 103, 104, 105, 107} {
		if got := channel(t, b, 0, ch); got != 0 {
			t.Fatalf("channel %d should be untouched, got %d", ch, got)
		}
	}

	if err := d.ApplyChannel(f, 7, 64, b); err != nil {
		t.Fatalf("strobe write failed: %v", err)
	}
	if got := channel(t, b, 0, 107); got != 64 {
		t.Fatalf("strobe channel: expected 64, got %d", got)
	}
}

func TestCustomMappedChannels(t *testing.T) {
	b := newBuffer(0)
	f := &models.Fixture{
		VirtualID: 1, Type: models.FixtureCustom, Universe: 0, DMXChannel: 20,
		CustomChannelMapping: []int{0, 4, 9},
	}
	d := DriverFor(f.Type)

	if err := d.ApplyChannel(f, 1, 200, b); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got := channel(t, b, 0, 24); got != 200 {
		t.Fatalf("mapped offset 4: expected 200 at channel 24, got %d", got)
	}

	if err := d.ApplyChannel(f, 3, 1, b); err == nil {
		t.Fatal("expected error for offset outside mapping")
	}
}

func TestApplyChannelOutsideSpan(t *testing.T) {
	b := newBuffer(0)
	f := &models.Fixture{VirtualID: 1, Type: models.FixtureRGB, Universe: 0, DMXChannel: 1}

	if err := DriverFor(f.Type).ApplyChannel(f, 3, 255, b); err == nil {
		t.Fatal("expected error for offset past span")
	}
	if err := DriverFor(f.Type).ApplyChannel(f, -1, 255, b); err == nil {
		t.Fatal("expected error for negative offset")
	}
}
