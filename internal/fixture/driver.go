package fixture

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/internal/models"
)

// Moving-head channel layout, frozen for wire compatibility with patched rigs:
// pan, pan fine, tilt, tilt fine, color wheel, gobo, intensity, strobe.
const (
	movingHeadPan       = 0
	movingHeadPanFine   = 1
	movingHeadTilt      = 2
	movingHeadTiltFine  = 3
	movingHeadColor     = 4
	movingHeadGobo      = 5
	movingHeadIntensity = 6
	movingHeadStrobe    = 7
)

// Driver translates semantic commands into channel writes within a fixture's
// span. Intensity and color are independent channel writers: setting one never
// recomputes the other.
type Driver interface {
	// ApplyIntensity writes the fixture's intensity channel(s). value is
	// clamped to [0,1].
	ApplyIntensity(f *models.Fixture, value float64, buf *dmx.Buffer) error
	// ApplyColor writes the fixture's color channels. w < 0 means "no white
	// channel". Calling this on a fixture without color channels is a caller
	// error: logged and ignored.
	ApplyColor(f *models.Fixture, r, g, b, w float64, buf *dmx.Buffer) error
	// ApplyChannel writes a raw byte at a 0-based offset within the span.
	ApplyChannel(f *models.Fixture, offset int, value byte, buf *dmx.Buffer) error
}

// DriverFor resolves the driver for a fixture type. Unknown types never reach
// this point: registration rejects them.
func DriverFor(t models.FixtureType) Driver {
	switch t {
	case models.FixtureRGB:
		return colorDriver{channels: 3}
	case models.FixtureRGBW:
		return colorDriver{channels: 4}
	case models.FixtureMovingHead:
		return movingHeadDriver{}
	case models.FixtureCustom:
		return customDriver{}
	default:
		return dimmableDriver{}
	}
}

// clamp01 clamps to the unit interval; NaN collapses to 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// toByte converts a unit-interval value to a DMX byte.
func toByte(v float64) byte {
	return byte(math.Round(clamp01(v) * 255))
}

// writeOffset writes within the fixture's span at a raw 0-based offset.
func writeOffset(f *models.Fixture, offset int, value byte, buf *dmx.Buffer) error {
	if offset < 0 || offset >= f.RequiredChannels() {
		return fmt.Errorf("offset %d outside fixture %d span of %d channels", offset, f.VirtualID, f.RequiredChannels())
	}
	return buf.SetChannel(f.Universe, f.DMXChannel+offset, value)
}

// dimmableDriver drives single-channel dimmers.
type dimmableDriver struct{}

func (dimmableDriver) ApplyIntensity(f *models.Fixture, value float64, buf *dmx.Buffer) error {
	return writeOffset(f, 0, toByte(value), buf)
}

func (dimmableDriver) ApplyColor(f *models.Fixture, r, g, b, w float64, buf *dmx.Buffer) error {
	log.Warn().Int("fixture", f.VirtualID).Str("type", string(f.Type)).Msg("color command on fixture without color channels, ignored")
	return nil
}

func (dimmableDriver) ApplyChannel(f *models.Fixture, offset int, value byte, buf *dmx.Buffer) error {
	return writeOffset(f, offset, value, buf)
}

// colorDriver drives RGB (3 channels) and RGBW (4 channels) fixtures.
type colorDriver struct {
	channels int
}

// ApplyIntensity writes a uniform level to every color channel. There is no
// stored-color recomputation and no color*intensity multiplication.
func (d colorDriver) ApplyIntensity(f *models.Fixture, value float64, buf *dmx.Buffer) error {
	v := toByte(value)
	for offset := 0; offset < d.channels; offset++ {
		if err := writeOffset(f, offset, v, buf); err != nil {
			return err
		}
	}
	return nil
}

func (d colorDriver) ApplyColor(f *models.Fixture, r, g, b, w float64, buf *dmx.Buffer) error {
	if err := writeOffset(f, 0, toByte(r), buf); err != nil {
		return err
	}
	if err := writeOffset(f, 1, toByte(g), buf); err != nil {
		return err
	}
	if err := writeOffset(f, 2, toByte(b), buf); err != nil {
		return err
	}
	if d.channels < 4 || w < 0 {
		return nil
	}
	return writeOffset(f, 3, toByte(w), buf)
}

func (colorDriver) ApplyChannel(f *models.Fixture, offset int, value byte, buf *dmx.Buffer) error {
	return writeOffset(f, offset, value, buf)
}

// movingHeadDriver drives the frozen 8-channel moving-head layout.
type movingHeadDriver struct{}

func (movingHeadDriver) ApplyIntensity(f *models.Fixture, value float64, buf *dmx.Buffer) error {
	return writeOffset(f, movingHeadIntensity, toByte(value), buf)
}

func (movingHeadDriver) ApplyColor(f *models.Fixture, r, g, b, w float64, buf *dmx.Buffer) error {
	log.Warn().Int("fixture", f.VirtualID).Str("type", string(f.Type)).Msg("color command on fixture without color channels, ignored")
	return nil
}

func (movingHeadDriver) ApplyChannel(f *models.Fixture, offset int, value byte, buf *dmx.Buffer) error {
	return writeOffset(f, offset, value, buf)
}

// customDriver drives caller-mapped fixtures: command offsets index into the
// custom channel mapping rather than the raw span.
type customDriver struct{}

func (d customDriver) ApplyIntensity(f *models.Fixture, value float64, buf *dmx.Buffer) error {
	return d.ApplyChannel(f, 0, toByte(value), buf)
}

func (customDriver) ApplyColor(f *models.Fixture, r, g, b, w float64, buf *dmx.Buffer) error {
	log.Warn().Int("fixture", f.VirtualID).Str("type", string(f.Type)).Msg("color command on fixture without color channels, ignored")
	return nil
}

func (customDriver) ApplyChannel(f *models.Fixture, offset int, value byte, buf *dmx.Buffer) error {
	if len(f.CustomChannelMapping) == 0 {
		return writeOffset(f, offset, value, buf)
	}
	if offset < 0 || offset >= len(f.CustomChannelMapping) {
		return fmt.Errorf("offset %d outside fixture %d mapping of %d entries", offset, f.VirtualID, len(f.CustomChannelMapping))
	}
	mapped := f.CustomChannelMapping[offset]
	return buf.SetChannel(f.Universe, f.DMXChannel+mapped, value)
}
