package fixture

import (
	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/fade"
	"github.com/dmxctl/dmxctl-server/internal/models"
)

// UniverseNotFound is the sentinel returned by setters referencing an unknown
// virtual ID. Experience code routinely addresses fixtures that may since
// have been unregistered, so this is a return value, not an error.
const UniverseNotFound = -1

// Service is the single API surface for fixture operations: it routes
// semantic commands through the type's driver into the channel buffer, runs
// the fade engine, and raises change events. Not safe for concurrent use on
// its own; the controller serializes all calls.
type Service struct {
	registry *Registry
	buffer   *dmx.Buffer
	fades    *fade.Engine
	bus      *events.Bus
}

// NewService wires a service over shared buffer and event bus instances.
func NewService(buffer *dmx.Buffer, bus *events.Bus) *Service {
	return &Service{
		registry: NewRegistry(),
		buffer:   buffer,
		fades:    fade.NewEngine(),
		bus:      bus,
	}
}

// Register validates and stores a fixture and ensures its universe exists in
// the buffer. Rejections leave both registry and buffer unchanged.
func (s *Service) Register(f *models.Fixture) error {
	if err := s.registry.Register(f); err != nil {
		return err
	}
	s.buffer.EnsureUniverse(f.Universe)
	log.Info().Int("fixture", f.VirtualID).Str("type", string(f.Type)).
		Int("universe", f.Universe).Int("channel", f.DMXChannel).
		Int("channels", f.RequiredChannels()).Msg("fixture registered")
	return nil
}

// Unregister removes a fixture and cancels any in-flight fade for it.
func (s *Service) Unregister(virtualID int) bool {
	if !s.registry.Unregister(virtualID) {
		return false
	}
	s.fades.Cancel(virtualID)
	log.Info().Int("fixture", virtualID).Msg("fixture unregistered")
	return true
}

// Find looks up a registered fixture.
func (s *Service) Find(virtualID int) (*models.Fixture, bool) {
	return s.registry.Find(virtualID)
}

// All returns the registered fixtures ordered by virtual ID.
func (s *Service) All() []*models.Fixture {
	return s.registry.All()
}

// SetIntensity writes a fixture's intensity (clamped to [0,1]) and returns
// its universe, or UniverseNotFound.
func (s *Service) SetIntensity(virtualID int, value float64) int {
	f, ok := s.registry.Find(virtualID)
	if !ok {
		return UniverseNotFound
	}
	if err := DriverFor(f.Type).ApplyIntensity(f, value, s.buffer); err != nil {
		log.Error().Err(err).Int("fixture", virtualID).Msg("intensity write failed")
		return f.Universe
	}
	s.bus.PublishIntensityChanged(virtualID, clamp01(value))
	return f.Universe
}

// SetColor writes a fixture's color channels (clamped to [0,1]; w < 0 means
// no white channel) and returns its universe, or UniverseNotFound.
func (s *Service) SetColor(virtualID int, r, g, b, w float64) int {
	f, ok := s.registry.Find(virtualID)
	if !ok {
		return UniverseNotFound
	}
	if err := DriverFor(f.Type).ApplyColor(f, r, g, b, w, s.buffer); err != nil {
		log.Error().Err(err).Int("fixture", virtualID).Msg("color write failed")
		return f.Universe
	}
	s.bus.PublishColorChanged(virtualID, clamp01(r), clamp01(g), clamp01(b))
	return f.Universe
}

// SetChannel writes a raw byte at a 0-based offset within the fixture's span
// (mapped offsets for custom fixtures) and returns its universe, or
// UniverseNotFound. The value is clamped to 0..255. An offset outside the
// fixture's span is reported as an error so callers can reject the write.
func (s *Service) SetChannel(virtualID, offset, value int) (int, error) {
	f, ok := s.registry.Find(virtualID)
	if !ok {
		return UniverseNotFound, nil
	}
	if value < 0 {
		value = 0
	} else if value > 255 {
		value = 255
	}
	if err := DriverFor(f.Type).ApplyChannel(f, offset, byte(value), s.buffer); err != nil {
		return f.Universe, err
	}
	return f.Universe, nil
}

// StartFade begins a linear intensity ramp to target over duration seconds.
// The starting point is the in-flight fade value when one exists, otherwise
// the fixture's current intensity read back from the buffer, so a retarget
// never jumps. A non-positive duration applies the target immediately.
func (s *Service) StartFade(virtualID int, target, duration float64) int {
	f, ok := s.registry.Find(virtualID)
	if !ok {
		return UniverseNotFound
	}

	current, mid := s.fades.Current(virtualID)
	if !mid {
		current = s.currentIntensity(f)
	}

	if !s.fades.Start(virtualID, current, clamp01(target), duration) {
		// Immediate apply: no fade entry was created.
		return s.SetIntensity(virtualID, target)
	}
	return f.Universe
}

// CancelFade removes a fixture's in-flight fade, freezing its value.
func (s *Service) CancelFade(virtualID int) bool {
	return s.fades.Cancel(virtualID)
}

// Tick advances the fade engine by dt seconds and flushes every interpolated
// value into the buffer, so the same tick's transmission carries it.
func (s *Service) Tick(dt float64) {
	s.fades.Tick(dt, func(virtualID int, value float64) {
		f, ok := s.registry.Find(virtualID)
		if !ok {
			return
		}
		if err := DriverFor(f.Type).ApplyIntensity(f, value, s.buffer); err != nil {
			log.Error().Err(err).Int("fixture", virtualID).Msg("fade write failed")
			return
		}
		s.bus.PublishIntensityChanged(virtualID, value)
	})
}

// AllOff cancels every fade and blacks out every live universe.
func (s *Service) AllOff() {
	s.fades.Clear()
	s.buffer.Blackout()
	for _, f := range s.registry.All() {
		s.bus.PublishIntensityChanged(f.VirtualID, 0)
	}
	log.Info().Msg("all fixtures off")
}

// ActiveFades returns the number of in-flight fades.
func (s *Service) ActiveFades() int {
	return s.fades.Active()
}

// Reset clears registry, fades and buffer. Used by controller shutdown.
func (s *Service) Reset() {
	s.registry.Clear()
	s.fades.Clear()
	s.buffer.Reset()
}

// currentIntensity reads the fixture's intensity back from the buffer state
// to seed a fade's starting point.
func (s *Service) currentIntensity(f *models.Fixture) float64 {
	offset := 0
	switch f.Type {
	case models.FixtureMovingHead:
		offset = movingHeadIntensity
	case models.FixtureCustom:
		if len(f.CustomChannelMapping) > 0 {
			offset = f.CustomChannelMapping[0]
		}
	}
	v, err := s.buffer.GetChannel(f.Universe, f.DMXChannel+offset)
	if err != nil {
		return 0
	}
	return float64(v) / 255
}
