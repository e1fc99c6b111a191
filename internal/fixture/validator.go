package fixture

import (
	"errors"
	"fmt"

	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/internal/models"
)

// ErrConflict wraps rejections caused by the existing patch (duplicate ID or
// channel overlap) rather than by the candidate itself.
var ErrConflict = errors.New("placement conflict")

// ValidatePlacement decides whether a candidate fixture may join the given
// set of registered fixtures. It checks the candidate on its own terms first
// (ID, type, channel span inside 1..512, custom mapping offsets), then runs an
// interval-overlap scan against every fixture already in the candidate's
// universe. On rejection the returned error names the reason, including the
// conflicting fixture's ID for overlaps; the caller's state is never touched.
func ValidatePlacement(candidate *models.Fixture, existing []*models.Fixture) error {
	if candidate.VirtualID <= 0 {
		return fmt.Errorf("virtual ID must be positive, got %d", candidate.VirtualID)
	}
	if !candidate.Type.Valid() {
		return fmt.Errorf("unknown fixture type %q", candidate.Type)
	}
	if candidate.Universe < 0 {
		return fmt.Errorf("universe must not be negative, got %d", candidate.Universe)
	}
	if candidate.DMXChannel < 1 || candidate.DMXChannel > dmx.UniverseSize {
		return fmt.Errorf("DMX channel %d out of range 1..%d", candidate.DMXChannel, dmx.UniverseSize)
	}

	required := candidate.RequiredChannels()
	if required < 1 {
		return fmt.Errorf("fixture occupies no channels")
	}
	if candidate.DMXChannel+required-1 > dmx.UniverseSize {
		return fmt.Errorf("fixture spans channels %d-%d, past the end of the universe",
			candidate.DMXChannel, candidate.DMXChannel+required-1)
	}

	// Mapping offsets must stay inside the span the overlap scan accounts
	// for; an offset past it would let the driver write into a neighbor's
	// channels.
	if candidate.Type == models.FixtureCustom {
		for i, offset := range candidate.CustomChannelMapping {
			if offset < 0 || offset >= required {
				return fmt.Errorf("custom mapping entry %d: offset %d outside the fixture's %d-channel span", i, offset, required)
			}
		}
	}

	for _, other := range existing {
		if other.VirtualID == candidate.VirtualID {
			return fmt.Errorf("%w: virtual ID %d already registered", ErrConflict, candidate.VirtualID)
		}
		if candidate.Overlaps(other) {
			return fmt.Errorf("%w: channels %d-%d overlap fixture %d (channels %d-%d) in universe %d",
				ErrConflict, candidate.DMXChannel, candidate.LastChannel(),
				other.VirtualID, other.DMXChannel, other.LastChannel(), candidate.Universe)
		}
	}

	return nil
}
