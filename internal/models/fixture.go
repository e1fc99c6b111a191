package models

import (
	"fmt"
	"time"

	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// FixtureType identifies the channel layout family of a virtual fixture.
type FixtureType string

const (
	FixtureDimmable   FixtureType = "dimmable"
	FixtureRGB        FixtureType = "rgb"
	FixtureRGBW       FixtureType = "rgbw"
	FixtureMovingHead FixtureType = "moving_head"
	FixtureCustom     FixtureType = "custom"
)

// DefaultChannelCount returns the channel footprint implied by the type.
// Custom fixtures have no implied footprint; their mapping length decides.
func (t FixtureType) DefaultChannelCount() int {
	switch t {
	case FixtureDimmable:
		return 1
	case FixtureRGB:
		return 3
	case FixtureRGBW:
		return 4
	case FixtureMovingHead:
		return 8
	default:
		return 0
	}
}

// Valid reports whether t is a known fixture type.
func (t FixtureType) Valid() bool {
	switch t {
	case FixtureDimmable, FixtureRGB, FixtureRGBW, FixtureMovingHead, FixtureCustom:
		return true
	}
	return false
}

// Fixture is a registered virtual fixture: a contiguous span of DMX channels
// in one universe, driven through its type's semantic command set.
type Fixture struct {
	VirtualID    int         `json:"virtualId" db:"virtual_id"`
	Name         string      `json:"name,omitempty" db:"name"`
	Type         FixtureType `json:"type" db:"type"`
	Universe     int         `json:"universe" db:"universe"`
	DMXChannel   int         `json:"dmxChannel" db:"dmx_channel"`
	ChannelCount int         `json:"channelCount" db:"channel_count"`

	// CustomChannelMapping lists channel offsets for custom fixtures; only
	// consulted when Type is FixtureCustom.
	CustomChannelMapping []int `json:"customChannelMapping,omitempty" db:"custom_channel_mapping"`

	// RDMUID is set when the fixture was provisioned from RDM discovery.
	RDMUID     rdm.UID `json:"rdmUid,omitempty" db:"rdm_uid"`
	RDMCapable bool    `json:"rdmCapable" db:"rdm_capable"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// RequiredChannels resolves the fixture's channel footprint: an explicit
// ChannelCount wins, then the type default, then the custom mapping length.
// A custom fixture with no mapping occupies a single channel.
func (f *Fixture) RequiredChannels() int {
	if f.ChannelCount > 0 {
		return f.ChannelCount
	}
	if f.Type == FixtureCustom {
		if n := len(f.CustomChannelMapping); n > 0 {
			return n
		}
		return 1
	}
	return f.Type.DefaultChannelCount()
}

// LastChannel returns the highest 1-based channel the fixture occupies.
func (f *Fixture) LastChannel() int {
	return f.DMXChannel + f.RequiredChannels() - 1
}

// Overlaps reports whether two fixtures occupy intersecting channel spans in
// the same universe.
func (f *Fixture) Overlaps(other *Fixture) bool {
	if f.Universe != other.Universe {
		return false
	}
	return !(f.LastChannel() < other.DMXChannel || f.DMXChannel > other.LastChannel())
}

func (f *Fixture) String() string {
	return fmt.Sprintf("fixture %d (%s) universe %d channels %d-%d",
		f.VirtualID, f.Type, f.Universe, f.DMXChannel, f.LastChannel())
}
