package models

import (
	"time"

	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// UnboundVirtualID marks a discovered fixture that has not been promoted to a
// registered virtual fixture.
const UnboundVirtualID = -1

// DiscoveredFixture is an entry in the RDM discovery cache. Its lifecycle is
// driven by the poll clock: LastSeen refreshes on every successful poll,
// Online flips false past the offline threshold, and the entry is deleted
// past the removal threshold.
type DiscoveredFixture struct {
	UID            rdm.UID     `json:"uid" db:"uid"`
	ManufacturerID uint16      `json:"manufacturerId" db:"manufacturer_id"`
	Manufacturer   string      `json:"manufacturer,omitempty" db:"manufacturer"`
	ModelID        uint16      `json:"modelId" db:"model_id"`
	Model          string      `json:"model,omitempty" db:"model"`
	Universe       int         `json:"universe" db:"universe"`
	DMXAddress     int         `json:"dmxAddress" db:"dmx_address"`
	ChannelCount   int         `json:"channelCount" db:"channel_count"`
	Type           FixtureType `json:"type" db:"type"`

	Online   bool      `json:"online" db:"online"`
	LastSeen time.Time `json:"lastSeen" db:"last_seen"`

	// VirtualID joins the entry to a registered fixture; UnboundVirtualID
	// until auto-registered.
	VirtualID int `json:"virtualFixtureId" db:"virtual_fixture_id"`
}

// Node is an Art-Net node seen via OpPollReply.
type Node struct {
	IP        string    `json:"ip"`
	Port      uint16    `json:"port"`
	ShortName string    `json:"shortName"`
	LongName  string    `json:"longName,omitempty"`
	Net       uint8     `json:"net"`
	SubNet    uint8     `json:"subNet"`
	NumPorts  uint16    `json:"numPorts"`
	LastSeen  time.Time `json:"lastSeen"`
}
