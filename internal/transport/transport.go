// Package transport binds the channel buffer to the wire. Transports are
// fire-and-forget: a failed send is logged and healed by the next tick's
// full-universe retransmission, never retried.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmxctl/dmxctl-server/internal/config"
	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// ErrRDMUnsupported is returned by the RDM side-channel of transports that
// cannot carry RDM frames. The discovery service treats it as a transient
// poll failure.
var ErrRDMUnsupported = errors.New("transport does not support RDM")

// Transport is the output device abstraction. SendDMX carries one full
// universe; the RDM methods are the side-channel the discovery service polls
// through.
type Transport interface {
	Name() string
	SendDMX(universe int, data dmx.Universe) error
	DiscoverDevices(ctx context.Context) ([]rdm.DeviceInfo, error)
	QueryDevice(ctx context.Context, uid rdm.UID) (*rdm.DeviceInfo, error)
	Close() error
}

// New builds the configured transport. Configuration errors fail here with
// no partial state left behind.
func New(cfg *config.Config, bus *events.Bus) (Transport, error) {
	switch cfg.DMX.Transport {
	case config.TransportArtNet:
		return NewArtNet(cfg.DMX.ArtNet, bus)
	case config.TransportUSB:
		return NewUSBDMX(cfg.DMX.USB)
	case config.TransportSACN:
		return nil, fmt.Errorf("sACN transport is reserved and not implemented")
	default:
		return nil, fmt.Errorf("unknown DMX transport %q", cfg.DMX.Transport)
	}
}
