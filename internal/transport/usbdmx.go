package transport

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/internal/config"
	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// USBDMX is the serial dongle transport. The open-and-frame path for the
// dongle's protocol is stubbed: configuration is validated and sends are
// accepted and dropped, so a rig configured for USB can run the full control
// surface without hardware attached.
type USBDMX struct {
	device string
}

// NewUSBDMX validates the serial device configuration.
func NewUSBDMX(cfg config.USBConfig) (*USBDMX, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("usb-dmx serial device is required")
	}
	log.Warn().Str("device", cfg.Device).Msg("USB-DMX transport is a stub, frames will be dropped")
	return &USBDMX{device: cfg.Device}, nil
}

func (t *USBDMX) Name() string { return config.TransportUSB }

// SendDMX accepts and drops the frame.
func (t *USBDMX) SendDMX(universe int, data dmx.Universe) error {
	log.Trace().Int("universe", universe).Msg("USB-DMX frame dropped by stub")
	return nil
}

// DiscoverDevices implements the RDM side-channel; unsupported on the stub.
func (t *USBDMX) DiscoverDevices(ctx context.Context) ([]rdm.DeviceInfo, error) {
	return nil, ErrRDMUnsupported
}

// QueryDevice implements the RDM side-channel; unsupported on the stub.
func (t *USBDMX) QueryDevice(ctx context.Context, uid rdm.UID) (*rdm.DeviceInfo, error) {
	return nil, ErrRDMUnsupported
}

func (t *USBDMX) Close() error { return nil }
