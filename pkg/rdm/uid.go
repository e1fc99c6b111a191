// Package rdm holds the Remote Device Management vocabulary shared between
// the discovery service and the transports: the 48-bit unique ID and the
// parameter IDs this server models.
package rdm

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// UID represents a 6-byte RDM unique ID: a 16-bit ESTA manufacturer ID
// followed by a 32-bit device ID.
type UID [6]byte

// ParseUID parses the canonical "mmmm:dddddddd" hex form.
func ParseUID(s string) (UID, error) {
	var uid UID

	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 8 {
		return uid, fmt.Errorf("invalid RDM UID %q", s)
	}

	m, err := hex.DecodeString(parts[0])
	if err != nil {
		return uid, fmt.Errorf("invalid RDM UID %q: %w", s, err)
	}
	d, err := hex.DecodeString(parts[1])
	if err != nil {
		return uid, fmt.Errorf("invalid RDM UID %q: %w", s, err)
	}

	copy(uid[0:2], m)
	copy(uid[2:6], d)
	return uid, nil
}

// ManufacturerID returns the ESTA manufacturer ID half.
func (u UID) ManufacturerID() uint16 {
	return binary.BigEndian.Uint16(u[0:2])
}

// DeviceID returns the device ID half.
func (u UID) DeviceID() uint32 {
	return binary.BigEndian.Uint32(u[2:6])
}

// IsZero reports whether the UID is unset.
func (u UID) IsZero() bool {
	return u == UID{}
}

// String returns the canonical "mmmm:dddddddd" hex form.
func (u UID) String() string {
	return fmt.Sprintf("%04x:%08x", u.ManufacturerID(), u.DeviceID())
}

// MarshalJSON implements json.Marshaler
func (u UID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (u *UID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	uid, err := ParseUID(s)
	if err != nil {
		return err
	}
	*u = uid
	return nil
}

// PID is an RDM parameter ID. Only the parameters needed for discovery,
// identification and addressing are modeled; the full E1.20 catalog is out of
// scope.
type PID uint16

const (
	PIDDeviceInfo      PID = 0x0060
	PIDDMXStartAddress PID = 0x00F0
	PIDIdentifyDevice  PID = 0x1000
)

// DeviceInfo is the subset of the DEVICE_INFO response used to provision a
// virtual fixture from a discovered device.
type DeviceInfo struct {
	UID             UID    `json:"uid"`
	ManufacturerID  uint16 `json:"manufacturerId"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	ModelID         uint16 `json:"modelId"`
	Model           string `json:"model,omitempty"`
	DMXStartAddress uint16 `json:"dmxStartAddress"`
	DMXFootprint    uint16 `json:"dmxFootprint"`
}
