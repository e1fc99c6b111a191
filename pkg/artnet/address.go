package artnet

import "fmt"

// PortAddress is the 15-bit Art-Net port address identifying one universe on
// the network: bits 14-8 are the Net, bits 7-4 the SubNet, bits 3-0 the
// universe. It is transmitted little-endian in the OpDmx header.
type PortAddress uint16

// ComposePortAddress builds a port address from its three fields. Out-of-range
// fields are masked to their valid width.
func ComposePortAddress(net, subnet, universe uint8) PortAddress {
	return PortAddress(uint16(net&0x7F)<<8 | uint16(subnet&0x0F)<<4 | uint16(universe&0x0F))
}

// Net returns the 7-bit Net field.
func (a PortAddress) Net() uint8 { return uint8(a >> 8 & 0x7F) }

// SubNet returns the 4-bit SubNet field.
func (a PortAddress) SubNet() uint8 { return uint8(a >> 4 & 0x0F) }

// Universe returns the 4-bit universe field.
func (a PortAddress) Universe() uint8 { return uint8(a & 0x0F) }

func (a PortAddress) String() string {
	return fmt.Sprintf("%d:%d:%d", a.Net(), a.SubNet(), a.Universe())
}
