// Package artnet implements the Art-Net wire protocol: packet framing for
// OpDmx and OpPoll, and parsing of OpPollReply. It is a pure codec with no
// socket handling.
package artnet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// Protocol constants
const (
	// OpCodeDMX is the Art-Net operation code for DMX data.
	OpCodeDMX uint16 = 0x5000
	// OpCodePoll is the Art-Net operation code for node discovery polls.
	OpCodePoll uint16 = 0x2000
	// OpCodePollReply is the Art-Net operation code for poll replies.
	OpCodePollReply uint16 = 0x2100
	// ProtocolVersion is the Art-Net protocol revision (always 14).
	ProtocolVersion uint16 = 14
	// DMXDataLength is the number of DMX channels per universe.
	DMXDataLength uint16 = 512
	// DMXPacketSize is the total size of an OpDmx packet: 18-byte header + data.
	DMXPacketSize = 18 + int(DMXDataLength)
	// PollPacketSize is the size of an OpPoll packet.
	PollPacketSize = 14
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
)

// packetID is the 8-byte Art-Net packet identifier "Art-Net\0".
var packetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// BuildDMXPacket frames one universe of DMX data as an OpDmx packet.
//
// Art-Net uses a mixed-endian layout: the opcode and port address are
// little-endian, the protocol version and data length are big-endian. The
// sequence byte is always 0 here, meaning sequencing is disabled; the
// periodic full-universe retransmission makes packet-loss detection at this
// layer unnecessary. Data shorter than 512 bytes is zero-padded.
func BuildDMXPacket(address PortAddress, data []byte) []byte {
	packet := make([]byte, DMXPacketSize)

	copy(packet[0:8], packetID)
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)
	packet[12] = 0 // sequence disabled
	packet[13] = 0 // physical input port
	binary.LittleEndian.PutUint16(packet[14:16], uint16(address))
	binary.BigEndian.PutUint16(packet[16:18], DMXDataLength)

	if len(data) > int(DMXDataLength) {
		data = data[:DMXDataLength]
	}
	copy(packet[18:], data)

	return packet
}

// BuildPollPacket frames an OpPoll broadcast asking all nodes to reply.
func BuildPollPacket() []byte {
	packet := make([]byte, PollPacketSize)

	copy(packet[0:8], packetID)
	binary.LittleEndian.PutUint16(packet[8:10], OpCodePoll)
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)
	packet[12] = 0x02 // TalkToMe: send reply on node change
	packet[13] = 0x00 // diagnostic priority

	return packet
}

// PollReply is the decoded subset of an OpPollReply packet.
type PollReply struct {
	IP        net.IP
	Port      uint16
	ShortName string
	LongName  string
	// NetSwitch and SubSwitch are the node's configured Net and SubNet.
	NetSwitch uint8
	SubSwitch uint8
	NumPorts  uint16
}

// ParsePollReply decodes an OpPollReply packet. It returns an error for
// packets that are not well-formed replies; callers sharing a socket with DMX
// traffic should treat that as "not a reply" and move on.
func ParsePollReply(data []byte) (*PollReply, error) {
	if len(data) < 207 {
		return nil, fmt.Errorf("poll reply too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[0:8], packetID) {
		return nil, fmt.Errorf("bad packet identifier")
	}
	if op := binary.LittleEndian.Uint16(data[8:10]); op != OpCodePollReply {
		return nil, fmt.Errorf("unexpected opcode 0x%04x", op)
	}

	reply := &PollReply{
		IP:        net.IPv4(data[10], data[11], data[12], data[13]),
		Port:      binary.LittleEndian.Uint16(data[14:16]),
		NetSwitch: data[18],
		SubSwitch: data[19],
		ShortName: cstring(data[26:44]),
		LongName:  cstring(data[44:108]),
		NumPorts:  binary.BigEndian.Uint16(data[172:174]),
	}
	return reply, nil
}

// cstring trims a fixed-size zero-terminated field.
func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
