package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/internal/config"
	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/models"
	"github.com/dmxctl/dmxctl-server/pkg/artnet"
	"github.com/dmxctl/dmxctl-server/pkg/rdm"
)

// ArtNet sends DMX universes as OpDmx packets over UDP and tracks the nodes
// answering OpPoll broadcasts. The target may be a broadcast address reaching
// every node on the segment or a single node's unicast address.
type ArtNet struct {
	cfg    config.ArtNetConfig
	conn   *net.UDPConn
	target *net.UDPAddr
	bus    *events.Bus

	mu    sync.RWMutex
	nodes map[string]*models.Node

	closeOnce sync.Once
	done      chan struct{}
}

// NewArtNet resolves the target, opens a broadcast-capable UDP socket and
// starts the poll-reply listener.
func NewArtNet(cfg config.ArtNetConfig, bus *events.Bus) (*ArtNet, error) {
	ip := net.ParseIP(cfg.TargetIP)
	if ip == nil {
		return nil, fmt.Errorf("invalid Art-Net target IP %q", cfg.TargetIP)
	}

	bindAddr, err := net.ResolveUDPAddr("udp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	conn, err := net.ListenUDP("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("open UDP socket: %w", err)
	}

	// The target is commonly a broadcast address; the socket must be allowed
	// to send to it.
	if raw, err := conn.SyscallConn(); err == nil {
		raw.Control(func(fd uintptr) {
			syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
		})
	}

	t := &ArtNet{
		cfg:    cfg,
		conn:   conn,
		target: &net.UDPAddr{IP: ip, Port: cfg.Port},
		bus:    bus,
		nodes:  make(map[string]*models.Node),
		done:   make(chan struct{}),
	}

	go t.readLoop()

	log.Info().Str("target", t.target.String()).Str("bind", cfg.BindAddr).Msg("Art-Net transport ready")
	return t, nil
}

func (t *ArtNet) Name() string { return config.TransportArtNet }

// SendDMX frames and transmits one full universe. The whole 512 bytes go out
// on every call regardless of what changed; UDP is lossy and the periodic
// full-state retransmission is self-healing.
func (t *ArtNet) SendDMX(universe int, data dmx.Universe) error {
	if universe < 0 || universe > t.cfg.MaxUniverse {
		return fmt.Errorf("universe %d out of range 0..%d", universe, t.cfg.MaxUniverse)
	}

	address := artnet.ComposePortAddress(uint8(t.cfg.Net), uint8(t.cfg.SubNet), uint8(universe))
	packet := artnet.BuildDMXPacket(address, data[:])

	if _, err := t.conn.WriteToUDP(packet, t.target); err != nil {
		return fmt.Errorf("send OpDmx to %s: %w", t.target, err)
	}
	return nil
}

// SendPoll broadcasts an OpPoll so nodes announce themselves to the listener.
func (t *ArtNet) SendPoll() error {
	if _, err := t.conn.WriteToUDP(artnet.BuildPollPacket(), t.target); err != nil {
		return fmt.Errorf("send OpPoll to %s: %w", t.target, err)
	}
	return nil
}

// readLoop consumes inbound packets, folding poll replies into the node
// cache. Everything else on the socket is ignored.
func (t *ArtNet) readLoop() {
	buf := make([]byte, 1024)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				log.Debug().Err(err).Msg("Art-Net read error")
				continue
			}
		}

		reply, err := artnet.ParsePollReply(buf[:n])
		if err != nil {
			continue
		}
		t.handlePollReply(reply, addr)
	}
}

// handlePollReply updates the node cache, firing node-discovered for
// first sightings.
func (t *ArtNet) handlePollReply(reply *artnet.PollReply, addr *net.UDPAddr) {
	ip := reply.IP.String()
	if reply.IP.IsUnspecified() && addr != nil {
		ip = addr.IP.String()
	}

	t.mu.Lock()
	node, known := t.nodes[ip]
	if !known {
		node = &models.Node{IP: ip}
		t.nodes[ip] = node
	}
	node.Port = reply.Port
	node.ShortName = reply.ShortName
	node.LongName = reply.LongName
	node.Net = reply.NetSwitch
	node.SubNet = reply.SubSwitch
	node.NumPorts = reply.NumPorts
	node.LastSeen = time.Now()
	snapshot := *node
	t.mu.Unlock()

	if !known {
		log.Info().Str("ip", ip).Str("name", reply.ShortName).Msg("Art-Net node discovered")
		t.bus.PublishNodeDiscovered(snapshot)
	}
}

// AgeNodes drops nodes that have not answered a poll within the timeout.
// Driven from the controller's tick, like the rest of the housekeeping.
func (t *ArtNet) AgeNodes() {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, node := range t.nodes {
		if now.Sub(node.LastSeen) > t.cfg.NodeTimeout {
			delete(t.nodes, ip)
			log.Info().Str("ip", ip).Msg("Art-Net node timed out")
		}
	}
}

// Nodes returns the known nodes.
func (t *ArtNet) Nodes() []models.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := make([]models.Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		list = append(list, *n)
	}
	return list
}

// DiscoverDevices implements the RDM side-channel. Art-Net carries RDM in
// OpRdm packets; framing them is not implemented, so discovery reports
// unsupported and the liveness machinery runs on whatever was restored or
// injected.
func (t *ArtNet) DiscoverDevices(ctx context.Context) ([]rdm.DeviceInfo, error) {
	return nil, ErrRDMUnsupported
}

// QueryDevice implements the RDM side-channel; see DiscoverDevices.
func (t *ArtNet) QueryDevice(ctx context.Context, uid rdm.UID) (*rdm.DeviceInfo, error) {
	return nil, ErrRDMUnsupported
}

// Close stops the listener and releases the socket.
func (t *ArtNet) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}
