package transport

import (
	"net"
	"testing"
	"time"

	"github.com/dmxctl/dmxctl-server/internal/config"
	"github.com/dmxctl/dmxctl-server/internal/dmx"
	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/models"
	"github.com/dmxctl/dmxctl-server/pkg/artnet"
)

func newTestArtNet(t *testing.T) (*ArtNet, *net.UDPConn) {
	t.Helper()

	sink, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("open sink socket: %v", err)
	}
	t.Cleanup(func() { sink.Close() })

	cfg := config.ArtNetConfig{
		TargetIP:    "127.0.0.1",
		Port:        sink.LocalAddr().(*net.UDPAddr).Port,
		BindAddr:    "127.0.0.1:0",
		MaxUniverse: 15,
		NodeTimeout: 5 * time.Minute,
	}
	tr, err := NewArtNet(cfg, events.NewBus())
	if err != nil {
		t.Fatalf("NewArtNet: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, sink
}

func TestArtNetSendDMX(t *testing.T) {
	tr, sink := newTestArtNet(t)

	var data dmx.Universe
	data[0] = 0xFF
	data[511] = 0x10
	if err := tr.SendDMX(4, data); err != nil {
		t.Fatalf("SendDMX: %v", err)
	}

	sink.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := sink.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if n != artnet.DMXPacketSize {
		t.Fatalf("packet size = %d, want %d", n, artnet.DMXPacketSize)
	}
	if buf[8] != 0x00 || buf[9] != 0x50 {
		t.Fatalf("opcode bytes = %#x %#x, want 0x00 0x50", buf[8], buf[9])
	}
	if buf[14] != 0x00 || buf[15] != 0x04 {
		t.Fatalf("port address bytes = %#x %#x, want universe 4", buf[14], buf[15])
	}
	if buf[18] != 0xFF || buf[18+511] != 0x10 {
		t.Fatalf("payload not carried through")
	}
}

func TestArtNetSendDMXRange(t *testing.T) {
	tr, _ := newTestArtNet(t)

	var data dmx.Universe
	if err := tr.SendDMX(16, data); err == nil {
		t.Fatal("expected error for universe above the configured maximum")
	}
	if err := tr.SendDMX(-1, data); err == nil {
		t.Fatal("expected error for negative universe")
	}
}

func TestArtNetNodeCache(t *testing.T) {
	tr, _ := newTestArtNet(t)

	var discovered int
	tr.bus.Subscribe(&events.Subscriber{
		NodeDiscovered: func(n models.Node) { discovered++ },
	})

	reply := &artnet.PollReply{
		IP:        net.IPv4(10, 0, 0, 7),
		Port:      artnet.DefaultPort,
		ShortName: "node-a",
		NumPorts:  2,
	}
	tr.handlePollReply(reply, nil)
	tr.handlePollReply(reply, nil)

	nodes := tr.Nodes()
	if len(nodes) != 1 {
		t.Fatalf("node count = %d, want 1", len(nodes))
	}
	if nodes[0].ShortName != "node-a" || nodes[0].NumPorts != 2 {
		t.Fatalf("unexpected node %+v", nodes[0])
	}
	if discovered != 1 {
		t.Fatalf("node-discovered fired %d times, want 1", discovered)
	}

	tr.mu.Lock()
	tr.nodes["10.0.0.7"].LastSeen = time.Now().Add(-10 * time.Minute)
	tr.mu.Unlock()
	tr.AgeNodes()
	if len(tr.Nodes()) != 0 {
		t.Fatal("stale node survived AgeNodes")
	}
}
