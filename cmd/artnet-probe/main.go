// artnet-probe broadcasts an ArtPoll and prints every node that answers.
// Useful for checking cabling and node addressing before pointing the
// controller at a rig.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/pkg/artnet"
)

func main() {
	var broadcast = flag.String("broadcast", "255.255.255.255", "broadcast address to poll")
	var wait = flag.Duration("wait", 3*time.Second, "how long to collect replies")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ip := net.ParseIP(*broadcast)
	if ip == nil {
		log.Fatal().Str("broadcast", *broadcast).Msg("Invalid broadcast address")
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: artnet.DefaultPort})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open UDP socket")
	}
	defer conn.Close()

	if raw, err := conn.SyscallConn(); err == nil {
		raw.Control(func(fd uintptr) {
			syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
		})
	}

	target := &net.UDPAddr{IP: ip, Port: artnet.DefaultPort}
	if _, err := conn.WriteToUDP(artnet.BuildPollPacket(), target); err != nil {
		log.Fatal().Err(err).Msg("Failed to send ArtPoll")
	}
	log.Info().Str("target", target.String()).Dur("wait", *wait).Msg("ArtPoll sent, collecting replies")

	deadline := time.Now().Add(*wait)
	conn.SetReadDeadline(deadline)

	seen := make(map[string]bool)
	buf := make([]byte, 1024)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		reply, err := artnet.ParsePollReply(buf[:n])
		if err != nil {
			continue
		}

		ip := reply.IP.String()
		if reply.IP.IsUnspecified() {
			ip = addr.IP.String()
		}
		if seen[ip] {
			continue
		}
		seen[ip] = true

		fmt.Printf("%-15s  %-18s net=%d subnet=%d ports=%d  %s\n",
			ip, reply.ShortName, reply.NetSwitch, reply.SubSwitch, reply.NumPorts, reply.LongName)
	}

	if len(seen) == 0 {
		fmt.Println("no Art-Net nodes answered")
		os.Exit(1)
	}
	fmt.Printf("%d node(s) answered\n", len(seen))
}
