// Package server bridges the in-process event bus onto NATS: engine events go
// out as lighting.* subjects, and lighting.command.* subjects come back in as
// controller commands. Embedders and external automation talk to the engine
// through these subjects without touching the REST API.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dmxctl/dmxctl-server/internal/controller"
	"github.com/dmxctl/dmxctl-server/internal/events"
	"github.com/dmxctl/dmxctl-server/internal/models"
)

// NATSBridge relays events and commands between NATS and the controller.
type NATSBridge struct {
	nc         *nats.Conn
	controller *controller.Controller
	bus        *events.Bus
	subs       []*nats.Subscription
}

// NewNATSBridge creates the bridge over an established connection.
func NewNATSBridge(nc *nats.Conn, ctrl *controller.Controller, bus *events.Bus) *NATSBridge {
	return &NATSBridge{
		nc:         nc,
		controller: ctrl,
		bus:        bus,
		subs:       make([]*nats.Subscription, 0),
	}
}

// Start wires both directions and blocks until the context is cancelled.
func (b *NATSBridge) Start(ctx context.Context) error {
	b.bus.Subscribe(&events.Subscriber{
		IntensityChanged: func(virtualID int, value float64) {
			b.publish(fmt.Sprintf("lighting.fixture.%d.intensity", virtualID),
				map[string]interface{}{"fixtureId": virtualID, "value": value})
		},
		ColorChanged: func(virtualID int, r, g, bl float64) {
			b.publish(fmt.Sprintf("lighting.fixture.%d.color", virtualID),
				map[string]interface{}{"fixtureId": virtualID, "r": r, "g": g, "b": bl})
		},
		FixtureDiscovered: func(f models.DiscoveredFixture) {
			b.publish("lighting.rdm.discovered", f)
		},
		FixtureOnline: func(virtualID int) {
			b.publish("lighting.rdm.online", map[string]int{"fixtureId": virtualID})
		},
		FixtureOffline: func(virtualID int) {
			b.publish("lighting.rdm.offline", map[string]int{"fixtureId": virtualID})
		},
		NodeDiscovered: func(n models.Node) {
			b.publish("lighting.node.discovered", n)
		},
	})

	sub, err := b.nc.Subscribe("lighting.command.>", b.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribe lighting commands: %w", err)
	}
	b.subs = append(b.subs, sub)

	log.Info().Int("subscriptions", len(b.subs)).Msg("NATS bridge started")

	<-ctx.Done()

	for _, sub := range b.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

func (b *NATSBridge) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("marshal event")
		return
	}
	if err := b.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("publish event")
	}
}

// handleCommand dispatches one inbound command message. Unknown fixtures and
// malformed payloads are logged and dropped; NATS commands carry no reply.
func (b *NATSBridge) handleCommand(msg *nats.Msg) {
	log.Debug().Str("subject", msg.Subject).Int("size", len(msg.Data)).Msg("Received lighting command")

	var cmd struct {
		FixtureID int      `json:"fixtureId"`
		Value     float64  `json:"value"`
		R         float64  `json:"r"`
		G         float64  `json:"g"`
		B         float64  `json:"b"`
		W         *float64 `json:"w"`
		Offset    int      `json:"offset"`
		Raw       int      `json:"raw"`
		Target    float64  `json:"target"`
		Duration  float64  `json:"duration"`
	}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to unmarshal command")
			return
		}
	}

	switch msg.Subject {
	case "lighting.command.intensity":
		b.checkTarget(cmd.FixtureID, b.controller.SetIntensity(cmd.FixtureID, cmd.Value))
	case "lighting.command.color":
		w := -1.0
		if cmd.W != nil {
			w = *cmd.W
		}
		b.checkTarget(cmd.FixtureID, b.controller.SetColor(cmd.FixtureID, cmd.R, cmd.G, cmd.B, w))
	case "lighting.command.channel":
		universe, err := b.controller.SetChannel(cmd.FixtureID, cmd.Offset, cmd.Raw)
		if err != nil {
			log.Warn().Err(err).Int("fixture", cmd.FixtureID).Int("offset", cmd.Offset).Msg("Channel command rejected")
		}
		b.checkTarget(cmd.FixtureID, universe)
	case "lighting.command.fade":
		b.checkTarget(cmd.FixtureID, b.controller.StartFade(cmd.FixtureID, cmd.Target, cmd.Duration))
	case "lighting.command.cancelfade":
		b.controller.CancelFade(cmd.FixtureID)
	case "lighting.command.alloff":
		b.controller.AllOff()
	default:
		log.Warn().Str("subject", msg.Subject).Msg("Unknown lighting command")
	}
}

func (b *NATSBridge) checkTarget(fixtureID, universe int) {
	if universe < 0 {
		log.Warn().Int("fixture", fixtureID).Msg("Command addressed unknown fixture")
	}
}
