package relay

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/fleetchat/fleetd/internal/a2ui"
	"github.com/fleetchat/fleetd/internal/config"
	"github.com/fleetchat/fleetd/internal/events"
)

const defaultDeviceName = "fleetd"

// Publisher forwards bus events to the broker.
type Publisher struct {
	cfg    config.RelayConfig
	device DeviceInfo
	bus    *events.Bus
	tokens *DailyTokens
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
	sub    <-chan events.Event
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to connect and begin forwarding.
func New(cfg config.RelayConfig, instanceID string, bus *events.Bus, logger *slog.Logger) *Publisher {
	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceName
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "fleetd"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:    cfg,
		device: NewDeviceInfo(instanceID, cfg.DeviceName),
		bus:    bus,
		tokens: NewDailyTokens(nil),
		logger: logger.With("component", "relay"),
	}
}

// connectWait bounds how long Connect waits for the first connection.
const connectWait = 10 * time.Second

// Start connects and forwards events until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) error {
	if err := p.Connect(ctx); err != nil {
		return err
	}
	p.Run(ctx)
	return nil
}

// Connect subscribes to the bus and dials the broker. Events published
// from here on are buffered until Run forwards them. A slow first
// connection is not fatal; autopaho keeps retrying in the background.
// ctx owns the connection: call Stop before cancelling it.
func (p *Publisher) Connect(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse relay broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("relay connected to broker", "broker", p.cfg.Broker)
			p.publishInfo(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("relay connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "fleetd-" + p.cfg.DeviceName,
		},
	}

	// mqtts:// and ssl:// imply TLS.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	p.sub = p.bus.Subscribe(256)
	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		p.bus.Unsubscribe(p.sub)
		return fmt.Errorf("relay connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, connectWait)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("relay initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Run forwards events until ctx is cancelled. Connect must have
// succeeded.
func (p *Publisher) Run(ctx context.Context) {
	p.forward(ctx)
}

// Stop publishes any buffered events, then "offline", and
// disconnects. ctx bounds all three.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.drain(ctx)
	p.bus.Unsubscribe(p.sub)
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is up or ctx
// expires.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	if p.cm == nil {
		return fmt.Errorf("relay publisher not started")
	}
	return p.cm.AwaitConnection(ctx)
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return p.cfg.TopicPrefix + "/" + topicLevel(p.cfg.DeviceName)
}

func (p *Publisher) availabilityTopic() string { return p.baseTopic() + "/availability" }

func (p *Publisher) infoTopic() string { return p.baseTopic() + "/info" }

func (p *Publisher) statsTopic() string { return p.baseTopic() + "/stats" }

func (p *Publisher) sessionTopic(sessionID, kind string) string {
	return p.baseTopic() + "/sessions/" + topicLevel(sessionID) + "/" + kind
}

func (p *Publisher) surfaceTopic(surfaceID string) string {
	return p.baseTopic() + "/surfaces/" + topicLevel(surfaceID)
}

// topicLevel makes s safe as a single topic level: separators and
// wildcards become underscores.
func topicLevel(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, s)
}

// --- Forwarding ---

func (p *Publisher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.sub:
			if !ok {
				return
			}
			p.publishEvent(ctx, ev)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	for {
		select {
		case ev, ok := <-p.sub:
			if !ok {
				return
			}
			p.publishEvent(ctx, ev)
		default:
			return
		}
	}
}

func (p *Publisher) publishEvent(ctx context.Context, ev events.Event) {
	for _, msg := range p.messagesFor(ev) {
		if _, err := p.cm.Publish(ctx, msg); err != nil {
			p.logger.Debug("relay publish failed", "topic", msg.Topic, "error", err)
		}
	}
}

// messagesFor maps one bus event to the broker messages it produces.
func (p *Publisher) messagesFor(ev events.Event) []*paho.Publish {
	switch {
	case ev.Source == events.SourceGateway && ev.Kind == events.KindLLMResponse:
		in, _ := ev.Data["tokens_in"].(int)
		out, _ := ev.Data["tokens_out"].(int)
		p.tokens.OnTokens(in, out)
		payload, err := json.Marshal(p.tokens.Snapshot())
		if err != nil {
			return nil
		}
		return []*paho.Publish{{Topic: p.statsTopic(), Payload: payload, QoS: 0, Retain: true}}

	case ev.Kind == events.KindSurfaceDeleted:
		id, _ := ev.Data["surface_id"].(string)
		if id == "" {
			return nil
		}
		// An empty retained payload clears the broker's copy.
		return []*paho.Publish{{Topic: p.surfaceTopic(id), Payload: []byte{}, QoS: 1, Retain: true}}

	case ev.Source != events.SourceAgent:
		return nil
	}

	sessionID, _ := ev.Data["session_id"].(string)
	if sessionID == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]any{
		"timestamp": ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"kind":      ev.Kind,
		"data":      ev.Data,
	})
	if err != nil {
		p.logger.Warn("relay encode failed", "kind", ev.Kind, "error", err)
		return nil
	}
	out := []*paho.Publish{{Topic: p.sessionTopic(sessionID, ev.Kind), Payload: payload, QoS: 0}}

	if ev.Kind == events.KindA2UIMessage {
		// Deletions clear the retained copy via KindSurfaceDeleted.
		if m, ok := ev.Data["message"].(a2ui.Message); ok && m.SurfaceID() != "" && m.Kind() != a2ui.KindDeleteSurface {
			out = append(out, p.surfaceMessage(m))
		}
	}
	return out
}

func (p *Publisher) surfaceMessage(m a2ui.Message) *paho.Publish {
	topic := p.surfaceTopic(m.SurfaceID())
	payload, err := json.Marshal(m)
	if err != nil {
		payload = []byte{}
	}
	return &paho.Publish{Topic: topic, Payload: payload, QoS: 1, Retain: true}
}

func (p *Publisher) publishInfo(ctx context.Context, cm *autopaho.ConnectionManager) {
	payload, err := json.Marshal(p.device)
	if err != nil {
		p.logger.Error("relay marshal device info", "error", err)
		return
	}
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.infoTopic(),
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("relay info publish failed", "error", err)
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("relay availability publish failed", "status", status, "error", err)
	} else {
		p.logger.Info("relay availability published", "status", status)
	}
}
