// Package mqtt bridges the device state model and command queue to an
// MQTT broker: retained JSON state on <prefix>/state, availability with a
// last-will on <prefix>/availability, and command topics under
// <prefix>/set/.
package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/jcrd/bedjetd/internal/bedjet"
	"github.com/jcrd/bedjetd/internal/config"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"

	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // ms, paho's drain grace on Disconnect
)

// Bridge connects a StateModel and Queue to an MQTT broker.
type Bridge struct {
	cfg   config.MQTTConfig
	state *bedjet.StateModel
	queue *bedjet.Queue
	log   *slog.Logger

	client      pahomqtt.Client
	builder     payloadBuilder
	unsubscribe func()
}

// NewBridge returns an unstarted bridge. logger may be nil.
func NewBridge(cfg config.MQTTConfig, state *bedjet.StateModel, queue *bedjet.Queue, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:   cfg,
		state: state,
		queue: queue,
		log:   logger,
	}
}

func (b *Bridge) stateTopic() string        { return b.cfg.TopicPrefix + "/state" }
func (b *Bridge) availabilityTopic() string { return b.cfg.TopicPrefix + "/availability" }
func (b *Bridge) commandFilter() string     { return b.cfg.TopicPrefix + "/set/+" }

// Start connects to the broker and begins publishing state changes.
// Subscriptions are re-established by the on-connect handler, so broker
// restarts self-heal.
func (b *Bridge) Start() error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOrderMatters(false)

	// The broker reports us offline if we vanish without a graceful stop.
	opts.SetWill(b.availabilityTopic(), availabilityOffline, 1, true)

	opts.OnConnect = func(c pahomqtt.Client) {
		b.log.Info("[MQTT] connected", "broker", b.cfg.Broker)
		c.Publish(b.availabilityTopic(), 1, true, availabilityOnline)
		if token := c.Subscribe(b.commandFilter(), 1, b.handleCommand); token.Wait() && token.Error() != nil {
			b.log.Error("[MQTT] subscribe failed", "filter", b.commandFilter(), "error", token.Error())
		}
	}
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.log.Warn("[MQTT] connection lost", "error", err)
	})

	b.client = pahomqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}

	// Seed the retained topic before subscribing so subscribers see the
	// last-known state even before the first notification; a snapshot
	// applied in the gap is replaced by the next heartbeat.
	b.publishSnapshot(b.state.Current())
	b.unsubscribe = b.state.Subscribe(b.publishSnapshot)
	return nil
}

// Close publishes a graceful offline status and disconnects. Distinct
// from the last-will offline, which the broker sends only on an unclean
// drop.
func (b *Bridge) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	if b.client == nil {
		return
	}
	b.client.Publish(b.availabilityTopic(), 1, true, availabilityOffline).Wait()
	b.client.Disconnect(disconnectQuiesce)
}

// publishSnapshot runs on the state model's updater goroutine; it must
// not block, so the publish is fire-and-forget. QoS 0 is fine: the next
// heartbeat replaces the retained document within a second.
func (b *Bridge) publishSnapshot(s bedjet.Snapshot) {
	p := b.builder.build(s, b.state.Info(), time.Now())
	data, err := json.Marshal(p)
	if err != nil {
		b.log.Error("[MQTT] marshaling state", "error", err)
		return
	}
	b.client.Publish(b.stateTopic(), 0, true, data)
}

func (b *Bridge) handleCommand(_ pahomqtt.Client, msg pahomqtt.Message) {
	suffix := strings.TrimPrefix(msg.Topic(), b.cfg.TopicPrefix+"/set/")
	cmd, key, err := ParseCommand(suffix, msg.Payload())
	if err != nil {
		b.log.Warn("[MQTT] rejected command", "topic", msg.Topic(), "error", err)
		return
	}

	pending := b.queue.Submit(cmd, key)
	b.log.Debug("[MQTT] queued command", "command", cmd.String(), "key", key)

	// Report the outcome without holding up the paho dispatcher.
	go func() {
		o := <-pending.Done()
		switch o {
		case bedjet.OutcomeWritten:
			b.log.Debug("[MQTT] command written", "command", cmd.String())
		case bedjet.OutcomeSuperseded:
			b.log.Debug("[MQTT] command superseded", "command", cmd.String())
		case bedjet.OutcomeUncertain:
			b.log.Warn("[MQTT] command outcome uncertain", "command", cmd.String())
		}
	}()
}
