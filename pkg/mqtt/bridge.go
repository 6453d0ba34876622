package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/stripctl/pkg/device"
	"github.com/urmzd/stripctl/pkg/device/schema"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	commandTimeout = 10 * time.Second

	defaultPollInterval = 30 * time.Second
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
	PollInterval    time.Duration
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "stripctl"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "stripctl"
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// client is the subset of pahomqtt.Client the bridge uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Bridge mirrors outlet state to MQTT, announces outlets to Home Assistant
// and forwards commands from <prefix>/<outlet>/set to the controller.
type Bridge struct {
	client     client
	controller device.Controller
	subscriber device.EventSubscriber
	validator  *schema.Validator
	cfg        Config

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	parent  string            // device id used in composite outlet ids
	topics  map[string]string // composite outlet id -> state topic
	outlets map[string]device.Device
}

func newBridge(controller device.Controller, subscriber device.EventSubscriber, validator *schema.Validator, cfg Config) *Bridge {
	return &Bridge{
		controller: controller,
		subscriber: subscriber,
		validator:  validator,
		cfg:        cfg.withDefaults(),
		topics:     make(map[string]string),
		outlets:    make(map[string]device.Device),
	}
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(controller device.Controller, subscriber device.EventSubscriber, validator *schema.Validator, cfg Config) (*Bridge, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	b := newBridge(controller, subscriber, validator, cfg)

	opts := pahomqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(b.availabilityTopic(), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			log.Info().Str("broker", b.cfg.Broker).Msg("MQTT connected")
			b.announce()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	c := pahomqtt.NewClient(opts)
	b.client = c

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// Stop the background connect retries.
		c.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return b, nil
}

// Start forwards outlet events and polls the strip until Stop is called.
func (b *Bridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	events := b.subscriber.Subscribe()

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		defer b.subscriber.Unsubscribe(events)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				b.handleEvent(evt)
			}
		}
	}()
	go func() {
		defer b.wg.Done()
		b.pollLoop(ctx)
	}()

	log.Info().
		Str("prefix", b.cfg.TopicPrefix).
		Dur("poll_interval", b.cfg.PollInterval).
		Msg("MQTT bridge started")
}

// Stop publishes offline state and disconnects.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	log.Info().Msg("MQTT bridge stopped")
}

// announce runs on every (re)connect: availability, discovery, command topics.
func (b *Bridge) announce() {
	b.publishBridgeState("online")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	outlets, err := b.controller.ListDevices(ctx)
	if err != nil {
		log.Error().Err(err).Msg("List outlets for discovery")
		return
	}

	var strip stripInfo
	if info, err := b.controller.SystemInfo(ctx); err == nil {
		strip = stripInfoFrom(info)
		b.publish(b.cfg.TopicPrefix+"/strip", mustJSON(info), true)
	} else {
		log.Warn().Err(err).Msg("Query strip for discovery")
		if len(outlets) > 0 {
			strip.DeviceID = outlets[0].Parent
		}
	}

	b.mu.Lock()
	for _, d := range outlets {
		b.parent = d.Parent
		b.topics[d.ID] = outletTopic(b.cfg.TopicPrefix, d)
		b.outlets[d.ID] = d
	}
	b.mu.Unlock()

	for _, msg := range buildDiscovery(strip, outlets, b.cfg) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	log.Info().Int("outlets", len(outlets)).Msg("Published HA discovery")

	for _, d := range outlets {
		b.subscribeCommands(d)
	}
}

func (b *Bridge) subscribeCommands(d device.Device) {
	topic := outletTopic(b.cfg.TopicPrefix, d) + "/set"
	id := d.ID
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		// Commands block on the device; keep the paho router free.
		go b.handleCommand(id, msg.Payload())
	})
}

// handleCommand accepts either {"state":"ON"} or a bare ON/OFF/TOGGLE payload.
// States are case-sensitive, as everywhere else.
func (b *Bridge) handleCommand(id string, payload []byte) {
	cmd, err := parseCommand(payload)
	if err != nil {
		log.Warn().Err(err).Str("outlet", id).Msg("Invalid MQTT command")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	d, err := b.controller.GetDevice(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("outlet", id).Msg("Command for unknown outlet")
		return
	}
	if b.validator != nil {
		if err := b.validator.Validate(d.StateSchema, cmd); err != nil {
			log.Warn().Err(err).Str("outlet", d.Name).Msg("Rejected MQTT command")
			return
		}
	}

	// State is published from the resulting outlet_switched event
	if _, err := b.controller.SetDeviceState(ctx, d.ID, cmd); err != nil {
		log.Warn().Err(err).Str("outlet", d.Name).Msg("MQTT command failed")
	}
}

func parseCommand(payload []byte) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil, fmt.Errorf("empty payload")
	}
	if strings.HasPrefix(trimmed, "{") {
		var cmd map[string]any
		if err := json.Unmarshal([]byte(trimmed), &cmd); err != nil {
			return nil, fmt.Errorf("invalid command JSON: %w", err)
		}
		return cmd, nil
	}
	return map[string]any{"state": trimmed}, nil
}

func (b *Bridge) handleEvent(evt device.Event) {
	if evt.Type != device.EventOutletSwitched || evt.Device == nil {
		return
	}
	b.publishOutletState(*evt.Device, evt.State)
}

func (b *Bridge) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.poll(ctx)
		}
	}
}

// poll publishes the strip document and the live state of every outlet.
func (b *Bridge) poll(ctx context.Context) {
	info, err := b.controller.SystemInfo(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Poll power strip")
		return
	}
	b.publish(b.cfg.TopicPrefix+"/strip", mustJSON(info), true)

	children, _ := info["children"].([]any)
	for _, raw := range children {
		child, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		childID, _ := child["id"].(string)

		b.mu.Lock()
		d, known := b.outlets[b.parent+childID]
		b.mu.Unlock()
		if !known {
			continue
		}

		b.publishOutletState(d, map[string]any{
			"state":   child["state"],
			"alias":   child["alias"],
			"on_time": child["on_time"],
		})
	}
}

func (b *Bridge) publishOutletState(d device.Device, state map[string]any) {
	b.mu.Lock()
	topic, ok := b.topics[d.ID]
	b.mu.Unlock()
	if !ok {
		topic = outletTopic(b.cfg.TopicPrefix, d)
	}
	b.publish(topic, mustJSON(state), true)
}

func (b *Bridge) availabilityTopic() string {
	return b.cfg.TopicPrefix + "/bridge/state"
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.availabilityTopic(), []byte(state), true)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Warn().Str("topic", topic).Msg("MQTT publish timeout")
		} else if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish error")
		}
	}()
}
