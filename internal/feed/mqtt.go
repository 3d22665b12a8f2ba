package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/roman-kulish/spectrum-streamer/internal/spectrum"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

const (
	DefaultMQTTTopic = "spectrum"

	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// MQTTConfig configures the MQTT mirror of the event feed
type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	Topic          string `yaml:"topic"`
	ClientID       string `yaml:"clientID"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	QoS            byte   `yaml:"qos"`
	PublishSamples bool   `yaml:"publishSamples"`
}

func (c *MQTTConfig) Validate() error {
	if c.Broker == "" {
		return errors.New("mqtt: broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2: %d given", c.QoS)
	}
	if strings.ContainsAny(c.Topic, "#+") {
		return fmt.Errorf("mqtt: topic must not contain wildcards: '%s'", c.Topic)
	}
	return nil
}

// publisher is the part of mqtt.Client the bridge uses
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTBridge mirrors engine events to an MQTT broker. Status messages go to
// <topic>/status and are retained, errors go to <topic>/error and samples,
// when enabled, to <topic>/samples.
type MQTTBridge struct {
	client  publisher
	config  MQTTConfig
	logger  *slog.Logger
	onClose func()
}

// NewMQTTBridge connects to the broker
func NewMQTTBridge(config MQTTConfig, options ...func(f *feedOptions)) (*MQTTBridge, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.ClientID == "" {
		config.ClientID = fmt.Sprintf("spectrum-streamer-%s", uuid.NewString())
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", config.Broker, token.Error())
	}

	b := newMQTTBridge(client, config, options...)
	b.onClose = func() { client.Disconnect(disconnectQuiesce) }

	b.logger.Info(fmt.Sprintf("connected to MQTT broker: %s", config.Broker), slog.String("clientID", config.ClientID))
	return b, nil
}

func newMQTTBridge(client publisher, config MQTTConfig, options ...func(f *feedOptions)) *MQTTBridge {
	if config.Topic == "" {
		config.Topic = DefaultMQTTTopic
	}
	config.Topic = strings.TrimSuffix(config.Topic, "/")

	o := newFeedOptions(options)
	return &MQTTBridge{client: client, config: config, logger: o.logger}
}

// Run publishes events until ctx is cancelled or the channel is closed
func (b *MQTTBridge) Run(ctx context.Context, events <-chan sweep.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := b.publish(ev); err != nil {
				b.logger.Warn(err.Error())
			}
		}
	}
}

// Close disconnects from the broker
func (b *MQTTBridge) Close() {
	if b.onClose != nil {
		b.onClose()
	}
}

func (b *MQTTBridge) publish(ev sweep.Event) error {
	msg, err := spectrum.FromEvent(ev)
	if err != nil {
		return err
	}

	var retained bool
	switch msg.Type {
	case spectrum.MessageSample:
		if !b.config.PublishSamples {
			return nil
		}
	case spectrum.MessageStatus:
		retained = true
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}

	topic := b.Topic(msg.Type)
	token := b.client.Publish(topic, b.config.QoS, retained, payload)

	// Samples are fire-and-forget
	if msg.Type == spectrum.MessageSample {
		return nil
	}

	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err = token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Topic returns the topic messages of type t are published to
func (b *MQTTBridge) Topic(t spectrum.MessageType) string {
	switch t {
	case spectrum.MessageSample:
		return b.config.Topic + "/samples"
	default:
		return b.config.Topic + "/" + string(t)
	}
}
