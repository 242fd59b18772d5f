package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/stream-notifier/internal/config"
	"github.com/oshokin/stream-notifier/internal/domain/channel"
	"github.com/oshokin/stream-notifier/internal/logger"
)

const (
	// mqttConnectTimeout bounds the initial broker connection.
	mqttConnectTimeout = 10 * time.Second
	// mqttPublishTimeout bounds a single publish.
	mqttPublishTimeout = 5 * time.Second
	// mqttRetryInterval is the pause between reconnection attempts.
	mqttRetryInterval = 5 * time.Second
	// mqttDisconnectQuiesce is how long Close waits for in-flight work, in milliseconds.
	mqttDisconnectQuiesce = 1000
)

var (
	// errMQTTTimeout is returned when the broker does not acknowledge in time.
	errMQTTTimeout = errors.New("mqtt timeout")
	// errMQTTNotConnected is returned by Publish while no connection exists.
	errMQTTNotConnected = errors.New("mqtt client is not connected")
)

// Publisher sends raw payloads to an MQTT broker.
type Publisher interface {
	// Publish sends the payload to the topic.
	Publish(topic string, qos byte, retained bool, payload []byte) error
	// Close disconnects from the broker.
	Close() error
}

// MQTT publishes transitions as JSON events.
type MQTT struct {
	publisher Publisher
	target    config.MQTTTarget
}

// NewMQTT creates the sink on top of a connected publisher.
func NewMQTT(publisher Publisher, target config.MQTTTarget) *MQTT {
	return &MQTT{
		publisher: publisher,
		target:    target,
	}
}

// Name implements Notifier.
func (m *MQTT) Name() string {
	return "mqtt " + m.target.Topic
}

// Notify implements Notifier.
func (m *MQTT) Notify(_ context.Context, t *channel.Transition) error {
	payload, err := FormatMQTTPayload(t)
	if err != nil {
		return fmt.Errorf("failed to format payload: %w", err)
	}

	if err = m.publisher.Publish(m.target.Topic, m.target.QoS, m.target.Retained, payload); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	return nil
}

// Close disconnects the underlying publisher.
func (m *MQTT) Close() error {
	return m.publisher.Close()
}

// MQTTPayload is the message published for every transition.
type MQTTPayload struct {
	Stream StreamPayload `json:"stream"`
}

// StreamPayload describes one transition.
type StreamPayload struct {
	Channel   string `json:"channel"`
	Event     string `json:"event"`
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
	// PreviousSeconds is how long the previous state lasted, when known.
	PreviousSeconds int64  `json:"previous_seconds,omitempty"`
	Title           string `json:"title,omitempty"`
}

// FormatMQTTPayload renders the transition as JSON.
func FormatMQTTPayload(t *channel.Transition) ([]byte, error) {
	payload := MQTTPayload{
		Stream: StreamPayload{
			Channel:         t.ChannelID,
			Event:           strings.ToUpper(t.Kind()),
			From:            stateName(t.From),
			To:              stateName(t.To),
			Timestamp:       t.OccurredAt.UTC().Format(time.RFC3339),
			PreviousSeconds: int64(t.PreviousDuration() / time.Second),
		},
	}

	if t.To {
		payload.Stream.Title = t.MetadataString("title")
	}

	return json.Marshal(payload)
}

// PahoPublisher publishes through an Eclipse Paho client.
type PahoPublisher struct {
	client paho.Client
}

// DialMQTT connects to the broker of the target.
// A broker that is down at startup is not fatal: the client keeps retrying
// in the background and publishes fail until the connection is up.
func DialMQTT(ctx context.Context, target config.MQTTTarget) (*PahoPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(target.Broker).
		SetClientID(target.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(mqttRetryInterval).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.WarnKV(ctx, "MQTT connection lost", "broker", target.Broker, "error", err)
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			logger.InfoKV(ctx, "MQTT connected", "broker", target.Broker)
		})

	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		logger.WarnKV(ctx, "MQTT broker not reachable yet, retrying in background",
			"broker", target.Broker,
			"timeout", mqttConnectTimeout)

		return &PahoPublisher{client: client}, nil
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to broker %s: %w", target.Broker, err)
	}

	return &PahoPublisher{client: client}, nil
}

// Publish implements Publisher.
func (p *PahoPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		return errMQTTNotConnected
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("%w: publish to %s", errMQTTTimeout, topic)
	}

	return token.Error()
}

// Close implements Publisher.
func (p *PahoPublisher) Close() error {
	p.client.Disconnect(mqttDisconnectQuiesce)

	return nil
}
