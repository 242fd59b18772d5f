package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Notifiers configures where transitions are delivered.
type Notifiers struct {
	// Log writes every transition to the application log. Enabled unless set to false.
	Log *bool `yaml:"log,omitempty"`
	// Discord lists webhook targets.
	Discord []DiscordTarget `yaml:"discord,omitempty"`
	// MQTT publishes transitions to a broker when set.
	MQTT *MQTTTarget `yaml:"mqtt,omitempty"`
	// Telegram sends transitions to a chat when set.
	Telegram *TelegramTarget `yaml:"telegram,omitempty"`
}

// DiscordTarget is one Discord server webhook.
type DiscordTarget struct {
	// Name is a label used in logs.
	Name string `yaml:"name"`
	// WebhookURL is the Discord webhook endpoint.
	WebhookURL string `yaml:"webhook_url"`
	// Pings are mentions prepended to the message. Absent means @everyone, an empty list means none.
	Pings []Ping `yaml:"pings"`
	// NotifyOffline also announces the end of a stream.
	NotifyOffline bool `yaml:"notify_offline"`
}

// MQTTTarget is an MQTT broker and topic.
type MQTTTarget struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker string `yaml:"broker"`
	// Topic receives the transition payloads.
	Topic string `yaml:"topic"`
	// ClientID identifies the notifier to the broker.
	ClientID string `yaml:"client_id"`
	// QoS is the MQTT quality of service level (0, 1 or 2).
	QoS byte `yaml:"qos"`
	// Retained asks the broker to keep the last payload for new subscribers.
	Retained bool `yaml:"retained"`
}

// TelegramTarget is a Telegram bot and chat.
type TelegramTarget struct {
	// Token is the bot token issued by BotFather.
	Token string `yaml:"token"`
	// ChatID is the chat, group or channel receiving the messages.
	ChatID int64 `yaml:"chat_id"`
}

// PingKind enumerates the Discord mention types.
type PingKind int

// Discord mention types.
const (
	PingEveryone PingKind = iota + 1
	PingHere
	PingRole
	PingUser
)

// Ping is a Discord mention: @everyone, @here, a role or a user.
type Ping struct {
	// Kind is the mention type.
	Kind PingKind
	// ID is the role or user snowflake; zero for @everyone and @here.
	ID uint64
}

// Default MQTT settings.
const (
	DefaultMQTTTopic    = "stream-notifier/events"
	DefaultMQTTClientID = "stream-notifier"
)

var (
	// errInvalidPing is returned for a mention that cannot be parsed.
	errInvalidPing = errors.New("invalid ping")
	// errInvalidTarget is returned for an incomplete notifier target.
	errInvalidTarget = errors.New("invalid notifier target")
)

// LogEnabled reports whether the log sink is active.
func (n *Notifiers) LogEnabled() bool {
	return n.Log == nil || *n.Log
}

// validate checks the targets and fills in defaults.
func (n *Notifiers) validate() error {
	for i := range n.Discord {
		target := &n.Discord[i]

		if target.Name == "" {
			target.Name = "discord #" + strconv.Itoa(i+1)
		}

		if _, err := url.ParseRequestURI(target.WebhookURL); err != nil {
			return fmt.Errorf("%w: discord %q webhook_url: %w", errInvalidTarget, target.Name, err)
		}

		if target.Pings == nil {
			target.Pings = []Ping{{Kind: PingEveryone}}
		}
	}

	if n.MQTT != nil {
		if _, err := url.ParseRequestURI(n.MQTT.Broker); err != nil {
			return fmt.Errorf("%w: mqtt broker: %w", errInvalidTarget, err)
		}

		if n.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt qos must be 0, 1 or 2", errInvalidTarget)
		}

		if n.MQTT.Topic == "" {
			n.MQTT.Topic = DefaultMQTTTopic
		}

		if n.MQTT.ClientID == "" {
			n.MQTT.ClientID = DefaultMQTTClientID
		}
	}

	if n.Telegram != nil {
		if strings.TrimSpace(n.Telegram.Token) == "" || n.Telegram.ChatID == 0 {
			return fmt.Errorf("%w: telegram requires token and chat_id", errInvalidTarget)
		}
	}

	return nil
}

// Mention renders the ping the way Discord expects it in message content.
func (p Ping) Mention() string {
	switch p.Kind {
	case PingEveryone:
		return "@everyone"
	case PingHere:
		return "@here"
	case PingRole:
		return "<@&" + strconv.FormatUint(p.ID, 10) + ">"
	case PingUser:
		return "<@" + strconv.FormatUint(p.ID, 10) + ">"
	default:
		return ""
	}
}

// String describes the ping for logs.
func (p Ping) String() string {
	switch p.Kind {
	case PingRole:
		return "role with ID " + strconv.FormatUint(p.ID, 10)
	case PingUser:
		return "user with ID " + strconv.FormatUint(p.ID, 10)
	default:
		return p.Mention()
	}
}

// UnmarshalYAML accepts "everyone", "@here" and similar scalars,
// or a single-key mapping {role: id} / {user: id}.
func (p *Ping) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(node.Value)), "@") {
		case "everyone":
			*p = Ping{Kind: PingEveryone}
		case "here":
			*p = Ping{Kind: PingHere}
		default:
			return fmt.Errorf("%w: unknown parameterless ping %q (line %d)", errInvalidPing, node.Value, node.Line)
		}

		return nil
	case yaml.MappingNode:
		var raw map[string]uint64
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("%w: line %d: %w", errInvalidPing, node.Line, err)
		}

		if len(raw) != 1 {
			return fmt.Errorf("%w: pings with more than one parameter are unsupported (line %d)", errInvalidPing, node.Line)
		}

		if id, ok := raw["role"]; ok {
			*p = Ping{Kind: PingRole, ID: id}

			return nil
		}

		if id, ok := raw["user"]; ok {
			*p = Ping{Kind: PingUser, ID: id}

			return nil
		}

		return fmt.Errorf("%w: ping type is neither role nor user (line %d)", errInvalidPing, node.Line)
	default:
		return fmt.Errorf("%w: unexpected YAML node (line %d)", errInvalidPing, node.Line)
	}
}

// MarshalYAML writes the ping in the same shape UnmarshalYAML reads.
func (p Ping) MarshalYAML() (any, error) {
	switch p.Kind {
	case PingEveryone:
		return "@everyone", nil
	case PingHere:
		return "@here", nil
	case PingRole:
		return map[string]uint64{"role": p.ID}, nil
	case PingUser:
		return map[string]uint64{"user": p.ID}, nil
	default:
		return nil, fmt.Errorf("%w: kind %d", errInvalidPing, p.Kind)
	}
}
