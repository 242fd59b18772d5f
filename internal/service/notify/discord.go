package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/stream-notifier/internal/config"
	"github.com/oshokin/stream-notifier/internal/domain/channel"
	"github.com/oshokin/stream-notifier/internal/logger"
)

const (
	// defaultWebhookTimeout bounds a single webhook call.
	defaultWebhookTimeout = 10 * time.Second
	// maxExplicitMentions is the Discord limit for the roles and users lists of allowed_mentions.
	maxExplicitMentions = 100
	// onlineColor and offlineColor tint the embed.
	onlineColor  = 0x1DA1F2
	offlineColor = 0x747F8D
	// maxErrorBody limits how much of a rejected response is kept in the error.
	maxErrorBody = 512
)

// errWebhookRejected is returned when Discord answers with a non-2xx status.
var errWebhookRejected = errors.New("webhook rejected")

// Discord posts transitions to a Discord webhook.
type Discord struct {
	target     config.DiscordTarget
	httpClient *http.Client
}

// DiscordOption customizes the Discord sink.
type DiscordOption func(*Discord)

// WithDiscordHTTPClient replaces the HTTP client used for webhook calls.
func WithDiscordHTTPClient(httpClient *http.Client) DiscordOption {
	return func(d *Discord) {
		if httpClient != nil {
			d.httpClient = httpClient
		}
	}
}

// NewDiscord creates a sink for one webhook target.
func NewDiscord(target config.DiscordTarget, opts ...DiscordOption) *Discord {
	d := &Discord{
		target:     target,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Name implements Notifier.
func (d *Discord) Name() string {
	return "discord " + d.target.Name
}

// Notify implements Notifier.
func (d *Discord) Notify(ctx context.Context, t *channel.Transition) error {
	if !t.To && !d.target.NotifyOffline {
		logger.DebugKV(ctx, "Offline notification disabled for webhook", "target", d.target.Name)

		return nil
	}

	body, err := json.Marshal(buildWebhookMessage(t, d.target.Pings))
	if err != nil {
		return fmt.Errorf("failed to encode webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.target.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		//nolint:errcheck // The body of a successful call is not used.
		io.Copy(io.Discard, resp.Body)

		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		return fmt.Errorf("%w: status %d, retry after %ss: %s",
			errWebhookRejected, resp.StatusCode, retryAfter, strings.TrimSpace(string(raw)))
	}

	return fmt.Errorf("%w: status %d: %s", errWebhookRejected, resp.StatusCode, strings.TrimSpace(string(raw)))
}

// webhookMessage is the Discord "execute webhook" payload.
type webhookMessage struct {
	Content         string          `json:"content"`
	Embeds          []webhookEmbed  `json:"embeds,omitempty"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type webhookEmbed struct {
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp"`
	Thumbnail   *embedImage  `json:"thumbnail,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// allowedMentions restricts which mentions in the content actually ping.
// Discord rejects a payload that has "roles" both in Parse and as an explicit list, same for "users".
type allowedMentions struct {
	Parse []string `json:"parse"`
	Roles []string `json:"roles,omitempty"`
	Users []string `json:"users,omitempty"`
}

// buildWebhookMessage renders the transition with the configured pings.
func buildWebhookMessage(t *channel.Transition, pings []config.Ping) *webhookMessage {
	mentions := make([]string, 0, len(pings))
	for _, ping := range pings {
		mentions = append(mentions, ping.Mention())
	}

	name := channelName(t)

	text := "`" + name + "` is now offline."
	if t.To {
		text = "`" + name + "` is now online!"
	}

	content := text + "\n" + ChannelURL(t)
	if len(mentions) > 0 {
		content = strings.Join(mentions, " ") + " " + content
	}

	return &webhookMessage{
		Content:         content,
		Embeds:          []webhookEmbed{buildEmbed(t)},
		AllowedMentions: buildAllowedMentions(pings),
	}
}

func buildEmbed(t *channel.Transition) webhookEmbed {
	embed := webhookEmbed{
		Title:       Headline(t),
		URL:         ChannelURL(t),
		Description: PreviousStateText(t),
		Color:       offlineColor,
		Timestamp:   t.OccurredAt.UTC().Format(time.RFC3339),
	}

	if !t.To {
		return embed
	}

	embed.Color = onlineColor

	if title := t.MetadataString("title"); title != "" {
		embed.Title = title
	}

	if avatar := t.MetadataString("avatar"); avatar != "" {
		embed.Thumbnail = &embedImage{URL: avatar}
	}

	if category := t.MetadataString("category"); category != "" {
		embed.Fields = append(embed.Fields, embedField{Name: "Category", Value: category, Inline: true})
	}

	if viewers := viewersText(t); viewers != "" {
		embed.Fields = append(embed.Fields, embedField{Name: "Viewers", Value: viewers, Inline: true})
	}

	return embed
}

// buildAllowedMentions lets exactly the configured pings through.
func buildAllowedMentions(pings []config.Ping) allowedMentions {
	var (
		everyone     bool
		roles, users []string
	)

	for _, ping := range pings {
		switch ping.Kind {
		case config.PingEveryone, config.PingHere:
			everyone = true
		case config.PingRole:
			roles = append(roles, strconv.FormatUint(ping.ID, 10))
		case config.PingUser:
			users = append(users, strconv.FormatUint(ping.ID, 10))
		}
	}

	result := allowedMentions{Parse: []string{}}

	if everyone {
		result.Parse = append(result.Parse, "everyone")
	}

	if len(roles) > maxExplicitMentions {
		result.Parse = append(result.Parse, "roles")
	} else {
		result.Roles = roles
	}

	if len(users) > maxExplicitMentions {
		result.Parse = append(result.Parse, "users")
	} else {
		result.Users = users
	}

	return result
}
