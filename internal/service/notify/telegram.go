package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/oshokin/stream-notifier/internal/config"
	"github.com/oshokin/stream-notifier/internal/domain/channel"
)

// errEmptyToken is returned when a Telegram target has no bot token.
var errEmptyToken = errors.New("telegram token is empty")

// TelegramSender is the part of *tele.Bot used by the sink.
type TelegramSender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// Telegram sends transitions to a chat through a bot.
type Telegram struct {
	sender TelegramSender
	chatID int64
}

// NewTelegramBot creates an offline bot: it only sends messages and never polls for updates.
func NewTelegramBot(target config.TelegramTarget, httpClient *http.Client) (*tele.Bot, error) {
	if target.Token == "" {
		return nil, errEmptyToken
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultWebhookTimeout}
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   target.Token,
		Client:  httpClient,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return bot, nil
}

// NewTelegram creates the sink for a chat.
func NewTelegram(sender TelegramSender, chatID int64) *Telegram {
	return &Telegram{
		sender: sender,
		chatID: chatID,
	}
}

// Name implements Notifier.
func (*Telegram) Name() string {
	return "telegram"
}

// Notify implements Notifier.
func (t *Telegram) Notify(ctx context.Context, transition *channel.Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := t.sender.Send(
		&tele.Chat{ID: t.chatID},
		FormatTelegramMessage(transition),
		&tele.SendOptions{ParseMode: tele.ModeHTML},
	)
	if err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", t.chatID, err)
	}

	return nil
}

// FormatTelegramMessage renders the transition as Telegram HTML.
func FormatTelegramMessage(t *channel.Transition) string {
	var b strings.Builder

	b.WriteString("<b>")
	b.WriteString(html.EscapeString(Headline(t)))
	b.WriteString("</b>")

	if t.To {
		if title := t.MetadataString("title"); title != "" {
			b.WriteString("\n")
			b.WriteString(html.EscapeString(title))
		}

		if category := t.MetadataString("category"); category != "" {
			b.WriteString("\n<i>")
			b.WriteString(html.EscapeString(category))
			b.WriteString("</i>")
		}
	}

	if previous := PreviousStateText(t); previous != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(strings.ToUpper(previous[:1]) + previous[1:]))
	}

	b.WriteString("\n")
	b.WriteString(html.EscapeString(ChannelURL(t)))

	return b.String()
}
