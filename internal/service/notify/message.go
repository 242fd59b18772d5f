package notify

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
)

// ChannelURLBase is the public page prefix of a Picarto channel.
const ChannelURLBase = "https://picarto.tv/"

// channelName prefers the display name from the payload over the configured id.
func channelName(t *channel.Transition) string {
	if name := t.MetadataString("name"); name != "" {
		return name
	}

	return t.ChannelID
}

// ChannelURL returns the public page of the channel.
func ChannelURL(t *channel.Transition) string {
	return ChannelURLBase + channelName(t)
}

// Headline is the one-line announcement of the transition.
func Headline(t *channel.Transition) string {
	if t.To {
		return channelName(t) + " is now online!"
	}

	return channelName(t) + " is now offline."
}

// PreviousStateText describes how long the previous state lasted, e.g. "was offline for 3 hours".
// It returns an empty string when the start of the previous state is unknown.
func PreviousStateText(t *channel.Transition) string {
	if t.PreviousDuration() < time.Second {
		return ""
	}

	// RelTime renders "<magnitude> <label>"; with empty labels only the magnitude is left.
	lasted := strings.TrimSpace(humanize.RelTime(t.PreviousChangeAt, t.OccurredAt, "", ""))

	previous := "offline"
	if t.From {
		previous = "live"
	}

	return "was " + previous + " for " + lasted
}

// Summary is the headline followed by the previous state duration, when known.
func Summary(t *channel.Transition) string {
	summary := Headline(t)

	if previous := PreviousStateText(t); previous != "" {
		summary += " (" + previous + ")"
	}

	return summary
}

// viewersText formats the viewer count from the payload, or returns an empty string.
func viewersText(t *channel.Transition) string {
	viewers, ok := t.MetadataNumber("viewers")
	if !ok || viewers < 0 {
		return ""
	}

	return humanize.Comma(int64(viewers))
}
