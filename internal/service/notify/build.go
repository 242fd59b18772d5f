package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/stream-notifier/internal/config"
	"github.com/oshokin/stream-notifier/internal/logger"
)

// Build creates the sinks described by the configuration.
// The returned cleanup function releases broker connections and is safe to call once.
func Build(ctx context.Context, cfg *config.Notifiers) (*Multi, func(), error) {
	var (
		sinks   []Notifier
		closers []func() error
	)

	cleanup := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.WarnKV(ctx, "Failed to close notifier", "error", err)
			}
		}
	}

	if cfg.LogEnabled() {
		sinks = append(sinks, NewLog())
	}

	for _, target := range cfg.Discord {
		sinks = append(sinks, NewDiscord(target))
	}

	if cfg.MQTT != nil {
		publisher, err := DialMQTT(ctx, *cfg.MQTT)
		if err != nil {
			cleanup()

			return nil, nil, fmt.Errorf("failed to set up mqtt notifier: %w", err)
		}

		sink := NewMQTT(publisher, *cfg.MQTT)
		sinks = append(sinks, sink)
		closers = append(closers, sink.Close)
	}

	if cfg.Telegram != nil {
		bot, err := NewTelegramBot(*cfg.Telegram, nil)
		if err != nil {
			cleanup()

			return nil, nil, fmt.Errorf("failed to set up telegram notifier: %w", err)
		}

		sinks = append(sinks, NewTelegram(bot, cfg.Telegram.ChatID))
	}

	multi := NewMulti(sinks...)
	if multi.Len() == 0 {
		logger.Warn(ctx, "No notifiers configured, transitions will only update the state")
	}

	return multi, cleanup, nil
}

// DeliveryBudget is the longest time the configured sinks may take to deliver one transition.
func DeliveryBudget(cfg *config.Notifiers) time.Duration {
	budget := time.Duration(len(cfg.Discord)) * defaultWebhookTimeout

	if cfg.MQTT != nil {
		budget += mqttPublishTimeout
	}

	if cfg.Telegram != nil {
		budget += defaultWebhookTimeout
	}

	return budget
}
