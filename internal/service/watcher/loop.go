package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
	"github.com/oshokin/stream-notifier/internal/logger"
	"github.com/oshokin/stream-notifier/internal/repository/state"
	"github.com/oshokin/stream-notifier/internal/service/notify"
	"github.com/oshokin/stream-notifier/internal/service/status"
)

// Fetcher returns the current status of a channel.
type Fetcher interface {
	Fetch(ctx context.Context, channelID string) (*channel.Status, error)
}

// HealthReporter receives the outcome of every fetch.
type HealthReporter interface {
	SetServing(serving bool)
}

// Dependencies are the collaborators of the loop.
type Dependencies struct {
	// Fetcher queries the platform API.
	Fetcher Fetcher
	// Repository holds the last known state.
	Repository state.Repository
	// Notifier delivers transitions.
	Notifier notify.Notifier
	// Health is optional.
	Health HealthReporter
	// Ready is called once the baseline is loaded. Optional.
	Ready func()
	// Heartbeat is called after every cycle. Optional.
	Heartbeat func()
}

// LoopOptions controls the loop behavior.
type LoopOptions struct {
	// ChannelID is the watched channel. It cannot change while running.
	ChannelID string
	// PollInterval is the delay between successful polls.
	PollInterval time.Duration
	// MaxBackoff caps the delay after failures.
	MaxBackoff time.Duration
	// NotifyOnFirstRun reports a live channel on the very first observation.
	NotifyOnFirstRun bool
	// PersistBeforeNotify saves the new state before notifying.
	// A crash in between then loses the notification instead of duplicating it.
	PersistBeforeNotify bool
}

var (
	// ErrChannelChanged is returned by Reload when the new options watch another channel.
	ErrChannelChanged = errors.New("channel_id cannot change while running, restart required")
	// errMissingDependency is returned by New for incomplete dependencies.
	errMissingDependency = errors.New("missing dependency")
	// errInvalidOptions is returned by New for unusable options.
	errInvalidOptions = errors.New("invalid options")
)

// Loop polls one channel until its context is cancelled.
type Loop struct {
	deps    Dependencies
	opts    LoopOptions
	backoff *Backoff

	// channelID is fixed for the lifetime of the loop and safe to read from Reload.
	channelID string

	// current is the last loaded, saved or reported state; nil until a baseline exists.
	current *channel.StoredState

	mu      sync.Mutex
	pending *LoopOptions
	reload  chan struct{}
}

// New validates the dependencies and options and creates the loop.
func New(deps Dependencies, opts LoopOptions) (*Loop, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("%w: fetcher", errMissingDependency)
	case deps.Repository == nil:
		return nil, fmt.Errorf("%w: repository", errMissingDependency)
	case deps.Notifier == nil:
		return nil, fmt.Errorf("%w: notifier", errMissingDependency)
	case opts.ChannelID == "":
		return nil, fmt.Errorf("%w: channel id is required", errInvalidOptions)
	case opts.PollInterval <= 0:
		return nil, fmt.Errorf("%w: poll interval must be positive", errInvalidOptions)
	}

	return &Loop{
		deps:    deps,
		opts:    opts,
		backoff: NewBackoff(opts.PollInterval, opts.MaxBackoff),
		reload:  make(chan struct{}, 1),

		channelID: opts.ChannelID,
	}, nil
}

// Run loads the baseline and polls until ctx is cancelled.
// It returns an error only when the stored state cannot be loaded.
func (l *Loop) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "watcher")
	ctx = logger.WithKV(ctx, "channel_id", l.opts.ChannelID)

	if err := l.loadBaseline(ctx); err != nil {
		return err
	}

	if l.deps.Ready != nil {
		l.deps.Ready()
	}

	logger.InfoKV(ctx, "Watching channel",
		"poll_interval", l.opts.PollInterval.String(),
		"max_backoff", l.backoff.max.String())

	for ctx.Err() == nil {
		delay := l.cycle(ctx)

		if l.deps.Heartbeat != nil {
			l.deps.Heartbeat()
		}

		if !l.sleep(ctx, delay) {
			break
		}
	}

	logger.Info(ctx, "Context canceled, exiting")

	return nil
}

// Reload applies new timing from the next sleep on.
// A different channel is rejected with ErrChannelChanged.
func (l *Loop) Reload(opts LoopOptions) error {
	if opts.ChannelID != l.channelID {
		return fmt.Errorf("%w: %q -> %q", ErrChannelChanged, l.channelID, opts.ChannelID)
	}

	if opts.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", errInvalidOptions)
	}

	l.mu.Lock()
	l.pending = &opts
	l.mu.Unlock()

	select {
	case l.reload <- struct{}{}:
	default:
	}

	return nil
}

// loadBaseline reads the persisted state once at startup.
func (l *Loop) loadBaseline(ctx context.Context) error {
	stored, err := l.deps.Repository.Load(ctx)

	switch {
	case errors.Is(err, state.ErrNotFound):
		logger.Info(ctx, "No stored state, the first observation becomes the baseline")
	case err != nil:
		return fmt.Errorf("load stored state: %w", err)
	case stored.ChannelID != "" && !strings.EqualFold(stored.ChannelID, l.opts.ChannelID):
		logger.WarnKV(ctx, "Stored state belongs to another channel, starting from a new baseline",
			"stored_channel_id", stored.ChannelID)
	default:
		stored.ChannelID = l.opts.ChannelID
		l.current = stored

		logger.InfoKV(ctx, "Loaded stored state",
			"is_online", stored.IsOnline,
			"last_changed_at", stored.LastChangedAt.Format(time.RFC3339),
			"last_checked_at", stored.LastCheckedAt.Format(time.RFC3339))
	}

	return nil
}

// cycle performs one poll and returns the delay before the next one.
func (l *Loop) cycle(ctx context.Context) time.Duration {
	observed, err := l.deps.Fetcher.Fetch(ctx, l.opts.ChannelID)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}

		delay := l.backoff.Fail()
		l.reportHealth(false)

		logger.ErrorKV(ctx, "Failed to fetch channel status",
			"kind", status.Kind(err),
			"error", err,
			"consecutive_failures", l.backoff.Failures(),
			"retry_in", delay.String())

		return delay
	}

	l.reportHealth(true)

	previous := l.current
	transition := channel.Detect(previous, observed, channel.DetectOptions{NotifyOnFirstRun: l.opts.NotifyOnFirstRun})
	next := channel.NextState(previous, observed)

	logger.DebugKV(ctx, "Channel checked", "is_online", observed.IsOnline, "changed", transition != nil)

	switch {
	case transition == nil:
		l.persist(ctx, next)
	case l.opts.PersistBeforeNotify:
		// Without a durable state the next cycle detects the change again and notifies then.
		if l.persist(ctx, next) {
			l.notify(ctx, transition)
		}
	default:
		l.notify(ctx, transition)

		if !l.persist(ctx, next) {
			// The change is reported already: detect against it and keep retrying the save.
			l.current = next
		}
	}

	return l.backoff.Reset()
}

// notify delivers the transition once; failures are logged and dropped.
func (l *Loop) notify(ctx context.Context, transition *channel.Transition) {
	logger.InfoKV(ctx, "Channel state changed",
		"from", transition.From,
		"to", transition.To,
		"occurred_at", transition.OccurredAt.Format(time.RFC3339))

	if err := l.deps.Notifier.Notify(ctx, transition); err != nil {
		logger.ErrorKV(ctx, "Failed to deliver notification",
			"notifier", l.deps.Notifier.Name(),
			"event", transition.Kind(),
			"error", err)
	}
}

// persist saves next and advances the in-memory state only on success.
func (l *Loop) persist(ctx context.Context, next *channel.StoredState) bool {
	if err := l.deps.Repository.Save(ctx, next); err != nil {
		logger.ErrorKV(ctx, "Failed to persist state",
			"error", err,
			"retry_in", l.opts.PollInterval.String())

		return false
	}

	l.current = next

	return true
}

// sleep waits for delay. It returns false when ctx is cancelled first.
func (l *Loop) sleep(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-l.reload:
			l.applyPending(ctx)
		}
	}
}

// applyPending swaps in the options delivered by Reload.
func (l *Loop) applyPending(ctx context.Context) {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	if pending == nil {
		return
	}

	l.opts = *pending
	l.backoff.SetLimits(pending.PollInterval, pending.MaxBackoff)

	logger.InfoKV(ctx, "Configuration reloaded",
		"poll_interval", pending.PollInterval.String(),
		"max_backoff", l.backoff.max.String(),
		"persist_before_notify", pending.PersistBeforeNotify)
}

func (l *Loop) reportHealth(serving bool) {
	if l.deps.Health != nil {
		l.deps.Health.SetServing(serving)
	}
}
