package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"golang.org/x/sync/errgroup"

	healthapi "github.com/oshokin/stream-notifier/internal/api/grpc/health"
	"github.com/oshokin/stream-notifier/internal/config"
	"github.com/oshokin/stream-notifier/internal/logger"
	"github.com/oshokin/stream-notifier/internal/repository/state"
	"github.com/oshokin/stream-notifier/internal/service/common"
	"github.com/oshokin/stream-notifier/internal/service/notify"
	"github.com/oshokin/stream-notifier/internal/service/status"
	"github.com/oshokin/stream-notifier/internal/systemd"
)

// Options controls the stream-notifier process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ChannelID overrides the channel from the settings.
	ChannelID string
	// StateFile overrides the state location from the settings.
	StateFile string
	// LogLevel overrides the log level from the settings.
	LogLevel string
}

// overrides turns the command line values into config overrides.
func (o *Options) overrides() []config.Override {
	return []config.Override{func(cfg *config.Config) {
		if o.ChannelID != "" {
			cfg.ChannelID = o.ChannelID
		}

		if o.StateFile != "" {
			cfg.StateFile = o.StateFile
		}

		if o.LogLevel != "" {
			cfg.LogLevel = o.LogLevel
		}
	}}
}

// Run watches the channel until ctx is canceled.
// It fails on invalid settings, a corrupt state, a second instance or a health listener error.
//
//nolint:funlen // Wiring reads best as one sequence of steps.
func Run(ctx context.Context, opts *Options) error {
	// Load settings; command line values win over the file.
	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	configureLogger(ctx, cfg)

	// Derive the named logger only now, so it carries the configured format.
	ctx = logger.WithName(ctx, "stream-notifier")

	// Detect current system actor for the startup log.
	actor, err := common.DetectActor()
	if err != nil {
		return fmt.Errorf("detect actor: %w", err)
	}

	// Refuse to share the state with another running watcher.
	guard := common.NewInstanceGuard(common.PIDFilePath(cfg.StateFile))
	if err = guard.Acquire(ctx); err != nil {
		return err
	}

	defer func() {
		if releaseErr := guard.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Failed to remove pid file", "path", guard.Path(), "error", releaseErr)
		}
	}()

	// Open the state store selected by the settings.
	store, err := state.Open(ctx, state.Options{
		Driver:    cfg.StateDriver,
		Path:      cfg.StateFile,
		ChannelID: cfg.ChannelID,
	})
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	defer func() {
		_ = store.Close()
	}()

	client, err := newStatusClient(cfg)
	if err != nil {
		return fmt.Errorf("create status client: %w", err)
	}

	// Build notifiers; broker connections are released on exit.
	notifier, closeNotifiers, err := notify.Build(ctx, &cfg.Notifiers)
	if err != nil {
		return err
	}

	defer closeNotifiers()

	sd := systemd.New(ctx)
	sd.SetStallLimit(stallLimit(cfg, cfg))

	deps := Dependencies{
		Fetcher:    client,
		Repository: store,
		Notifier:   notifier,
		Ready:      func() { sd.Ready(ctx) },
		Heartbeat:  sd.Heartbeat,
	}

	var healthServer *healthapi.Server

	if cfg.HealthAddress != "" {
		healthServer = healthapi.NewServer()
		deps.Health = healthServer
	}

	loop, err := New(deps, loopOptions(cfg))
	if err != nil {
		return fmt.Errorf("create poll loop: %w", err)
	}

	logger.InfoKV(ctx, "Starting stream notifier",
		"actor", actor.String(),
		"channel_id", cfg.ChannelID,
		"state_driver", cfg.StateDriver,
		"state_file", cfg.StateFile,
		"notifiers", notifier.Names(),
		"watchdog", sd.WatchdogInterval().String())

	group, groupCtx := errgroup.WithContext(ctx)

	if healthServer != nil {
		lis, listenErr := healthapi.Listen(ctx, cfg.HealthAddress)
		if listenErr != nil {
			return listenErr
		}

		group.Go(func() error {
			return healthServer.Serve(groupCtx, lis)
		})
	}

	group.Go(func() error {
		watchSettings(groupCtx, opts, cfg, loop, sd)

		return nil
	})

	group.Go(func() error {
		sd.RunWatchdog(groupCtx)

		return nil
	})

	group.Go(func() error {
		defer sd.Stopping(ctx)

		if runErr := loop.Run(groupCtx); runErr != nil {
			return runErr
		}

		// The loop only returns nil once the context is done; make the group follow.
		return context.Canceled
	})

	if err = group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(ctx, "Stream notifier stopped")

	return nil
}

// loadConfig reads the settings file. A missing file is tolerated when the
// channel comes from the command line.
func loadConfig(ctx context.Context, opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.overrides()...)
	if err == nil {
		return cfg, nil
	}

	if !errors.Is(err, fs.ErrNotExist) || opts.ChannelID == "" {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger.InfoKV(ctx, "Settings file not found, using defaults", "path", opts.ConfigPath)

	cfg, err = config.Parse(nil, opts.overrides()...)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	return cfg, nil
}

// configureLogger applies the level and format from the settings.
func configureLogger(ctx context.Context, cfg *config.Config) {
	if !logger.Configure(cfg.LogLevel, cfg.LogFormat) {
		logger.WarnKV(ctx, "Unknown log level, using info", "log_level", cfg.LogLevel)
	}
}

// newStatusClient creates the API client described by the settings.
func newStatusClient(cfg *config.Config) (*status.Client, error) {
	return status.New(cfg.APIBaseURL,
		status.WithTimeout(cfg.RequestTimeout()),
		status.WithUserAgent(cfg.UserAgent),
		status.WithFrom(cfg.FromEmail),
		status.WithMinSpacing(cfg.MinRequestSpacing()),
	)
}

// loopOptions extracts the loop settings.
func loopOptions(cfg *config.Config) LoopOptions {
	return LoopOptions{
		ChannelID:           cfg.ChannelID,
		PollInterval:        cfg.PollInterval(),
		MaxBackoff:          cfg.MaxBackoff(),
		NotifyOnFirstRun:    cfg.NotifyOnFirstRun,
		PersistBeforeNotify: cfg.PersistBeforeNotify,
	}
}

// stallLimit is the longest a healthy loop can go without finishing a cycle:
// a full backoff sleep plus one request and one delivery to every sink.
// Timing comes from reloaded, while the client and the sinks stay as started in running.
func stallLimit(running, reloaded *config.Config) time.Duration {
	return reloaded.MaxBackoff() + reloaded.PollInterval() +
		running.RequestTimeout() + running.MinRequestSpacing() +
		notify.DeliveryBudget(&running.Notifiers)
}

// watchSettings forwards settings changes to the running loop until ctx is done.
// running is the configuration the process was started with.
func watchSettings(ctx context.Context, opts *Options, running *config.Config, loop *Loop, sd *systemd.Notifier) {
	ctx = logger.WithName(ctx, "settings")

	err := config.Watch(ctx, opts.ConfigPath, func(cfg *config.Config) {
		sd.Reloading(ctx)
		defer sd.Ready(ctx)

		// Only the level is shared with already derived loggers, the format needs a restart.
		if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
			logger.SetLevel(level)
		}

		if reloadErr := loop.Reload(loopOptions(cfg)); reloadErr != nil {
			logger.WarnKV(ctx, "Settings change ignored", "error", reloadErr)

			return
		}

		sd.SetStallLimit(stallLimit(running, cfg))
	}, opts.overrides()...)
	if err != nil {
		logger.WarnKV(ctx, "Settings are not watched, restart to apply changes", "error", err)
	}
}
