package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the notifier needs to watch one channel.
type Config struct {
	// ChannelID is the name of the watched channel.
	ChannelID string `yaml:"channel_id"`
	// PollIntervalSeconds is the base sleep between successful cycles.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// MaxBackoffSeconds caps the sleep after consecutive failures.
	MaxBackoffSeconds int `yaml:"max_backoff_seconds"`
	// RequestTimeoutSeconds bounds a single status request.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	// NotifyOnFirstRun reports a live channel on the very first observation.
	NotifyOnFirstRun bool `yaml:"notify_on_first_run"`
	// PersistBeforeNotify saves the new state before notifying (never duplicate, may miss).
	PersistBeforeNotify bool `yaml:"persist_before_notify"`
	// APIBaseURL is the root of the platform API.
	APIBaseURL string `yaml:"api_base_url"`
	// UserAgent is sent with every API request.
	UserAgent string `yaml:"user_agent"`
	// FromEmail is sent in the From header so the platform can contact the operator.
	FromEmail string `yaml:"from_email"`
	// MinRequestSpacingSeconds is the minimum gap between two API requests; 0 disables the guard.
	MinRequestSpacingSeconds *int `yaml:"min_request_spacing_seconds"`
	// StateDriver selects the persistence backend: "file" or "sqlite".
	StateDriver string `yaml:"state_driver"`
	// StateFile is the path of the state file or database.
	StateFile string `yaml:"state_file"`
	// LogLevel is the minimum level of emitted log lines.
	LogLevel string `yaml:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format"`
	// HealthAddress is the gRPC health endpoint listen address; empty disables it.
	HealthAddress string `yaml:"health_address"`
	// Notifiers configures the notification sinks.
	Notifiers Notifiers `yaml:"notifiers"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "stream-notifier.yaml"

	// ConfigPathEnv names the environment variable that overrides the default config path.
	ConfigPathEnv = "STREAM_NOTIFIER_CONFIG"

	// DefaultStateFilename is the default filename for the persisted state.
	DefaultStateFilename = "stream-notifier-state.json"

	// DefaultAPIBaseURL is the public Picarto API root.
	DefaultAPIBaseURL = "https://api.picarto.tv/api/v1"

	// DefaultPollIntervalSeconds is the default base interval between cycles.
	DefaultPollIntervalSeconds = 60

	// DefaultMaxBackoffSeconds is the default cap for the failure backoff.
	DefaultMaxBackoffSeconds = 900

	// DefaultRequestTimeoutSeconds is the default bound for one status request.
	DefaultRequestTimeoutSeconds = 10

	// DefaultMinRequestSpacingSeconds is the default gap enforced between API requests.
	DefaultMinRequestSpacingSeconds = 5

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errChannelRequired is returned when the channel id is missing.
	errChannelRequired = errors.New("channel_id must be provided")
	// errNegativeDuration is returned for negative interval settings.
	errNegativeDuration = errors.New("durations must not be negative")
	// errBackoffBelowInterval is returned when the backoff cap is below the base interval.
	errBackoffBelowInterval = errors.New("max_backoff_seconds must not be lower than poll_interval_seconds")
	// errUnknownDriver is returned for an unsupported state driver.
	errUnknownDriver = errors.New("state_driver must be \"file\" or \"sqlite\"")
	// errUnknownLogFormat is returned for an unsupported log format.
	errUnknownLogFormat = errors.New("log_format must be \"console\" or \"json\"")
)

// DefaultPath returns the config path from the environment or the default filename.
func DefaultPath() string {
	if path := strings.TrimSpace(os.Getenv(ConfigPathEnv)); path != "" {
		return path
	}

	return DefaultConfigFilename
}

// Override adjusts decoded settings before they are validated.
type Override func(*Config)

// Load reads configuration from the provided path, applies the overrides and validates it.
func Load(path string, overrides ...Override) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	return Parse(contents, overrides...)
}

// Parse decodes YAML settings, applies the overrides and validates them.
// Empty contents yield the defaults.
func Parse(contents []byte, overrides ...Override) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	for _, override := range overrides {
		override(&cfg)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file may hold webhook URLs and bot tokens.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
//
//nolint:cyclop // A flat list of checks reads better than helpers.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	settings.ChannelID = strings.TrimSpace(settings.ChannelID)
	if settings.ChannelID == "" {
		return errChannelRequired
	}

	if settings.PollIntervalSeconds < 0 || settings.MaxBackoffSeconds < 0 || settings.RequestTimeoutSeconds < 0 {
		return errNegativeDuration
	}

	if settings.PollIntervalSeconds == 0 {
		settings.PollIntervalSeconds = DefaultPollIntervalSeconds
	}

	if settings.MaxBackoffSeconds == 0 {
		settings.MaxBackoffSeconds = max(DefaultMaxBackoffSeconds, settings.PollIntervalSeconds)
	}

	if settings.MaxBackoffSeconds < settings.PollIntervalSeconds {
		return errBackoffBelowInterval
	}

	if settings.RequestTimeoutSeconds == 0 {
		settings.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}

	if settings.MinRequestSpacingSeconds == nil {
		spacing := DefaultMinRequestSpacingSeconds
		settings.MinRequestSpacingSeconds = &spacing
	} else if *settings.MinRequestSpacingSeconds < 0 {
		return errNegativeDuration
	}

	if settings.APIBaseURL == "" {
		settings.APIBaseURL = DefaultAPIBaseURL
	}

	if _, err := url.ParseRequestURI(settings.APIBaseURL); err != nil {
		return fmt.Errorf("invalid api_base_url: %w", err)
	}

	switch strings.ToLower(settings.StateDriver) {
	case "":
		settings.StateDriver = "file"
	case "file", "sqlite":
		settings.StateDriver = strings.ToLower(settings.StateDriver)
	default:
		return errUnknownDriver
	}

	if settings.StateFile == "" {
		settings.StateFile = DefaultStateFilename
	}

	switch strings.ToLower(settings.LogFormat) {
	case "":
		settings.LogFormat = "console"
	case "console", "json":
		settings.LogFormat = strings.ToLower(settings.LogFormat)
	default:
		return errUnknownLogFormat
	}

	if settings.HealthAddress != "" {
		if _, _, err := net.SplitHostPort(settings.HealthAddress); err != nil {
			return fmt.Errorf("invalid health_address: %w", err)
		}
	}

	return settings.Notifiers.validate()
}

// PollInterval returns the base interval between cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// MaxBackoff returns the backoff cap.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

// RequestTimeout returns the bound for one status request.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// MinRequestSpacing returns the minimum gap between API requests.
func (c *Config) MinRequestSpacing() time.Duration {
	if c.MinRequestSpacingSeconds == nil {
		return DefaultMinRequestSpacingSeconds * time.Second
	}

	return time.Duration(*c.MinRequestSpacingSeconds) * time.Second
}
