package watcher

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/stream-notifier/internal/config"
)

// TestRunInit writes loadable defaults and keeps an existing file unless forced.
func TestRunInit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stream-notifier.yaml")

	var out bytes.Buffer

	opts := &InitOptions{Options: Options{ConfigPath: path, ChannelID: "somecreator"}}
	require.NoError(t, RunInit(context.Background(), opts, &out))
	require.Equal(t, "Settings for somecreator written to "+path+"\n", out.String())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "somecreator", cfg.ChannelID)
	require.Equal(t, config.DefaultPollIntervalSeconds, cfg.PollIntervalSeconds)
	require.Equal(t, config.DefaultAPIBaseURL, cfg.APIBaseURL)

	opts.ChannelID = "othercreator"
	require.ErrorIs(t, RunInit(context.Background(), opts, new(bytes.Buffer)), ErrSettingsExist)

	opts.Force = true
	require.NoError(t, RunInit(context.Background(), opts, new(bytes.Buffer)))

	cfg, err = config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "othercreator", cfg.ChannelID)
}

// TestRunInit_RequiresChannel writes nothing without a channel.
func TestRunInit_RequiresChannel(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stream-notifier.yaml")

	require.Error(t, RunInit(context.Background(), &InitOptions{Options: Options{ConfigPath: path}}, new(bytes.Buffer)))
	require.NoFileExists(t, path)
}
