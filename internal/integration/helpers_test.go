package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/stream-notifier/internal/repository/state"
	"github.com/oshokin/stream-notifier/internal/service/watcher"
)

// reservePort returns a free loopback address for the health server.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// fakePicarto serves the channel endpoint with a switchable online flag.
type fakePicarto struct {
	server *httptest.Server
	online atomic.Bool
	hits   atomic.Int64
}

func newFakePicarto(t *testing.T) *fakePicarto {
	t.Helper()

	api := new(fakePicarto)
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)

		if r.URL.Path != "/channel/name/somecreator" {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"name":"SomeCreator","online":%t,"viewers":7,"title":"Sketching"}`, api.online.Load())
	}))
	t.Cleanup(api.server.Close)

	return api
}

// fakeDiscord records webhook message contents.
type fakeDiscord struct {
	server   *httptest.Server
	mu       sync.Mutex
	contents []string
}

func newFakeDiscord(t *testing.T) *fakeDiscord {
	t.Helper()

	discord := new(fakeDiscord)
	discord.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}

		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		discord.mu.Lock()
		discord.contents = append(discord.contents, body.Content)
		discord.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(discord.server.Close)

	return discord
}

func (d *fakeDiscord) messages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.contents...)
}

// writeSettings creates a settings file for one watcher run.
func writeSettings(t *testing.T, dir, apiURL, webhookURL, healthAddress, driver string) string {
	t.Helper()

	stateFile := "state.json"
	if driver == state.DriverSQLite {
		stateFile = "state.db"
	}

	settings := fmt.Sprintf(`channel_id: somecreator
poll_interval_seconds: 1
max_backoff_seconds: 4
request_timeout_seconds: 2
min_request_spacing_seconds: 0
api_base_url: %s
state_driver: %s
state_file: %s
health_address: %q
log_level: error
notifiers:
  log: false
  discord:
    - name: test server
      webhook_url: %s
      pings: ["@here"]
      notify_offline: true
`, apiURL, driver, filepath.Join(dir, stateFile), healthAddress, webhookURL)

	path := filepath.Join(dir, "stream-notifier.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settings), 0o600))

	return path
}

// startWatcher runs the whole process and returns a function that stops it and checks the exit.
func startWatcher(t *testing.T, configPath string) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- watcher.Run(ctx, &watcher.Options{ConfigPath: configPath})
	}()

	return func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
}
