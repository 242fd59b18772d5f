package status

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{
		WithHTTPClient(server.Client()),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)

	client, err := New(server.URL+"/api/v1/", opts...)
	require.NoError(t, err)

	return client
}

func respond(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

// TestFetch_Online parses an online channel and sends the identifying headers.
func TestFetch_Online(t *testing.T) {
	t.Parallel()

	requests := make(chan *http.Request, 1)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Clone(context.Background())

		respond(http.StatusOK, `{"name":"SomeCreator","online":true,"viewers":12,"title":"Painting dragons","category":["Art"]}`)(w, r)
	}, WithUserAgent("test-agent/1.0"), WithFrom("ops@example.com"))

	st, err := client.Fetch(context.Background(), "somecreator")
	require.NoError(t, err)

	require.Equal(t, "somecreator", st.ChannelID)
	require.True(t, st.IsOnline)
	require.Equal(t, fixedNow, st.ObservedAt)
	require.Equal(t, "Painting dragons", st.Metadata.GetFields()["title"].GetStringValue())

	got := <-requests
	require.Equal(t, "/api/v1/channel/name/somecreator", got.URL.EscapedPath())
	require.Equal(t, "test-agent/1.0", got.Header.Get("User-Agent"))
	require.Equal(t, "ops@example.com", got.Header.Get("From"))
	require.Equal(t, "application/json", got.Header.Get("Accept"))
}

// TestFetch_OfflineAndDefaults parses an offline channel with the default headers.
func TestFetch_OfflineAndDefaults(t *testing.T) {
	t.Parallel()

	headers := make(chan http.Header, 1)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()

		respond(http.StatusOK, `{"name":"somecreator","online":false}`)(w, r)
	})

	st, err := client.Fetch(context.Background(), "somecreator")
	require.NoError(t, err)
	require.False(t, st.IsOnline)

	got := <-headers
	require.Contains(t, got.Get("User-Agent"), "stream-notifier/")
	require.Empty(t, got.Values("From"))
}

// TestFetch_APIErrors classifies error statuses and unusable payloads as APIError.
func TestFetch_APIErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		code      int
		body      string
		malformed bool
	}{
		"server error":   {code: http.StatusInternalServerError, body: `oops`},
		"unknown":        {code: http.StatusNotFound, body: `{"error":"not found"}`},
		"rate limited":   {code: http.StatusTooManyRequests, body: ``},
		"not json":       {code: http.StatusOK, body: `<html>maintenance</html>`, malformed: true},
		"array":          {code: http.StatusOK, body: `[{"online":true}]`, malformed: true},
		"missing online": {code: http.StatusOK, body: `{"name":"somecreator"}`, malformed: true},
		"string online":  {code: http.StatusOK, body: `{"online":"true"}`, malformed: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, respond(tc.code, tc.body))

			st, err := client.Fetch(context.Background(), "somecreator")
			require.Nil(t, st)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tc.code, apiErr.StatusCode)
			require.Equal(t, "api", Kind(err))

			if tc.malformed {
				require.ErrorIs(t, err, ErrMalformedPayload)
			}
		})
	}
}

// TestFetch_Timeout bounds a hung request and reports it as a NetworkError timeout.
func TestFetch_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	client := newTestClient(t, func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}, WithTimeout(50*time.Millisecond))

	started := time.Now()

	_, err := client.Fetch(context.Background(), "somecreator")
	require.Less(t, time.Since(started), 5*time.Second)

	var networkErr *NetworkError
	require.ErrorAs(t, err, &networkErr)
	require.True(t, networkErr.Timeout())
	require.Equal(t, "timeout", Kind(err))
}

// TestFetch_ConnectionRefused reports a closed server as a NetworkError.
func TestFetch_ConnectionRefused(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(respond(http.StatusOK, `{"online":true}`))
	baseURL := server.URL
	server.Close()

	client, err := New(baseURL, WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "somecreator")

	var networkErr *NetworkError
	require.ErrorAs(t, err, &networkErr)
	require.False(t, networkErr.Timeout())
	require.Equal(t, "network", Kind(err))
}

// TestFetch_MinSpacing delays back-to-back requests and honours cancellation while waiting.
func TestFetch_MinSpacing(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, respond(http.StatusOK, `{"online":false}`), WithMinSpacing(200*time.Millisecond))

	_, err := client.Fetch(context.Background(), "somecreator")
	require.NoError(t, err)

	started := time.Now()

	_, err = client.Fetch(context.Background(), "somecreator")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(started), 150*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Fetch(ctx, "somecreator")

	var networkErr *NetworkError
	require.ErrorAs(t, err, &networkErr)
	require.ErrorIs(t, err, context.Canceled)
}

// TestNew_Validates rejects missing or invalid base URLs and empty channels.
func TestNew_Validates(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.ErrorIs(t, err, errBaseURLRequired)

	_, err = New("not a url")
	require.Error(t, err)

	client, err := New(unusedBaseURL)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "")
	require.ErrorIs(t, err, errChannelRequired)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{timeout: 0}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	_, ok := ctx.Deadline()
	require.False(t, ok)

	c.timeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestKind falls back to "unknown" for foreign errors.
func TestKind(t *testing.T) {
	t.Parallel()

	require.Equal(t, "unknown", Kind(errors.New("boom")))
	require.Equal(t, "timeout", Kind(&NetworkError{Err: context.DeadlineExceeded}))
}

// unusedBaseURL is a syntactically valid API root that is never contacted.
const unusedBaseURL = "https://api.example.invalid/api/v1"
