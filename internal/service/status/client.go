package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/stream-notifier/internal/domain/channel"
	"github.com/oshokin/stream-notifier/internal/version"
)

const (
	// DefaultTimeout bounds a request when no timeout option is given.
	DefaultTimeout = 10 * time.Second

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 1 << 20

	// onlineField is the payload field carrying the live flag.
	onlineField = "online"

	// Transport tuning.
	dialTimeout     = 10 * time.Second
	dialKeepAlive   = 30 * time.Second
	idleConnTimeout = 90 * time.Second
)

var (
	// errBaseURLRequired is returned when the client is created without an API root.
	errBaseURLRequired = errors.New("api base url must be provided")
	// errChannelRequired is returned when Fetch is called without a channel.
	errChannelRequired = errors.New("channel id must be provided")
)

// Client fetches channel status from the Picarto API.
type Client struct {
	// httpClient performs the requests.
	httpClient *http.Client
	// baseURL is the API root, without a trailing slash.
	baseURL string
	// userAgent is sent in the User-Agent header.
	userAgent string
	// from is sent in the From header when not empty.
	from string
	// timeout bounds each request.
	timeout time.Duration
	// limiter enforces a minimum spacing between requests; nil disables it.
	limiter *rate.Limiter
	// now stamps observations.
	now func() time.Time
}

// Option configures client behaviour.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithFrom sets the From header, a contact address for the API operators.
func WithFrom(from string) Option {
	return func(c *Client) {
		c.from = from
	}
}

// WithMinSpacing makes the client wait so that two requests are at least spacing apart.
func WithMinSpacing(spacing time.Duration) Option {
	return func(c *Client) {
		if spacing > 0 {
			c.limiter = rate.NewLimiter(rate.Every(spacing), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithHTTPClient replaces the HTTP client, e.g. with one pointing at a test server.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithClock replaces the function used to stamp observations.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}

	client := &Client{
		httpClient: &http.Client{Transport: newTransport()},
		baseURL:    baseURL,
		userAgent:  version.UserAgent(),
		timeout:    DefaultTimeout,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Fetch returns the current status of the channel.
// Errors are *NetworkError or *APIError; the client never retries.
func (c *Client) Fetch(ctx context.Context, channelID string) (*channel.Status, error) {
	if channelID == "" {
		return nil, errChannelRequired
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Err: fmt.Errorf("wait for request slot: %w", err)}
		}
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	endpoint := c.baseURL + "/channel/name/" + url.PathEscape(channelID)

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if c.from != "" {
		req.Header.Set("From", c.from)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		// The body was cut off mid-transfer, which is a transport problem.
		return nil, &NetworkError{Err: fmt.Errorf("read status response: %w", err)}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response %q: %s", resp.Status, snippet(body)),
		}
	}

	metadata, online, err := parsePayload(body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Err: err}
	}

	return &channel.Status{
		ChannelID:  channelID,
		IsOnline:   online,
		ObservedAt: c.now(),
		Metadata:   metadata,
	}, nil
}

// callContext returns a context with the client's timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.timeout)
}

// parsePayload decodes the channel object and extracts the online flag.
func parsePayload(body []byte) (*structpb.Struct, bool, error) {
	if !json.Valid(body) {
		return nil, false, fmt.Errorf("%w: body is not valid JSON: %s", ErrMalformedPayload, snippet(body))
	}

	var metadata structpb.Struct
	if err := protojson.Unmarshal(body, &metadata); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	online, ok := metadata.GetFields()[onlineField].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, false, fmt.Errorf("%w: field %q is missing or not a boolean", ErrMalformedPayload, onlineField)
	}

	return &metadata, online.BoolValue, nil
}

// snippet shortens a body for error messages.
func snippet(body []byte) string {
	const limit = 200

	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}

	return s
}

// newTransport builds the HTTP transport and upgrades it to HTTP/2 via x/net/http2.
func newTransport() *http.Transport {
	//nolint:exhaustruct // Remaining fields keep their zero defaults.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: dialKeepAlive,
		}).DialContext,
		MaxIdleConns:          4,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ExpectContinueTimeout: time.Second,
	}

	// Only fails when h2 is already registered, which cannot happen for a fresh transport.
	_ = http2.ConfigureTransport(transport)

	return transport
}
