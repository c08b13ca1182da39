// Package api is the HTTP client for the Postly blog API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"postly/internal/featureflags"
	"postly/internal/models"
	"postly/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const (
	defaultBaseURL = "http://localhost:4080/api/v1"

	refreshPath        = "/auth/refresh"
	refreshTokenHeader = "x-refresh-token"
)

// TokenStore holds the bearer tokens. Implementations must be safe for
// concurrent use.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetAccessToken(token string)
}

// Client calls the Postly API. A 401 triggers exactly one token refresh and
// one retry of the original request; if the refresh cannot happen the
// auth-failure handler runs and the call fails with UNAUTHORIZED.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	flags      *featureflags.Manager
	now        func() time.Time
	log        *observability.ComponentLogger

	onAuthFailure func(context.Context)

	// refreshMu serializes refreshes so concurrent 401s share one.
	refreshMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithFlags sets the feature-flag manager consulted per request.
func WithFlags(m *featureflags.Manager) Option {
	return func(c *Client) { c.flags = m }
}

// WithClock overrides the clock used for the cache-buster parameter.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithAuthFailureHandler registers the function run when a 401 cannot be
// recovered by a refresh.
func WithAuthFailureHandler(fn func(context.Context)) Option {
	return func(c *Client) { c.onAuthFailure = fn }
}

// NewClient creates a client for baseURL. If baseURL is empty, it defaults
// to the local development API.
func NewClient(baseURL string, tokens TokenStore, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		tokens: tokens,
		flags:  featureflags.NewManager(""),
		now:    time.Now,
		log:    observability.NewComponentLogger("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAuthFailureHandler replaces the auth-failure handler after construction.
func (c *Client) SetAuthFailureHandler(fn func(context.Context)) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.onAuthFailure = fn
}

type request struct {
	method string
	path   string
	// route is the path template used for metrics and span names.
	route  string
	query  url.Values
	body   any
	header http.Header
	// noReauth disables the refresh-and-retry path.
	noReauth bool
}

// do runs req, refreshing once on 401, and returns the decoded envelope.
func (c *Client) do(ctx context.Context, req request) (*models.Envelope, error) {
	sentWith := c.accessToken()
	env, err := c.send(ctx, req)
	if err == nil || req.noReauth || !models.IsCode(err, models.CodeUnauthorized) {
		return env, err
	}

	retry, handler := c.reauthenticate(ctx, sentWith)
	if !retry {
		if handler != nil {
			handler(ctx)
		}
		return env, err
	}
	return c.send(ctx, req)
}

// reauthenticate refreshes the access token unless another caller already
// did so since sentWith was used. It reports whether a retry is worthwhile;
// when it is not, the returned handler must run once the caller is done.
func (c *Client) reauthenticate(ctx context.Context, sentWith string) (bool, func(context.Context)) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.accessToken(); current != "" && current != sentWith {
		return true, nil
	}

	refreshToken := ""
	if c.tokens != nil {
		refreshToken = c.tokens.RefreshToken()
	}
	if refreshToken == "" {
		observability.TokenRefreshTotal.WithLabelValues("no_token").Inc()
		return false, c.onAuthFailure
	}

	token, err := c.refresh(ctx, refreshToken)
	if err != nil {
		observability.TokenRefreshTotal.WithLabelValues("failure").Inc()
		c.log.Warn(ctx, "token refresh failed", map[string]interface{}{"error": err.Error()})
		return false, c.onAuthFailure
	}

	observability.TokenRefreshTotal.WithLabelValues("success").Inc()
	c.tokens.SetAccessToken(token)
	return true, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	header := http.Header{}
	header.Set(refreshTokenHeader, refreshToken)

	env, err := c.send(ctx, request{
		method:   http.MethodGet,
		path:     refreshPath,
		header:   header,
		noReauth: true,
	})
	if err != nil {
		return "", err
	}

	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err := env.DecodeData(&data); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if data.AccessToken == "" {
		return "", errors.New("refresh response carried no access token")
	}
	return data.AccessToken, nil
}

func (c *Client) accessToken() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.AccessToken()
}

// send performs a single round trip.
func (c *Client) send(ctx context.Context, req request) (*models.Envelope, error) {
	route := req.route
	if route == "" {
		route = req.path
	}

	span, ctx := observability.NewClientSpan(ctx, req.method+" "+route,
		attribute.String("http.method", req.method),
		attribute.String("http.route", route),
	)
	defer span.End()
	done := observability.TrackRequest(req.method, route)

	env, status, err := c.roundTrip(ctx, req)
	span.AddAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.SetError(err)
		done(statusLabel(status))
		return env, err
	}
	done(statusLabel(status))
	return env, nil
}

func (c *Client) roundTrip(ctx context.Context, req request) (*models.Envelope, int, error) {
	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, 0, models.NewNetworkOrServerError("", 0, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return nil, 0, models.NewNetworkOrServerError("", 0, fmt.Errorf("create request: %w", err))
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if token := c.accessToken(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if cid := observability.ExtractCorrelationID(ctx); cid != "" {
		httpReq.Header.Set("X-Request-ID", cid)
	}
	observability.InjectHeaders(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, models.NewNetworkOrServerError("", 0, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, models.NewNetworkOrServerError("", resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	var env models.Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr != nil {
			return nil, resp.StatusCode, models.Classify(resp.StatusCode, nil)
		}
		return &env, resp.StatusCode, models.Classify(resp.StatusCode, &env)
	}
	if decodeErr != nil {
		return nil, resp.StatusCode, models.NewNetworkOrServerError("", resp.StatusCode, fmt.Errorf("decode response: %w", decodeErr))
	}
	return &env, resp.StatusCode, nil
}

func statusLabel(status int) string {
	if status == 0 {
		return "transport_error"
	}
	return strconv.Itoa(status)
}
