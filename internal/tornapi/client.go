// Package tornapi issues authenticated, rate-limit-aware requests against the
// Torn REST API.
package tornapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"tornwatch/internal/store"
)

const (
	defaultBaseURL    = "https://api.torn.com"
	defaultMinSpacing = 1500 * time.Millisecond
	defaultCooldown   = 2 * time.Minute

	// Envelope code the API uses for "too many requests".
	rateLimitCode = 5
)

// CredentialSource supplies the user's API key on demand.
type CredentialSource interface {
	APIKey(ctx context.Context) (string, error)
}

// StoreCredentials reads the key from the persistence collaborator, so a
// cleared credential takes effect on the next request.
type StoreCredentials struct {
	Store store.Store
}

// APIKey returns the stored key, or empty when none is configured.
func (s StoreCredentials) APIKey(ctx context.Context) (string, error) {
	var key string
	if _, err := store.GetJSON(ctx, s.Store, store.KeyCredential, &key); err != nil {
		return "", err
	}
	return strings.TrimSpace(key), nil
}

// Options parameterise the client.
type Options struct {
	BaseURL    string
	MinSpacing time.Duration
	Cooldown   time.Duration
	Timeout    time.Duration
	UserAgent  string
}

// Client is a paced HTTP client for the Torn API. Pacing state lives on the
// instance so independent clients (and tests) do not share it.
type Client struct {
	opts    Options
	creds   CredentialSource
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	baseURL string

	mu            sync.Mutex
	cooldownUntil time.Time
	lastRequest   time.Time
}

// New constructs a client.
func New(opts Options, creds CredentialSource, logger zerolog.Logger) *Client {
	if opts.MinSpacing <= 0 {
		opts.MinSpacing = defaultMinSpacing
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaultCooldown
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		opts:    opts,
		creds:   creds,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(opts.MinSpacing), 1),
		logger:  logger.With().Str("component", "tornapi").Logger(),
		baseURL: baseURL,
	}
}

// FetchJSON performs an authenticated GET and returns the raw JSON body.
// Failures are typed: ErrNoCredential, *RateLimitedError, *APIError, or
// *NetworkError. The key is appended as a query parameter and never logged.
func (c *Client) FetchJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	key, err := c.creds.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	if key == "" {
		return nil, ErrNoCredential
	}

	// Pacing first, then any active cool-down. Both are cooperative waits.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.awaitCooldown(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("key", key)
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "tornwatch/1.0")
	}

	resp, err := c.client.Do(req)
	c.touch()
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, c.startCooldown()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json response (status %d)", resp.StatusCode)
	}

	// The API signals failures inside 200-status bodies, so the envelope
	// check is mandatory after every parse.
	if env := gjson.GetBytes(body, "error"); env.Exists() {
		code := int(env.Get("code").Int())
		if code == rateLimitCode {
			return nil, c.startCooldown()
		}
		return nil, &APIError{Code: code, Message: env.Get("error").String()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return body, nil
}

// CoolingDown reports the active cool-down deadline, if any.
func (c *Client) CoolingDown() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.cooldownUntil) {
		return c.cooldownUntil, true
	}
	return time.Time{}, false
}

// LastRequestAt returns when the most recent request completed, success or not.
func (c *Client) LastRequestAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequest
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

func (c *Client) startCooldown() error {
	c.mu.Lock()
	c.cooldownUntil = time.Now().Add(c.opts.Cooldown)
	until := c.cooldownUntil
	c.mu.Unlock()
	c.logger.Warn().Time("until", until).Msg("rate limited, entering cool-down")
	return &RateLimitedError{Until: until}
}

func (c *Client) awaitCooldown(ctx context.Context) error {
	c.mu.Lock()
	wait := time.Until(c.cooldownUntil)
	c.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
