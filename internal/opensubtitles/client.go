package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"subservient/internal/logging"
	"subservient/internal/services"
)

const (
	defaultHTTPTimeout  = 45 * time.Second
	defaultPause        = 3 * time.Second
	defaultRateRetries  = 5
	default503Retries   = 6
	defaultRequestPace  = 500 * time.Millisecond
	retry503Step        = 5 * time.Second
	retry503Cap         = 30 * time.Second
	maxErrorBodySnippet = 512
)

// Config captures the settings required to talk to the catalog.
type Config struct {
	BaseURL          string
	APIKey           string
	Username         string
	Password         string
	UserAgent        string
	TimeoutSeconds   int
	PauseSeconds     int
	MaxRateRetries   int
	DownloadRetry503 int
}

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	LoadToken() (string, error)
	SaveToken(token string) error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// StatusError is a non-2xx catalog response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxErrorBodySnippet {
		body = body[:maxErrorBodySnippet] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, body)
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// Client talks to the catalog. It is safe for sequential use by one run;
// the token is guarded so a spinner or signal handler can read state.
type Client struct {
	cfg        Config
	httpClient *http.Client
	store      TokenStore
	logger     *slog.Logger
	sleep      Sleeper
	pace       time.Duration

	mu    sync.Mutex
	token string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how retry and pacing waits are performed.
func WithSleeper(sleeper Sleeper) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleep = sleeper
		}
	}
}

// WithRequestPace sets the pause after every catalog request. Zero disables it.
func WithRequestPace(d time.Duration) Option {
	return func(c *Client) {
		c.pace = d
	}
}

// New constructs a client. store may be nil, in which case tokens only live
// in memory.
func New(cfg Config, store TokenStore, logger *slog.Logger, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Username = strings.TrimSpace(cfg.Username)
	if cfg.MaxRateRetries <= 0 {
		cfg.MaxRateRetries = defaultRateRetries
	}
	if cfg.DownloadRetry503 <= 0 {
		cfg.DownloadRetry503 = default503Retries
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		logger:     logging.NewComponentLogger(logger, "opensubtitles"),
		sleep:      sleepContext,
		pace:       defaultRequestPace,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) pauseDuration() time.Duration {
	if c.cfg.PauseSeconds > 0 {
		return time.Duration(c.cfg.PauseSeconds) * time.Second
	}
	return defaultPause
}

// Login exchanges credentials for a bearer token and stores it. A 429 sleeps
// pause_seconds and tries again, at most max_rate_retries times.
func (c *Client) Login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("login: encode body: %w", err)
	}
	endpoint := c.cfg.BaseURL + "/login"

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("login: new request: %w", err)
		}
		c.setCommonHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		body, err := c.send(req, "login")
		if err == nil {
			var parsed struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return "", services.Wrap(services.ErrExternalTool, "opensubtitles", "login", "decode response", err)
			}
			if strings.TrimSpace(parsed.Token) == "" {
				return "", services.Wrap(services.ErrAuthentication, "opensubtitles", "login", "response carried no token", nil)
			}
			c.setToken(parsed.Token)
			if c.store != nil {
				if err := c.store.SaveToken(parsed.Token); err != nil {
					c.logger.Warn("token cache write failed",
						logging.String(logging.FieldEventType, "token_cache_write_failed"),
						logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
						logging.Error(err),
					)
				}
			}
			c.logger.Info("logged in", logging.String(logging.FieldEventType, "login"))
			return parsed.Token, nil
		}

		switch StatusCode(err) {
		case http.StatusTooManyRequests:
			if attempt >= c.cfg.MaxRateRetries {
				return "", services.Wrap(services.ErrTransient, "opensubtitles", "login", "rate limited", err)
			}
			c.logRetry("login", err, attempt, c.pauseDuration())
			if err := c.sleep(ctx, c.pauseDuration()); err != nil {
				return "", err
			}
			continue
		case http.StatusForbidden:
			c.logForbidden(req, err)
			return "", services.Wrap(services.ErrPermission, "opensubtitles", "login", "access denied", err)
		case http.StatusUnauthorized:
			return "", services.Wrap(services.ErrAuthentication, "opensubtitles", "login", "credentials rejected", err)
		}
		return "", services.Wrap(services.ErrExternalTool, "opensubtitles", "login", "request failed", err)
	}
}

func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	if c.store != nil {
		cached, err := c.store.LoadToken()
		if err != nil {
			c.logger.Warn("token cache read failed",
				logging.String(logging.FieldEventType, "token_cache_read_failed"),
				logging.String(logging.FieldErrorHint, "a fresh login will be attempted"),
				logging.Error(err),
			)
		} else if cached != "" {
			c.setToken(cached)
			return cached, nil
		}
	}
	return c.Login(ctx)
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) invalidateToken() {
	c.setToken("")
	if c.store != nil {
		_ = c.store.SaveToken("")
	}
}

// authorized runs an authenticated call. build is invoked for every attempt
// so request bodies are fresh. A 429 replays the call after pause_seconds;
// a 401 clears the token and logs in again exactly once.
func (c *Client) authorized(ctx context.Context, op string, build func(token string) (*http.Request, error)) ([]byte, error) {
	relogged := false
	for attempt := 1; ; attempt++ {
		token, err := c.currentToken(ctx)
		if err != nil {
			return nil, err
		}
		req, err := build(token)
		if err != nil {
			return nil, fmt.Errorf("%s: new request: %w", op, err)
		}
		body, err := c.send(req, op)
		if err == nil {
			return body, nil
		}
		switch StatusCode(err) {
		case http.StatusUnauthorized:
			if relogged {
				return nil, services.Wrap(services.ErrAuthentication, "opensubtitles", op, "token rejected after re-login", err)
			}
			relogged = true
			c.logger.Info("token rejected, logging in again",
				logging.String(logging.FieldEventType, "token_refresh"),
				logging.String("operation", op),
			)
			c.invalidateToken()
			if _, err := c.Login(ctx); err != nil {
				return nil, err
			}
			continue
		case http.StatusTooManyRequests:
			if attempt >= c.cfg.MaxRateRetries {
				return nil, services.Wrap(services.ErrTransient, "opensubtitles", op, "rate limited", err)
			}
			c.logRetry(op, err, attempt, c.pauseDuration())
			if err := c.sleep(ctx, c.pauseDuration()); err != nil {
				return nil, err
			}
			continue
		case http.StatusForbidden:
			c.logForbidden(req, err)
			return nil, services.Wrap(services.ErrPermission, "opensubtitles", op, "access denied", err)
		}
		return nil, err
	}
}

func (c *Client) send(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "opensubtitles", op, "http error", err)
	}
	defer resp.Body.Close()
	body, readErr := io.ReadAll(resp.Body)
	if c.pace > 0 {
		_ = c.sleep(req.Context(), c.pace)
	}
	if readErr != nil {
		return nil, services.Wrap(services.ErrTransient, "opensubtitles", op, "read body", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
}

func (c *Client) logRetry(op string, err error, attempt int, delay time.Duration) {
	c.logger.Info("catalog busy, retrying",
		logging.String(logging.FieldEventType, "catalog_retry"),
		logging.String("operation", op),
		logging.Int("status", StatusCode(err)),
		logging.Int("attempt", attempt),
		logging.Duration("delay", delay),
	)
}

// logForbidden records the request and response without credentials.
func (c *Client) logForbidden(req *http.Request, err error) {
	var statusErr *StatusError
	body := ""
	if errors.As(err, &statusErr) {
		body = statusErr.Body
	}
	logging.WarnWithContext(c.logger, "catalog denied access", "catalog_forbidden",
		logging.String(logging.FieldErrorHint, "check the account status or API key restrictions"),
		logging.String("method", req.Method),
		logging.String("url", redactURL(req.URL)),
		logging.String("response", strings.TrimSpace(body)),
	)
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clone := *u
	clone.User = nil
	return clone.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry503Delay is the wait before the next attempt after a 503.
func retry503Delay(attempt int) time.Duration {
	delay := time.Duration(attempt) * retry503Step
	if delay > retry503Cap {
		return retry503Cap
	}
	return delay
}
