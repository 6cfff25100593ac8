package lapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/logger"
	"github.com/TheDuffman85/crowdsec-web-ui-sub001/internal/metrics"
)

var (
	ErrNoCredentials = errors.New("lapi credentials not configured")
	ErrAuthFailed    = errors.New("lapi authentication failed")
)

// APIError carries a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lapi returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("lapi returned status %d: %s", e.StatusCode, e.Message)
}

// Status is the last observed upstream state, refreshed on every call.
type Status struct {
	Available     bool      `json:"available"`
	Authenticated bool      `json:"authenticated"`
	Message       string    `json:"message,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Client talks to the upstream LAPI on behalf of the cache engine and the
// UI routes. It owns authentication: login, bearer token lifetime and the
// single re-login-and-replay on 401. Callers treat every method as
// fallible I/O and decide themselves whether a failure is fatal.
type Client struct {
	httpClient *http.Client
	nowFn      func() time.Time

	mu       sync.Mutex
	creds    Credentials
	token    string
	tokenExp time.Time
	status   Status
}

// NewClient builds a client from static credentials. Pass a nil httpClient
// to get a sane default with a request timeout.
func NewClient(creds Credentials, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	creds.URL = strings.TrimRight(strings.TrimSpace(creds.URL), "/")
	return &Client{
		httpClient: httpClient,
		nowFn:      time.Now,
		creds:      creds,
	}
}

// SetCredentials swaps the machine credentials and drops the current token
// so the next call performs a fresh login. Used by the credentials file
// watcher.
func (c *Client) SetCredentials(creds Credentials) {
	creds.URL = strings.TrimRight(strings.TrimSpace(creds.URL), "/")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.token = ""
	c.tokenExp = time.Time{}
}

// HasCredentials reports whether a login could be attempted at all.
func (c *Client) HasCredentials() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.Complete()
}

// HasToken reports whether the client currently holds a bearer token that
// has not passed its expiry.
func (c *Client) HasToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != "" && c.nowFn().Before(c.tokenExp)
}

// Status returns the last observed upstream state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(available, authenticated bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = Status{
		Available:     available,
		Authenticated: authenticated,
		Message:       message,
		CheckedAt:     c.nowFn(),
	}
}

type loginRequest struct {
	MachineID string   `json:"machine_id"`
	Password  string   `json:"password"`
	Scenarios []string `json:"scenarios"`
}

type loginResponse struct {
	Code   int    `json:"code"`
	Token  string `json:"token"`
	Expire string `json:"expire"`
}

// Login authenticates against POST /v1/watchers/login and stores the
// bearer token. The token's lifetime is read from its exp claim; the
// response's expire field is the fallback when the token is not a JWT.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()

	if !creds.Complete() {
		c.setStatus(false, false, ErrNoCredentials.Error())
		return ErrNoCredentials
	}

	body, err := json.Marshal(loginRequest{MachineID: creds.Login, Password: creds.Password, Scenarios: []string{}})
	if err != nil {
		return fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.URL+"/v1/watchers/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncUpstreamRequest("error")
		c.setStatus(false, false, err.Error())
		return fmt.Errorf("lapi login: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncUpstreamRequest("error")
		return fmt.Errorf("read login response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.IncUpstreamRequest("auth_error")
		c.setStatus(true, false, fmt.Sprintf("login rejected with status %d", resp.StatusCode))
		return fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}

	var lr loginResponse
	if err := json.Unmarshal(payload, &lr); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if lr.Token == "" {
		c.setStatus(true, false, "login response carried no token")
		return fmt.Errorf("%w: empty token", ErrAuthFailed)
	}

	exp := c.tokenExpiry(lr)

	c.mu.Lock()
	c.token = lr.Token
	c.tokenExp = exp
	c.mu.Unlock()

	metrics.IncUpstreamRequest("ok")
	c.setStatus(true, true, "")
	logger.WithFields(map[string]interface{}{"login": creds.Login, "expires": exp.Format(time.RFC3339)}).Debug("lapi login succeeded")
	return nil
}

// tokenExpiry prefers the JWT exp claim over the response's expire field so
// a proxy rewriting the envelope cannot desync the client from the token.
func (c *Client) tokenExpiry(lr loginResponse) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(lr.Token, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if lr.Expire != "" {
		if t, err := time.Parse(time.RFC3339, lr.Expire); err == nil {
			return t
		}
	}
	// Upstream tokens default to a short lifetime; an hour keeps us safely
	// inside it when neither source parsed.
	return c.nowFn().Add(time.Hour)
}

// ensureToken logs in when no token is held or the held one is within a
// minute of expiry.
func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	ok := c.token != "" && c.nowFn().Add(time.Minute).Before(c.tokenExp)
	c.mu.Unlock()
	if ok {
		return nil
	}
	return c.Login(ctx)
}

// do performs one authenticated call. A 401 triggers exactly one re-login
// and replay; the error surfaces only when the replay fails too.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}

	replayed := false
	for {
		c.mu.Lock()
		base, token := c.creds.URL, c.token
		c.mu.Unlock()

		target := base + path
		if len(query) > 0 {
			target += "?" + query.Encode()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("build %s %s: %w", method, path, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.IncUpstreamRequest("error")
			c.setStatus(false, false, err.Error())
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		payload, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			metrics.IncUpstreamRequest("error")
			return fmt.Errorf("read %s %s response: %w", method, path, readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && !replayed {
			replayed = true
			logger.Log().Debug("lapi returned 401, re-logging in and replaying once")
			if err := c.Login(ctx); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			metrics.IncUpstreamRequest("error")
			var errPayload struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(payload, &errPayload)
			c.setStatus(true, resp.StatusCode != http.StatusUnauthorized, errPayload.Message)
			return &APIError{StatusCode: resp.StatusCode, Message: errPayload.Message}
		}

		metrics.IncUpstreamRequest("ok")
		c.setStatus(true, true, "")
		if out == nil || len(payload) == 0 {
			return nil
		}
		return json.Unmarshal(payload, out)
	}
}

// FetchAlerts lists alerts from GET /v1/alerts. since and until are
// relative windows expressed upstream-style ("2h30m0s" means "no older /
// no newer than that long ago"); nil leaves that side unbounded.
// activeOnly restricts the result to alerts still holding a live decision.
func (c *Client) FetchAlerts(ctx context.Context, since, until *time.Duration, activeOnly bool) ([]Alert, error) {
	q := url.Values{}
	if since != nil {
		q.Set("since", since.String())
	}
	if until != nil {
		q.Set("until", until.String())
	}
	if activeOnly {
		q.Set("has_active_decision", "true")
	}

	var alerts []Alert
	if err := c.do(ctx, http.MethodGet, "/v1/alerts", q, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// AddDecision pushes a manual decision upstream by creating a one-decision
// alert, which is how the upstream's own CLI does it. The cache picks the
// new record up on the next delta sync.
func (c *Client) AddDecision(ctx context.Context, value, decisionType, duration, reason string) error {
	if decisionType == "" {
		decisionType = "ban"
	}
	if duration == "" {
		duration = "4h"
	}
	message := fmt.Sprintf("manual '%s' from '%s'", decisionType, "web-ui")
	if reason != "" {
		message = fmt.Sprintf("%s: %s", message, reason)
	}

	now := c.nowFn().UTC().Format(time.RFC3339)
	alert := map[string]interface{}{
		"scenario":         message,
		"scenario_hash":    "",
		"scenario_version": "",
		"message":          message,
		"events":           []interface{}{},
		"events_count":     1,
		"capacity":         0,
		"leakspeed":        "0",
		"simulated":        false,
		"start_at":         now,
		"stop_at":          now,
		"source": map[string]interface{}{
			"scope": "Ip",
			"value": value,
		},
		"decisions": []map[string]interface{}{{
			"origin":   "cscli",
			"scenario": message,
			"scope":    "Ip",
			"type":     decisionType,
			"value":    value,
			"duration": duration,
		}},
	}

	body, err := json.Marshal([]interface{}{alert})
	if err != nil {
		return fmt.Errorf("encode decision alert: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/v1/alerts", nil, body, nil)
}

// DeleteDecision removes one decision upstream.
func (c *Client) DeleteDecision(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/decisions/"+url.PathEscape(id), nil, nil, nil)
}

// DeleteAlert removes one alert upstream.
func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/alerts/"+url.PathEscape(id), nil, nil, nil)
}
