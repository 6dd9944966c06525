package crowdsec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/JGeek00/crowdsec-monitor-api/internal/logger"
	"github.com/JGeek00/crowdsec-monitor-api/internal/metrics"
	"github.com/JGeek00/crowdsec-monitor-api/internal/util"
	"github.com/JGeek00/crowdsec-monitor-api/internal/version"
)

const (
	// DefaultTimeout bounds every LAPI call except the status probe.
	DefaultTimeout = 10 * time.Second
	// StatusTimeout bounds CheckStatus.
	StatusTimeout = 3 * time.Second

	tokenRefreshMargin = 5 * time.Minute
	maxResponseBytes   = 64 << 20
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	User       string
	Password   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type tokenState struct {
	value     string
	expiresAt time.Time
}

func (t tokenState) validAt(now time.Time) bool {
	return t.value != "" && t.expiresAt.After(now.Add(tokenRefreshMargin))
}

// Client talks to the CrowdSec Local API as a watcher machine. It owns the
// bearer token and renews it when it gets within five minutes of expiry.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	log      *logrus.Entry

	authMu sync.Mutex
	mu     sync.RWMutex
	token  tokenState

	breaker *gobreaker.CircuitBreaker[[]Alert]
}

// NewClient builds a client for the LAPI at opts.BaseURL.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		user:     opts.User,
		password: opts.Password,
		http:     httpClient,
		log:      logger.Component("crowdsec"),
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]Alert](gobreaker.Settings{
		Name:        "crowdsec-lapi",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isUnavailable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("LAPI circuit breaker state changed")
		},
	})

	return c
}

// Login authenticates against /v1/watchers/login and stores the token.
// Failures are logged and reported as false.
func (c *Client) Login(ctx context.Context) bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.login(ctx, false)
}

func (c *Client) login(ctx context.Context, quiet bool) bool {
	const action = "authenticating"
	if !quiet {
		c.log.Info("Authenticating with CrowdSec LAPI")
	}

	body := loginRequest{MachineID: c.user, Password: c.password, Scenarios: []string{LoginScenario}}
	var resp loginResponse
	if err := c.do(ctx, action, http.MethodPost, "/v1/watchers/login", nil, body, "", &resp); err != nil {
		if quiet {
			c.log.WithError(err).Debug("LAPI login failed")
		} else {
			c.handleError(action, err)
		}
		return false
	}

	if resp.Token == "" {
		c.log.Error("Authentication failed: no token received")
		return false
	}

	expiresAt := tokenExpiry(resp)
	c.mu.Lock()
	c.token = tokenState{value: resp.Token, expiresAt: expiresAt}
	c.mu.Unlock()

	if !quiet {
		c.log.WithField("expires_at", expiresAt.Format(time.RFC3339)).Info("Authentication successful")
	}
	return true
}

// tokenExpiry prefers the expire field and falls back to the JWT exp claim.
func tokenExpiry(resp loginResponse) time.Time {
	if t, err := time.Parse(time.RFC3339, resp.Expire); err == nil {
		return t
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.Token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Time{}
}

// EnsureAuthenticated logs in again unless the current token is valid for
// more than five minutes.
func (c *Client) EnsureAuthenticated(ctx context.Context) error {
	_, err := c.bearer(ctx)
	return err
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	if token, ok := c.currentToken(); ok {
		return token, nil
	}

	c.authMu.Lock()
	defer c.authMu.Unlock()
	if token, ok := c.currentToken(); ok {
		return token, nil
	}

	c.log.Info("Token expired or not available, re-authenticating")
	if !c.login(ctx, false) {
		return "", ErrNotAuthenticated
	}
	// A fresh token is used even when it expires inside the renewal margin.
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token.value, nil
}

func (c *Client) currentToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token.value, c.token.validAt(time.Now())
}

// TokenExpiry returns the expiry of the held token, zero if none.
func (c *Client) TokenExpiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token.expiresAt
}

// FetchAlerts returns every Ip and Range scoped alert with its decisions.
// Errors are logged and returned; the call fails fast while the circuit
// breaker is open.
func (c *Client) FetchAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	const action = "fetching alerts"
	alerts, err := c.breaker.Execute(func() ([]Alert, error) {
		token, err := c.bearer(ctx)
		if err != nil {
			return nil, err
		}
		var out []Alert
		if err := c.do(ctx, action, http.MethodGet, "/v1/alerts", filter.query(), nil, token, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		c.handleError(action, err)
		return nil, err
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	return alerts, nil
}

// GetAlerts behaves like FetchAlerts but degrades to an empty list.
func (c *Client) GetAlerts(ctx context.Context, filter AlertFilter) []Alert {
	alerts, err := c.FetchAlerts(ctx, filter)
	if err != nil {
		return []Alert{}
	}
	return alerts
}

func (f AlertFilter) query() url.Values {
	q := url.Values{}
	q.Add("scope", "Ip")
	q.Add("scope", "Range")
	if f.Since != "" {
		q.Set("since", f.Since)
	}
	if f.Until != "" {
		q.Set("until", f.Until)
	}
	if f.HasActiveDecision != nil {
		q.Set("has_active_decision", strconv.FormatBool(*f.HasActiveDecision))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// GetAlertByID fetches a single alert.
func (c *Client) GetAlertByID(ctx context.Context, id int64) (*Alert, error) {
	action := fmt.Sprintf("fetching alert %d", id)
	token, err := c.bearer(ctx)
	if err != nil {
		c.handleError(action, err)
		return nil, err
	}
	var alert Alert
	if err := c.do(ctx, action, http.MethodGet, "/v1/alerts/"+strconv.FormatInt(id, 10), nil, nil, token, &alert); err != nil {
		c.handleError(action, err)
		return nil, err
	}
	return &alert, nil
}

// CreateAlerts posts alerts (usually carrying manual decisions) and returns
// the ids LAPI assigned.
func (c *Client) CreateAlerts(ctx context.Context, alerts []CreateAlert) ([]string, error) {
	const action = "creating alerts"
	token, err := c.bearer(ctx)
	if err != nil {
		c.handleError(action, err)
		return nil, err
	}
	var ids idList
	if err := c.do(ctx, action, http.MethodPost, "/v1/alerts", nil, alerts, token, &ids); err != nil {
		c.handleError(action, err)
		return nil, err
	}
	c.log.WithField("count", len(ids)).Info("Created alerts in LAPI")
	return []string(ids), nil
}

// DeleteAlert deletes an alert upstream and returns how many rows LAPI removed.
func (c *Client) DeleteAlert(ctx context.Context, id int64) (int, error) {
	return c.deleteByID(ctx, fmt.Sprintf("deleting alert %d", id), "/v1/alerts/"+strconv.FormatInt(id, 10))
}

// DeleteDecision deletes a decision upstream and returns how many rows LAPI removed.
func (c *Client) DeleteDecision(ctx context.Context, id int64) (int, error) {
	return c.deleteByID(ctx, fmt.Sprintf("deleting decision %d", id), "/v1/decisions/"+strconv.FormatInt(id, 10))
}

func (c *Client) deleteByID(ctx context.Context, action, path string) (int, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		c.handleError(action, err)
		return 0, err
	}
	var resp deleteResponse
	if err := c.do(ctx, action, http.MethodDelete, path, nil, nil, token, &resp); err != nil {
		c.handleError(action, err)
		return 0, err
	}
	return int(resp.NbDeleted), nil
}

// CheckStatus probes LAPI with a short timeout. It reuses a valid token and
// otherwise logs in quietly; failures are only logged at debug level.
func (c *Client) CheckStatus(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	token, ok := c.currentToken()
	if !ok {
		c.authMu.Lock()
		loggedIn := c.login(ctx, true)
		c.authMu.Unlock()
		if !loggedIn {
			return false
		}
		token, _ = c.currentToken()
	}

	q := url.Values{"limit": {"1"}}
	if err := c.do(ctx, "checking status", http.MethodGet, "/v1/alerts", q, nil, token, nil); err != nil {
		c.log.WithError(err).Debug("LAPI status check failed")
		return false
	}
	return true
}

// TestConnection forces a login and issues a minimal query.
func (c *Client) TestConnection(ctx context.Context) bool {
	if !c.Login(ctx) {
		return false
	}
	token, _ := c.currentToken()
	q := url.Values{"limit": {"1"}}
	if err := c.do(ctx, "testing connection", http.MethodGet, "/v1/alerts", q, nil, token, nil); err != nil {
		c.handleError("testing connection", err)
		return false
	}
	return true
}

func (c *Client) do(ctx context.Context, action, method, path string, query url.Values, body any, token string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Action: action, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &RequestError{Action: action, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "crowdsec-monitor-api/"+version.Version)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.IncLAPIRequest(metricLabel(action), false)
		return &TransportError{Action: action, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.IncLAPIRequest(metricLabel(action), false)
		return &TransportError{Action: action, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.IncLAPIRequest(metricLabel(action), false)
		return &APIError{
			Action:     action,
			StatusCode: resp.StatusCode,
			Body:       string(data),
			Message:    errorMessage(data),
		}
	}
	metrics.IncLAPIRequest(metricLabel(action), true)

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RequestError{Action: action, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// metricLabel drops a trailing record id so label cardinality stays bounded.
func metricLabel(action string) string {
	return strings.TrimRightFunc(action, func(r rune) bool {
		return r == ' ' || (r >= '0' && r <= '9')
	})
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(util.SanitizeForLog(string(body)))
}

func (c *Client) handleError(action string, err error) {
	var (
		apiErr       *APIError
		transportErr *TransportError
		requestErr   *RequestError
	)
	switch {
	case errors.As(err, &apiErr):
		c.log.WithFields(logrus.Fields{
			"action": action,
			"status": apiErr.StatusCode,
			"body":   util.SanitizeForLog(apiErr.Body),
		}).Errorf("Error %s", action)
	case errors.As(err, &transportErr):
		c.log.WithField("action", action).WithError(transportErr.Err).Errorf("No response received when %s", action)
	case errors.As(err, &requestErr):
		c.log.WithField("action", action).WithError(requestErr.Err).Errorf("Error setting up request when %s", action)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.log.WithField("action", action).WithError(err).Warn("LAPI circuit breaker rejected request")
	default:
		c.log.WithField("action", action).WithError(err).Errorf("Unexpected error when %s", action)
	}
}
