// Package client is the official Go SDK for EpochSim.
//
// # Quick start
//
//	c := client.New("http://localhost:8080")
//
//	// Start a session from an inline scenario
//	v, err := c.CreateSession(ctx, &client.Scenario{
//	    Params:    map[string]any{"quantum": 3},
//	    Processes: []map[string]any{{"execution": 5}, {"execution": 2}},
//	})
//
//	// Step forward and back
//	v, err = c.Tick(ctx, v.ID, 4)
//	v, taken, err := c.Back(ctx, v.ID, 2)
//
//	// Follow autoplay
//	views, err := c.Watch(ctx, v.ID)
//	c.Play(ctx, v.ID)
//	for v := range views { render(v) }
//
// # Error handling
//
// All methods return an *APIError when the server responds with a non-2xx
// status code. Use errors.As to inspect the HTTP status and server message.
//
// # Connection reuse
//
// Client is safe for concurrent use. It shares a single http.Client internally
// so connections are reused across goroutines.
package client

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
	"time"

	gorillaws "github.com/gorilla/websocket"
)

// ─── Error type ───────────────────────────────────────────────────────────────

// APIError is returned when the EpochSim server responds with a non-2xx status.
type APIError struct {
	StatusCode int    // HTTP status code
	Message    string // "error" field from the JSON response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("epochsim: server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the error is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

// IsConflict reports whether the error is a 409 (duplicate process id) from
// the server.
func IsConflict(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusConflict
}

// IsLimited reports whether the server refused the request because a session,
// process or rate limit was reached.
func IsLimited(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusTooManyRequests
}

// ─── Client options ───────────────────────────────────────────────────────────

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent in every request as the X-Api-Key header.
// Required when the server has auth.enabled = true.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
// The default is 30 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// ─── Client ───────────────────────────────────────────────────────────────────

// Client is the EpochSim API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new Client that connects to the EpochSim server at baseURL.
//
//	c := client.New("http://localhost:8080")
//	c := client.New("http://sim.example.com", client.WithAPIKey("secret"))
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ─── Public types ─────────────────────────────────────────────────────────────

// Record is one process or algorithm state row keyed by field flag.
// View.Fields gives the column order.
type Record map[string]any

// Int returns the integer value of flag, or def when it is absent or not a
// number.
func (r Record) Int(flag string, def int) int {
	if f, ok := r[flag].(float64); ok {
		return int(f)
	}
	return def
}

// View is the full state of one session.
type View struct {
	ID           string   `json:"id"`
	Name         string   `json:"name,omitempty"`
	Algorithm    string   `json:"algorithm"`
	Time         int      `json:"time"`
	Currently    string   `json:"currently"`
	Depth        int      `json:"depth"`
	Playing      bool     `json:"playing"`
	Finished     bool     `json:"finished"`
	TickPeriodMs int64    `json:"tick_period_ms"`
	State        Record   `json:"state"`
	Fields       []string `json:"fields"`
	Future       []Record `json:"future"`
	Ready        []Record `json:"ready"`
	Ended        []Record `json:"ended"`
	Killed       []Record `json:"killed"`
	Processes    []Record `json:"processes"`
}

// SessionInfo summarises a session in List results.
type SessionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Algorithm string    `json:"algorithm"`
	Time      int       `json:"time"`
	Playing   bool      `json:"playing"`
	Finished  bool      `json:"finished"`
	CreatedAt time.Time `json:"created_at"`
}

// Scenario is a simulation setup: algorithm parameters and initial processes.
// Absent values take the algorithm's defaults on the server.
type Scenario struct {
	Name         string           `json:"name,omitempty"`
	Description  string           `json:"description,omitempty"`
	Algorithm    string           `json:"algorithm,omitempty"`
	Params       map[string]any   `json:"params,omitempty"`
	TickPeriodMs int              `json:"tick_period_ms,omitempty"`
	Processes    []map[string]any `json:"processes"`
}

// Field describes one declared field of an algorithm.
type Field struct {
	Flag        string          `json:"flag"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Kind        string          `json:"kind"`
	Min         *int            `json:"min,omitempty"`
	Initial     json.RawMessage `json:"initial,omitempty"`
}

// Schema lists an algorithm's declared fields by group.
type Schema struct {
	AlgorithmIn       []Field `json:"algorithm_in"`
	AlgorithmInternal []Field `json:"algorithm_internal"`
	AlgorithmOut      []Field `json:"algorithm_out"`
	ProcessIn         []Field `json:"process_in"`
	ProcessInternal   []Field `json:"process_internal"`
	ProcessOut        []Field `json:"process_out"`
}

// Algorithm is one entry of the server's algorithm catalog.
type Algorithm struct {
	Name   string `json:"name"`
	Schema Schema `json:"schema"`
}

// HealthInfo is the response from GET /health.
type HealthInfo struct {
	Status     string   `json:"status"`
	Sessions   int      `json:"sessions"`
	Algorithms []string `json:"algorithms"`
	Uptime     string   `json:"uptime"`
	UptimeMs   int64    `json:"uptime_ms"`
	Version    string   `json:"version"`
}

// ─── Catalog & health ─────────────────────────────────────────────────────────

// Health returns server status.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	var resp HealthInfo
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Algorithms returns every algorithm the server can simulate.
func (c *Client) Algorithms(ctx context.Context) ([]Algorithm, error) {
	var resp []Algorithm
	if err := c.do(ctx, http.MethodGet, "/algorithms", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ─── Sessions ─────────────────────────────────────────────────────────────────

// CreateSession starts a new simulation session from sc.
func (c *Client) CreateSession(ctx context.Context, sc *Scenario) (*View, error) {
	var v View
	if err := c.do(ctx, http.MethodPost, "/sessions", sc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateSessionFromPreset starts a new session from a stored scenario.
func (c *Client) CreateSessionFromPreset(ctx context.Context, name string) (*View, error) {
	var v View
	if err := c.do(ctx, http.MethodPost, "/scenarios/"+url.PathEscape(name)+"/sessions", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListSessions returns every live session, oldest first.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	var resp struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetSession returns the current state of a session.
func (c *Client) GetSession(ctx context.Context, id string) (*View, error) {
	var v View
	if err := c.do(ctx, http.MethodGet, sessionPath(id, ""), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// DeleteSession stops and removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id, ""), nil, nil)
}

// Tick advances a session n steps.
func (c *Client) Tick(ctx context.Context, id string, n int) (*View, error) {
	var v View
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "/tick?n="+strconv.Itoa(n)), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Back rewinds a session up to n steps and reports how many were taken.
// Rewinding pauses autoplay.
func (c *Client) Back(ctx context.Context, id string, n int) (*View, int, error) {
	var resp struct {
		View
		Taken int `json:"taken"`
	}
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "/back?n="+strconv.Itoa(n)), nil, &resp); err != nil {
		return nil, 0, err
	}
	return &resp.View, resp.Taken, nil
}

// Play starts autoplay at the session's tick period.
func (c *Client) Play(ctx context.Context, id string) (*View, error) {
	var v View
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "/play"), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Pause stops autoplay.
func (c *Client) Pause(ctx context.Context, id string) (*View, error) {
	var v View
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "/pause"), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateProcess injects a process that arrives at the session's current time.
// Absent fields take the algorithm's defaults.
func (c *Client) CreateProcess(ctx context.Context, id string, fields map[string]any) (Record, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	var rec Record
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "/processes"), fields, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// KillProcess removes a ready process from a session.
func (c *Client) KillProcess(ctx context.Context, id string, pid int) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id, "/processes/"+strconv.Itoa(pid)), nil, nil)
}

// ─── Scenario presets ─────────────────────────────────────────────────────────

// SaveScenario stores sc under sc.Name, replacing any previous preset.
func (c *Client) SaveScenario(ctx context.Context, sc *Scenario) error {
	return c.do(ctx, http.MethodPost, "/scenarios", sc, nil)
}

// ListScenarios returns every stored preset in name order.
func (c *Client) ListScenarios(ctx context.Context) ([]Scenario, error) {
	var resp struct {
		Scenarios []Scenario `json:"scenarios"`
	}
	if err := c.do(ctx, http.MethodGet, "/scenarios", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Scenarios, nil
}

// GetScenario returns a stored preset.
func (c *Client) GetScenario(ctx context.Context, name string) (*Scenario, error) {
	var sc Scenario
	if err := c.do(ctx, http.MethodGet, "/scenarios/"+url.PathEscape(name), nil, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// DeleteScenario removes a stored preset.
func (c *Client) DeleteScenario(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/scenarios/"+url.PathEscape(name), nil, nil)
}

// ─── Streaming ────────────────────────────────────────────────────────────────

// Watch opens the session's WebSocket stream. The returned channel receives
// the current view and every subsequent change. It is closed when ctx is
// done, the session is deleted or the connection drops.
func (c *Client) Watch(ctx context.Context, id string) (<-chan View, error) {
	u, err := url.Parse(c.baseURL + sessionPath(id, "/ws"))
	if err != nil {
		return nil, fmt.Errorf("epochsim: build ws url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	hdr := http.Header{}
	if c.apiKey != "" {
		hdr.Set("X-Api-Key", c.apiKey)
	}
	conn, resp, err := gorillaws.DefaultDialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, apiError(resp)
		}
		return nil, fmt.Errorf("epochsim: dial %s: %w", u, err)
	}

	out := make(chan View, 1)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var f struct {
				Type string `json:"type"`
				View *View  `json:"view"`
			}
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type != "view" || f.View == nil {
				continue
			}
			select {
			case out <- *f.View:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ─── HTTP transport ───────────────────────────────────────────────────────────

func sessionPath(id, suffix string) string {
	return "/sessions/" + url.PathEscape(id) + suffix
}

// do performs a single HTTP request.
// body is encoded as JSON when non-nil, resp is decoded from JSON when non-nil.
// A 204 No Content response is treated as success with no body.
func (c *Client) do(ctx context.Context, method, path string, body, resp any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("epochsim: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("epochsim: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("epochsim: request %s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusNoContent {
		return nil
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return apiError(httpResp)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("epochsim: read response body: %w", err)
	}
	if resp != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, resp); err != nil {
			return fmt.Errorf("epochsim: decode response: %w", err)
		}
	}
	return nil
}

func apiError(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &errResp)
	msg := errResp.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
