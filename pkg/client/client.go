// Package client is a small HTTP client for a running dailyscore worker.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/thebtf/dailyscore/pkg/models"
)

const (
	// HealthCheckTimeout bounds liveness probes.
	HealthCheckTimeout = 1 * time.Second

	// RequestTimeout bounds every other call.
	RequestTimeout = 10 * time.Second
)

// Health is the worker's /api/health answer.
type Health struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Database   string `json:"database"`
	Classifier string `json:"classifier"`
	Streams    int    `json:"streams"`
}

// Schedule is the next weekly settlement.
type Schedule struct {
	At        time.Time `json:"at"`
	Until     string    `json:"until"`
	Formatted string    `json:"formatted"`
}

// Classification is a category suggestion for task text.
type Classification struct {
	Category   models.Category `json:"category"`
	Source     string          `json:"source"`
	Confidence float64         `json:"confidence"`
}

// Summary is the part of the weekly report the CLI prints.
type Summary struct {
	NextUpdate time.Time `json:"next_update"`
	Week       struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"week"`
	CurrentPoints models.CategoryPoints `json:"current_points"`
	Badges        []models.Badge        `json:"badges"`
	Streaks       models.Streaks        `json:"streaks"`
	Stats         models.TaskCounts     `json:"stats"`
}

// Error is a non-2xx answer from the worker.
type Error struct {
	Message string
	Status  int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker returned %d", e.Status)
	}
	return fmt.Sprintf("worker returned %d: %s", e.Status, e.Message)
}

// Client talks to one worker.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	userID  string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUser acts on behalf of a registered account.
func WithUser(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for baseURL, e.g. http://127.0.0.1:37800.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: RequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForPort creates a client for a worker on the loopback interface.
func ForPort(port int, opts ...Option) *Client {
	return New(fmt.Sprintf("http://127.0.0.1:%d", port), opts...)
}

// Health fetches the worker's health report. A degraded worker answers 503
// with a body, which is returned together with the error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	var h Health
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &h)
	var apiErr *Error
	if err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable) {
		return nil, err
	}
	return &h, err
}

// IsRunning reports whether a healthy worker answers.
func (c *Client) IsRunning(ctx context.Context) bool {
	h, err := c.Health(ctx)
	return err == nil && h.Status == "ready"
}

// Version returns the running worker's version, or "" when it cannot be read.
func (c *Client) Version(ctx context.Context) string {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &out); err != nil {
		return ""
	}
	return out["version"]
}

// Summary fetches the weekly report. An empty week selects the current one.
func (c *Client) Summary(ctx context.Context, week string) (*Summary, error) {
	path := "/api/summary"
	if week != "" {
		path += "?week=" + week
	}
	var s Summary
	if err := c.do(ctx, http.MethodGet, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// NextUpdate returns the next settlement instant.
func (c *Client) NextUpdate(ctx context.Context) (*Schedule, error) {
	var s Schedule
	if err := c.do(ctx, http.MethodGet, "/api/next-update", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Classify asks the worker to categorize task text.
func (c *Client) Classify(ctx context.Context, title, description string) (*Classification, error) {
	body := map[string]string{"title": title, "description": description}
	var out Classification
	if err := c.do(ctx, http.MethodPost, "/api/classify", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		apiErr := &Error{Status: resp.StatusCode, Message: e.Error}
		if out != nil && len(data) > 0 {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// IsPortInUse checks if something listens on the loopback port.
func IsPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// VersionsCompatible reports whether two builds share a base version.
// A plain "dev" build is compatible with anything.
func VersionsCompatible(v1, v2 string) bool {
	if v1 == "dev" || v2 == "dev" {
		return true
	}
	return baseVersion(v1) == baseVersion(v2)
}

// baseVersion strips the leading v and any suffix, so
// "v0.3.5-2-gca711a8-dirty" becomes "0.3.5".
func baseVersion(version string) string {
	v := strings.TrimPrefix(version, "v")
	if idx := strings.Index(v, "-"); idx > 0 {
		v = v[:idx]
	}
	return v
}
