package grid

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
	"time"

	"github.com/sameehj/gridvnc/pkg/metrics"
)

const DefaultTimeout = 10 * time.Second

// ErrTopologyUnavailable means the grid status could not be obtained. It is
// distinct from a grid that reports no nodes.
var ErrTopologyUnavailable = errors.New("topology unavailable")

// Fetcher returns the current grid topology.
type Fetcher interface {
	Status(ctx context.Context) (*Snapshot, error)
}

// HTTPError is a non-2xx answer from the grid.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// Client talks to the grid's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Relay
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

func (c *Client) SetMetrics(m *metrics.Relay) {
	c.metrics = m
}

func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status fetches GET /status. Any failure wraps ErrTopologyUnavailable.
func (c *Client) Status(ctx context.Context) (*Snapshot, error) {
	var env statusEnvelope
	if err := c.do(ctx, "status", http.MethodGet, "/status", nil, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTopologyUnavailable, err)
	}
	return env.Value, nil
}

// CreateSession forwards a new-session request and returns the grid's reply.
func (c *Client) CreateSession(ctx context.Context, desiredCapabilities map[string]any) (map[string]any, error) {
	out := map[string]any{}
	body := map[string]any{"desiredCapabilities": desiredCapabilities}
	if err := c.do(ctx, "session_create", http.MethodPost, "/session", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "session_delete", http.MethodDelete, "/session/"+url.PathEscape(id), nil, nil)
}

func (c *Client) DeleteNode(ctx context.Context, id string) error {
	return c.do(ctx, "node_delete", http.MethodDelete, "/se/grid/distributor/node/"+url.PathEscape(id), nil, nil)
}

// DrainNode stops new sessions on a node and lets existing ones finish.
func (c *Client) DrainNode(ctx context.Context, id string) error {
	return c.do(ctx, "node_drain", http.MethodPost, "/se/grid/distributor/node/"+url.PathEscape(id)+"/drain", nil, nil)
}

// Queue returns the pending new-session requests.
func (c *Client) Queue(ctx context.Context) ([]any, error) {
	var env valueEnvelope
	if err := c.do(ctx, "queue_get", http.MethodGet, "/se/grid/newsessionqueue/queue", nil, &env); err != nil {
		return nil, err
	}
	switch v := env.Value.(type) {
	case []any:
		return v, nil
	case nil:
		return []any{}, nil
	default:
		return []any{v}, nil
	}
}

func (c *Client) ClearQueue(ctx context.Context) error {
	return c.do(ctx, "queue_clear", http.MethodDelete, "/se/grid/newsessionqueue/queue", nil, nil)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any) error {
	target := c.baseURL + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveGridRequest(endpoint, "transport_error")
		c.logError("grid_request_failed", "method", method, "url", target, "error", err)
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		c.metrics.ObserveGridRequest(endpoint, "transport_error")
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.ObserveGridRequest(endpoint, "http_error")
		c.logError("grid_request_failed", "method", method, "url", target, "status", resp.StatusCode)
		return &HTTPError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			c.metrics.ObserveGridRequest(endpoint, "malformed")
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	if v, ok := out.(validator); ok {
		if err := v.validate(); err != nil {
			c.metrics.ObserveGridRequest(endpoint, "malformed")
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	c.metrics.ObserveGridRequest(endpoint, "ok")
	return nil
}

// validator is implemented by response bodies that need more than a
// successful decode, such as a required field.
type validator interface {
	validate() error
}

func (c *Client) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
