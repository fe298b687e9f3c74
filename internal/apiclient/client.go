package apiclient

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
	"syscall"
	"time"

	"mixtape/internal/api"
	"mixtape/internal/batch"
	"mixtape/internal/config"
	"mixtape/internal/workflow"
)

const defaultTimeout = 30 * time.Second

// ErrDaemonUnavailable indicates nothing is listening on the API address.
var ErrDaemonUnavailable = errors.New("daemon not running")

// APIError is a failure envelope returned by the daemon.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Kind, e.StatusCode)
	}
	return e.Message
}

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Client is a typed wrapper over the daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New builds a client for the API rooted at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds a client for the daemon described by cfg.
func FromConfig(cfg *config.Config, opts ...Option) *Client {
	return New(cfg.APIBaseURL(), cfg.Paths.APIToken, opts...)
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Status returns the daemon runtime status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var status api.DaemonStatus
	if _, err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateBatch stores a new batch and optionally starts it in the same call.
func (c *Client) CreateBatch(ctx context.Context, req api.CreateRequest, start bool) (*batch.Batch, error) {
	path := "/api/batches"
	if start {
		path += "?start=true"
	}
	var b batch.Batch
	if _, err := c.do(ctx, http.MethodPost, path, req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// StartBatch launches a pending batch and returns its snapshot.
func (c *Client) StartBatch(ctx context.Context, id string) (*batch.Batch, error) {
	var b batch.Batch
	if _, err := c.do(ctx, http.MethodPost, "/api/batches/"+url.PathEscape(id)+"/start", nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CancelBatch cancels a pending or downloading batch.
func (c *Client) CancelBatch(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/batches/"+url.PathEscape(id)+"/cancel", nil, nil)
	return err
}

// DeleteBatch removes a batch.
func (c *Client) DeleteBatch(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/batches/"+url.PathEscape(id), nil, nil)
	return err
}

// GetBatch returns one batch.
func (c *Client) GetBatch(ctx context.Context, id string) (*batch.Batch, error) {
	var b batch.Batch
	if _, err := c.do(ctx, http.MethodGet, "/api/batches/"+url.PathEscape(id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBatches returns every batch, newest first, optionally filtered by
// status.
func (c *Client) ListBatches(ctx context.Context, status string) (api.BatchList, error) {
	path := "/api/batches"
	if status = strings.TrimSpace(status); status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var list api.BatchList
	_, err := c.do(ctx, http.MethodGet, path, nil, &list)
	return list, err
}

// Progress returns the polling view of one batch.
func (c *Client) Progress(ctx context.Context, id string) (workflow.Progress, error) {
	var progress workflow.Progress
	_, err := c.do(ctx, http.MethodGet, "/api/batches/"+url.PathEscape(id)+"/progress", nil, &progress)
	return progress, err
}

// Statistics returns aggregate counters.
func (c *Client) Statistics(ctx context.Context) (workflow.Statistics, error) {
	var stats workflow.Statistics
	_, err := c.do(ctx, http.MethodGet, "/api/statistics", nil, &stats)
	return stats, err
}

// Validate reports which lines of text hold usable links. The report is
// returned alongside the validation error when no line is valid.
func (c *Client) Validate(ctx context.Context, text string) (api.ValidationResult, error) {
	var report api.ValidationResult
	_, err := c.do(ctx, http.MethodPost, "/api/validate", map[string]string{"text": text}, &report)
	return report, err
}

// Cleanup deletes batches older than days. days <= 0 uses the daemon's
// configured retention.
func (c *Client) Cleanup(ctx context.Context, days int) (api.CleanupResult, error) {
	path := "/api/cleanup"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	var result api.CleanupResult
	_, err := c.do(ctx, http.MethodPost, path, nil, &result)
	return result, err
}

// TestNotification asks the daemon to send a test notification and returns
// its message.
func (c *Client) TestNotification(ctx context.Context) (string, error) {
	return c.do(ctx, http.MethodPost, "/api/notifications/test", nil, nil)
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends one request and decodes the envelope's data into out. It returns
// the envelope message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (string, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		if isUnavailable(err) {
			return "", fmt.Errorf("%w at %s", ErrDaemonUnavailable, c.baseURL)
		}
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := decodeEnvelope(resp, &env); err != nil {
		return "", fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("decode response data: %w", err)
		}
	}
	if !env.Success {
		kind := env.Error
		if kind == "" {
			kind = batch.KindInternal
		}
		return env.Message, &APIError{StatusCode: resp.StatusCode, Kind: kind, Message: env.Message}
	}
	return env.Message, nil
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

func isUnavailable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}

func decodeEnvelope(resp *http.Response, env *envelope) error {
	return json.NewDecoder(resp.Body).Decode(env)
}
