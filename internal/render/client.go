package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowchartsman/retry"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/metrics"
)

const (
	defaultAttempts   = 3
	defaultRetryDelay = 10 * time.Second
	defaultTimeout    = 90 * time.Second
	maxErrorBody      = 512
)

// Client calls the render service. The server base URL is passed per call
// because it is an editable setting.
type Client struct {
	http       *http.Client
	attempts   int
	retryDelay time.Duration
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetry sets the attempt budget and the delay between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// NewClient builds a render client with a 90s request timeout and three
// attempts spaced about ten seconds apart.
func NewClient(logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		http:       &http.Client{Timeout: defaultTimeout},
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type combinedResponse struct {
	Content    *string `json:"content"`
	Screenshot *string `json:"screenshot"`
}

// Combined renders target and returns its HTML plus the decoded JPEG.
func (c *Client) Combined(ctx context.Context, server, target string, vp Viewport) (Page, error) {
	var page Page
	err := c.withRetry(ctx, "combined", func(ctx context.Context) error {
		body, err := c.post(ctx, server, "/combined", Request{URL: target, Viewport: vp})
		if err != nil {
			return err
		}
		var resp combinedResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("render: decode combined response: %w", err)
		}
		if resp.Content == nil || resp.Screenshot == nil {
			return ErrIncompleteResponse
		}
		shot, err := base64.StdEncoding.DecodeString(*resp.Screenshot)
		if err != nil {
			return retry.Stop(fmt.Errorf("render: decode screenshot: %w", err))
		}
		page = Page{Content: *resp.Content, Screenshot: shot}
		return nil
	})
	return page, err
}

// Screenshot renders target and returns the raw JPEG bytes.
func (c *Client) Screenshot(ctx context.Context, server, target string, vp Viewport) ([]byte, error) {
	var shot []byte
	err := c.withRetry(ctx, "screenshot", func(ctx context.Context) error {
		body, err := c.post(ctx, server, "/screenshot", Request{URL: target, Viewport: vp})
		if err != nil {
			return err
		}
		if len(body) == 0 {
			return ErrIncompleteResponse
		}
		shot = body
		return nil
	})
	return shot, err
}

// Status fetches the service status document. It is not retried.
func (c *Client) Status(ctx context.Context, server string) (ServiceStatus, error) {
	start := time.Now()
	body, err := c.get(ctx, server, "/status")
	metrics.ObserveRenderCall("status", err == nil, time.Since(start))
	if err != nil {
		return ServiceStatus{}, err
	}
	var status ServiceStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return ServiceStatus{}, fmt.Errorf("render: decode status: %w", err)
	}
	return status, nil
}

// Health returns nil when the service answers /health with 200.
func (c *Client) Health(ctx context.Context, server string) error {
	start := time.Now()
	_, err := c.get(ctx, server, "/health")
	metrics.ObserveRenderCall("health", err == nil, time.Since(start))
	return err
}

func (c *Client) withRetry(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	retrier := retry.NewRetrier(c.attempts, c.retryDelay, c.retryDelay)
	attempt := 0
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		attempt++
		start := time.Now()
		err := fn(ctx)
		metrics.ObserveRenderCall(endpoint, err == nil, time.Since(start))
		if err == nil {
			return nil
		}
		c.logger.Warn("render request attempt failed",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.attempts),
			zap.Error(err),
		)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return retry.Stop(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("render %s after %d attempt(s): %w", endpoint, attempt, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, server, path string, payload Request) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("render: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(server, path), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("render: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path)
}

func (c *Client) get(ctx context.Context, server, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL(server, path), nil)
	if err != nil {
		return nil, fmt.Errorf("render: build request: %w", err)
	}
	return c.do(req, path)
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("render: read %s body: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{Endpoint: path, Code: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func endpointURL(server, path string) string {
	return strings.TrimRight(server, "/") + path
}
