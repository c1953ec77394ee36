// Package api is the JSON-over-HTTP client shared by the auth gateway and the
// chat transport.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 4 << 20

// Client talks to the AURA backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	newID      func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for baseURL, e.g. http://localhost:8000.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     zap.NewNop(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one call.
type Request struct {
	Method   string
	Path     string
	Token    string // bearer token; empty sends no Authorization header
	Body     any    // JSON-encoded when non-nil
	Fallback string // message used when the server gives no usable detail
}

// Do performs req and decodes a 2xx JSON body into out (which may be nil).
// Every failure is returned as *Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	reqID := c.newID()
	log := c.logger.With(
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.String("request_id", reqID),
		zap.Bool("authenticated", req.Token != ""),
	)
	fail := func(status int, msg string, cause error) *Error {
		if msg == "" {
			msg = req.Fallback
		}
		return &Error{Status: status, Message: msg, RequestID: reqID, cause: cause}
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return fail(0, "", fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return fail(0, "", fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", reqID)
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Warn("request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return fail(0, "", fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("read response: %w", err))
	}

	log = log.With(zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := fail(resp.StatusCode, detailMessage(data), fmt.Errorf("unexpected status %d", resp.StatusCode))
		log.Info("request rejected", zap.String("detail", apiErr.Message))
		return apiErr
	}

	log.Debug("request ok")

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("parse response: %w", err))
	}
	return nil
}
