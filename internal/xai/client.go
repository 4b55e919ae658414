// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package xai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/grok-cli/internal/model"
)

// Configuration constants for the xAI API.
const (
	// DefaultBaseURL is the base URL for the xAI API.
	DefaultBaseURL = "https://api.x.ai/v1"

	// DefaultTimeout is the per-call deadline.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	// UserAgent is sent with every request.
	UserAgent = "grok-cli/1.0"
)

// Config is the inbound transport configuration.
type Config struct {
	APIKey  string
	BaseURL string        // default DefaultBaseURL
	Timeout time.Duration // default DefaultTimeout
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
// Its Timeout should be zero; deadlines are applied per call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for request and response logging.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRateLimit paces outgoing requests to at most perMinute per minute.
// Calls wait for a slot; nothing is retried. Zero disables pacing.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// Client talks to the xAI chat completions API.
// A Client is safe for concurrent use; each call owns its own state.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient creates a client for cfg.
//
// An empty API key is accepted here so the client can be built before the
// user has configured one; every call then fails with ErrConfiguration.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg: cfg.withDefaults(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Timeout returns the per-call deadline.
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// IsConfigured returns true if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.cfg.APIKey != ""
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key, safe to
// log or display.
func (c *Client) KeyFingerprint() string {
	return Fingerprint(c.cfg.APIKey)
}

// Fingerprint returns the first 8 hex characters of the SHA-256 of key.
func Fingerprint(key string) string {
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// chatRequest is the body of POST /chat/completions.
type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []model.Message `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

// chatResponse is the body of a non-streaming completion.
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      model.Message `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (r *chatResponse) toModel() *model.Response {
	out := &model.Response{
		ID:    r.ID,
		Model: r.Model,
		Usage: model.Usage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		},
	}
	for _, ch := range r.Choices {
		out.Completions = append(out.Completions, model.Completion{
			Message:      ch.Message,
			FinishReason: ch.FinishReason,
		})
	}
	return out
}

// modelsResponse is the body of GET /models.
type modelsResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Description   string `json:"description"`
		ContextLength int    `json:"context_length"`
	} `json:"data"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// Chat sends a non-streaming completion request and waits for the reply.
func (c *Client) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.Response, error) {
	if err := c.precheck(opts); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := c.newChatRequest(ctx, messages, opts, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, networkError(err, c.cfg.Timeout, false)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp, body)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, &Error{
			Code:    CodeAPI,
			Status:  resp.StatusCode,
			Message: "failed to parse response",
			Err:     err,
		}
	}

	out := chatResp.toModel()
	c.log.Debug("chat completed",
		zap.String("model", out.Model),
		zap.Int("total_tokens", out.Usage.TotalTokens))
	return out, nil
}

// Stream sends a streaming completion request. It returns once response
// headers arrive; the body is consumed through the returned Stream.
//
// The per-call deadline covers connecting and receiving headers. After
// that, pacing is driven by the consumer. Cancel ctx or call Close on the
// stream to abandon it early.
func (c *Client) Stream(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*Stream, error) {
	if err := c.precheck(opts); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(c.cfg.Timeout, cancel)

	req, err := c.newChatRequest(ctx, messages, opts, true)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do(req)
	if !timer.Stop() {
		// The deadline fired while waiting for headers.
		if resp != nil {
			resp.Body.Close()
		}
		cancel()
		return nil, networkError(context.DeadlineExceeded, c.cfg.Timeout, true)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		// The error body gets its own deadline.
		timer.Reset(c.cfg.Timeout)
		body, readErr := readResponse(resp)
		timedOut := !timer.Stop()
		if readErr != nil {
			return nil, networkError(readErr, c.cfg.Timeout, timedOut)
		}
		return nil, responseError(resp, body)
	}

	return newStream(resp.Body, cancel, c.log, c.cfg.Timeout), nil
}

// Models fetches the catalog of models available to the API key.
func (c *Client) Models(ctx context.Context) ([]model.Descriptor, error) {
	if !c.IsConfigured() {
		return nil, errMissingKey()
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Message: "invalid base URL", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, networkError(err, c.cfg.Timeout, false)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp, body)
	}

	var modelsResp modelsResponse
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		return nil, &Error{
			Code:    CodeAPI,
			Status:  resp.StatusCode,
			Message: "failed to parse models response",
			Err:     err,
		}
	}

	models := make([]model.Descriptor, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		if m.ID == "" {
			continue
		}
		ctxLen := m.ContextLength
		if ctxLen <= 0 {
			ctxLen = model.DefaultContextLength
		}
		models = append(models, model.Descriptor{
			ID:            m.ID,
			DisplayName:   m.ID,
			Description:   m.Description,
			ContextLength: ctxLen,
		})
	}
	return models, nil
}

// precheck rejects calls that cannot succeed before touching the network.
func (c *Client) precheck(opts model.ChatOptions) error {
	if strings.TrimSpace(opts.Model) == "" {
		return errMissingModel()
	}
	if !c.IsConfigured() {
		return errMissingKey()
	}
	return nil
}

// newChatRequest builds a POST /chat/completions request.
func (c *Client) newChatRequest(ctx context.Context, messages []model.Message, opts model.ChatOptions, stream bool) (*http.Request, error) {
	body, err := json.Marshal(chatRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Message: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Message: "invalid base URL", Err: err}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// setHeaders sets authorization and identification headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("User-Agent", UserAgent)
}

// do waits for a rate limit slot, then performs req. Transport failures are
// returned as network errors.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, networkError(err, c.cfg.Timeout, false)
		}
	}

	c.logRequest(req)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("path", req.URL.Path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, networkError(err, c.cfg.Timeout, false)
	}
	c.logResponse(req, resp, time.Since(start))
	return resp, nil
}

// logRequest logs method and path only. Headers and bodies are never logged.
func (c *Client) logRequest(req *http.Request) {
	c.log.Debug("api request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("key", c.KeyFingerprint()))
}

func (c *Client) logResponse(req *http.Request, resp *http.Response, d time.Duration) {
	c.log.Debug("api response",
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", d))
}

// readResponse reads the body up to MaxResponseSize.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
