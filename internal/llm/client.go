// Package llm is a small client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/together-plan/chatplan/internal/metrics"
)

// Message is one role/content pair sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RetryConfig controls retries of single-shot completions.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        8 * time.Second,
	}
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
	Retry       RetryConfig
}

// Client talks to the chat completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics records upstream latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client. Zero config fields take defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream starts a streaming chat completion and yields text deltas in order.
// The sequence ends after the server's [DONE] marker or end of body. A failure
// is yielded once as the final element.
func (c *Client) Stream(ctx context.Context, messages []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		start := time.Now()
		body, err := c.doRequest(ctx, chatRequest{
			Model:       c.cfg.Model,
			Messages:    messages,
			Stream:      true,
			Temperature: c.cfg.Temperature,
		})
		if err != nil {
			c.metrics.ObserveUpstream("llm_stream", time.Since(start).Seconds(), err)
			yield("", fmt.Errorf("start stream: %w", err))
			return
		}
		defer body.Close()

		stopped, err := consumeStream(body, yield)
		if err != nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		c.metrics.ObserveUpstream("llm_stream", time.Since(start).Seconds(), err)
		if err != nil && !stopped {
			yield("", fmt.Errorf("read stream: %w", err))
		}
	}
}

// consumeStream yields the text deltas of an SSE completion body. stopped is
// true when the consumer ended iteration early.
func consumeStream(body io.Reader, yield func(string, error) bool) (stopped bool, err error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return false, nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed chunks carry no text.
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if !yield(chunk.Choices[0].Delta.Content, nil) {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// Complete runs a single-shot completion for prompt, retrying transient
// failures with exponential backoff.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: c.cfg.Temperature,
	}

	backoff := c.cfg.Retry.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Retry.MaxAttempts; attempt++ {
		start := time.Now()
		text, err := c.completeOnce(ctx, req)
		c.metrics.ObserveUpstream("llm_complete", time.Since(start).Seconds(), err)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == c.cfg.Retry.MaxAttempts {
			break
		}

		c.logger.Warn("Completion failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * c.cfg.Retry.BackoffMultiplier)
		if backoff > c.cfg.Retry.MaxBackoff {
			backoff = c.cfg.Retry.MaxBackoff
		}
	}
	return "", lastErr
}

func (c *Client) completeOnce(ctx context.Context, req chatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := c.doRequest(ctx, req)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", &FatalError{err: fmt.Errorf("decode completion: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &FatalError{err: ErrEmptyChoices}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) doRequest(ctx context.Context, payload chatRequest) (io.ReadCloser, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, &FatalError{err: fmt.Errorf("marshal payload: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", buf)
	if err != nil {
		return nil, &FatalError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{err: err}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode, bytes.TrimSpace(data))
	}
	return resp.Body, nil
}
