// Package agent wraps the chat-completion API every pipeline stage talks
// to. Stages hand it a system prompt and a task payload and get back the
// raw JSON document the model produced; decoding and validation happen in
// the stage adapters.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL targets the hosted completion API.
const DefaultBaseURL = "https://api.openai.com/v1"

// Request is one completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	ForceJSON   bool
}

// Client produces a completion for a request. Implementations must honor
// ctx cancellation.
type Client interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// APIError is a non-2xx response from the completion API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agent: api status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the failure is worth another attempt.
// Rate limits and server-side faults are; schema and auth problems are not.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Retryable classifies an error from Complete as transient or permanent.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Transport-level failures (timeouts, resets) are transient.
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Usage accumulates token counts across a run.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// HTTPClient calls the chat-completion endpoint over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	log     *logrus.Entry

	mu    sync.Mutex
	usage Usage
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithBaseURL points the client at a different endpoint, for tests and
// compatible providers.
func WithBaseURL(url string) Option {
	return func(c *HTTPClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// NewHTTP builds a client. An empty API key is a setup error: no stage can
// run without one.
func NewHTTP(apiKey, model string, log *logrus.Entry, opts ...Option) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, errors.New("agent: api key required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	c := &HTTPClient{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 120 * time.Second},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete posts one chat completion and returns the message content with
// any markdown fences stripped.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ForceJSON {
		body.ResponseFormat = json.RawMessage(`{"type":"json_object"}`)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("agent: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("agent: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("agent: call %s: %w", c.model, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("agent: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: truncate(string(raw), 300)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("agent: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("agent: response has no choices")
	}

	c.recordUsage(parsed)
	return json.RawMessage(StripFences(parsed.Choices[0].Message.Content)), nil
}

// TotalUsage returns the tokens consumed since the client was created.
func (c *HTTPClient) TotalUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

func (c *HTTPClient) recordUsage(resp chatResponse) {
	c.mu.Lock()
	c.usage.PromptTokens += resp.Usage.PromptTokens
	c.usage.CompletionTokens += resp.Usage.CompletionTokens
	c.usage.TotalTokens += resp.Usage.TotalTokens
	c.mu.Unlock()
	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"model":             c.model,
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
		}).Debug("completion finished")
	}
}

// StripFences removes a surrounding markdown code fence from model output.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
