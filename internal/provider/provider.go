// Package provider contains the model endpoint clients and the resilient
// invocation chain that walks an ordered list of endpoints with per-endpoint
// retries and exponential backoff.
package provider

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// Message is a single turn in a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Endpoint is a single invocable model endpoint.
type Endpoint interface {
	// Invoke sends the conversation and returns the model's text reply.
	Invoke(ctx context.Context, messages []Message) (string, error)

	// Describe identifies the endpoint for logs and notifications,
	// e.g. "openai/gpt-4.1".
	Describe() string
}

// RetryConfig controls per-endpoint retry behavior in a Chain.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt,
	// so each endpoint is tried MaxRetries+1 times.
	MaxRetries int

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps any single backoff sleep.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor between retries.
	Multiplier float64
}

// DefaultRetryConfig returns the standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = def.Multiplier
	}
	return c
}

// newHTTPClient builds the shared HTTP client used by endpoint
// implementations.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func normalizeBaseURL(baseURL, defaultURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return defaultURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}
