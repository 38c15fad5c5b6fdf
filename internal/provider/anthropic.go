package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taskloom/taskloom/internal/errors"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 8192
)

// AnthropicEndpoint talks to the Anthropic Messages API.
type AnthropicEndpoint struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
}

// NewAnthropicEndpoint builds an endpoint for the Anthropic Messages API.
func NewAnthropicEndpoint(baseURL, model, apiKey string, timeout time.Duration) *AnthropicEndpoint {
	return &AnthropicEndpoint{
		baseURL: normalizeBaseURL(baseURL, defaultAnthropicBaseURL),
		model:   model,
		apiKey:  apiKey,
		http:    newHTTPClient(timeout),
	}
}

func (e *AnthropicEndpoint) Describe() string {
	return "anthropic/" + e.model
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *AnthropicEndpoint) Invoke(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.NewProviderError(e.Describe(), 0, "invoke requires at least one message")
	}

	// The Messages API takes the system prompt as a top-level field
	// rather than a conversation turn.
	req := anthropicRequest{Model: e.model, MaxTokens: anthropicMaxTokens}
	for _, m := range messages {
		if m.Role == RoleSystem {
			if req.System != "" {
				req.System += "\n\n"
			}
			req.System += m.Content
			continue
		}
		req.Messages = append(req.Messages, m)
	}
	if len(req.Messages) == 0 {
		return "", errors.NewProviderError(e.Describe(), 0, "invoke requires a non-system message")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-api-key", e.apiKey)
	request.Header.Set("anthropic-version", anthropicVersion)

	resp, err := e.http.Do(request)
	if err != nil {
		return "", errors.WrapProviderError(e.Describe(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.NewProviderError(e.Describe(), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errors.WrapProviderError(e.Describe(), fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != nil {
		return "", errors.NewProviderError(e.Describe(), 0, decoded.Error.Message)
	}

	var sb strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", errors.NewProviderError(e.Describe(), 0, "response empty")
	}
	return sb.String(), nil
}
