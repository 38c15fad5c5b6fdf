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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIEndpoint talks to any OpenAI-compatible /chat/completions API,
// including local servers such as LM Studio or vLLM.
type OpenAIEndpoint struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
}

// NewOpenAIEndpoint builds an endpoint for an OpenAI-compatible API.
// baseURL may be empty, in which case the hosted OpenAI API is used.
func NewOpenAIEndpoint(baseURL, model, apiKey string, timeout time.Duration) *OpenAIEndpoint {
	return &OpenAIEndpoint{
		baseURL: normalizeBaseURL(baseURL, defaultOpenAIBaseURL),
		model:   model,
		apiKey:  apiKey,
		http:    newHTTPClient(timeout),
	}
}

func (e *OpenAIEndpoint) Describe() string {
	return "openai/" + e.model
}

type openAIChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *OpenAIEndpoint) Invoke(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.NewProviderError(e.Describe(), 0, "invoke requires at least one message")
	}
	payload, err := json.Marshal(openAIChatRequest{Model: e.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.http.Do(request)
	if err != nil {
		return "", errors.WrapProviderError(e.Describe(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.NewProviderError(e.Describe(), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", errors.WrapProviderError(e.Describe(), fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != nil {
		return "", errors.NewProviderError(e.Describe(), 0, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.NewProviderError(e.Describe(), 0, "response missing choices")
	}
	content := decoded.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.NewProviderError(e.Describe(), 0, "response empty")
	}
	return content, nil
}
