package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskloom/taskloom/internal/event"
	"github.com/taskloom/taskloom/internal/logging"
)

// EndpointSpec describes one endpoint to construct. The configuration
// layer maps its file format into these specs.
type EndpointSpec struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// NewEndpoint constructs the concrete client for a spec. Recognized
// providers are "openai" (and OpenAI-compatible servers) and "anthropic".
func NewEndpoint(spec EndpointSpec) (Endpoint, error) {
	if spec.Model == "" {
		return nil, fmt.Errorf("endpoint spec missing model")
	}
	switch strings.ToLower(strings.TrimSpace(spec.Provider)) {
	case "openai", "openai-compatible", "lmstudio", "":
		return NewOpenAIEndpoint(spec.BaseURL, spec.Model, spec.APIKey, spec.Timeout), nil
	case "anthropic":
		return NewAnthropicEndpoint(spec.BaseURL, spec.Model, spec.APIKey, spec.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", spec.Provider)
	}
}

// NewChainFromSpecs builds a Chain whose first spec is the primary and the
// rest are fallbacks.
func NewChainFromSpecs(specs []EndpointSpec, retry RetryConfig, opts ...ChainOption) (*Chain, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("endpoint chain requires at least one spec")
	}
	endpoints := make([]Endpoint, 0, len(specs))
	for i, spec := range specs {
		ep, err := NewEndpoint(spec)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i, err)
		}
		endpoints = append(endpoints, ep)
	}
	chain := NewChain(endpoints, retry, nil, nil)
	for _, opt := range opts {
		opt(chain)
	}
	return chain, nil
}

// ChainOption customizes a Chain built by NewChainFromSpecs.
type ChainOption func(*Chain)

// WithEventBus publishes chain events, such as fallback use, to bus.
func WithEventBus(bus *event.Bus) ChainOption {
	return func(c *Chain) { c.bus = bus }
}

// WithLogger routes chain diagnostics through log.
func WithLogger(log *logging.Logger) ChainOption {
	return func(c *Chain) {
		if log != nil {
			c.log = log.WithComponent("provider")
		}
	}
}
