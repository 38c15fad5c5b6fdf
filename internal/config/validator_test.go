package config

import (
	"strings"
	"testing"
)

func TestValidateRetry(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "negative max retries",
			mutate:    func(c *Config) { c.Retry.MaxRetries = -1 },
			wantField: "retry.max_retries",
		},
		{
			name:      "excessive max retries",
			mutate:    func(c *Config) { c.Retry.MaxRetries = 50 },
			wantField: "retry.max_retries",
		},
		{
			name:      "zero base delay",
			mutate:    func(c *Config) { c.Retry.BaseDelayMs = 0 },
			wantField: "retry.base_delay_ms",
		},
		{
			name:      "max delay below base",
			mutate:    func(c *Config) { c.Retry.MaxDelayMs = 500 },
			wantField: "retry.max_delay_ms",
		},
		{
			name:      "multiplier below one",
			mutate:    func(c *Config) { c.Retry.Multiplier = 0.5 },
			wantField: "retry.multiplier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if !hasFieldError(errs, tt.wantField) {
				t.Errorf("Validate() = %v, want error on %s", errs, tt.wantField)
			}
		})
	}
}

func TestValidateEndpoints(t *testing.T) {
	cfg := Default()
	cfg.Endpoints.Medium.Primary = EndpointConfig{Provider: "openai", Model: ""}
	if errs := cfg.Validate(); !hasFieldError(errs, "endpoints.medium.primary.model") {
		t.Errorf("Validate() = %v, want missing model error", errs)
	}

	cfg = Default()
	cfg.Endpoints.High.Primary = EndpointConfig{Provider: "carrier-pigeon", Model: "m"}
	if errs := cfg.Validate(); !hasFieldError(errs, "endpoints.high.primary.provider") {
		t.Errorf("Validate() = %v, want unknown provider error", errs)
	}

	cfg = Default()
	cfg.Endpoints.Medium.Primary = EndpointConfig{Provider: "openai", Model: "m"}
	cfg.Endpoints.Medium.Fallbacks = []EndpointConfig{{Provider: "anthropic", Model: "n", TimeoutSeconds: -5}}
	if errs := cfg.Validate(); !hasFieldError(errs, "endpoints.medium.fallbacks[0].timeout_seconds") {
		t.Errorf("Validate() = %v, want negative timeout error", errs)
	}

	// A fallback-only tier reports under the fallback path, not primary.
	cfg = Default()
	cfg.Endpoints.Low.Fallbacks = []EndpointConfig{{Provider: "carrier-pigeon", Model: "m"}}
	if errs := cfg.Validate(); !hasFieldError(errs, "endpoints.low.fallbacks[0].provider") {
		t.Errorf("Validate() = %v, want error on the fallback path", errs)
	}

	// Unconfigured tiers are not errors.
	cfg = Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors for empty tiers", errs)
	}
}

func TestValidateOrchestrator(t *testing.T) {
	cfg := Default()
	cfg.Orchestrator.MaxParallel = 0
	if errs := cfg.Validate(); !hasFieldError(errs, "orchestrator.max_parallel") {
		t.Errorf("Validate() = %v, want max_parallel error", errs)
	}

	cfg = Default()
	cfg.Orchestrator.PlannerTier = "ultra"
	if errs := cfg.Validate(); !hasFieldError(errs, "orchestrator.planner_tier") {
		t.Errorf("Validate() = %v, want planner_tier error", errs)
	}
}

func TestValidationErrorsFormatting(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("Error() = %q, want count header", msg)
	}
	if !strings.Contains(msg, "a: bad") || !strings.Contains(msg, "b: worse") {
		t.Errorf("Error() = %q, want both failures listed", msg)
	}

	single := ValidationErrors{{Field: "a", Value: 1, Message: "bad"}}
	if strings.Contains(single.Error(), "validation errors") {
		t.Errorf("single error should not include count header: %q", single.Error())
	}
}

func hasFieldError(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}
