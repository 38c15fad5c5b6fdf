package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidProviders returns the recognized provider names
func ValidProviders() []string {
	return []string{"openai", "openai-compatible", "lmstudio", "anthropic"}
}

// ValidTiers returns the recognized capability tier names
func ValidTiers() []string {
	return []string{"low", "medium", "high"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateEndpoints()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateCache()...)
	errors = append(errors, c.validateLedger()...)
	errors = append(errors, c.validateOrchestrator()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateEndpoints validates every configured endpoint across the tiers
func (c *Config) validateEndpoints() []ValidationError {
	var errors []ValidationError

	tiers := map[string]TierConfig{
		"low":    c.Endpoints.Low,
		"medium": c.Endpoints.Medium,
		"high":   c.Endpoints.High,
	}
	for name, tier := range tiers {
		errors = append(errors, validateEndpoint(tier.Primary, fmt.Sprintf("endpoints.%s.primary", name))...)
		for i, ep := range tier.Fallbacks {
			errors = append(errors, validateEndpoint(ep, fmt.Sprintf("endpoints.%s.fallbacks[%d]", name, i))...)
		}
	}

	return errors
}

// validateEndpoint checks one endpoint under the given field path. A tier
// may be left unconfigured entirely; only filled endpoints are checked.
func validateEndpoint(ep EndpointConfig, field string) []ValidationError {
	if ep.Provider == "" && ep.Model == "" {
		return nil
	}

	var errors []ValidationError
	if ep.Model == "" {
		errors = append(errors, ValidationError{
			Field:   field + ".model",
			Value:   ep.Model,
			Message: "cannot be empty",
		})
	}
	if ep.Provider != "" && !slices.Contains(ValidProviders(), ep.Provider) {
		errors = append(errors, ValidationError{
			Field:   field + ".provider",
			Value:   ep.Provider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProviders(), ", ")),
		})
	}
	if ep.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   field + ".timeout_seconds",
			Value:   ep.TimeoutSeconds,
			Message: "must be non-negative (0 uses the default)",
		})
	}
	return errors
}

// validateRetry validates the RetryConfig
func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	if c.Retry.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_retries",
			Value:   c.Retry.MaxRetries,
			Message: "must be non-negative (0 disables retries)",
		})
	}

	const maxRetriesLimit = 10
	if c.Retry.MaxRetries > maxRetriesLimit {
		errors = append(errors, ValidationError{
			Field:   "retry.max_retries",
			Value:   c.Retry.MaxRetries,
			Message: fmt.Sprintf("exceeds maximum of %d", maxRetriesLimit),
		})
	}

	if c.Retry.BaseDelayMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.base_delay_ms",
			Value:   c.Retry.BaseDelayMs,
			Message: "must be positive",
		})
	}

	if c.Retry.MaxDelayMs < c.Retry.BaseDelayMs {
		errors = append(errors, ValidationError{
			Field:   "retry.max_delay_ms",
			Value:   c.Retry.MaxDelayMs,
			Message: fmt.Sprintf("must be at least base_delay_ms (%d)", c.Retry.BaseDelayMs),
		})
	}

	if c.Retry.Multiplier < 1.0 {
		errors = append(errors, ValidationError{
			Field:   "retry.multiplier",
			Value:   c.Retry.Multiplier,
			Message: "must be at least 1.0",
		})
	}

	return errors
}

// validateCache validates the CacheConfig
func (c *Config) validateCache() []ValidationError {
	var errors []ValidationError

	if c.Cache.TTLMinutes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.ttl_minutes",
			Value:   c.Cache.TTLMinutes,
			Message: "must be positive",
		})
	}

	if c.Cache.Capacity <= 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.capacity",
			Value:   c.Cache.Capacity,
			Message: "must be positive",
		})
	}

	const maxCapacity = 100000
	if c.Cache.Capacity > maxCapacity {
		errors = append(errors, ValidationError{
			Field:   "cache.capacity",
			Value:   c.Cache.Capacity,
			Message: fmt.Sprintf("exceeds maximum of %d", maxCapacity),
		})
	}

	return errors
}

// validateLedger validates the LedgerConfig
func (c *Config) validateLedger() []ValidationError {
	var errors []ValidationError

	if c.Ledger.CleanupAgeHours <= 0 {
		errors = append(errors, ValidationError{
			Field:   "ledger.cleanup_age_hours",
			Value:   c.Ledger.CleanupAgeHours,
			Message: "must be positive",
		})
	}

	if strings.ContainsRune(c.Ledger.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "ledger.dir",
			Value:   c.Ledger.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

// validateOrchestrator validates the OrchestratorConfig
func (c *Config) validateOrchestrator() []ValidationError {
	var errors []ValidationError

	const minMaxParallel = 1
	const maxMaxParallel = 20

	if c.Orchestrator.MaxParallel < minMaxParallel {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_parallel",
			Value:   c.Orchestrator.MaxParallel,
			Message: fmt.Sprintf("must be at least %d", minMaxParallel),
		})
	}
	if c.Orchestrator.MaxParallel > maxMaxParallel {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_parallel",
			Value:   c.Orchestrator.MaxParallel,
			Message: fmt.Sprintf("exceeds maximum of %d", maxMaxParallel),
		})
	}

	if c.Orchestrator.PlannerTier != "" && !slices.Contains(ValidTiers(), c.Orchestrator.PlannerTier) {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.planner_tier",
			Value:   c.Orchestrator.PlannerTier,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTiers(), ", ")),
		})
	}
	if c.Orchestrator.ReviewTier != "" && !slices.Contains(ValidTiers(), c.Orchestrator.ReviewTier) {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.review_tier",
			Value:   c.Orchestrator.ReviewTier,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTiers(), ", ")),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
