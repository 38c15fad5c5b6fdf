package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("default config is invalid: %v", ValidationErrors(errs))
	}
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retry.MaxRetries != 2 {
		t.Errorf("retry.max_retries = %d, want 2", cfg.Retry.MaxRetries)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL() != time.Hour {
		t.Errorf("cache defaults = %+v, want enabled with 1h TTL", cfg.Cache)
	}
	if cfg.Orchestrator.MaxParallel != 3 {
		t.Errorf("orchestrator.max_parallel = %d, want 3", cfg.Orchestrator.MaxParallel)
	}
	if cfg.Ledger.CleanupAge() != 168*time.Hour {
		t.Errorf("ledger cleanup age = %v, want 168h", cfg.Ledger.CleanupAge())
	}
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
endpoints:
  medium:
    primary:
      provider: openai
      model: gpt-4.1-mini
      api_key_env: OPENAI_API_KEY
    fallbacks:
      - provider: anthropic
        model: claude-sonnet
        api_key_env: ANTHROPIC_API_KEY
retry:
  max_retries: 3
orchestrator:
  max_parallel: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	SetDefaults()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chain := cfg.Endpoints.ForTier("medium").All()
	if len(chain) != 2 {
		t.Fatalf("medium chain = %d endpoints, want 2", len(chain))
	}
	if chain[0].Model != "gpt-4.1-mini" || chain[1].Provider != "anthropic" {
		t.Errorf("chain = %+v, want primary gpt then anthropic fallback", chain)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("retry.max_retries = %d, want file override 3", cfg.Retry.MaxRetries)
	}
	if cfg.Orchestrator.MaxParallel != 5 {
		t.Errorf("orchestrator.max_parallel = %d, want file override 5", cfg.Orchestrator.MaxParallel)
	}
}

func TestForTierFallsBackToMedium(t *testing.T) {
	cfg := EndpointsConfig{
		Medium: TierConfig{Primary: EndpointConfig{Provider: "openai", Model: "m"}},
	}
	if got := cfg.ForTier("nonsense"); got.Primary.Model != "m" {
		t.Errorf("ForTier(nonsense) = %+v, want medium tier", got)
	}
}

func TestAllOmitsUnsetPrimary(t *testing.T) {
	if got := (TierConfig{}).All(); len(got) != 0 {
		t.Errorf("unconfigured tier All() = %d endpoints, want 0", len(got))
	}

	// Fallbacks without a primary still form a chain.
	tc := TierConfig{Fallbacks: []EndpointConfig{{Provider: "openai", Model: "m"}}}
	if got := tc.All(); len(got) != 1 || got[0].Model != "m" {
		t.Errorf("fallback-only All() = %+v, want the one fallback", got)
	}

	tc = TierConfig{
		Primary:   EndpointConfig{Provider: "openai", Model: "p"},
		Fallbacks: []EndpointConfig{{Provider: "anthropic", Model: "f"}},
	}
	if got := tc.All(); len(got) != 2 || got[0].Model != "p" {
		t.Errorf("full tier All() = %+v, want primary first", got)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TASKLOOM_TEST_KEY", "sk-test")
	ep := EndpointConfig{APIKeyEnv: "TASKLOOM_TEST_KEY"}
	if got := ep.APIKey(); got != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", got)
	}
	if got := (EndpointConfig{}).APIKey(); got != "" {
		t.Errorf("APIKey with no env = %q, want empty", got)
	}
}
