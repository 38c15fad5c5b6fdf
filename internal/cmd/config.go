package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskloom/taskloom/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View Taskloom configuration",
	Long: `View Taskloom configuration.

Without arguments, displays the current configuration.
Use 'config init' to create a starter config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/taskloom/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("endpoints:")
	for _, tier := range []string{"low", "medium", "high"} {
		tc := cfg.Endpoints.ForTier(tier)
		all := tc.All()
		if len(all) == 0 {
			fmt.Printf("  %s: (not configured)\n", tier)
			continue
		}
		fmt.Printf("  %s:\n", tier)
		for i, ec := range all {
			role := "primary"
			if i > 0 {
				role = fmt.Sprintf("fallback %d", i)
			}
			fmt.Printf("    %-10s %s/%s\n", role+":", ec.Provider, ec.Model)
		}
	}

	fmt.Println("retry:")
	fmt.Printf("  max_retries: %d\n", cfg.Retry.MaxRetries)
	fmt.Printf("  base_delay_ms: %d\n", cfg.Retry.BaseDelayMs)
	fmt.Printf("  max_delay_ms: %d\n", cfg.Retry.MaxDelayMs)
	fmt.Printf("  multiplier: %.1f\n", cfg.Retry.Multiplier)

	fmt.Println("cache:")
	fmt.Printf("  enabled: %v\n", cfg.Cache.Enabled)
	fmt.Printf("  ttl_minutes: %d\n", cfg.Cache.TTLMinutes)
	fmt.Printf("  capacity: %d\n", cfg.Cache.Capacity)

	fmt.Println("ledger:")
	fmt.Printf("  dir: %s\n", cfg.Ledger.ResolveDir())
	fmt.Printf("  cleanup_age_hours: %d\n", cfg.Ledger.CleanupAgeHours)

	fmt.Println("orchestrator:")
	fmt.Printf("  max_parallel: %d\n", cfg.Orchestrator.MaxParallel)
	fmt.Printf("  planner_tier: %s\n", cfg.Orchestrator.PlannerTier)
	fmt.Printf("  review_tier: %s\n", cfg.Orchestrator.ReviewTier)

	fmt.Println("logging:")
	fmt.Printf("  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Printf("  level: %s\n", cfg.Logging.Level)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Generate a commented config file
	configContent := `# Taskloom Configuration

# Endpoint chains per capability tier. The primary endpoint is tried
# first; fallbacks take over when it is exhausted. API keys are read
# from the named environment variable, never stored here.
endpoints:
  medium:
    primary:
      provider: openai
      model: gpt-4o-mini
      api_key_env: OPENAI_API_KEY
    fallbacks:
      - provider: anthropic
        model: claude-3-5-haiku-latest
        api_key_env: ANTHROPIC_API_KEY
  high:
    primary:
      provider: anthropic
      model: claude-sonnet-4-20250514
      api_key_env: ANTHROPIC_API_KEY
    fallbacks:
      - provider: openai
        model: gpt-4o
        api_key_env: OPENAI_API_KEY

# Retry behavior within one endpoint before moving to the next
retry:
  max_retries: 2
  base_delay_ms: 1000
  max_delay_ms: 30000
  multiplier: 2.0

# Result cache: identical task+context pairs are answered from memory
cache:
  enabled: true
  ttl_minutes: 60
  capacity: 100

# Task ledger: one JSON record per run
ledger:
  # dir: ~/.config/taskloom/ledger
  cleanup_age_hours: 168

orchestrator:
  max_parallel: 3
  planner_tier: high
  review_tier: high

logging:
  enabled: true
  level: info
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit it to point at your providers, then run 'taskloom run <task>'.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Println(config.ConfigFile())
	return nil
}
