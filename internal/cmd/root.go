package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskloom/taskloom/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "taskloom",
	Short: "Dependency-graph task orchestrator for LLM workers",
	Long: `Taskloom decomposes a task into a dependency graph of subtasks,
assigns each subtask to a specialized worker backed by a resilient
endpoint chain, executes the graph under the plan's policy, and
aggregates the outputs into one answer.

Every run is journaled, so it can be paused, inspected, and resumed.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/taskloom/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/taskloom")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TASKLOOM")
	// Replace dots with underscores for nested keys in env vars
	// e.g., TASKLOOM_ORCHESTRATOR_MAX_PARALLEL for orchestrator.max_parallel
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
