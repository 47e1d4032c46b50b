package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgeflow/forgeflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "forgeflow",
	Short: "Autonomous phase-sequenced build orchestrator",
	Long: `Forgeflow drives a build request through a fixed phase sequence
(scaffold, definition, decomposition, architecture, implementation, QA,
verification, learning), delegating each phase's substance to an external
agent and checkpointing after every unit of work so a run can always be
resumed from where it stopped.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/forgeflow/config.yaml)")
	rootCmd.PersistentFlags().String("state-dir", "", "state directory (default is ./.forgeflow)")
	rootCmd.PersistentFlags().Bool("dry-run", false, "use in-memory tracker and agent fakes")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("paths.state_dir", rootCmd.PersistentFlags().Lookup("state-dir"))
	_ = viper.BindPFlag("project.dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
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
		viper.AddConfigPath("$HOME/.config/forgeflow")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FORGEFLOW")
	// Replace dots with underscores for nested keys in env vars
	// e.g., FORGEFLOW_RESOURCES_AGENT_BUDGET for resources.agent_budget
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
