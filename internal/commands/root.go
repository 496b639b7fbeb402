// Package commands implements the ourmate command line.
package commands

import (
	"github.com/spf13/cobra"

	"ourmate-bot/internal/config"
)

// NewRootCmd builds the root command. Without a subcommand it serves.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ourmate",
		Short: "Group chat assistant for Telegram",
		Long: `ourmate answers questions in a Telegram group, greets members on
their birthdays and keeps a pinned class schedule up to date.

Examples:
  ourmate serve --config config.yaml
  ourmate roster check birthdays.json
  ourmate next-birthday
  ourmate schedule tomorrow`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newRosterCmd(),
		newNextBirthdayCmd(),
		newScheduleCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file (default "+config.DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	return rootCmd
}

// loadConfig reads the file named by --config and applies --verbose.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
