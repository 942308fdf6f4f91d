// Package cli implements the frank command-line interface.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/castaldi/frank/internal/config"
	"github.com/castaldi/frank/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// set by PersistentPreRunE
	cfgPath string
	log     *logging.Logger
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "frank.yaml"
	}
	return filepath.Join(home, ".frank", "config.yaml")
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "frank",
		Short: "Frank — camper onboard assistant",
		Long:  "Frank is a conversational onboard assistant for campers: it answers in free conversation and drives navigation, weather, vehicle and maintenance tools.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfgPath = cfgFile
			if cfgPath == "" {
				cfgPath = defaultConfigPath()
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.frank/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig loads and validates the effective configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg.Validate(log)
	if cfg.Logging.Level != "" && logLevel == "" {
		log = logging.New(nil, cfg.Logging.Level)
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
