// dailyscore is the command-line companion to the worker: offline
// classification, schema migration, manual settlement and worker status.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/dailyscore/internal/config"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"

	settingsPath string
	verbose      bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dailyscore",
		Short:         "Adaptive daily task scoring",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
		},
	}

	root.PersistentFlags().StringVar(&settingsPath, "settings", config.SettingsPath(), "settings file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(classifyCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(settleCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(nextUpdateCmd())
	return root
}

// loadConfig reads the settings file chosen with --settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return cfg, nil
}
