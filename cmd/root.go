// Package cmd defines the jobscout command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/jobscout/internal/config"
)

type configKeyType struct{}

var configKey configKeyType

// newRootCmd creates the root command. The config is loaded once before any
// subcommand runs and handed to it through the command context.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "jobscout",
		Short: "Discover job postings and match them against your profile.",
		Long: `jobscout scrapes LinkedIn, Seek and a job search API, stores new
postings, scores them against a candidate profile and notifies you about
the strong matches.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, &cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables use the JOBSCOUT_ prefix)")

	cmd.AddCommand(newRunCmd(), newServeCmd(), newSessionCmd())
	return cmd
}

func loadedConfig(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not loaded")
	}
	return cfg, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
