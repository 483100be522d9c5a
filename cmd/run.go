package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/server"
	"github.com/JakeFAU/jobscout/internal/task"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and wait for it to finish",
		Long: `Checks the LinkedIn session, scrapes every enabled source, scores the
new postings and prints a summary of the run.`,
		Args: cobra.NoArgs,
		RunE: runOnce,
	}
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadedConfig(cmd.Context())
	if err != nil {
		return err
	}
	app, err := server.Build(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	defer app.Close(cmd.Context())

	t, err := app.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	app.Logger().Info("run finished",
		zap.String("task_id", t.ID),
		zap.String("status", string(t.Status)),
		zap.String("message", t.Message),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", t.Status, t.Message)
	if t.Status == task.StatusFailed {
		return fmt.Errorf("run %s failed", t.ID)
	}
	return nil
}
