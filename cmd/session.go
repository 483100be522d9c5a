package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/jobscout/internal/server"
	"github.com/JakeFAU/jobscout/internal/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage the stored LinkedIn session",
	}

	var force bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Report session health, probing when the cached result is stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, true, func(tools *server.SessionTools) error {
				h := tools.Monitor.CheckHealth(cmd.Context(), force)
				if err := printJSON(cmd.OutOrStdout(), h); err != nil {
					return err
				}
				if !h.Usable() {
					return fmt.Errorf("session is %s", h.State)
				}
				return nil
			})
		},
	}
	check.Flags().BoolVar(&force, "force", false, "probe even when the cached result is fresh")

	info := &cobra.Command{
		Use:   "info",
		Short: "Show when the cookies were saved and how many there are",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, false, func(tools *server.SessionTools) error {
				i, err := tools.Monitor.Info(cmd.Context())
				if err != nil && !errors.Is(err, session.ErrNoSession) {
					return err
				}
				if i == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "no saved session")
					return nil
				}
				return printJSON(cmd.OutOrStdout(), i)
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the saved cookies and the cached health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, false, func(tools *server.SessionTools) error {
				if err := tools.Monitor.Clear(cmd.Context()); err != nil {
					return fmt.Errorf("clear session: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
				return nil
			})
		},
	}

	cmd.AddCommand(check, info, clearCmd)
	return cmd
}

func withSession(cmd *cobra.Command, withProber bool, fn func(*server.SessionTools) error) error {
	cfg, err := loadedConfig(cmd.Context())
	if err != nil {
		return err
	}
	tools, err := server.OpenSession(cfg, withProber)
	if err != nil {
		return err
	}
	defer tools.Close()
	return fn(tools)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
