package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and close operator scanning sessions",
	}

	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "active",
		Short: "Count active scanning sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				count, err := svc.sessions.ActiveCount(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int{"activeSessions": count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "active sessions: %d\n", count)
				return nil
			})
		},
	})

	var idleFor time.Duration
	closeIdle := &cobra.Command{
		Use:   "close-idle",
		Short: "Close sessions with no scans within the idle window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			window := idleFor
			if window <= 0 {
				window = cfg.Sessions.IdleTimeout
			}
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				closed, err := svc.sessions.CloseIdle(cmd.Context(), window)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "closed %d idle sessions (idle > %s)\n", closed, window)
				return nil
			})
		},
	}
	closeIdle.Flags().DurationVar(&idleFor, "idle", 0, "Idle window (defaults to the configured session idle timeout)")
	sessionsCmd.AddCommand(closeIdle)

	return sessionsCmd
}
