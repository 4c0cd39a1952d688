package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/mobile-seat-admission/internal/database"
)

func newReapCmd() *cobra.Command {
	var inactiveAfter time.Duration
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Deactivate seats idle for longer than the inactivity window, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			window := a.cfg.ReapInactiveAfter
			if inactiveAfter > 0 {
				window = inactiveAfter
			}
			res, err := a.manager.ReapStale(cmd.Context(), time.Now().UTC().Add(-window))
			a.log.Info().Int("candidates", res.Candidates).Int("reaped", res.Reaped).Dur("inactive_after", window).Msg("reap finished")
			return err
		},
	}
	cmd.Flags().DurationVar(&inactiveAfter, "inactive-after", 0, "override REAP_INACTIVE_AFTER")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := database.Migrate(ctx, a.db); err != nil {
				return err
			}
			a.log.Info().Msg("schema migrated")
			return nil
		},
	}
}
