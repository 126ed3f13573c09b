package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/gmark/internal/logger"
)

func newStorageCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect and optimize local storage",
	}

	var force bool
	optimize := &cobra.Command{
		Use:   "optimize",
		Short: "Run the cleanup tier for the current usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.engine.Optimize(cmd.Context(), force)
			if err != nil {
				return err
			}
			a.log.Info("storage optimized",
				logger.Bool("ran", report.Ran),
				logger.Int64("freedBytes", report.FreedBytes()))
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	optimize.Flags().BoolVar(&force, "force", false, "run the critical tier regardless of usage")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show usage against the quota",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				status, err := a.engine.StorageStatus(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d bytes (%.1f%%)\n",
					status.Level, status.Usage, status.Quota, status.Percentage)
				return nil
			},
		},
		optimize,
		&cobra.Command{
			Use:   "stats",
			Short: "Count bookmarks per category",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				stats, err := a.engine.Statistics(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			},
		},
	)
	return cmd
}
