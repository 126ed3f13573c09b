package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nikbrunner/gmark/internal/migrate"
	"github.com/nikbrunner/gmark/internal/progressview"
)

func newMigrateCommand(a *app) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the bookmarks file into the local store",
		Long: `Walks every link of the bookmarks file, checks it is reachable, classifies
it and files it into a category folder. Runs resume where they stopped;
interrupting a run pauses it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			run, err := a.engine.RunMigration(ctx)
			if err != nil {
				return err
			}

			var result migrate.Result
			if plain {
				result = progressview.Plain(cmd.OutOrStdout(), run)
			} else {
				final, err := tea.NewProgram(progressview.New(run), tea.WithContext(ctx)).Run()
				if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
					cancel()
					run.Wait()
					return fmt.Errorf("progress view: %w", err)
				}
				view, _ := final.(progressview.Model)
				if view.Result() == nil {
					// Detached: stop at the next item boundary.
					cancel()
					result = run.Wait()
					fmt.Fprint(cmd.OutOrStdout(), progressview.Summary(result, progressview.DefaultStyles()))
				} else {
					result = *view.Result()
				}
			}

			switch result.State {
			case migrate.StateUnavailable, migrate.StateFailed:
				return errors.New(result.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "print progress lines instead of the progress bar")
	return cmd
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := a.engine.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newResetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget migration progress so the next run starts over",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.engine.ResetMigration(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migration state cleared")
			return nil
		},
	}
}

func newCleanupFoldersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-folders",
		Short: "Remove empty folders from the bookmarks file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.engine.CleanupFolders(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
