package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/gmark/internal/duplicates"
	"github.com/nikbrunner/gmark/internal/model"
)

func newDuplicatesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find, review and merge duplicate bookmarks",
	}

	cmd.AddCommand(
		newDuplicatesFindCommand(a),
		&cobra.Command{
			Use:   "pending",
			Short: "List unresolved duplicate records",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				records, err := a.engine.PendingDuplicates(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), records)
			},
		},
		newDuplicatesMergeCommand(a),
		&cobra.Command{
			Use:   "ignore <record-id>",
			Short: "Mark a duplicate record as not a duplicate",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.engine.IgnoreDuplicate(cmd.Context(), args[0])
			},
		},
		newAutoMergeCommand(a),
	)
	return cmd
}

func newDuplicatesFindCommand(a *app) *cobra.Command {
	var item model.Item

	cmd := &cobra.Command{
		Use:   "find [url]",
		Short: "List stored bookmarks similar to a link, or every similar pair",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				pairs, err := a.engine.FindAllDuplicates(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), pairs)
			}

			item.URL = args[0]
			matches, err := a.engine.FindDuplicates(cmd.Context(), item)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), matches)
		},
	}

	cmd.Flags().StringVar(&item.Title, "title", "", "title of the link")
	cmd.Flags().StringVar(&item.Description, "description", "", "description of the link")
	return cmd
}

func newDuplicatesMergeCommand(a *app) *cobra.Command {
	var choices duplicates.MergeChoices

	cmd := &cobra.Command{
		Use:   "merge <primary-id> <duplicate-id>",
		Short: "Merge a duplicate into its primary and delete the duplicate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("tags") {
				choices.Tags = nil
			}
			merged, err := a.engine.MergeDuplicates(cmd.Context(), args[0], args[1], choices)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), merged)
		},
	}

	cmd.Flags().StringVar(&choices.URL, "url", "", "keep this URL")
	cmd.Flags().StringVar(&choices.Title, "title", "", "keep this title")
	cmd.Flags().StringVar(&choices.Description, "description", "", "keep this description")
	cmd.Flags().StringVar(&choices.Category, "category", "", "keep this category")
	cmd.Flags().StringVar(&choices.Summary, "summary", "", "keep this summary")
	cmd.Flags().StringSliceVar(&choices.Tags, "tags", nil, "base tag set, unioned with the duplicate's tags")
	return cmd
}

func newAutoMergeCommand(a *app) *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "auto-merge",
		Short: "Merge every pair above the auto-merge threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.engine.AutoMerge(cmd.Context(), threshold)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %d bookmarks, deleted %d\n", len(result.Merged), len(result.ToDelete))
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "similarity required (default from config)")
	return cmd
}
