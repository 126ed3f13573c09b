package main

import (
	"github.com/spf13/cobra"

	"github.com/nikbrunner/gmark/internal/model"
)

func newClassifyCommand(a *app) *cobra.Command {
	var item model.Item
	var provider string

	cmd := &cobra.Command{
		Use:   "classify <url>",
		Short: "Classify a link without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item.URL = args[0]
			if provider != "" {
				return printJSON(cmd.OutOrStdout(), a.engine.ClassifyWithProvider(cmd.Context(), provider, item))
			}
			return printJSON(cmd.OutOrStdout(), a.engine.Classify(cmd.Context(), item))
		},
	}

	cmd.Flags().StringVar(&item.Title, "title", "", "page title")
	cmd.Flags().StringVar(&item.Description, "description", "", "page description")
	cmd.Flags().StringVar(&provider, "provider", "", "classify with this provider instead of the local chain")
	return cmd
}
