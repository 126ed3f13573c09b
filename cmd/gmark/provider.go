package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nikbrunner/gmark/internal/ai"
	"github.com/nikbrunner/gmark/internal/model"
)

func newProviderCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Configure classification providers",
		Long:  "Providers: " + strings.Join(ai.Providers(), ", "),
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [provider]",
			Short: "Show a provider's configuration (default: the active one)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := a.engine.GetProviderConfig(cmd.Context(), optionalArg(args))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), cfg)
			},
		},
		newProviderSetCommand(a),
		&cobra.Command{
			Use:   "use <provider>",
			Short: "Select the active provider",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.engine.UseProvider(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "check [provider]",
			Short: "Check whether a provider can be used",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return printJSON(cmd.OutOrStdout(), a.engine.CheckProviderAvailability(cmd.Context(), optionalArg(args)))
			},
		},
		newProviderClassifyCommand(a),
		&cobra.Command{
			Use:   "usage",
			Short: "Show today's local model token budget",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				usage, err := a.engine.TokenUsage(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d tokens\n", usage.Day, usage.Used, usage.Limit)
				return nil
			},
		},
	)
	return cmd
}

func newProviderSetCommand(a *app) *cobra.Command {
	var apiKey, baseURL, url, modelName, raw string

	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store a provider's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			config := json.RawMessage(raw)
			if raw == "" {
				fields := map[string]string{"type": name}
				for key, value := range map[string]string{"apiKey": apiKey, "baseURL": baseURL, "url": url, "model": modelName} {
					if value != "" {
						fields[key] = value
					}
				}
				encoded, err := json.Marshal(fields)
				if err != nil {
					return err
				}
				config = encoded
			}

			if err := a.engine.SetProviderConfig(cmd.Context(), name, config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s configuration\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (hosted providers)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (hosted providers)")
	cmd.Flags().StringVar(&url, "url", "", "server URL (ollama, lm-studio)")
	cmd.Flags().StringVar(&modelName, "model", "", "model name")
	cmd.Flags().StringVar(&raw, "json", "", "full configuration as JSON")
	return cmd
}

func newProviderClassifyCommand(a *app) *cobra.Command {
	var item model.Item

	cmd := &cobra.Command{
		Use:   "classify <provider> <url>",
		Short: "Classify a link with one provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			item.URL = args[1]
			out := a.engine.ClassifyWithProvider(cmd.Context(), args[0], item)
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if out.Result == nil {
				return fmt.Errorf("provider %s: %s", args[0], out.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&item.Title, "title", "", "page title")
	cmd.Flags().StringVar(&item.Description, "description", "", "page description")
	return cmd
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
