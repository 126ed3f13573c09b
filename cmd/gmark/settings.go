package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSettingsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write stored settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a setting's JSON value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := a.engine.GetSetting(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(value))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <json-value>",
			Short: "Store a setting; plain words are stored as strings",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				value := json.RawMessage(args[1])
				if !json.Valid(value) {
					quoted, err := json.Marshal(args[1])
					if err != nil {
						return err
					}
					value = quoted
				}
				return a.engine.SetSetting(cmd.Context(), args[0], value)
			},
		},
	)
	return cmd
}
