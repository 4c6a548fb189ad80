package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/gudangguard/sentinel/internal/app"
)

func newCorrelateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "correlate",
		Short: "Run one repeat-detection pass and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, log, err := opts.load()
			if err != nil {
				return err
			}
			result, err := app.RunRepeatPass(cmd.Context(), settings, log)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
