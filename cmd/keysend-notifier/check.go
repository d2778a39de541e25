package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keysendnotifier/internal/app"
)

func checkCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print what it resolves to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.CheckConfig(*cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", *cfgPath)
			for _, line := range app.Summary(cfg) {
				fmt.Fprintln(out, "  "+line)
			}
			return nil
		},
	}
}
