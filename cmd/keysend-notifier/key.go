package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"keysendnotifier/internal/app"
)

func keyCmd(cfgPath *string) *cobra.Command {
	var hexOut bool
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print the service npub, generating the key file if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := app.LoadIdentity(*cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if id.Created {
				fmt.Fprintf(cmd.ErrOrStderr(), "generated new key in %s\n", id.KeyPath)
			}
			if hexOut {
				fmt.Fprintln(out, id.Pubkey)
				return nil
			}
			fmt.Fprintln(out, id.Npub())
			return nil
		},
	}
	cmd.Flags().BoolVar(&hexOut, "hex", false, "print the pubkey as hex instead of npub")
	return cmd
}
