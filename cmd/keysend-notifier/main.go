package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "keysend-notifier",
		Short:         "Forward LND keysend messages to a nostr DM",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Bare invocation runs the bridge.
		RunE: func(cmd *cobra.Command, _ []string) error { return run(cmd.Context(), cfgPath) },
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (yaml or json)")

	root.AddCommand(runCmd(&cfgPath), checkCmd(&cfgPath), keyCmd(&cfgPath))
	return root
}
