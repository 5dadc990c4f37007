package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd(version, commit string) *cobra.Command {
	root := &cobra.Command{
		Use:          "chatcall",
		Short:        "Send chat rows to an LLM provider and print one answer per row",
		SilenceUsage: true,
		Version:      version,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("chatcall %s (commit: %s)\n", version, commit))
	root.AddCommand(newRunCmd(version), newVersionCmd(version, commit))
	return root
}

func newVersionCmd(version, commit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "chatcall %s (commit: %s)\n", version, commit)
			return err
		},
	}
}
