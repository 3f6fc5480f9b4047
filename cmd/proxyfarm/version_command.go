package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proxyfarm/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the build version and routing key",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "proxyfarm %s\n", version.String())
			return nil
		},
	}
}
