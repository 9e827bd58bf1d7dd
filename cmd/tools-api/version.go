package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tools-api %s\n", Version)
			fmt.Printf("  Commit:     %s\n", CommitSHA)
			fmt.Printf("  Build time: %s\n", BuildTimestamp)
		},
	}
}
