// File: cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is overridden at build time via -ldflags.
var Version = "0.3.0-dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the reportpipe version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reportpipe %s\n", Version)
		},
	}
}
