// cmd/run.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportpipe/api/schemas"
	"github.com/xkilldash9x/reportpipe/internal/config"
	"github.com/xkilldash9x/reportpipe/internal/observability"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Aggregate tool reports, render and publish them",
		Long: `Parses the configured tool artifacts, rolls them up into a verdict,
renders the report artifacts and delivers them to every enabled sink.
The command fails only when the report itself could not be produced;
delivery failures are recorded in the receipts and printed here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := config.Get()

			components := NewComponents(cfg, logger)
			result, err := components.Runner.Run(ctx)
			if err != nil {
				logger.Error("Pipeline run failed", zap.Error(err))
				return err
			}

			doc := result.Document
			fmt.Printf("Verdict: %s (run %s)\n", doc.Summary.Verdict, doc.RunID)
			for _, a := range doc.Artifacts {
				fmt.Printf("  artifact %-8s %s\n", a.Format, a.Path)
			}
			for _, receipt := range result.Receipts {
				line := fmt.Sprintf("  sink %-6s %s", receipt.Sink, receipt.Status)
				if receipt.Status == schemas.ReceiptFailed {
					line += fmt.Sprintf(" (%s)", receipt.LastError)
				}
				if receipt.ExternalRef != "" {
					line += fmt.Sprintf(" ref=%s", receipt.ExternalRef)
				}
				fmt.Println(line)
				for _, w := range receipt.Warnings {
					fmt.Printf("    warning: %s\n", w)
				}
			}

			// Delivery trouble is visible above but never flips the exit code.
			return nil
		},
	}
	return runCmd
}
