package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/refsync/pkg/presenter"
)

var restoreFullCmd = &cobra.Command{
	Use:   "restore-full",
	Short: "Temporarily materialize a reference's full tree",
	Long: `Restore-full disables sparse-checkout for one reference so the complete
upstream tree is available for manual inspection, waits, and then reapplies
the prior pattern set. The patterns are restored even if the wait is
interrupted by an error.

Examples:
  refsync restore-full --path skills/vscode-docs/sources/vscode-docs
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		localPath, _ := cmd.Flags().GetString("path")

		eng, err := buildEngine()
		if err != nil {
			return err
		}

		presenter.Warning(fmt.Sprintf("Materializing the FULL tree at %s; this can be large", localPath))

		return eng.restore.WithFullTree(cmd.Context(), localPath, func(_ context.Context) error {
			presenter.Info(fmt.Sprintf("Full tree available at %s", localPath))
			presenter.Prompt("Press Enter to reapply the sparse patterns")
			return nil
		})
	},
}

func init() {
	restoreFullCmd.Flags().String("path", "", "Local submodule path to materialize")
	restoreFullCmd.MarkFlagRequired("path")

	rootCmd.AddCommand(restoreFullCmd)
}
