package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/refsync/pkg/gitrepo"
	"github.com/jingkaihe/refsync/pkg/presenter"
	"github.com/jingkaihe/refsync/pkg/reconciler"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Destroy and reconverge a reference from its declaration",
	Long: `Reset removes the submodule at the given path entirely (deinit, gitlink and
working directory) and then reconverges it from scratch using its
declaration. This is the recovery path for drift that pattern replacement
cannot fix. It refuses to run without --confirm.

Examples:
  refsync reset --path skills/vscode-docs/sources/vscode-docs --confirm
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		localPath, _ := cmd.Flags().GetString("path")
		confirmed, _ := cmd.Flags().GetBool("confirm")

		if !confirmed {
			return errors.New("reset is destructive; re-run with --confirm to proceed")
		}

		eng, err := buildEngine()
		if err != nil {
			return err
		}

		entries := eng.registry.Find("", localPath)
		if len(entries) == 0 {
			return errors.Errorf("no declared reference at path %s", localPath)
		}
		entry := entries[0]

		presenter.Warning(fmt.Sprintf("Resetting %s (skill %s) from scratch", entry.LocalPath, entry.SkillName))

		report, err := eng.restore.HardReset(cmd.Context(), entry, gitrepo.ConfirmDeinit())
		if err != nil {
			return err
		}

		printReports([]reconciler.Report{report})
		if report.Outcome == reconciler.OutcomeFailed {
			return errors.New("reset completed deinit but reconvergence failed")
		}
		return nil
	},
}

func init() {
	resetCmd.Flags().String("path", "", "Local submodule path to reset")
	resetCmd.Flags().Bool("confirm", false, "Acknowledge that reset destroys the local checkout")
	resetCmd.MarkFlagRequired("path")

	rootCmd.AddCommand(resetCmd)
}
