package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/refsync/pkg/presenter"
	"github.com/jingkaihe/refsync/pkg/reconciler"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Converge declared references to their desired path sets",
	Long: `Reconcile compares each declared reference against its submodule checkout
and applies the minimal git operation sequence to converge it: missing
submodules are added, sparse-checkout mode and patterns are replaced
wholesale, and pinned revisions are checked out.

Examples:
  refsync reconcile --all                 # Reconcile every declared reference
  refsync reconcile --skill vscode-docs   # Reconcile one skill's references
  refsync reconcile --all --dry-run       # Print plans without touching git
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		skill, _ := cmd.Flags().GetString("skill")
		all, _ := cmd.Flags().GetBool("all")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		workers, _ := cmd.Flags().GetInt("workers")

		if skill == "" && !all {
			return errors.New("specify --skill NAME or --all")
		}

		eng, err := buildEngine()
		if err != nil {
			return err
		}

		entries := eng.registry.Find(skill, "")
		if len(entries) == 0 {
			presenter.Info("No matching references declared")
			return nil
		}

		ctx := cmd.Context()

		if dryRun {
			failed := false
			for _, entry := range entries {
				plan, _, err := eng.reconciler.Plan(ctx, entry)
				if err != nil {
					presenter.Error(err, fmt.Sprintf("%s (%s)", entry.SkillName, entry.LocalPath))
					failed = true
					continue
				}
				presenter.Section(fmt.Sprintf("%s (%s)", entry.SkillName, entry.LocalPath))
				presenter.Info(plan.String())
			}
			if failed {
				return errors.New("planning failed for one or more references")
			}
			return nil
		}

		reports := eng.reconciler.ReconcileAll(ctx, entries, workers)
		printReports(reports)

		if reconciler.AnyFailed(reports) {
			return errors.New("one or more references failed to reconcile")
		}
		return nil
	},
}

func printReports(reports []reconciler.Report) {
	for _, report := range reports {
		name := fmt.Sprintf("%s (%s)", report.Entry.SkillName, report.Entry.LocalPath)
		switch report.Outcome {
		case reconciler.OutcomeNoop:
			presenter.Info(fmt.Sprintf("%s: already converged", name))
		case reconciler.OutcomeConverged:
			presenter.Success(fmt.Sprintf("%s: converged (%d operations)", name, len(report.Applied)))
			presenter.Stats(&presenter.SizeStats{
				Path:        report.Entry.LocalPath,
				BytesBefore: report.BytesBefore,
				BytesAfter:  report.BytesAfter,
			})
		case reconciler.OutcomeFailed:
			presenter.Error(report.Err, name)
			if len(report.Applied) > 0 {
				applied := make([]string, len(report.Applied))
				for i, op := range report.Applied {
					applied[i] = op.String()
				}
				presenter.Warning(fmt.Sprintf("%s: applied before failure: %v", name, applied))
			}
		}
		if report.Warning != "" {
			presenter.Warning(fmt.Sprintf("%s: %s", name, report.Warning))
		}
	}
}

func init() {
	reconcileCmd.Flags().String("skill", "", "Reconcile only references declared by this skill")
	reconcileCmd.Flags().Bool("all", false, "Reconcile every declared reference")
	reconcileCmd.Flags().Bool("dry-run", false, "Print the computed plans without applying them")
	reconcileCmd.Flags().Int("workers", reconciler.DefaultWorkers, "Bounded worker pool size for batch reconciliation")

	rootCmd.AddCommand(reconcileCmd)
}
