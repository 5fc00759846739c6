package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/refsync/pkg/presenter"
	"github.com/jingkaihe/refsync/pkg/sizeaudit"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Report drift between declarations and checkouts without mutating",
	Long: `Verify inspects each declared reference and reports whether its submodule
checkout agrees with the declaration. Nothing is mutated; the exit code is
non-zero when any reference has drifted.

Examples:
  refsync verify                      # Verify every declared reference
  refsync verify --skill vscode-docs  # Verify one skill's references
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		skill, _ := cmd.Flags().GetString("skill")

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
		drifted := false

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SKILL\tPATH\tSTATE\tSIZE")
		fmt.Fprintln(tw, "-----\t----\t-----\t----")

		for _, entry := range entries {
			plan, st, err := eng.reconciler.Plan(ctx, entry)

			state := "converged"
			switch {
			case err != nil:
				state = fmt.Sprintf("error: %v", err)
				drifted = true
			case !plan.IsNoop():
				state = "drift: " + plan.String()
				drifted = true
			case st.MaterializedFiles == 0 && len(entry.DesiredPaths) > 0:
				state = "warning: patterns match no files"
			}

			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				entry.SkillName, entry.LocalPath, state, sizeaudit.Format(st.SizeBytes))
		}
		tw.Flush()

		if drifted {
			return errors.New("drift detected")
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().String("skill", "", "Verify only references declared by this skill")

	rootCmd.AddCommand(verifyCmd)
}
