package main

import (
	"fmt"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/refsync/pkg/presenter"
	"github.com/jingkaihe/refsync/pkg/reconciler"
	"github.com/jingkaihe/refsync/pkg/registry"
)

var addReferenceCmd = &cobra.Command{
	Use:   "add-reference",
	Short: "Declare a new reference for a skill and reconcile it",
	Long: `Add-reference appends a new (skill, repository, path set) declaration to the
registry file and immediately reconciles it, so the submodule is materialized
with exactly the declared subset.

Examples:
  refsync add-reference --skill vscode-docs --url https://github.com/microsoft/vscode-docs.git \
    --mode no-cone --include /README.md --include /api/
  refsync add-reference --skill slint-expert --url https://github.com/slint-ui/slint.git \
    --path skills/slint-expert/sources/slint --include docs/ --pin v1.8.0
`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		skill, _ := cmd.Flags().GetString("skill")
		url, _ := cmd.Flags().GetString("url")
		localPath, _ := cmd.Flags().GetString("path")
		modeStr, _ := cmd.Flags().GetString("mode")
		pin, _ := cmd.Flags().GetString("pin")
		include, _ := cmd.Flags().GetStringArray("include")

		mode, err := registry.ParseMode(modeStr)
		if err != nil {
			return err
		}
		if localPath == "" {
			localPath = defaultLocalPath(skill, url)
		}

		entry := registry.ReferenceEntry{
			SkillName:      skill,
			LocalPath:      localPath,
			RemoteURL:      url,
			DesiredPaths:   include,
			Mode:           mode,
			PinnedRevision: pin,
		}

		eng, err := buildEngine()
		if err != nil {
			return err
		}

		if err := eng.registry.Append(entry); err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := eng.registry.Save(ctx); err != nil {
			return errors.Wrap(err, "failed to persist declaration")
		}
		presenter.Success(fmt.Sprintf("Declared reference %s for skill %s", localPath, skill))

		report := eng.reconciler.Reconcile(ctx, entry)
		printReports([]reconciler.Report{report})
		if report.Outcome == reconciler.OutcomeFailed {
			return errors.New("reference declared but initial reconciliation failed")
		}
		return nil
	},
}

// defaultLocalPath derives skills/<skill>/sources/<repo> from the remote URL.
func defaultLocalPath(skill, url string) string {
	base := strings.TrimSuffix(path.Base(strings.TrimSuffix(url, "/")), ".git")
	return path.Join("skills", skill, "sources", base)
}

func init() {
	addReferenceCmd.Flags().String("skill", "", "Skill the reference belongs to")
	addReferenceCmd.Flags().String("url", "", "Upstream repository URL")
	addReferenceCmd.Flags().String("path", "", "Local submodule path (default skills/<skill>/sources/<repo>)")
	addReferenceCmd.Flags().String("mode", "cone", "Sparse-checkout mode (cone or no-cone)")
	addReferenceCmd.Flags().String("pin", "", "Revision to pin the submodule to")
	addReferenceCmd.Flags().StringArray("include", nil, "Pattern to materialize (repeatable)")
	addReferenceCmd.MarkFlagRequired("skill")
	addReferenceCmd.MarkFlagRequired("url")
	addReferenceCmd.MarkFlagRequired("include")

	rootCmd.AddCommand(addReferenceCmd)
}
