// Package reconciler computes and applies the minimal git operation
// sequence that brings a submodule checkout into agreement with its
// declared reference entry.
package reconciler

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/refsync/pkg/gitrepo"
	"github.com/jingkaihe/refsync/pkg/logger"
	"github.com/jingkaihe/refsync/pkg/registry"
)

// Gateway is the slice of the repository gateway the reconciler needs.
type Gateway interface {
	Inspect(ctx context.Context, localPath string) (gitrepo.WorkingTreeState, error)
	AddSubmodule(ctx context.Context, localPath, remoteURL string) error
	InitSparseCheckout(ctx context.Context, localPath string, mode registry.Mode) error
	SetSparsePatterns(ctx context.Context, localPath string, patterns []string) error
	CheckoutRevision(ctx context.Context, localPath, revision string) error
	ResolveRevisionLocal(ctx context.Context, localPath, revision string) (string, error)
}

// Reconciler converges reference entries through a repository gateway.
type Reconciler struct {
	gw Gateway
}

// New creates a Reconciler backed by the given gateway.
func New(gw Gateway) *Reconciler {
	return &Reconciler{gw: gw}
}

// Plan inspects the working tree and computes the operation sequence needed
// to converge the entry. It issues no mutating operation and never touches
// the network: a pin not resolvable from the local object database counts as
// drift and is fetched only when the plan is applied.
func (r *Reconciler) Plan(ctx context.Context, entry registry.ReferenceEntry) (Plan, gitrepo.WorkingTreeState, error) {
	mode := entry.EffectiveMode()
	for _, p := range entry.DesiredPaths {
		if err := registry.ValidatePatternSyntax(mode, p); err != nil {
			return Plan{}, gitrepo.WorkingTreeState{}, err
		}
	}
	desired := registry.NormalizePatterns(entry.DesiredPaths)

	st, err := r.gw.Inspect(ctx, entry.LocalPath)
	if err != nil {
		return Plan{}, st, errors.Wrapf(err, "failed to inspect %s", entry.LocalPath)
	}

	var plan Plan

	if !st.IsGitRepository {
		plan.Operations = append(plan.Operations,
			Operation{Kind: OpAddSubmodule, RemoteURL: entry.RemoteURL},
			Operation{Kind: OpInitSparseCheckout, Mode: mode},
			Operation{Kind: OpSetSparsePatterns, Patterns: desired},
		)
		if entry.PinnedRevision != "" {
			plan.Operations = append(plan.Operations,
				Operation{Kind: OpCheckoutRevision, Revision: entry.PinnedRevision})
		}
		return plan, st, nil
	}

	modeMatches := st.SparseCheckoutEnabled && st.SparseMode == mode
	if !modeMatches {
		// Mode changes are not a patch: cone and no-cone syntaxes are not
		// convertible, so the declaration must already carry patterns valid
		// for the new mode and the full set is re-applied after re-init.
		plan.Operations = append(plan.Operations,
			Operation{Kind: OpInitSparseCheckout, Mode: mode},
			Operation{Kind: OpSetSparsePatterns, Patterns: desired},
		)
	} else if !patternSetsMatch(mode, st.CurrentPatterns, desired) {
		plan.Operations = append(plan.Operations,
			Operation{Kind: OpSetSparsePatterns, Patterns: desired})
	}

	if entry.PinnedRevision != "" && !revisionMatches(st.HeadRevision, entry.PinnedRevision) {
		sha, err := r.gw.ResolveRevisionLocal(ctx, entry.LocalPath, entry.PinnedRevision)
		if err != nil {
			var notFound *gitrepo.RevisionNotFoundError
			if !errors.As(err, &notFound) {
				return Plan{}, st, err
			}
			// Unknown locally means HEAD cannot be at the pin; applying the
			// plan fetches and checks out, or fails with the same error.
			sha = ""
		}
		if sha != st.HeadRevision {
			plan.Operations = append(plan.Operations,
				Operation{Kind: OpCheckoutRevision, Revision: entry.PinnedRevision})
		}
	}

	return plan, st, nil
}

// revisionMatches is the cheap comparison that avoids resolving through git
// when the pin is the full or abbreviated SHA HEAD already points at.
func revisionMatches(head, pinned string) bool {
	if head == "" || pinned == "" {
		return false
	}
	return head == pinned || (len(pinned) >= 7 && strings.HasPrefix(head, pinned))
}

// patternSetsMatch compares observed and desired pattern sets. In cone mode
// git reports bare directory paths, so trailing slashes are ignored there.
func patternSetsMatch(mode registry.Mode, current, desired []string) bool {
	if mode == registry.ModeCone {
		return registry.PatternSetsEqual(stripTrailingSlashes(current), stripTrailingSlashes(desired))
	}
	return registry.PatternSetsEqual(current, desired)
}

func stripTrailingSlashes(patterns []string) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = strings.TrimSuffix(p, "/")
	}
	return out
}

// Reconcile converges one entry: plan, apply in order, re-inspect, report.
// A failure aborts the remaining steps; the report carries the applied
// prefix so operators know the intermediate state.
func (r *Reconciler) Reconcile(ctx context.Context, entry registry.ReferenceEntry) Report {
	log := logger.G(ctx).WithField("skill", entry.SkillName).WithField("path", entry.LocalPath)

	plan, before, err := r.Plan(ctx, entry)
	if err != nil {
		log.WithError(err).Error("planning failed")
		return Report{
			Entry:       entry,
			Outcome:     OutcomeFailed,
			BytesBefore: before.SizeBytes,
			BytesAfter:  before.SizeBytes,
			Err:         err,
		}
	}

	if plan.IsNoop() {
		log.Debug("already converged")
		return Report{
			Entry:       entry,
			Outcome:     OutcomeNoop,
			BytesBefore: before.SizeBytes,
			BytesAfter:  before.SizeBytes,
		}
	}

	report := Report{
		Entry:       entry,
		Planned:     plan.Operations,
		BytesBefore: before.SizeBytes,
	}

	for _, op := range plan.Operations {
		if err := r.applyOperation(ctx, entry, op); err != nil {
			log.WithError(err).WithField("operation", op.String()).Error("reconciliation aborted")
			report.Outcome = OutcomeFailed
			report.Err = err
			report.BytesAfter = r.measure(ctx, entry.LocalPath)
			return report
		}
		report.Applied = append(report.Applied, op)
	}

	after, err := r.gw.Inspect(ctx, entry.LocalPath)
	if err != nil {
		report.Outcome = OutcomeFailed
		report.Err = errors.Wrap(err, "failed to re-inspect after apply")
		return report
	}

	report.Outcome = OutcomeConverged
	report.BytesAfter = after.SizeBytes
	if after.MaterializedFiles == 0 && len(entry.DesiredPaths) > 0 {
		report.Warning = "declared patterns matched no files; upstream may have moved or removed the declared paths"
		log.Warn(report.Warning)
	}
	return report
}

func (r *Reconciler) applyOperation(ctx context.Context, entry registry.ReferenceEntry, op Operation) error {
	switch op.Kind {
	case OpAddSubmodule:
		return r.gw.AddSubmodule(ctx, entry.LocalPath, op.RemoteURL)
	case OpInitSparseCheckout:
		return r.gw.InitSparseCheckout(ctx, entry.LocalPath, op.Mode)
	case OpSetSparsePatterns:
		return r.gw.SetSparsePatterns(ctx, entry.LocalPath, op.Patterns)
	case OpCheckoutRevision:
		return r.gw.CheckoutRevision(ctx, entry.LocalPath, op.Revision)
	default:
		return errors.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (r *Reconciler) measure(ctx context.Context, localPath string) int64 {
	st, err := r.gw.Inspect(ctx, localPath)
	if err != nil {
		return 0
	}
	return st.SizeBytes
}
