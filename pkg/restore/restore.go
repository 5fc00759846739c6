// Package restore provides the escape hatches outside normal
// reconciliation: temporary full materialization of a sparse tree, and a
// full deinit-and-reconverge reset for unrecoverable drift.
package restore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/jingkaihe/refsync/pkg/gitrepo"
	"github.com/jingkaihe/refsync/pkg/logger"
	"github.com/jingkaihe/refsync/pkg/reconciler"
	"github.com/jingkaihe/refsync/pkg/registry"
)

// Gateway is the slice of the repository gateway the manager needs.
type Gateway interface {
	Inspect(ctx context.Context, localPath string) (gitrepo.WorkingTreeState, error)
	DisableSparseCheckout(ctx context.Context, localPath string) error
	Reapply(ctx context.Context, localPath string, mode registry.Mode, patterns []string) error
	Deinit(ctx context.Context, localPath string, confirm gitrepo.DeinitConfirmation) error
}

// Converger re-runs reconciliation after a reset.
type Converger interface {
	Reconcile(ctx context.Context, entry registry.ReferenceEntry) reconciler.Report
}

// Manager implements the restore operations.
type Manager struct {
	gw   Gateway
	conv Converger
}

// NewManager creates a restore Manager.
func NewManager(gw Gateway, conv Converger) *Manager {
	return &Manager{gw: gw, conv: conv}
}

// WithFullTree disables sparse-checkout at localPath, invokes fn against the
// fully materialized tree, and reapplies the prior pattern set on every exit
// path, fn errors and panics included.
func (m *Manager) WithFullTree(ctx context.Context, localPath string, fn func(context.Context) error) (err error) {
	st, err := m.gw.Inspect(ctx, localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to inspect %s", localPath)
	}
	if !st.IsGitRepository {
		return &gitrepo.NotAGitRepositoryError{Path: localPath}
	}
	if !st.SparseCheckoutEnabled {
		// already a full tree; nothing to widen or restore
		return fn(ctx)
	}

	mode := st.SparseMode
	patterns := st.CurrentPatterns

	if err := m.gw.DisableSparseCheckout(ctx, localPath); err != nil {
		return errors.Wrapf(err, "failed to materialize full tree at %s", localPath)
	}

	defer func() {
		reapplyErr := m.gw.Reapply(ctx, localPath, mode, patterns)
		if reapplyErr != nil {
			logger.G(ctx).WithError(reapplyErr).WithField("path", localPath).
				Error("failed to reapply sparse-checkout patterns; tree remains fully materialized")
			if err == nil {
				err = reapplyErr
			}
		}
	}()

	return fn(ctx)
}

// HardReset removes the submodule entirely and reconverges it from the
// declaration. It is the recovery path for drift that pattern replacement
// alone cannot fix, e.g. a corrupted gitlink.
func (m *Manager) HardReset(ctx context.Context, entry registry.ReferenceEntry, confirm gitrepo.DeinitConfirmation) (reconciler.Report, error) {
	if !confirm.Confirmed() {
		return reconciler.Report{}, gitrepo.ErrDeinitNotConfirmed
	}

	logger.G(ctx).WithField("path", entry.LocalPath).Warn("hard reset: removing submodule and reconverging from declaration")

	if err := m.gw.Deinit(ctx, entry.LocalPath, confirm); err != nil {
		return reconciler.Report{}, errors.Wrapf(err, "failed to deinit %s", entry.LocalPath)
	}

	return m.conv.Reconcile(ctx, entry), nil
}
