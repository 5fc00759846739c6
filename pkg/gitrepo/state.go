package gitrepo

import "github.com/jingkaihe/refsync/pkg/registry"

// WorkingTreeState is the observed state of one submodule path, captured
// fresh at the start of every reconciliation. It is never cached across
// invocations; git state may have changed out-of-band.
type WorkingTreeState struct {
	// IsGitRepository reports whether a valid .git directory or gitlink is
	// present at the path.
	IsGitRepository bool
	// SparseCheckoutEnabled reports whether core.sparseCheckout is set.
	SparseCheckoutEnabled bool
	// SparseMode is the observed pattern syntax mode; meaningful only when
	// sparse-checkout is enabled.
	SparseMode registry.Mode
	// CurrentPatterns is the pattern set git reports via sparse-checkout
	// list. In cone mode git prints bare directory paths.
	CurrentPatterns []string
	// SizeBytes is the recursive on-disk size of the path, .git metadata
	// included.
	SizeBytes int64
	// MaterializedFiles counts regular files in the working tree, git
	// metadata excluded. A converged entry with desired patterns but zero
	// materialized files usually means upstream moved the declared paths.
	MaterializedFiles int
	// HeadRevision is the commit HEAD points at; empty when the path is not
	// a repository or has no commits.
	HeadRevision string
}
