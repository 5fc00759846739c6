package reconciler

import "github.com/jingkaihe/refsync/pkg/registry"

// Outcome classifies the result of reconciling one entry.
type Outcome string

const (
	// OutcomeConverged means the plan applied fully.
	OutcomeConverged Outcome = "converged"
	// OutcomeNoop means the entry was already converged and no mutating
	// operation was issued.
	OutcomeNoop Outcome = "noop"
	// OutcomeFailed means planning or application stopped on an error.
	OutcomeFailed Outcome = "failed"
)

// Report is the per-entry result artifact. It is created after plan
// application and never mutated afterwards.
type Report struct {
	Entry   registry.ReferenceEntry
	Outcome Outcome
	// Planned is the full operation sequence the reconciler computed.
	Planned []Operation
	// Applied is the prefix of Planned that actually executed. On failure
	// it tells the operator what intermediate state the tree was left in.
	Applied     []Operation
	BytesBefore int64
	BytesAfter  int64
	// Warning carries non-fatal findings, e.g. a converged pattern set that
	// matched no files.
	Warning string
	Err     error
}

// AnyFailed reports whether any report in a batch failed; batch exit status
// derives from it while successful entries keep their reports.
func AnyFailed(reports []Report) bool {
	for _, r := range reports {
		if r.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}
