package reconciler

import (
	"fmt"
	"strings"

	"github.com/jingkaihe/refsync/pkg/registry"
)

// OpKind identifies one git operation in a reconciliation plan.
type OpKind string

const (
	// OpAddSubmodule registers and clones the declared remote.
	OpAddSubmodule OpKind = "add-submodule"
	// OpInitSparseCheckout enables sparse-checkout in the declared mode.
	OpInitSparseCheckout OpKind = "sparse-checkout-init"
	// OpSetSparsePatterns replaces the full sparse-checkout pattern set.
	OpSetSparsePatterns OpKind = "sparse-checkout-set"
	// OpCheckoutRevision detaches HEAD at the pinned revision.
	OpCheckoutRevision OpKind = "checkout-revision"
)

// Operation is one planned git operation with its arguments.
type Operation struct {
	Kind      OpKind
	RemoteURL string
	Mode      registry.Mode
	Patterns  []string
	Revision  string
}

func (o Operation) String() string {
	switch o.Kind {
	case OpAddSubmodule:
		return fmt.Sprintf("%s %s", o.Kind, o.RemoteURL)
	case OpInitSparseCheckout:
		return fmt.Sprintf("%s --%s", o.Kind, o.Mode)
	case OpSetSparsePatterns:
		return fmt.Sprintf("%s [%s]", o.Kind, strings.Join(o.Patterns, ", "))
	case OpCheckoutRevision:
		return fmt.Sprintf("%s %s", o.Kind, o.Revision)
	default:
		return string(o.Kind)
	}
}

// Plan is the ordered operation sequence that converges one entry. It is
// owned by a single reconciliation call and discarded after application.
type Plan struct {
	Operations []Operation
}

// IsNoop reports whether the entry is already converged.
func (p Plan) IsNoop() bool {
	return len(p.Operations) == 0
}

func (p Plan) String() string {
	if p.IsNoop() {
		return "noop"
	}
	parts := make([]string, len(p.Operations))
	for i, op := range p.Operations {
		parts[i] = op.String()
	}
	return strings.Join(parts, "; ")
}
