package reconciler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/refsync/pkg/registry"
)

// DefaultWorkers bounds batch concurrency. Each entry owns a distinct
// working tree, so entries can run in parallel; the work is dominated by
// blocking subprocess and network I/O, not CPU.
const DefaultWorkers = 4

// ReconcileAll converges a batch of entries with a bounded worker pool.
// Per-entry failures land in that entry's report and never stop the others.
// Cancellation is cooperative: it is checked before an entry starts, never
// mid-entry, so no single working tree is left half-converged by a cancel.
// Reports come back in input order.
func (r *Reconciler) ReconcileAll(ctx context.Context, entries []registry.ReferenceEntry, workers int) []Report {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	reports := make([]Report, len(entries))

	group := &errgroup.Group{}
	group.SetLimit(workers)
	for i, entry := range entries {
		i, entry := i, entry
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				reports[i] = Report{Entry: entry, Outcome: OutcomeFailed, Err: err}
				return nil
			}
			reports[i] = r.Reconcile(ctx, entry)
			return nil
		})
	}
	_ = group.Wait()

	return reports
}
