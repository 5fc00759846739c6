package reconciler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/refsync/pkg/gitrepo"
	"github.com/jingkaihe/refsync/pkg/registry"
)

// fakeRepo scripts one path's observed states and failures.
type fakeRepo struct {
	// states are consumed one per Inspect call; the last one repeats.
	states   []gitrepo.WorkingTreeState
	stateIdx int
	failKind map[OpKind]error
	resolve  map[string]string
}

type fakeGateway struct {
	mu    sync.Mutex
	repos map[string]*fakeRepo
	ops   []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{repos: make(map[string]*fakeRepo)}
}

func (g *fakeGateway) repo(path string) *fakeRepo {
	r, ok := g.repos[path]
	if !ok {
		r = &fakeRepo{}
		g.repos[path] = r
	}
	return r
}

func (g *fakeGateway) record(format string, args ...any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, fmt.Sprintf(format, args...))
}

func (g *fakeGateway) fail(path string, kind OpKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.repos[path]; ok && r.failKind != nil {
		return r.failKind[kind]
	}
	return nil
}

func (g *fakeGateway) Inspect(_ context.Context, localPath string) (gitrepo.WorkingTreeState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.repos[localPath]
	if !ok || len(r.states) == 0 {
		return gitrepo.WorkingTreeState{}, nil
	}
	st := r.states[r.stateIdx]
	if r.stateIdx < len(r.states)-1 {
		r.stateIdx++
	}
	return st, nil
}

func (g *fakeGateway) AddSubmodule(_ context.Context, localPath, remoteURL string) error {
	if err := g.fail(localPath, OpAddSubmodule); err != nil {
		return err
	}
	g.record("add %s %s", localPath, remoteURL)
	return nil
}

func (g *fakeGateway) InitSparseCheckout(_ context.Context, localPath string, mode registry.Mode) error {
	if err := g.fail(localPath, OpInitSparseCheckout); err != nil {
		return err
	}
	g.record("init %s %s", localPath, mode)
	return nil
}

func (g *fakeGateway) SetSparsePatterns(_ context.Context, localPath string, patterns []string) error {
	if err := g.fail(localPath, OpSetSparsePatterns); err != nil {
		return err
	}
	g.record("set %s %v", localPath, patterns)
	return nil
}

func (g *fakeGateway) CheckoutRevision(_ context.Context, localPath, revision string) error {
	if err := g.fail(localPath, OpCheckoutRevision); err != nil {
		return err
	}
	g.record("checkout %s %s", localPath, revision)
	return nil
}

func (g *fakeGateway) ResolveRevisionLocal(_ context.Context, localPath, revision string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.repos[localPath]; ok && r.resolve != nil {
		if sha, ok := r.resolve[revision]; ok {
			return sha, nil
		}
	}
	return "", &gitrepo.RevisionNotFoundError{Path: localPath, Revision: revision}
}

func entryFixture() registry.ReferenceEntry {
	return registry.ReferenceEntry{
		SkillName:    "docs",
		LocalPath:    "skills/docs/sources/docs",
		RemoteURL:    "https://example.com/docs.git",
		DesiredPaths: []string{"/README.md", "/api/"},
		Mode:         registry.ModeNoCone,
	}
}

func convergedState(entry registry.ReferenceEntry) gitrepo.WorkingTreeState {
	return gitrepo.WorkingTreeState{
		IsGitRepository:       true,
		SparseCheckoutEnabled: true,
		SparseMode:            entry.EffectiveMode(),
		CurrentPatterns:       entry.DesiredPaths,
		SizeBytes:             4096,
		MaterializedFiles:     3,
		HeadRevision:          "0123456789abcdef0123456789abcdef01234567",
	}
}

func TestReconcileNoopIssuesNoMutatingCalls(t *testing.T) {
	entry := entryFixture()
	gw := newFakeGateway()
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{convergedState(entry)}

	report := New(gw).Reconcile(context.Background(), entry)
	assert.Equal(t, OutcomeNoop, report.Outcome)
	assert.Empty(t, gw.ops)
	assert.Equal(t, report.BytesBefore, report.BytesAfter)
}

func TestReconcileFreshPath(t *testing.T) {
	entry := entryFixture()
	gw := newFakeGateway()
	after := convergedState(entry)
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{
		{},    // before: nothing on disk
		after, // after apply
	}

	report := New(gw).Reconcile(context.Background(), entry)
	require.Equal(t, OutcomeConverged, report.Outcome)
	assert.Equal(t, []string{
		"add skills/docs/sources/docs https://example.com/docs.git",
		"init skills/docs/sources/docs no-cone",
		"set skills/docs/sources/docs [/README.md /api/]",
	}, gw.ops)
	assert.Equal(t, int64(0), report.BytesBefore)
	assert.Equal(t, int64(4096), report.BytesAfter)
	assert.Empty(t, report.Warning)
}

func TestReconcileFreshPathWithPin(t *testing.T) {
	entry := entryFixture()
	entry.PinnedRevision = "v2.1.0"
	gw := newFakeGateway()
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{{}, convergedState(entry)}

	report := New(gw).Reconcile(context.Background(), entry)
	require.Equal(t, OutcomeConverged, report.Outcome)
	require.Len(t, gw.ops, 4)
	assert.Equal(t, "checkout skills/docs/sources/docs v2.1.0", gw.ops[3])
}

func TestReconcileReplacesPatternSetWholesale(t *testing.T) {
	entry := registry.ReferenceEntry{
		SkillName:    "docs",
		LocalPath:    "sources/docs",
		RemoteURL:    "https://example.com/docs.git",
		DesiredPaths: []string{"B/", "C/"},
		Mode:         registry.ModeCone,
	}
	gw := newFakeGateway()
	before := convergedState(entry)
	before.CurrentPatterns = []string{"A", "B"} // cone list output: bare dirs
	after := convergedState(entry)
	after.CurrentPatterns = []string{"B", "C"}
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{before, after}

	report := New(gw).Reconcile(context.Background(), entry)
	require.Equal(t, OutcomeConverged, report.Outcome)
	assert.Equal(t, []string{"set sources/docs [B/ C/]"}, gw.ops)
}

func TestReconcileConePatternsMatchDespiteTrailingSlash(t *testing.T) {
	entry := registry.ReferenceEntry{
		SkillName:    "docs",
		LocalPath:    "sources/docs",
		RemoteURL:    "https://example.com/docs.git",
		DesiredPaths: []string{"docs/", "api/"},
		Mode:         registry.ModeCone,
	}
	gw := newFakeGateway()
	st := convergedState(entry)
	st.CurrentPatterns = []string{"docs", "api"}
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{st}

	report := New(gw).Reconcile(context.Background(), entry)
	assert.Equal(t, OutcomeNoop, report.Outcome)
	assert.Empty(t, gw.ops)
}

func TestReconcileModeChangeReinitializes(t *testing.T) {
	entry := registry.ReferenceEntry{
		SkillName:    "docs",
		LocalPath:    "sources/docs",
		RemoteURL:    "https://example.com/docs.git",
		DesiredPaths: []string{"docs/"},
		Mode:         registry.ModeCone,
	}
	gw := newFakeGateway()
	before := convergedState(entry)
	before.SparseMode = registry.ModeNoCone
	before.CurrentPatterns = []string{"/README.md", "/docs/"}
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{before, convergedState(entry)}

	report := New(gw).Reconcile(context.Background(), entry)
	require.Equal(t, OutcomeConverged, report.Outcome)
	assert.Equal(t, []string{
		"init sources/docs cone",
		"set sources/docs [docs/]",
	}, gw.ops)
}

func TestPlanRejectsPatternsInvalidForMode(t *testing.T) {
	entry := registry.ReferenceEntry{
		SkillName:    "docs",
		LocalPath:    "sources/docs",
		RemoteURL:    "https://example.com/docs.git",
		DesiredPaths: []string{"/README.md", "/src/"},
		Mode:         registry.ModeCone, // declared patterns are no-cone syntax
	}
	gw := newFakeGateway()

	_, _, err := New(gw).Plan(context.Background(), entry)
	var synErr *registry.PatternSyntaxError
	require.ErrorAs(t, err, &synErr)

	report := New(gw).Reconcile(context.Background(), entry)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Empty(t, gw.ops)
}

func TestReconcilePinnedRevisionDrift(t *testing.T) {
	entry := entryFixture()
	entry.PinnedRevision = "v1.8.0"
	gw := newFakeGateway()
	r := gw.repo(entry.LocalPath)
	r.states = []gitrepo.WorkingTreeState{convergedState(entry), convergedState(entry)}
	r.resolve = map[string]string{"v1.8.0": "fedcba9876543210fedcba9876543210fedcba98"}

	report := New(gw).Reconcile(context.Background(), entry)
	require.Equal(t, OutcomeConverged, report.Outcome)
	assert.Equal(t, []string{"checkout skills/docs/sources/docs v1.8.0"}, gw.ops)
}

func TestPlanTreatsLocallyUnknownPinAsDrift(t *testing.T) {
	entry := entryFixture()
	entry.PinnedRevision = "v9.9.9" // not in the local object database
	gw := newFakeGateway()
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{convergedState(entry)}

	plan, _, err := New(gw).Plan(context.Background(), entry)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, OpCheckoutRevision, plan.Operations[0].Kind)
	assert.Equal(t, "v9.9.9", plan.Operations[0].Revision)

	// Planning must not mutate; the fetch happens at checkout time.
	assert.Empty(t, gw.ops)
}

func TestReconcilePinnedAbbreviatedShaMatchesHead(t *testing.T) {
	entry := entryFixture()
	entry.PinnedRevision = "01234567" // prefix of the fixture HEAD
	gw := newFakeGateway()
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{convergedState(entry)}

	report := New(gw).Reconcile(context.Background(), entry)
	assert.Equal(t, OutcomeNoop, report.Outcome)
	assert.Empty(t, gw.ops)
}

func TestReconcileAbortsOnFirstFailureAndReportsPrefix(t *testing.T) {
	entry := entryFixture()
	gw := newFakeGateway()
	r := gw.repo(entry.LocalPath)
	r.states = []gitrepo.WorkingTreeState{{}}
	r.failKind = map[OpKind]error{
		OpSetSparsePatterns: &registry.PatternSyntaxError{Pattern: "/api/", Mode: registry.ModeNoCone, Reason: "rejected"},
	}

	report := New(gw).Reconcile(context.Background(), entry)
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.Len(t, report.Planned, 3)
	require.Len(t, report.Applied, 2)
	assert.Equal(t, OpAddSubmodule, report.Applied[0].Kind)
	assert.Equal(t, OpInitSparseCheckout, report.Applied[1].Kind)

	var synErr *registry.PatternSyntaxError
	require.ErrorAs(t, report.Err, &synErr)
}

func TestReconcileWarnsWhenPatternsMatchNoFiles(t *testing.T) {
	entry := entryFixture()
	gw := newFakeGateway()
	after := convergedState(entry)
	after.MaterializedFiles = 0
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{{}, after}

	report := New(gw).Reconcile(context.Background(), entry)
	require.Equal(t, OutcomeConverged, report.Outcome)
	assert.Contains(t, report.Warning, "matched no files")
}

func TestReconcileAllIsolatesFailures(t *testing.T) {
	gw := newFakeGateway()

	var entries []registry.ReferenceEntry
	for i := 1; i <= 3; i++ {
		entry := entryFixture()
		entry.SkillName = fmt.Sprintf("skill%d", i)
		entry.LocalPath = fmt.Sprintf("sources/repo%d", i)
		entries = append(entries, entry)
		gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{{}, convergedState(entry)}
	}
	gw.repo("sources/repo2").failKind = map[OpKind]error{
		OpAddSubmodule: &gitrepo.PathOccupiedError{Path: "sources/repo2"},
	}

	reports := New(gw).ReconcileAll(context.Background(), entries, 2)
	require.Len(t, reports, 3)
	assert.Equal(t, OutcomeConverged, reports[0].Outcome)
	assert.Equal(t, OutcomeFailed, reports[1].Outcome)
	assert.Equal(t, OutcomeConverged, reports[2].Outcome)

	var occupied *gitrepo.PathOccupiedError
	require.ErrorAs(t, reports[1].Err, &occupied)
	assert.True(t, AnyFailed(reports))
}

func TestReconcileAllHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry := entryFixture()
	gw := newFakeGateway()
	gw.repo(entry.LocalPath).states = []gitrepo.WorkingTreeState{{}}

	reports := New(gw).ReconcileAll(ctx, []registry.ReferenceEntry{entry}, 1)
	require.Len(t, reports, 1)
	assert.Equal(t, OutcomeFailed, reports[0].Outcome)
	assert.ErrorIs(t, reports[0].Err, context.Canceled)
	assert.Empty(t, gw.ops)
}

func TestPlanString(t *testing.T) {
	assert.Equal(t, "noop", Plan{}.String())

	plan := Plan{Operations: []Operation{
		{Kind: OpAddSubmodule, RemoteURL: "https://example.com/docs.git"},
		{Kind: OpSetSparsePatterns, Patterns: []string{"/README.md"}},
	}}
	assert.Equal(t, "add-submodule https://example.com/docs.git; sparse-checkout-set [/README.md]", plan.String())
}
