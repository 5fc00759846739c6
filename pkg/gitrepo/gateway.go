// Package gitrepo wraps the git binary to mutate and inspect submodule
// working trees. Every logical operation maps to one public method, exit
// statuses come back as typed errors, and all operations on one path are
// serialized behind a per-path lock. Operations that run in the
// superproject itself additionally hold a superproject-level lock, since
// they all contend for the one .git/index there.
package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jingkaihe/refsync/pkg/logger"
	"github.com/jingkaihe/refsync/pkg/registry"
	"github.com/jingkaihe/refsync/pkg/sizeaudit"
)

// DefaultOperationTimeout bounds each git subprocess. Network operations
// (submodule add, fetch) are the ones that would otherwise hang.
const DefaultOperationTimeout = 5 * time.Minute

// Gateway issues git operations against submodule paths under one
// superproject root.
type Gateway struct {
	repoRoot string
	run      Runner
	locks    *pathLocks
}

// Option configures a Gateway.
type Option func(*gatewayConfig)

type gatewayConfig struct {
	timeout time.Duration
	runner  Runner
}

// WithTimeout overrides the per-operation subprocess timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *gatewayConfig) {
		c.timeout = d
	}
}

// WithRunner substitutes the subprocess runner; used by tests.
func WithRunner(r Runner) Option {
	return func(c *gatewayConfig) {
		c.runner = r
	}
}

// New creates a Gateway rooted at the superproject directory that owns the
// declared submodule paths.
func New(repoRoot string, opts ...Option) (*Gateway, error) {
	cfg := gatewayConfig{timeout: DefaultOperationTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve repository root %s", repoRoot)
	}

	run := cfg.runner
	if run == nil {
		run, err = newExecRunner(cfg.timeout)
		if err != nil {
			return nil, errors.Wrap(err, "no 'git' program on path")
		}
	}

	return &Gateway{
		repoRoot: absRoot,
		run:      run,
		locks:    newPathLocks(filepath.Join(absRoot, ".git", "refsync", "locks")),
	}, nil
}

// RepoRoot returns the superproject root the gateway operates under.
func (g *Gateway) RepoRoot() string {
	return g.repoRoot
}

func (g *Gateway) abs(localPath string) string {
	return filepath.Join(g.repoRoot, filepath.FromSlash(localPath))
}

func slashPath(localPath string) string {
	return filepath.ToSlash(filepath.Clean(localPath))
}

func (g *Gateway) opLogger(ctx context.Context, op, localPath string) *logrus.Entry {
	return logger.G(ctx).WithFields(logrus.Fields{
		"operation": op,
		"path":      localPath,
	})
}

// Inspect captures the current state of one submodule path. It never fails
// for a missing path; that is reported as IsGitRepository=false.
func (g *Gateway) Inspect(ctx context.Context, localPath string) (WorkingTreeState, error) {
	release, err := g.locks.acquire(ctx, g.abs(localPath))
	if err != nil {
		return WorkingTreeState{}, err
	}
	defer release()

	return g.inspectLocked(ctx, localPath)
}

func (g *Gateway) inspectLocked(ctx context.Context, localPath string) (WorkingTreeState, error) {
	abs := g.abs(localPath)

	var st WorkingTreeState
	st.SizeBytes, _ = sizeaudit.Measure(abs)
	st.MaterializedFiles, _ = sizeaudit.CountWorktreeFiles(abs)

	if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
		return st, nil
	}
	if !g.isRepo(ctx, abs) {
		return st, nil
	}
	st.IsGitRepository = true

	if out, err := g.run.Run(ctx, abs, "", "config", "--bool", "core.sparseCheckout"); err == nil &&
		strings.TrimSpace(out.Stdout) == "true" {
		st.SparseCheckoutEnabled = true
	}

	if st.SparseCheckoutEnabled {
		st.SparseMode = registry.ModeNoCone
		if out, err := g.run.Run(ctx, abs, "", "config", "--bool", "core.sparseCheckoutCone"); err == nil &&
			strings.TrimSpace(out.Stdout) == "true" {
			st.SparseMode = registry.ModeCone
		}

		out, err := g.run.Run(ctx, abs, "", "sparse-checkout", "list")
		if err != nil {
			var timedOut *OperationTimedOutError
			if errors.As(err, &timedOut) {
				return st, err
			}
			// a repo with sparse-checkout enabled but no pattern file yet
		} else {
			for _, line := range strings.Split(out.Stdout, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				st.CurrentPatterns = append(st.CurrentPatterns, line)
			}
		}
	}

	if out, err := g.run.Run(ctx, abs, "", "rev-parse", "HEAD"); err == nil {
		st.HeadRevision = strings.TrimSpace(out.Stdout)
	}

	return st, nil
}

func (g *Gateway) isRepo(ctx context.Context, dir string) bool {
	_, err := g.run.Run(ctx, dir, "", "rev-parse", "--git-dir")
	return err == nil
}

func (g *Gateway) requireRepo(ctx context.Context, localPath string) error {
	if !g.isRepo(ctx, g.abs(localPath)) {
		return &NotAGitRepositoryError{Path: localPath}
	}
	return nil
}

// AddSubmodule registers and clones the remote as a submodule at localPath.
// It succeeds idempotently when the path already holds the same submodule
// and fails with PathOccupiedError when something else lives there.
func (g *Gateway) AddSubmodule(ctx context.Context, localPath, remoteURL string) error {
	release, err := g.locks.acquire(ctx, g.abs(localPath))
	if err != nil {
		return err
	}
	defer release()

	abs := g.abs(localPath)
	log := g.opLogger(ctx, "add-submodule", localPath)

	if fi, err := os.Stat(abs); err == nil && fi.IsDir() {
		if g.isRepo(ctx, abs) {
			if g.declaredURL(ctx, localPath) == remoteURL {
				log.Debug("submodule already present with matching URL")
				return nil
			}
			return &PathOccupiedError{Path: localPath}
		}
		entries, err := os.ReadDir(abs)
		if err == nil && len(entries) > 0 {
			return &PathOccupiedError{Path: localPath}
		}
	}

	// submodule add rewrites the superproject's .gitmodules and index, which
	// git guards with a single index.lock. Concurrent adds for different
	// paths would trip over each other there, so the superproject lock is
	// held in addition to the path lock. Path lock first, then root lock,
	// everywhere.
	releaseRoot, err := g.locks.acquire(ctx, g.repoRoot)
	if err != nil {
		return err
	}
	defer releaseRoot()

	log.WithField("url", remoteURL).Info("adding submodule")
	if _, err := g.run.Run(ctx, g.repoRoot, "", "submodule", "add", remoteURL, slashPath(localPath)); err != nil {
		return err
	}
	return nil
}

func (g *Gateway) declaredURL(ctx context.Context, localPath string) string {
	out, err := g.run.Run(ctx, g.repoRoot, "",
		"config", "-f", ".gitmodules", "--get", "submodule."+slashPath(localPath)+".url")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out.Stdout)
}

// InitSparseCheckout enables sparse-checkout at localPath in the given mode.
// Re-initializing with the same mode is a no-op for git.
func (g *Gateway) InitSparseCheckout(ctx context.Context, localPath string, mode registry.Mode) error {
	release, err := g.locks.acquire(ctx, g.abs(localPath))
	if err != nil {
		return err
	}
	defer release()

	if err := g.requireRepo(ctx, localPath); err != nil {
		return err
	}
	return g.initSparseLocked(ctx, localPath, mode)
}

func (g *Gateway) initSparseLocked(ctx context.Context, localPath string, mode registry.Mode) error {
	g.opLogger(ctx, "sparse-checkout-init", localPath).WithField("mode", mode).Info("initializing sparse-checkout")

	coneFlag := "--cone"
	if mode == registry.ModeNoCone {
		coneFlag = "--no-cone"
	}
	_, err := g.run.Run(ctx, g.abs(localPath), "", "sparse-checkout", "init", coneFlag)
	return err
}

// SetSparsePatterns replaces the full pattern set at localPath. The set is
// always replaced wholesale; incremental patching would let stale patterns
// resurrect previously removed paths.
func (g *Gateway) SetSparsePatterns(ctx context.Context, localPath string, patterns []string) error {
	release, err := g.locks.acquire(ctx, g.abs(localPath))
	if err != nil {
		return err
	}
	defer release()

	if err := g.requireRepo(ctx, localPath); err != nil {
		return err
	}
	return g.setPatternsLocked(ctx, localPath, patterns)
}

func (g *Gateway) setPatternsLocked(ctx context.Context, localPath string, patterns []string) error {
	g.opLogger(ctx, "sparse-checkout-set", localPath).WithField("patterns", patterns).Info("replacing sparse-checkout patterns")

	stdin := strings.Join(patterns, "\n") + "\n"
	_, err := g.run.Run(ctx, g.abs(localPath), stdin, "sparse-checkout", "set", "--stdin")
	if err != nil {
		var execErr *GitExecError
		if errors.As(err, &execErr) && strings.Contains(execErr.Stderr, "pattern") {
			return &registry.PatternSyntaxError{
				Pattern: offendingPattern(execErr.Stderr, patterns),
				Mode:    g.currentMode(ctx, localPath),
				Reason:  strings.TrimSpace(execErr.Stderr),
			}
		}
		return err
	}
	return nil
}

// offendingPattern picks the declared pattern git complained about, falling
// back to the first one when stderr names none of them.
func offendingPattern(stderr string, patterns []string) string {
	for _, p := range patterns {
		if strings.Contains(stderr, p) {
			return p
		}
	}
	if len(patterns) > 0 {
		return patterns[0]
	}
	return ""
}

func (g *Gateway) currentMode(ctx context.Context, localPath string) registry.Mode {
	if out, err := g.run.Run(ctx, g.abs(localPath), "", "config", "--bool", "core.sparseCheckoutCone"); err == nil &&
		strings.TrimSpace(out.Stdout) == "true" {
		return registry.ModeCone
	}
	return registry.ModeNoCone
}

// ResolveRevisionLocal resolves a revision (branch, tag, full or abbreviated
// SHA) against the local object database only. It never touches the network;
// a revision unknown locally yields RevisionNotFoundError. Inspection paths
// use this so that planning and verification stay free of side effects.
func (g *Gateway) ResolveRevisionLocal(ctx context.Context, localPath, revision string) (string, error) {
	release, err := g.locks.acquire(ctx, g.abs(localPath))
	if err != nil {
		return "", err
	}
	defer release()

	if err := g.requireRepo(ctx, localPath); err != nil {
		return "", err
	}

	sha, err := g.verifyLocked(ctx, localPath, revision)
	if err != nil {
		return "", &RevisionNotFoundError{Path: localPath, Revision: revision}
	}
	return sha, nil
}

func (g *Gateway) verifyLocked(ctx context.Context, localPath, revision string) (string, error) {
	out, err := g.run.Run(ctx, g.abs(localPath), "", "rev-parse", "--verify", revision+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout), nil
}

// resolveLocked resolves a revision to a full commit SHA, fetching from
// origin once if the first attempt fails. Only apply-time operations may use
// it; a fetch writes objects and remote refs into the submodule's .git.
func (g *Gateway) resolveLocked(ctx context.Context, localPath, revision string) (string, error) {
	if sha, err := g.verifyLocked(ctx, localPath, revision); err == nil {
		return sha, nil
	}

	g.opLogger(ctx, "fetch", localPath).Info("revision not known locally, fetching origin")
	if _, err := g.run.Run(ctx, g.abs(localPath), "", "fetch", "origin"); err != nil {
		return "", err
	}

	sha, err := g.verifyLocked(ctx, localPath, revision)
	if err != nil {
		return "", &RevisionNotFoundError{Path: localPath, Revision: revision}
	}
	return sha, nil
}

// CheckoutRevision moves the submodule's detached HEAD to the given
// revision, fetching if needed.
func (g *Gateway) CheckoutRevision(ctx context.Context, localPath, revision string) error {
	release, err := g.locks.acquire(ctx, g.abs(localPath))
	if err != nil {
		return err
	}
	defer release()

	if err := g.requireRepo(ctx, localPath); err != nil {
		return err
	}

	sha, err := g.resolveLocked(ctx, localPath, revision)
	if err != nil {
		return err
	}

	g.opLogger(ctx, "checkout", localPath).WithField("revision", sha).Info("checking out revision")
	_, err = g.run.Run(ctx, g.abs(localPath), "", "checkout", "--detach", sha)
	return err
}

// DisableSparseCheckout materializes the full tree at localPath. This can be
// very large; callers are expected to pair it with Reapply.
func (g *Gateway) DisableSparseCheckout(ctx context.Context, localPath string) error {
	release, err := g.locks.acquire(ctx, g.abs(localPath))
	if err != nil {
		return err
	}
	defer release()

	if err := g.requireRepo(ctx, localPath); err != nil {
		return err
	}

	g.opLogger(ctx, "sparse-checkout-disable", localPath).Warn("disabling sparse-checkout: the FULL tree will be materialized")
	_, err = g.run.Run(ctx, g.abs(localPath), "", "sparse-checkout", "disable")
	return err
}

// Reapply restores a pattern set after a DisableSparseCheckout and forces a
// working-tree refresh so files outside the set are pruned again.
func (g *Gateway) Reapply(ctx context.Context, localPath string, mode registry.Mode, patterns []string) error {
	release, err := g.locks.acquire(ctx, g.abs(localPath))
	if err != nil {
		return err
	}
	defer release()

	if err := g.requireRepo(ctx, localPath); err != nil {
		return err
	}
	if err := g.initSparseLocked(ctx, localPath, mode); err != nil {
		return err
	}
	if err := g.setPatternsLocked(ctx, localPath, patterns); err != nil {
		return err
	}

	g.opLogger(ctx, "read-tree", localPath).Info("refreshing working tree against restored patterns")
	_, err = g.run.Run(ctx, g.abs(localPath), "", "read-tree", "-mu", "HEAD")
	return err
}

// Deinit removes the submodule's registration, gitlink and working
// directory. It is destructive and not undoable here, so it demands a
// confirmation token from ConfirmDeinit.
func (g *Gateway) Deinit(ctx context.Context, localPath string, confirm DeinitConfirmation) error {
	if !confirm.Confirmed() {
		return ErrDeinitNotConfirmed
	}

	release, err := g.locks.acquire(ctx, g.abs(localPath))
	if err != nil {
		return err
	}
	defer release()

	// deinit and rm mutate the superproject index, same as submodule add.
	releaseRoot, err := g.locks.acquire(ctx, g.repoRoot)
	if err != nil {
		return err
	}
	defer releaseRoot()

	sp := slashPath(localPath)
	log := g.opLogger(ctx, "deinit", localPath)
	log.Warn("removing submodule registration and working directory")

	if _, err := g.run.Run(ctx, g.repoRoot, "", "submodule", "deinit", "-f", sp); err != nil {
		return err
	}
	if _, err := g.run.Run(ctx, g.repoRoot, "", "rm", "-f", sp); err != nil {
		return err
	}

	// A stale .git/modules entry would make a later submodule add refuse to
	// reuse the path.
	modulesDir := filepath.Join(g.repoRoot, ".git", "modules", filepath.FromSlash(sp))
	if err := os.RemoveAll(modulesDir); err != nil {
		return errors.Wrapf(err, "failed to remove module git dir %s", modulesDir)
	}
	return nil
}
