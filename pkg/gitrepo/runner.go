package gitrepo

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// RunResult captures a git subprocess's output.
type RunResult struct {
	Stdout string
	Stderr string
}

// Runner executes one git command in a directory. The production runner
// shells out to the git binary; tests substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, dir string, stdin string, args ...string) (RunResult, error)
}

// execRunner runs git commands through os/exec with a per-command timeout.
type execRunner struct {
	gitPath string
	timeout time.Duration
}

func newExecRunner(timeout time.Duration) (*execRunner, error) {
	p, err := exec.LookPath("git")
	if err != nil {
		return nil, err
	}
	return &execRunner{gitPath: p, timeout: timeout}, nil
}

func (r *execRunner) Run(ctx context.Context, dir string, stdin string, args ...string) (RunResult, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.gitPath, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	cmdStdout := &bytes.Buffer{}
	cmdStderr := &bytes.Buffer{}
	cmd.Stdout = cmdStdout
	cmd.Stderr = cmdStderr

	err := cmd.Run()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return RunResult{}, &OperationTimedOutError{Path: dir, Args: args}
		}
		return RunResult{}, &GitExecError{
			Args:   args,
			Err:    err,
			Stdout: cmdStdout.String(),
			Stderr: cmdStderr.String(),
		}
	}
	return RunResult{
		Stdout: cmdStdout.String(),
		Stderr: cmdStderr.String(),
	}, nil
}
