package gitrepo

import (
	"fmt"
	"strings"
)

// GitExecError is the catch-all for a git subprocess exiting non-zero. It
// carries the exact arguments and captured stderr so a failing operation can
// be reproduced by hand.
type GitExecError struct {
	Args   []string
	Err    error
	Stdout string
	Stderr string
}

func (e *GitExecError) Error() string {
	b := new(strings.Builder)
	b.WriteString("git ")
	b.WriteString(strings.Join(e.Args, " "))
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Stderr != "" {
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(e.Stderr))
	}
	return b.String()
}

func (e *GitExecError) Unwrap() error {
	return e.Err
}

// PathOccupiedError reports that a local path exists, is non-empty, and is
// not already the declared submodule.
type PathOccupiedError struct {
	Path string
}

func (e *PathOccupiedError) Error() string {
	return fmt.Sprintf("path %s is occupied by something that is not the declared submodule", e.Path)
}

// NotAGitRepositoryError reports an operation that requires an initialized
// submodule working tree at a path that has none.
type NotAGitRepositoryError struct {
	Path string
}

func (e *NotAGitRepositoryError) Error() string {
	return fmt.Sprintf("path %s is not a git repository", e.Path)
}

// RevisionNotFoundError reports a revision that could not be resolved even
// after fetching from the remote.
type RevisionNotFoundError struct {
	Path     string
	Revision string
}

func (e *RevisionNotFoundError) Error() string {
	return fmt.Sprintf("revision %q not found in %s", e.Revision, e.Path)
}

// OperationTimedOutError reports a git subprocess that was killed after
// exceeding its timeout. Network operations (submodule add, fetch) are the
// usual culprits.
type OperationTimedOutError struct {
	Path string
	Args []string
}

func (e *OperationTimedOutError) Error() string {
	return fmt.Sprintf("git %s timed out at %s", strings.Join(e.Args, " "), e.Path)
}

// deinitNotConfirmedError is the concrete type behind ErrDeinitNotConfirmed.
type deinitNotConfirmedError struct{}

func (deinitNotConfirmedError) Error() string {
	return "deinit is destructive and requires an explicit confirmation token"
}

// ErrDeinitNotConfirmed is returned when Deinit is called without a
// confirmation token obtained from ConfirmDeinit.
var ErrDeinitNotConfirmed error = deinitNotConfirmedError{}

// DeinitConfirmation is the capability required by Deinit. The zero value
// refuses; the only way to obtain a confirming value is ConfirmDeinit, which
// keeps destructive calls an explicit decision at every call site.
type DeinitConfirmation struct {
	confirmed bool
}

// ConfirmDeinit returns a confirmation token authorizing a destructive
// deinit.
func ConfirmDeinit() DeinitConfirmation {
	return DeinitConfirmation{confirmed: true}
}

// Confirmed reports whether the token authorizes the operation.
func (c DeinitConfirmation) Confirmed() bool {
	return c.confirmed
}
