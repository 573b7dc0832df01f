// errors

package gitgraft

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrRefNotFound indicates a since/until ref failed to resolve to a commit.
	ErrRefNotFound = errors.New("ref not found")
	// ErrInvalidRange indicates the since ref is not an ancestor of the until ref.
	ErrInvalidRange = errors.New("since is not an ancestor of until")
	// ErrUnsupportedMergeCommit indicates a commit with more than one parent
	// inside the requested range. Replay semantics for merges are undefined.
	ErrUnsupportedMergeCommit = errors.New("merge commit in range")
	// ErrUnsupportedSubmodule indicates a commit in the range touches a git
	// submodule entry, which has no blob content to replay.
	ErrUnsupportedSubmodule = errors.New("submodule entries are not supported")
	// ErrInvalidFilterPattern indicates a filter regular expression failed to compile.
	ErrInvalidFilterPattern = errors.New("invalid filter pattern")
	// ErrDiffComputation indicates the source object store could not produce
	// the tree diff for a commit. Fatal, the source repository is suspect.
	ErrDiffComputation = errors.New("diff computation failed")
	// ErrUnresolvedConflict indicates a resume was attempted while a recorded
	// conflict still has marker lines in the target working tree.
	ErrUnresolvedConflict = errors.New("conflict not resolved")
	// ErrDirtyWorktree indicates the target working tree has local changes.
	ErrDirtyWorktree = errors.New("target working tree has local changes")
	// ErrRunInProgress indicates a state file for another run already exists.
	ErrRunInProgress = errors.New("a transplant run is already in progress")
	// ErrCommitWrite indicates the target commit object could not be written.
	ErrCommitWrite = errors.New("commit write failed")
	// ErrStateWrite indicates the progress state file could not be written.
	ErrStateWrite = errors.New("state write failed")
	// ErrLedgerDiverged indicates the ledger already records a queued commit as
	// applied, so the state file and the ledger disagree.
	ErrLedgerDiverged = errors.New("state file and ledger diverged")
	// ErrNilRepo indicates an operation on a nil repository handle.
	ErrNilRepo = errors.New("nil repo")
	// ErrBranchMismatch indicates the target HEAD is not on the configured branch.
	ErrBranchMismatch = errors.New("target HEAD is not on the configured branch")
)

// ConflictError reports the commit that failed to apply and the paths whose
// target content diverged from what the source commit's parent had.
type ConflictError struct {
	Commit plumbing.Hash
	Paths  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"commit %s conflicts on: %s",
		e.Commit, strings.Join(e.Paths, ", "))
}

// AsConflict unwraps err into a [ConflictError] if it is one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
