package gitrepo

import (
	"errors"
	"fmt"
)

// Sentinel errors. Each is also classified through apperr by the
// operation that returns it.
var (
	// ErrNothingToCommit is returned when the worktree has no changes
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrBranchExists is returned when creating a branch that already exists
	ErrBranchExists = errors.New("branch already exists")

	// ErrBranchMissing is returned when a named branch does not exist
	ErrBranchMissing = errors.New("branch does not exist")

	// ErrMergeConflict is returned when a merge touches the same path on
	// both sides with different content
	ErrMergeConflict = errors.New("merge conflict")

	// ErrNotInitialized is returned by Open when the directory has no repository
	ErrNotInitialized = errors.New("repository not initialized")
)

func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
