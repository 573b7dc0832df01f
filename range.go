package gitgraft

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// ResolveRange walks the ancestry from until back to since and returns the
// commits strictly after since up to and including until, oldest first.
//
//   - since is exclusive, until inclusive. An empty since means the whole
//     history up to until.
//   - Both refs must resolve ([ErrRefNotFound]) and since must be an ancestor
//     of until ([ErrInvalidRange]).
//   - Only linear history is supported: a commit with more than one parent on
//     the walked path fails with [ErrUnsupportedMergeCommit], replay semantics
//     for merges are undefined here.
//
// Pure read, no side effects on either repository.
func ResolveRange(ctx context.Context, repo *Repo, sinceRef, untilRef string) ([]*object.Commit, error) {
	until, err := repo.ResolveRef(untilRef)
	if err != nil {
		return nil, err
	}

	var since *object.Commit
	if sinceRef != "" {
		since, err = repo.ResolveRef(sinceRef)
		if err != nil {
			return nil, err
		}

		if since.Hash == until.Hash {
			return nil, nil
		}

		isancestor, err := since.IsAncestor(until)
		if err != nil {
			return nil, fmt.Errorf("failed to check ancestry of %s and %s: %w", since.Hash, until.Hash, err)
		}
		if !isancestor {
			return nil, fmt.Errorf("%w: %s (%s) and %s (%s)", ErrInvalidRange, sinceRef, since.Hash, untilRef, until.Hash)
		}
	}

	backward := make([]*object.Commit, 0)
	current := until

walkloop:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if since != nil && current.Hash == since.Hash {
			break walkloop
		}

		if current.NumParents() > 1 {
			return nil, fmt.Errorf("%w: %s has %d parents", ErrUnsupportedMergeCommit, current.Hash, current.NumParents())
		}

		backward = append(backward, current)

		if current.NumParents() == 0 {
			if since != nil {
				// IsAncestor passed, so a linear walk must reach since.
				return nil, fmt.Errorf("%w: walked past root without reaching %s", ErrInvalidRange, since.Hash)
			}
			break walkloop
		}

		parent, err := current.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("cannot get parent for %s: %w", current.Hash, err)
		}
		current = parent
	}

	// reverse to oldest first
	n := len(backward)
	result := make([]*object.Commit, n)
	for i, c := range backward {
		result[n-1-i] = c
	}

	return result, nil
}
