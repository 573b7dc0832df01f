package gitgraft

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var ErrBootstrapDuringRun = errors.New("cannot bootstrap while a run is in progress")

// Bootstrap imports the full source tree at the since ref (or the until ref
// when no since ref is configured) as one squash commit on the target
// branch, the starting point for subsequent transplants. The commit is
// recorded in the ledger so later runs see it as applied.
func (r *Runner) Bootstrap(ctx context.Context) (plumbing.Hash, error) {
	state, err := r.store.Load()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if state != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: run %s", ErrBootstrapDuringRun, state.RunID)
	}

	if err := r.checkTarget(); err != nil {
		return plumbing.ZeroHash, err
	}

	ref := r.config.SinceRef
	if ref == "" {
		ref = r.config.UntilRef
	}
	base, err := r.source.ResolveRef(ref)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	tree, err := base.Tree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: failed to obtain tree for commit %s: %v", ErrDiffComputation, base.Hash, err)
	}

	wt, err := r.target.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	n := 0
	err = tree.Files().ForEach(func(f *object.File) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		content, err := r.source.BlobBytes(f.Hash)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDiffComputation, err)
		}
		mode, err := f.Mode.ToOSFileMode()
		if err != nil {
			return fmt.Errorf("invalid mode for %s: %w", f.Name, err)
		}
		if err := util.WriteFile(wt.Filesystem, f.Name, content, mode); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
		if _, err := wt.Add(f.Name); err != nil {
			return fmt.Errorf("failed to stage %s: %w", f.Name, err)
		}
		n += 1

		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, err
	}

	var msg strings.Builder
	msg.WriteString("Bootstrap repository\n")
	msg.WriteString("\nImport of the source tree as of commit " + base.Hash.String() + ".\n")
	if r.config.Annotate() {
		msg.WriteString("\n" + SourceTrailer + ": " + base.Hash.String() + "\n")
	}

	id := r.authormap.Remap(Identity{Name: base.Committer.Name, Email: base.Committer.Email})
	sig := object.Signature{Name: id.Name, Email: id.Email, When: base.Committer.When}

	newhash, err := wt.Commit(msg.String(), &git.CommitOptions{
		Author:            &sig,
		Committer:         &sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %v", ErrCommitWrite, err)
	}

	if err := r.ledger.RecordApplied(base.Hash, newhash); err != nil {
		return plumbing.ZeroHash, err
	}

	logger.Info("bootstrapped target", "source", base.Hash, "target", newhash, "files", n)

	return newhash, nil
}
