package gitgraft

import (
	"errors"
	"fmt"
	"io"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo bundles a repository with the handful of capabilities the transplant
// engine needs: ref resolution, commit/blob reads, and working tree access.
type Repo struct {
	repo *git.Repository
	path string
}

// OpenRepo opens an existing repository on disk.
func OpenRepo(path string) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repo at %s: %w", path, err)
	}

	return &Repo{repo: repo, path: path}, nil
}

// NewRepo wraps an already constructed repository, for example an in-memory
// one.
func NewRepo(repo *git.Repository) *Repo {
	return &Repo{repo: repo}
}

// Path is the filesystem location the repo was opened from, empty for
// in-memory repositories.
func (r *Repo) Path() string {
	return r.path
}

// Underlying exposes the wrapped repository.
func (r *Repo) Underlying() *git.Repository {
	return r.repo
}

// ResolveRef resolves a ref expression (branch, tag, hash) to its commit.
// Returns [ErrRefNotFound] when the expression doesn't resolve.
func (r *Repo) ResolveRef(ref string) (*object.Commit, error) {
	if r == nil || r.repo == nil {
		return nil, ErrNilRepo
	}

	h, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrRefNotFound, ref, err)
	}

	c, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("%w: %q resolves to %s which is not a commit: %v", ErrRefNotFound, ref, h, err)
	}

	return c, nil
}

// Commit reads one commit object.
func (r *Repo) Commit(h plumbing.Hash) (*object.Commit, error) {
	if r == nil || r.repo == nil {
		return nil, ErrNilRepo
	}

	return r.repo.CommitObject(h)
}

// BlobBytes reads the full content of a blob.
func (r *Repo) BlobBytes(h plumbing.Hash) ([]byte, error) {
	blob, err := r.repo.BlobObject(h)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", h, err)
	}

	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", h, err)
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// Worktree returns the repository working tree.
func (r *Repo) Worktree() (*git.Worktree, error) {
	if r == nil || r.repo == nil {
		return nil, ErrNilRepo
	}

	return r.repo.Worktree()
}

// HeadCommit returns the commit HEAD points at, or nil on an unborn branch.
func (r *Repo) HeadCommit() (*object.Commit, error) {
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD: %w", err)
	}

	return r.repo.CommitObject(head.Hash())
}

// IsClean reports whether the working tree has no local changes.
func (r *Repo) IsClean() (bool, error) {
	wt, err := r.Worktree()
	if err != nil {
		return false, err
	}

	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed to read worktree status: %w", err)
	}

	return status.IsClean(), nil
}
