package gitgraft

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

// testRepo is a repository under construction for tests, in memory unless
// built with newDiskRepo.
type testRepo struct {
	t    *testing.T
	repo *git.Repository
	wt   *git.Worktree

	clock time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	repo, err := git.Init(memory.NewStorage(), memfs.New())
	if err != nil {
		t.Fatal(err)
	}

	return wrapTestRepo(t, repo)
}

func newDiskRepo(t *testing.T, dir string) *testRepo {
	t.Helper()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}

	return wrapTestRepo(t, repo)
}

func wrapTestRepo(t *testing.T, repo *git.Repository) *testRepo {
	t.Helper()

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	return &testRepo{
		t:     t,
		repo:  repo,
		wt:    wt,
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *testRepo) handle() *Repo {
	return NewRepo(r.repo)
}

func (r *testRepo) signature(name, email string) object.Signature {
	r.clock = r.clock.Add(time.Minute)

	return object.Signature{Name: name, Email: email, When: r.clock}
}

// writeFile writes without staging or committing.
func (r *testRepo) writeFile(path, content string) {
	r.t.Helper()

	if err := util.WriteFile(r.wt.Filesystem, path, []byte(content), 0o644); err != nil {
		r.t.Fatal(err)
	}
}

// commit stages the given path contents and commits them with the default
// test author.
func (r *testRepo) commit(msg string, files map[string]string) plumbing.Hash {
	r.t.Helper()

	return r.commitAs(msg, files, "Test Author", "author@test")
}

func (r *testRepo) commitAs(msg string, files map[string]string, name, email string) plumbing.Hash {
	r.t.Helper()

	for path, content := range files {
		r.writeFile(path, content)
		if _, err := r.wt.Add(path); err != nil {
			r.t.Fatal(err)
		}
	}

	sig := r.signature(name, email)
	h, err := r.wt.Commit(msg, &git.CommitOptions{
		Author:            &sig,
		Committer:         &sig,
		AllowEmptyCommits: true,
	})
	if err != nil {
		r.t.Fatal(err)
	}

	return h
}

// remove deletes a path and commits the deletion.
func (r *testRepo) commitRemove(msg string, path string) plumbing.Hash {
	r.t.Helper()

	if _, err := r.wt.Remove(path); err != nil {
		r.t.Fatal(err)
	}

	sig := r.signature("Test Author", "author@test")
	h, err := r.wt.Commit(msg, &git.CommitOptions{Author: &sig, Committer: &sig})
	if err != nil {
		r.t.Fatal(err)
	}

	return h
}

// commitRename moves a path and commits the move.
func (r *testRepo) commitRename(msg, from, to string) plumbing.Hash {
	r.t.Helper()

	content := r.worktreeContent(from)
	if _, err := r.wt.Remove(from); err != nil {
		r.t.Fatal(err)
	}
	r.writeFile(to, content)
	if _, err := r.wt.Add(to); err != nil {
		r.t.Fatal(err)
	}

	sig := r.signature("Test Author", "author@test")
	h, err := r.wt.Commit(msg, &git.CommitOptions{Author: &sig, Committer: &sig})
	if err != nil {
		r.t.Fatal(err)
	}

	return h
}

func (r *testRepo) headCommit() *object.Commit {
	r.t.Helper()

	head, err := r.repo.Head()
	if err != nil {
		r.t.Fatal(err)
	}
	c, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		r.t.Fatal(err)
	}

	return c
}

// history returns the first-parent history of HEAD, oldest first.
func (r *testRepo) history() []*object.Commit {
	r.t.Helper()

	backward := make([]*object.Commit, 0)
	c := r.headCommit()
	for {
		backward = append(backward, c)
		if c.NumParents() == 0 {
			break
		}
		parent, err := c.Parent(0)
		if err != nil {
			r.t.Fatal(err)
		}
		c = parent
	}

	n := len(backward)
	result := make([]*object.Commit, n)
	for i, c := range backward {
		result[n-1-i] = c
	}

	return result
}

// fileContent reads a path from the HEAD tree, empty string when absent.
func (r *testRepo) fileContent(path string) string {
	r.t.Helper()

	tree, err := r.headCommit().Tree()
	if err != nil {
		r.t.Fatal(err)
	}
	f, err := tree.File(path)
	if err != nil {
		return ""
	}
	content, err := f.Contents()
	if err != nil {
		r.t.Fatal(err)
	}

	return content
}

// worktreeContent reads a path from the working tree, empty string when
// absent.
func (r *testRepo) worktreeContent(path string) string {
	r.t.Helper()

	f, err := r.wt.Filesystem.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, 0, 1024)
	tmp := make([]byte, 1024)
	for {
		n, err := f.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}

	return string(buf)
}
