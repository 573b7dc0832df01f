package gitgraft

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// transplantFixture builds a source repo with a base commit and one change
// commit, and a target repo seeded with the base content.
type transplantFixture struct {
	source *testRepo
	target *testRepo
	cs     *ChangeSet
}

func newTransplantFixture(t *testing.T) *transplantFixture {
	t.Helper()
	ctx := context.Background()

	source := newTestRepo(t)
	source.commit("base", map[string]string{"a.txt": "base\n"})
	change := source.commit("change a, add b", map[string]string{
		"a.txt": "changed\n",
		"b.txt": "new\n",
	})

	commit, err := source.handle().Commit(change)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := ExtractChangeSet(ctx, source.handle(), commit)
	if err != nil {
		t.Fatal(err)
	}

	target := newTestRepo(t)
	target.commit("seed", map[string]string{"a.txt": "base\n"})

	return &transplantFixture{source: source, target: target, cs: cs}
}

func TestExecutorApply(t *testing.T) {
	ctx := context.Background()
	f := newTransplantFixture(t)

	authormap, err := NewAuthorMap(map[string]string{
		"Test Author <author@test>": "Public Author <author@public>",
	})
	if err != nil {
		t.Fatal(err)
	}

	e, err := NewExecutor(f.target.handle(), authormap, nil, true)
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := e.Apply(ctx, f.cs)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Phase != PhaseCommitted {
		t.Fatalf("want committed, got %s", outcome.Phase)
	}

	head := f.target.headCommit()
	if head.Hash != outcome.Target {
		t.Fatalf("target head %s is not the created commit %s", head.Hash, outcome.Target)
	}
	if got := f.target.fileContent("a.txt"); got != "changed\n" {
		t.Fatalf("a.txt = %q", got)
	}
	if got := f.target.fileContent("b.txt"); got != "new\n" {
		t.Fatalf("b.txt = %q", got)
	}

	if head.Author.Email != "author@public" {
		t.Fatalf("author not remapped: %v", head.Author)
	}
	if !strings.Contains(head.Message, SourceTrailer+": "+f.cs.Source.String()) {
		t.Fatalf("missing source trailer in %q", head.Message)
	}
	if !strings.HasPrefix(head.Message, "change a, add b") {
		t.Fatalf("unexpected message %q", head.Message)
	}
}

func TestExecutorApply_conflict(t *testing.T) {
	ctx := context.Background()
	f := newTransplantFixture(t)

	// diverge the target at a.txt
	f.target.commit("local change", map[string]string{"a.txt": "diverged\n"})

	e, err := NewExecutor(f.target.handle(), nil, nil, true)
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := e.Apply(ctx, f.cs)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Phase != PhaseConflict {
		t.Fatalf("want conflict, got %s", outcome.Phase)
	}
	if len(outcome.Paths) != 1 || outcome.Paths[0] != "a.txt" {
		t.Fatalf("unexpected conflict paths %v", outcome.Paths)
	}

	// nothing was committed
	if f.target.headCommit().Message != "local change" {
		t.Fatal("conflicting apply created a commit")
	}

	// the conflicting file carries markers with both sides
	marked := f.target.worktreeContent("a.txt")
	for _, want := range []string{"<<<<<<<", "=======", ">>>>>>>", "diverged\n", "changed\n", f.cs.Source.String()} {
		if !strings.Contains(marked, want) {
			t.Fatalf("marker content missing %q:\n%s", want, marked)
		}
	}

	// the clean op was still applied to the working tree
	if got := f.target.worktreeContent("b.txt"); got != "new\n" {
		t.Fatalf("clean op not applied, b.txt = %q", got)
	}
}

func TestExecutorCommitResolution(t *testing.T) {
	ctx := context.Background()
	f := newTransplantFixture(t)

	f.target.commit("local change", map[string]string{"a.txt": "diverged\n"})

	e, err := NewExecutor(f.target.handle(), nil, nil, true)
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := e.Apply(ctx, f.cs)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Phase != PhaseConflict {
		t.Fatalf("want conflict, got %s", outcome.Phase)
	}

	// markers still present: resolution refused
	if _, err := e.CommitResolution(ctx, f.cs, outcome.Paths); !errors.Is(err, ErrUnresolvedConflict) {
		t.Fatalf("want ErrUnresolvedConflict, got %v", err)
	}

	// operator resolves
	f.target.writeFile("a.txt", "merged\n")

	newhash, err := e.CommitResolution(ctx, f.cs, outcome.Paths)
	if err != nil {
		t.Fatal(err)
	}

	head := f.target.headCommit()
	if head.Hash != newhash {
		t.Fatalf("target head %s is not the resolution commit %s", head.Hash, newhash)
	}
	if got := f.target.fileContent("a.txt"); got != "merged\n" {
		t.Fatalf("a.txt = %q", got)
	}
	if got := f.target.fileContent("b.txt"); got != "new\n" {
		t.Fatalf("b.txt = %q", got)
	}
	if !strings.Contains(head.Message, SourceTrailer+": "+f.cs.Source.String()) {
		t.Fatalf("missing source trailer in %q", head.Message)
	}
}

func TestExecutorApply_deleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	source := newTestRepo(t)

	source.commit("base", map[string]string{"a.txt": "a\n", "b.txt": "b\n"})
	removed := source.commitRemove("remove b", "b.txt")

	commit, err := source.handle().Commit(removed)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := ExtractChangeSet(ctx, source.handle(), commit)
	if err != nil {
		t.Fatal(err)
	}

	// target never had b.txt
	target := newTestRepo(t)
	target.commit("seed", map[string]string{"a.txt": "a\n"})

	e, err := NewExecutor(target.handle(), nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := e.Apply(ctx, cs)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Phase != PhaseCommitted {
		t.Fatalf("want committed, got %s", outcome.Phase)
	}
	if got := target.fileContent("b.txt"); got != "" {
		t.Fatalf("b.txt should stay absent, got %q", got)
	}
}

func TestExecutorApply_deleteDivergedConflicts(t *testing.T) {
	ctx := context.Background()
	source := newTestRepo(t)

	source.commit("base", map[string]string{"a.txt": "a\n", "b.txt": "b\n"})
	removed := source.commitRemove("remove b", "b.txt")

	commit, err := source.handle().Commit(removed)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := ExtractChangeSet(ctx, source.handle(), commit)
	if err != nil {
		t.Fatal(err)
	}

	target := newTestRepo(t)
	target.commit("seed", map[string]string{"a.txt": "a\n", "b.txt": "b local\n"})

	e, err := NewExecutor(target.handle(), nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := e.Apply(ctx, cs)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Phase != PhaseConflict {
		t.Fatalf("want conflict, got %s", outcome.Phase)
	}
	if len(outcome.Paths) != 1 || outcome.Paths[0] != "b.txt" {
		t.Fatalf("unexpected conflict paths %v", outcome.Paths)
	}

	// a delete conflict marks the file with the diverged target content over
	// an empty incoming side
	marked := target.worktreeContent("b.txt")
	for _, want := range []string{"<<<<<<<", "=======", ">>>>>>>", "b local\n", cs.Source.String()} {
		if !strings.Contains(marked, want) {
			t.Fatalf("marker content missing %q:\n%s", want, marked)
		}
	}

	// no operator action: the markers are still there, resolution refused
	if _, err := e.CommitResolution(ctx, cs, outcome.Paths); !errors.Is(err, ErrUnresolvedConflict) {
		t.Fatalf("want ErrUnresolvedConflict, got %v", err)
	}

	// deleting the marked file accepts the delete
	if err := target.wt.Filesystem.Remove("b.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CommitResolution(ctx, cs, outcome.Paths); err != nil {
		t.Fatal(err)
	}
	if got := target.fileContent("b.txt"); got != "" {
		t.Fatalf("b.txt should be gone, got %q", got)
	}
}

func TestExecutorApply_modifyMissingConflicts(t *testing.T) {
	ctx := context.Background()
	source := newTestRepo(t)

	source.commit("base", map[string]string{"keep.txt": "k\n", "a.txt": "v1\n"})
	change := source.commit("change a", map[string]string{"a.txt": "v2\n"})

	commit, err := source.handle().Commit(change)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := ExtractChangeSet(ctx, source.handle(), commit)
	if err != nil {
		t.Fatal(err)
	}

	// target never had a.txt
	target := newTestRepo(t)
	target.commit("seed", map[string]string{"keep.txt": "k\n"})

	e, err := NewExecutor(target.handle(), nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := e.Apply(ctx, cs)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Phase != PhaseConflict {
		t.Fatalf("want conflict, got %s", outcome.Phase)
	}
	if len(outcome.Paths) != 1 || outcome.Paths[0] != "a.txt" {
		t.Fatalf("unexpected conflict paths %v", outcome.Paths)
	}

	// the marker file carries the incoming content under an empty target side
	marked := target.worktreeContent("a.txt")
	for _, want := range []string{"<<<<<<<", "=======", ">>>>>>>", "v2\n"} {
		if !strings.Contains(marked, want) {
			t.Fatalf("marker content missing %q:\n%s", want, marked)
		}
	}

	// no operator action: resolution refused
	if _, err := e.CommitResolution(ctx, cs, outcome.Paths); !errors.Is(err, ErrUnresolvedConflict) {
		t.Fatalf("want ErrUnresolvedConflict, got %v", err)
	}

	target.writeFile("a.txt", "v2\n")
	if _, err := e.CommitResolution(ctx, cs, outcome.Paths); err != nil {
		t.Fatal(err)
	}
	if got := target.fileContent("a.txt"); got != "v2\n" {
		t.Fatalf("a.txt = %q", got)
	}
}

func TestExecutorApply_rename(t *testing.T) {
	ctx := context.Background()
	source := newTestRepo(t)

	source.commit("base", map[string]string{"old.txt": "same\n"})
	renamed := source.commitRename("rename old to new", "old.txt", "new.txt")

	commit, err := source.handle().Commit(renamed)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := ExtractChangeSet(ctx, source.handle(), commit)
	if err != nil {
		t.Fatal(err)
	}

	target := newTestRepo(t)
	target.commit("seed", map[string]string{"old.txt": "same\n"})

	e, err := NewExecutor(target.handle(), nil, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	// an unchanged rename applies cleanly
	outcome, err := e.Apply(ctx, cs)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Phase != PhaseCommitted {
		t.Fatalf("want committed, got %s", outcome.Phase)
	}
	if got := target.fileContent("old.txt"); got != "" {
		t.Fatalf("old.txt should be gone, got %q", got)
	}
	if got := target.fileContent("new.txt"); got != "same\n" {
		t.Fatalf("new.txt = %q", got)
	}
}

func TestExecutorApply_scrubsMessage(t *testing.T) {
	ctx := context.Background()
	source := newTestRepo(t)

	source.commit("base", map[string]string{"a.txt": "base\n"})
	change := source.commit("brief\n\nbody\nInternal-Ref: ABC-1\n", map[string]string{"a.txt": "v2\n"})

	commit, err := source.handle().Commit(change)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := ExtractChangeSet(ctx, source.handle(), commit)
	if err != nil {
		t.Fatal(err)
	}

	target := newTestRepo(t)
	target.commit("seed", map[string]string{"a.txt": "base\n"})

	scrubber, err := NewMessageScrubber(`^Internal-Ref:`)
	if err != nil {
		t.Fatal(err)
	}

	e, err := NewExecutor(target.handle(), nil, scrubber, false)
	if err != nil {
		t.Fatal(err)
	}

	outcome, err := e.Apply(ctx, cs)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Phase != PhaseCommitted {
		t.Fatalf("want committed, got %s", outcome.Phase)
	}

	msg := target.headCommit().Message
	if strings.Contains(msg, "Internal-Ref") {
		t.Fatalf("message not scrubbed: %q", msg)
	}
	if !strings.Contains(msg, "body") {
		t.Fatalf("message over-scrubbed: %q", msg)
	}
	if strings.Contains(msg, SourceTrailer) {
		t.Fatalf("trailer added with annotate off: %q", msg)
	}
}
