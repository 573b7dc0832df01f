package gitgraft

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Phase is the per-commit state of the transplant state machine.
type Phase uint8

const (
	PhasePending Phase = iota
	PhaseApplying
	PhaseCommitted
	PhaseConflict
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseApplying:
		return "applying"
	case PhaseCommitted:
		return "committed"
	case PhaseConflict:
		return "conflict"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", p)
	}
}

// Outcome is the terminal result of applying one [ChangeSet].
type Outcome struct {
	Phase  Phase
	Source plumbing.Hash

	// Target is the created commit, set when Phase is [PhaseCommitted].
	Target plumbing.Hash
	// Paths are the conflicting paths, set when Phase is [PhaseConflict].
	Paths []string
}

// SourceTrailer is the message trailer naming the source commit a
// transplanted commit was copied from.
const SourceTrailer = "git-graft"

const (
	conflictMarkerOurs   = "<<<<<<<"
	conflictMarkerSep    = "======="
	conflictMarkerTheirs = ">>>>>>>"
)

// Executor applies change sets onto the target repository working tree and
// creates the resulting commits. A single Executor owns the target working
// tree for the whole run; it is not safe for concurrent use.
type Executor struct {
	target *Repo
	wt     *git.Worktree

	authormap AuthorMap
	scrubber  MessageScrubber
	annotate  bool
}

// NewExecutor prepares an executor over the target repository.
func NewExecutor(target *Repo, authormap AuthorMap, scrubber MessageScrubber, annotate bool) (*Executor, error) {
	wt, err := target.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain target worktree: %w", err)
	}

	return &Executor{
		target:    target,
		wt:        wt,
		authormap: authormap,
		scrubber:  scrubber,
		annotate:  annotate,
	}, nil
}

// Apply replays one change set on the target working tree.
//
// Every op is first checked against the current target tree: a modify or
// delete whose path diverges from what the source parent had, or an add whose
// path already exists with different content, is a conflict.
//
//   - With no conflicts, all ops are applied and staged, and a new commit is
//     created on the current branch; the outcome is [PhaseCommitted].
//   - With conflicts, the clean ops are still applied and staged so the
//     working tree holds the full intended change, and every conflicting path
//     is rewritten in place with standard "<<<<<<<"/"======="/">>>>>>>"
//     markers (target content first, incoming source content second). A
//     conflicting delete has an empty incoming side, a conflicting modify of
//     a path missing on the target an empty target side. The marked paths are
//     left unstaged and the outcome is [PhaseConflict] naming every one of
//     them.
//
// Any other failure is returned as an error and means [PhaseFailed]: nothing
// was committed, the commit stays first in queue for the next attempt.
func (e *Executor) Apply(ctx context.Context, cs *ChangeSet) (*Outcome, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	head, err := e.target.HeadCommit()
	if err != nil {
		return nil, err
	}

	var headtree *object.Tree
	if head != nil {
		headtree, err = head.Tree()
		if err != nil {
			return nil, fmt.Errorf("failed to obtain target head tree: %w", err)
		}
	}

	conflicts := make([]PathOp, 0)
	clean := make([]PathOp, 0, len(cs.Ops))
	for _, op := range cs.Ops {
		ok, err := e.opApplies(headtree, op)
		if err != nil {
			return nil, err
		}
		if ok {
			clean = append(clean, op)
		} else {
			conflicts = append(conflicts, op)
		}
	}

	if len(conflicts) > 0 {
		if err := e.applyOps(clean); err != nil {
			return nil, err
		}
		paths, err := e.markConflicts(headtree, cs, conflicts)
		if err != nil {
			return nil, err
		}

		return &Outcome{Phase: PhaseConflict, Source: cs.Source, Paths: paths}, nil
	}

	if err := e.applyOps(clean); err != nil {
		return nil, err
	}

	newhash, err := e.commit(cs)
	if err != nil {
		return nil, err
	}

	return &Outcome{Phase: PhaseCommitted, Source: cs.Source, Target: newhash}, nil
}

// opApplies checks one op against the current target tree. headtree may be
// nil for an unborn branch.
func (e *Executor) opApplies(headtree *object.Tree, op PathOp) (bool, error) {
	var current plumbing.Hash
	exists := false

	if headtree != nil {
		f, err := headtree.File(op.Path)
		switch {
		case err == nil:
			current = f.Hash
			exists = true
		case errors.Is(err, object.ErrFileNotFound):
		default:
			return false, fmt.Errorf("failed to read target path %s: %w", op.Path, err)
		}
	}

	switch op.Kind {
	case OpAdd:
		// adding over identical content is a no-op, not a conflict
		return !exists || current == op.NewBlob, nil
	case OpModify:
		if !exists {
			return false, nil
		}
		return current == op.OldBlob || current == op.NewBlob, nil
	case OpDelete:
		return !exists || current == op.OldBlob, nil
	default:
		return false, fmt.Errorf("unknown op kind %s for %s", op.Kind, op.Path)
	}
}

// applyOps writes and stages the ops on the working tree.
func (e *Executor) applyOps(ops []PathOp) error {
	for _, op := range ops {
		switch op.Kind {
		case OpAdd, OpModify:
			mode, err := op.NewMode.ToOSFileMode()
			if err != nil {
				return fmt.Errorf("invalid mode for %s: %w", op.Path, err)
			}
			if err := util.WriteFile(e.wt.Filesystem, op.Path, op.NewContent, mode); err != nil {
				return fmt.Errorf("failed to write %s: %w", op.Path, err)
			}
			if _, err := e.wt.Add(op.Path); err != nil {
				return fmt.Errorf("failed to stage %s: %w", op.Path, err)
			}
		case OpDelete:
			if _, err := e.wt.Remove(op.Path); err != nil {
				if errors.Is(err, index.ErrEntryNotFound) || os.IsNotExist(err) {
					// already absent on the target
					continue
				}
				return fmt.Errorf("failed to remove %s: %w", op.Path, err)
			}
		}
	}

	return nil
}

// markConflicts rewrites every conflicting path with conflict markers and
// returns the full list of conflicting paths. A side without content is
// written empty, so every conflict kind leaves markers an unresolved resume
// can detect.
func (e *Executor) markConflicts(headtree *object.Tree, cs *ChangeSet, conflicts []PathOp) ([]string, error) {
	paths := make([]string, 0, len(conflicts))

	for _, op := range conflicts {
		paths = append(paths, op.Path)

		var ours []byte
		if headtree != nil {
			f, err := headtree.File(op.Path)
			switch {
			case err == nil:
				ours, err = e.target.BlobBytes(f.Hash)
				if err != nil {
					return nil, err
				}
			case errors.Is(err, object.ErrFileNotFound):
			default:
				return nil, fmt.Errorf("failed to read target path %s: %w", op.Path, err)
			}
		}

		marked := conflictContent(ours, op.NewContent, cs.Source)
		if err := util.WriteFile(e.wt.Filesystem, op.Path, marked, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write conflict markers to %s: %w", op.Path, err)
		}
	}

	return paths, nil
}

func conflictContent(ours, theirs []byte, source plumbing.Hash) []byte {
	var b strings.Builder
	b.WriteString(conflictMarkerOurs + " target\n")
	b.Write(ours)
	if len(ours) > 0 && ours[len(ours)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString(conflictMarkerSep + "\n")
	b.Write(theirs)
	if len(theirs) > 0 && theirs[len(theirs)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString(conflictMarkerTheirs + " " + source.String() + "\n")

	return []byte(b.String())
}

// commit creates the transplanted commit with the change set's metadata,
// identities remapped and message scrubbed and annotated.
func (e *Executor) commit(cs *ChangeSet) (plumbing.Hash, error) {
	author := e.remap(cs.Author)
	committer := e.remap(cs.Committer)

	newhash, err := e.wt.Commit(e.message(cs), &git.CommitOptions{
		Author:            &author,
		Committer:         &committer,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: source %s: %v", ErrCommitWrite, cs.Source, err)
	}

	return newhash, nil
}

func (e *Executor) remap(sig object.Signature) object.Signature {
	id := e.authormap.Remap(Identity{Name: sig.Name, Email: sig.Email})

	return object.Signature{Name: id.Name, Email: id.Email, When: sig.When}
}

func (e *Executor) message(cs *ChangeSet) string {
	msg := e.scrubber.Scrub(cs.Message)

	if e.annotate {
		msg = strings.TrimRight(msg, "\n") + "\n\n" + SourceTrailer + ": " + cs.Source.String() + "\n"
	}

	return msg
}

// CommitResolution finishes a conflicted commit after the operator resolved
// the working tree. Every recorded conflicting path must be free of marker
// lines ([ErrUnresolvedConflict] otherwise); the whole working tree state is
// then staged and committed with the blocked commit's metadata.
func (e *Executor) CommitResolution(ctx context.Context, cs *ChangeSet, paths []string) (plumbing.Hash, error) {
	select {
	case <-ctx.Done():
		return plumbing.ZeroHash, ctx.Err()
	default:
	}

	unresolved := make([]string, 0)
	for _, p := range paths {
		marked, err := e.hasConflictMarkers(p)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if marked {
			unresolved = append(unresolved, p)
		}
	}
	if len(unresolved) > 0 {
		return plumbing.ZeroHash, fmt.Errorf(
			"%w: source %s still has markers in: %s",
			ErrUnresolvedConflict, cs.Source, strings.Join(unresolved, ", "))
	}

	if err := e.wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to stage resolution: %w", err)
	}

	return e.commit(cs)
}

// hasConflictMarkers reports whether the working tree file still carries
// conflict marker lines. A deleted file counts as resolved.
func (e *Executor) hasConflictMarkers(path string) (bool, error) {
	f, err := e.wt.Filesystem.Open(path)
	if os.IsNotExist(err) {
		// the operator resolved by deleting the file
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, conflictMarkerOurs) ||
			strings.HasPrefix(line, conflictMarkerTheirs) ||
			line == conflictMarkerSep {
			return true, nil
		}
	}

	return false, scanner.Err()
}
