package gitgraft

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
)

// OpKind is the kind of one path level operation in a [ChangeSet].
type OpKind uint8

const (
	OpAdd OpKind = iota
	OpModify
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", k)
	}
}

// PathOp is one path level operation of a [ChangeSet].
type PathOp struct {
	Kind OpKind
	Path string

	// NewContent and NewMode are set for add and modify.
	NewContent []byte
	NewMode    filemode.FileMode

	// OldBlob is the blob the source commit's parent had at Path, zero for
	// adds. The executor compares it against the target to detect conflicts.
	OldBlob plumbing.Hash
	// NewBlob is the blob the source commit has at Path, zero for deletes.
	NewBlob plumbing.Hash
}

// ChangeSet is the materialized diff of one source commit against its parent,
// plus the metadata to stamp on the resulting target commit. Never mutated
// after extraction.
type ChangeSet struct {
	// Source is the source commit the set was extracted from.
	Source plumbing.Hash

	Author    object.Signature
	Committer object.Signature
	Message   string

	// Ops sorted by path.
	Ops []PathOp
}

// Paths returns the changed paths of the set, in op order.
func (cs *ChangeSet) Paths() []string {
	result := make([]string, 0, len(cs.Ops))
	for _, op := range cs.Ops {
		result = append(result, op.Path)
	}

	return result
}

// ExtractChangeSet computes the tree diff between a commit and its single
// parent. A root commit diffs against the empty tree, and a rename surfaces
// as its delete and add pair. Any failure to read a tree or blob wraps
// [ErrDiffComputation] and is fatal for the whole run, since it indicates a
// source repository data problem; a commit touching a submodule entry fails
// with [ErrUnsupportedSubmodule].
func ExtractChangeSet(ctx context.Context, repo *Repo, c *object.Commit) (*ChangeSet, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to obtain tree for commit %s: %v", ErrDiffComputation, c.Hash, err)
	}

	var parenttree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to obtain parent of commit %s: %v", ErrDiffComputation, c.Hash, err)
		}
		parenttree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to obtain tree for parent of commit %s: %v", ErrDiffComputation, c.Hash, err)
		}
	}

	// rename detection off: a rename has to replay as its delete and add,
	// folding it into one modify at the new path drops the delete
	changes, err := object.DiffTreeWithOptions(ctx, parenttree, tree, &object.DiffTreeOptions{DetectRenames: false})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to diff commit %s against its parent: %v", ErrDiffComputation, c.Hash, err)
	}

	cs := &ChangeSet{
		Source:    c.Hash,
		Author:    c.Author,
		Committer: c.Committer,
		Message:   c.Message,
		Ops:       make([]PathOp, 0, len(changes)),
	}

	for _, change := range changes {
		op, err := pathOpFromChange(repo, change)
		if err != nil {
			return nil, err
		}
		cs.Ops = append(cs.Ops, *op)
	}

	sort.Slice(cs.Ops, func(i, j int) bool { return cs.Ops[i].Path < cs.Ops[j].Path })

	return cs, nil
}

func pathOpFromChange(repo *Repo, change *object.Change) (*PathOp, error) {
	action, err := change.Action()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to obtain change action: %v", ErrDiffComputation, err)
	}

	op := &PathOp{}

	switch action {
	case merkletrie.Insert:
		op.Kind = OpAdd
		op.Path = change.To.Name
		op.NewBlob = change.To.TreeEntry.Hash
		op.NewMode = change.To.TreeEntry.Mode
	case merkletrie.Modify:
		op.Kind = OpModify
		op.Path = change.To.Name
		op.OldBlob = change.From.TreeEntry.Hash
		op.NewBlob = change.To.TreeEntry.Hash
		op.NewMode = change.To.TreeEntry.Mode
	case merkletrie.Delete:
		op.Kind = OpDelete
		op.Path = change.From.Name
		op.OldBlob = change.From.TreeEntry.Hash
	default:
		return nil, fmt.Errorf("%w: unknown change action %v", ErrDiffComputation, action)
	}

	if op.Kind != OpDelete {
		// submodules carry no blob to replay
		if op.NewMode == filemode.Submodule {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedSubmodule, op.Path)
		}

		content, err := repo.BlobBytes(op.NewBlob)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDiffComputation, err)
		}
		op.NewContent = content
	}

	return op, nil
}
