package gitgraft

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// RunResult summarizes a finished or halted run.
type RunResult struct {
	// Applied is the number of commits transplanted by this invocation.
	Applied int
	// Skipped is the number of commits dropped by filtering in this
	// invocation.
	Skipped int
	// Remaining is the number of commits still queued, zero unless the run
	// halted.
	Remaining int
}

// Runner wires the resolver, filter, extractor, executor, progress store and
// ledger into the transplant loop. One Runner owns the target repository for
// the duration of a run; see [NewRunner].
type Runner struct {
	config *Config

	rules     *RuleSet
	scrubber  MessageScrubber
	authormap AuthorMap

	source *Repo
	target *Repo

	store  Store
	ledger *Ledger
}

// NewRunner opens both repositories and the persistence layers for the
// configured transplant. Callers own calling [Runner.Close].
func NewRunner(cfg *Config) (*Runner, error) {
	rules, scrubber, authormap, err := cfg.compile()
	if err != nil {
		return nil, err
	}

	source, err := OpenRepo(cfg.SourcePath)
	if err != nil {
		return nil, err
	}

	target, err := OpenRepo(cfg.TargetPath)
	if err != nil {
		return nil, err
	}

	ledger, err := OpenLedger(cfg.LedgerFile())
	if err != nil {
		return nil, err
	}

	return &Runner{
		config:    cfg,
		rules:     rules,
		scrubber:  scrubber,
		authormap: authormap,
		source:    source,
		target:    target,
		store:     NewFileStore(cfg.StateFile()),
		ledger:    ledger,
	}, nil
}

func (r *Runner) Close() error {
	return r.ledger.Close()
}

// Run starts a fresh transplant or resumes an interrupted one.
//
// A fresh run resolves the configured range once, checkpoints it as the
// queue, and consumes it commit by commit: filter decides keep or drop,
// kept commits are extracted and applied, and every terminal outcome is
// checkpointed before the next commit is touched.
//
// An existing state file for the same parameters is resumed; one for
// different parameters fails with [ErrRunInProgress]. A resumed state with a
// pending conflict first verifies the operator resolved it
// ([ErrUnresolvedConflict] otherwise) and commits the resolution.
//
// On a conflict the run halts with a [*ConflictError]; the state file then
// records the blocked commit, and rerunning after resolution continues from
// it. The state file is cleared only when the queue empties.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	state, err := r.store.Load()
	if err != nil {
		return nil, err
	}

	if state == nil {
		state, err = r.freshState(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		if !state.Matches(r.config) {
			return nil, fmt.Errorf(
				"%w: run %s over %s..%s, clear it or rerun with the same parameters",
				ErrRunInProgress, state.RunID, state.SinceRef, state.UntilRef)
		}
		logger.Info("resuming run", "run", state.RunID, "remaining", len(state.Queue))
	}

	result := &RunResult{}

	if state.Pending != nil {
		if err := r.finishConflict(ctx, state); err != nil {
			result.Remaining = len(state.Queue)
			return result, err
		}
		result.Applied += 1
	}

	if err := r.consumeQueue(ctx, state, result); err != nil {
		result.Remaining = len(state.Queue)
		return result, err
	}

	if err := r.store.Clear(); err != nil {
		return result, err
	}
	logger.Info("run complete", "run", state.RunID, "applied", result.Applied, "skipped", result.Skipped)

	return result, nil
}

// freshState resolves the range and checkpoints the initial queue. Nothing
// on the target is mutated before this succeeds.
func (r *Runner) freshState(ctx context.Context) (*TransplantState, error) {
	if err := r.checkTarget(); err != nil {
		return nil, err
	}

	commits, err := ResolveRange(ctx, r.source, r.config.SinceRef, r.config.UntilRef)
	if err != nil {
		return nil, err
	}

	queue := make([]plumbing.Hash, 0, len(commits))
	for _, c := range commits {
		queue = append(queue, c.Hash)
	}

	state := NewTransplantState(r.config, queue)
	if err := r.store.Checkpoint(state); err != nil {
		return nil, err
	}

	logger.Info("starting run", "run", state.RunID, "commits", len(queue),
		"since", r.config.SinceRef, "until", r.config.UntilRef)

	return state, nil
}

// checkTarget refuses a dirty working tree and a HEAD off the configured
// branch before anything is mutated.
func (r *Runner) checkTarget() error {
	head, err := r.target.Underlying().Head()
	if err == nil {
		if !head.Name().IsBranch() || head.Name().Short() != r.config.TargetBranch() {
			return fmt.Errorf("%w: HEAD is %s, want %s", ErrBranchMismatch, head.Name().Short(), r.config.TargetBranch())
		}
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("failed to read target HEAD: %w", err)
	}

	clean, err := r.target.IsClean()
	if err != nil {
		return err
	}
	if !clean {
		return ErrDirtyWorktree
	}

	return nil
}

// finishConflict commits the operator's resolution of the pending conflict
// and checkpoints the commit as processed.
func (r *Runner) finishConflict(ctx context.Context, state *TransplantState) error {
	h, err := DecodeHashHex(state.Pending.Commit)
	if err != nil {
		return fmt.Errorf("invalid pending conflict commit in state file: %w", err)
	}

	commit, err := r.source.Commit(h)
	if err != nil {
		return fmt.Errorf("failed to read pending conflict commit %s: %w", h, err)
	}

	// deterministic re-extraction, the metadata is needed for the commit
	cs, err := ExtractChangeSet(ctx, r.source, commit)
	if err != nil {
		return err
	}

	executor, err := r.newExecutor()
	if err != nil {
		return err
	}

	newhash, err := executor.CommitResolution(ctx, cs, state.Pending.Paths)
	if err != nil {
		return err
	}

	logger.Info("conflict resolved", "source", h, "target", newhash)

	return r.checkpointApplied(state, h, newhash)
}

// consumeQueue is the main loop: filter, extract, apply, checkpoint, one
// commit at a time in source history order.
func (r *Runner) consumeQueue(ctx context.Context, state *TransplantState, result *RunResult) error {
	queue, err := state.QueueHashes()
	if err != nil {
		return fmt.Errorf("invalid queue in state file: %w", err)
	}

	executor, err := r.newExecutor()
	if err != nil {
		return err
	}

	n := len(queue)
	for i, h := range queue {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// A commit can be in the ledger but still queued when a crash hit
		// between the ledger write and the state checkpoint. The target
		// commit already exists, so only the checkpoint is repaired.
		applied, found, err := r.ledger.Applied(h)
		if err != nil {
			return err
		}
		if found {
			if _, err := r.target.Commit(applied); err != nil {
				return fmt.Errorf("%w: queued commit %s recorded as applied to %s which is missing from the target", ErrLedgerDiverged, h, applied)
			}
			logger.Warn("commit already applied, repairing checkpoint", "hash", h, "target", applied)
			if err := r.checkpointProcessed(state, h); err != nil {
				return err
			}
			continue
		}

		commit, err := r.source.Commit(h)
		if err != nil {
			return fmt.Errorf("failed to read source commit %s: %w", h, err)
		}

		cs, err := ExtractChangeSet(ctx, r.source, commit)
		if err != nil {
			return err
		}

		decision := r.rules.Evaluate(commit, cs.Paths())
		if !decision.Keep {
			logger.Info("skipping commit", "id", i, "total", n, "hash", h, "reason", decision.Reason)
			if err := r.ledger.RecordSkipped(h, decision.Reason); err != nil {
				return err
			}
			if err := r.checkpointProcessed(state, h); err != nil {
				return err
			}
			result.Skipped += 1
			continue
		}

		outcome, err := executor.Apply(ctx, cs)
		if err != nil {
			// PhaseFailed: not checkpointed, the commit stays first in queue
			return err
		}

		switch outcome.Phase {
		case PhaseCommitted:
			logger.Info("transplanted commit", "id", i, "total", n, "hash", h, "newcommit", outcome.Target)
			if err := r.checkpointApplied(state, h, outcome.Target); err != nil {
				return err
			}
			result.Applied += 1
		case PhaseConflict:
			logger.Warn("conflict, halting", "hash", h, "paths", outcome.Paths)
			if err := state.MarkConflict(h, outcome.Paths); err != nil {
				return err
			}
			if err := r.store.Checkpoint(state); err != nil {
				return err
			}

			return &ConflictError{Commit: h, Paths: outcome.Paths}
		default:
			return fmt.Errorf("unexpected outcome %s for commit %s", outcome.Phase, h)
		}
	}

	return nil
}

func (r *Runner) newExecutor() (*Executor, error) {
	return NewExecutor(r.target, r.authormap, r.scrubber, r.config.Annotate())
}

// checkpointApplied makes a commit's applied outcome durable: ledger first,
// then the state file. A crash between the two leaves the ledger ahead,
// which the next resume reports as divergence instead of re-applying.
func (r *Runner) checkpointApplied(state *TransplantState, source, target plumbing.Hash) error {
	if err := r.ledger.RecordApplied(source, target); err != nil {
		return err
	}

	return r.checkpointProcessed(state, source)
}

func (r *Runner) checkpointProcessed(state *TransplantState, h plumbing.Hash) error {
	if err := state.MarkProcessed(h); err != nil {
		return err
	}

	return r.store.Checkpoint(state)
}
