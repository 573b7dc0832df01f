package gitgraft

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
)

var ErrQueueHeadMismatch = errors.New("processed commit is not the queue head")

// PendingConflict names the commit blocked on a conflict and the paths the
// operator has to resolve.
type PendingConflict struct {
	Commit string   `yaml:"commit"`
	Paths  []string `yaml:"paths"`
}

// TransplantState is the persisted resume checkpoint of one run.
//
// The invariant the state protects: commits already applied to the target,
// the remaining queue, and the pending conflict (if any) together cover the
// full resolved range exactly once. A commit leaves the queue only through
// [TransplantState.MarkProcessed] after its terminal outcome is durable.
type TransplantState struct {
	RunID string `yaml:"run_id"`

	SourcePath string `yaml:"source_path"`
	TargetPath string `yaml:"target_path"`
	Branch     string `yaml:"branch"`
	SinceRef   string `yaml:"since_ref"`
	UntilRef   string `yaml:"until_ref"`

	// LastProcessed is the last source commit with a durable terminal
	// outcome, empty before the first one.
	LastProcessed string `yaml:"last_processed,omitempty"`
	// Queue is the remaining source commit hashes, oldest first.
	Queue []string `yaml:"queue"`

	Pending *PendingConflict `yaml:"pending_conflict,omitempty"`

	StartedAt time.Time `yaml:"started_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// NewTransplantState starts the checkpoint of a fresh run over the resolved
// queue.
func NewTransplantState(cfg *Config, queue []plumbing.Hash) *TransplantState {
	now := time.Now().UTC()

	s := &TransplantState{
		RunID:      uuid.NewString(),
		SourcePath: cfg.SourcePath,
		TargetPath: cfg.TargetPath,
		Branch:     cfg.TargetBranch(),
		SinceRef:   cfg.SinceRef,
		UntilRef:   cfg.UntilRef,
		Queue:      make([]string, 0, len(queue)),
		StartedAt:  now,
		UpdatedAt:  now,
	}
	for _, h := range queue {
		s.Queue = append(s.Queue, h.String())
	}

	return s
}

// Matches reports whether the state belongs to a run with the same
// parameters.
func (s *TransplantState) Matches(cfg *Config) bool {
	return s.SourcePath == cfg.SourcePath &&
		s.TargetPath == cfg.TargetPath &&
		s.Branch == cfg.TargetBranch() &&
		s.SinceRef == cfg.SinceRef &&
		s.UntilRef == cfg.UntilRef
}

// QueueHashes decodes the remaining queue.
func (s *TransplantState) QueueHashes() ([]plumbing.Hash, error) {
	return DecodeHashHexes(s.Queue...)
}

// MarkProcessed records the terminal outcome of the queue head: the commit
// leaves the queue, becomes LastProcessed, and any pending conflict on it is
// cleared.
func (s *TransplantState) MarkProcessed(h plumbing.Hash) error {
	if len(s.Queue) == 0 || s.Queue[0] != h.String() {
		return fmt.Errorf("%w: %s", ErrQueueHeadMismatch, h)
	}

	s.Queue = s.Queue[1:]
	s.LastProcessed = h.String()
	s.Pending = nil
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// MarkConflict records the queue head as blocked on a conflict. The commit
// stays first in queue.
func (s *TransplantState) MarkConflict(h plumbing.Hash, paths []string) error {
	if len(s.Queue) == 0 || s.Queue[0] != h.String() {
		return fmt.Errorf("%w: %s", ErrQueueHeadMismatch, h)
	}

	s.Pending = &PendingConflict{Commit: h.String(), Paths: paths}
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// Store persists the [TransplantState]. Checkpoint must be durable before
// the executor moves to the next commit; Clear is called only once the queue
// empties with no pending conflict.
type Store interface {
	// Load reads the persisted state, nil when no run is in progress.
	Load() (*TransplantState, error)
	Checkpoint(s *TransplantState) error
	Clear() error
}

// FileStore is the YAML-on-disk [Store]. The file is the single source of
// truth for what has been durably applied, and doubles as the single-writer
// lock: its presence means a run is in progress.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store persisting to the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path the store persists to.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load() (*TransplantState, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", f.path, err)
	}

	state := &TransplantState{}
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", f.path, err)
	}

	return state, nil
}

// Checkpoint writes the state to a temporary file in the same directory,
// syncs it, and renames it over the state file, so a crash mid-write never
// corrupts the previous checkpoint.
func (f *FileStore) Checkpoint(s *TransplantState) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateWrite, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStateWrite, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStateWrite, err)
	}
	tmppath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmppath)
		return fmt.Errorf("%w: %v", ErrStateWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmppath)
		return fmt.Errorf("%w: %v", ErrStateWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmppath)
		return fmt.Errorf("%w: %v", ErrStateWrite, err)
	}

	if err := os.Rename(tmppath, f.path); err != nil {
		os.Remove(tmppath)
		return fmt.Errorf("%w: %v", ErrStateWrite, err)
	}

	return nil
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file %s: %w", f.path, err)
	}

	return nil
}
