package gitgraft

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"go.etcd.io/bbolt"
)

var ErrNilLedger = errors.New("nil ledger")

const (
	APPLIED_BUCKET = "applied"
	SKIPPED_BUCKET = "skipped"
)

// Ledger is the durable record of every transplanted commit: a bbolt
// database mapping source commit hashes to the target commits created from
// them, plus the commits skipped by filtering and why. Unlike the state
// file, the ledger outlives the run, so finished transplants stay auditable
// and a resumed run can cross check the queue against what was truly
// applied.
type Ledger struct {
	db *bbolt.DB
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger at %s: %w", path, err)
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}

	return l.db.Close()
}

func getFromDb(db *bbolt.DB, bucket []byte, id []byte) ([]byte, error) {
	if db == nil {
		return nil, ErrNilLedger
	}

	var r []byte
	err := db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		v := b.Get(id)
		if v == nil {
			return nil
		}
		r = make([]byte, len(v))
		copy(r, v)

		return nil
	})

	return r, err
}

func putToDb(db *bbolt.DB, bucket []byte, id []byte, value []byte) error {
	if db == nil {
		return ErrNilLedger
	}

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}

		return b.Put(id, value)
	})
}

// RecordApplied records the target commit created from a source commit.
func (l *Ledger) RecordApplied(source, target plumbing.Hash) error {
	return putToDb(l.db, []byte(APPLIED_BUCKET), source[:], target[:])
}

// RecordSkipped records a commit dropped by filtering and the rule that
// dropped it.
func (l *Ledger) RecordSkipped(source plumbing.Hash, reason string) error {
	return putToDb(l.db, []byte(SKIPPED_BUCKET), source[:], []byte(reason))
}

// Applied looks up the target commit a source commit was transplanted to.
func (l *Ledger) Applied(source plumbing.Hash) (plumbing.Hash, bool, error) {
	v, err := getFromDb(l.db, []byte(APPLIED_BUCKET), source[:])
	if err != nil || v == nil {
		return plumbing.ZeroHash, false, err
	}

	var target plumbing.Hash
	copy(target[:], v)

	return target, true, nil
}

// Skipped looks up the drop reason of a skipped source commit.
func (l *Ledger) Skipped(source plumbing.Hash) (string, bool, error) {
	v, err := getFromDb(l.db, []byte(SKIPPED_BUCKET), source[:])
	if err != nil || v == nil {
		return "", false, err
	}

	return string(v), true, nil
}

// ForEachApplied walks the applied mapping in key order.
func (l *Ledger) ForEachApplied(fn func(source, target plumbing.Hash) error) error {
	if l == nil || l.db == nil {
		return ErrNilLedger
	}

	return l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(APPLIED_BUCKET))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var source, target plumbing.Hash
			copy(source[:], k)
			copy(target[:], v)

			return fn(source, target)
		})
	})
}

// ForEachSkipped walks the skipped records in key order.
func (l *Ledger) ForEachSkipped(fn func(source plumbing.Hash, reason string) error) error {
	if l == nil || l.db == nil {
		return ErrNilLedger
	}

	return l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(SKIPPED_BUCKET))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var source plumbing.Hash
			copy(source[:], k)

			return fn(source, string(v))
		})
	})
}

// Counts returns how many commits are recorded as applied and skipped.
func (l *Ledger) Counts() (applied int, skipped int, err error) {
	if l == nil || l.db == nil {
		return 0, 0, ErrNilLedger
	}

	err = l.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(APPLIED_BUCKET)); b != nil {
			applied = b.Stats().KeyN
		}
		if b := tx.Bucket([]byte(SKIPPED_BUCKET)); b != nil {
			skipped = b.Stats().KeyN
		}

		return nil
	})

	return applied, skipped, err
}
