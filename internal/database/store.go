// Package database is the persistence layer: a chunk store and an
// append-only review history log on top of sqlite or postgres.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Sentinel errors. Check with errors.Is. Anything else coming out of this
// package is a storage failure and safe to retry.
var (
	// ErrNotFound reports an operation on a chunk id that doesn't exist.
	ErrNotFound = errors.New("database: chunk not found")
	// ErrCorrupted reports stored scheduling state that violates the SM-2
	// invariants. It is never repaired automatically; the history log is
	// the repair path.
	ErrCorrupted = errors.New("database: corrupted scheduling state")
	// ErrIDConflict reports a write that names a chunk id owned by another
	// learner. Writes never cross namespaces.
	ErrIDConflict = errors.New("database: chunk id owned by another learner")
)

// Store provides chunk and review-event persistence scoped per learner.
// All mutating methods on a transactional Store (see InTx) are atomic.
type Store struct {
	db  *sqlx.DB        // nil when the store is transaction-scoped
	ext sqlx.ExtContext // the DB itself, or the running transaction
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, ext: db}
}

// InTx runs fn against a transaction-scoped Store. The transaction is
// committed if fn returns nil and rolled back otherwise, so either every
// write inside fn becomes visible or none does.
func (s *Store) InTx(ctx context.Context, fn func(*Store) error) error {
	if s.db == nil {
		// Already inside a transaction; just run in the same one.
		return fn(s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{ext: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
