package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/chunktrainer/pkg/models"
)

// GetChunk returns one chunk by id, scoped to the learner.
func (s *Store) GetChunk(ctx context.Context, userID string, id int64) (*models.Chunk, error) {
	var c models.Chunk
	err := sqlx.GetContext(ctx, s.ext, &c,
		"SELECT * FROM chunks WHERE user_id = $1 AND id = $2", userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %d: %w", id, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %v", ErrCorrupted, id, err)
	}
	return &c, nil
}

// GetChunkForUpdate is GetChunk with a row lock on engines that support
// it, for read-modify-write transactions. On sqlite the single-writer
// connection already serializes writers, so the lock is a no-op there.
func (s *Store) GetChunkForUpdate(ctx context.Context, userID string, id int64) (*models.Chunk, error) {
	query := "SELECT * FROM chunks WHERE user_id = $1 AND id = $2"
	if s.ext.DriverName() == "postgres" {
		query += " FOR UPDATE"
	}
	var c models.Chunk
	err := sqlx.GetContext(ctx, s.ext, &c, query, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %d: %w", id, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %v", ErrCorrupted, id, err)
	}
	return &c, nil
}

// GetChunkRaw returns a chunk without checking the scheduling invariants.
// It exists for the corruption inspection and repair paths, which need to
// look at records GetChunk refuses to hand out.
func (s *Store) GetChunkRaw(ctx context.Context, userID string, id int64) (*models.Chunk, error) {
	var c models.Chunk
	err := sqlx.GetContext(ctx, s.ext, &c,
		"SELECT * FROM chunks WHERE user_id = $1 AND id = $2", userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %d: %w", id, err)
	}
	return &c, nil
}

// UpsertChunk creates or overwrites a chunk. A chunk with a zero ID is
// inserted and its ID populated; a chunk with an explicit ID is written
// as-is, which is what makes export -> import round trips lossless.
// Overwrites are confined to the owner's namespace: naming an id held by
// another learner returns ErrIDConflict and changes nothing.
func (s *Store) UpsertChunk(ctx context.Context, c *models.Chunk) error {
	if c.ID == 0 {
		err := s.ext.QueryRowxContext(ctx, `
			INSERT INTO chunks (user_id, prompt, answer, ease_factor, interval_days,
			                    repetitions, due_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			c.UserID, c.Prompt, c.Answer, c.EaseFactor, c.IntervalDays,
			c.Repetitions, c.DueAt, c.CreatedAt, c.UpdatedAt,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
		return nil
	}
	// The update arm only fires inside the owner's namespace; a write that
	// names a chunk id held by another learner changes zero rows.
	res, err := s.ext.ExecContext(ctx, `
		INSERT INTO chunks (id, user_id, prompt, answer, ease_factor, interval_days,
		                    repetitions, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			prompt        = excluded.prompt,
			answer        = excluded.answer,
			ease_factor   = excluded.ease_factor,
			interval_days = excluded.interval_days,
			repetitions   = excluded.repetitions,
			due_at        = excluded.due_at,
			updated_at    = excluded.updated_at
		WHERE chunks.user_id = excluded.user_id`,
		c.ID, c.UserID, c.Prompt, c.Answer, c.EaseFactor, c.IntervalDays,
		c.Repetitions, c.DueAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %d: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %d: %w", c.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrIDConflict, c.ID)
	}
	return nil
}

// ListDue returns chunks whose due date is at or before the given time,
// oldest due first with ties broken by id, truncated to limit. Chunks due
// strictly in the future are never returned.
func (s *Store) ListDue(ctx context.Context, userID string, before time.Time, limit int) ([]models.Chunk, error) {
	var chunks []models.Chunk
	err := sqlx.SelectContext(ctx, s.ext, &chunks, `
		SELECT * FROM chunks
		WHERE user_id = $1 AND due_at <= $2
		ORDER BY due_at ASC, id ASC
		LIMIT $3`,
		userID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due chunks: %w", err)
	}
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrCorrupted, chunks[i].ID, err)
		}
	}
	return chunks, nil
}

// AllChunks returns every chunk for the learner, newest first.
func (s *Store) AllChunks(ctx context.Context, userID string) ([]models.Chunk, error) {
	var chunks []models.Chunk
	err := sqlx.SelectContext(ctx, s.ext, &chunks,
		"SELECT * FROM chunks WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// DeleteChunks removes the given chunks and their review events. Deleting
// history is allowed only here and in DeleteAll; review events are
// otherwise immutable.
func (s *Store) DeleteChunks(ctx context.Context, userID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		"DELETE FROM review_events WHERE user_id = ? AND chunk_id IN (?)", userID, ids)
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := s.ext.ExecContext(ctx, s.ext.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete review events: %w", err)
	}
	query, args, err = sqlx.In(
		"DELETE FROM chunks WHERE user_id = ? AND id IN (?)", userID, ids)
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	if _, err := s.ext.ExecContext(ctx, s.ext.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// ResetIntervals puts the given chunks back into the "new" scheduling state:
// zero interval and repetitions, due immediately. The ease factor is kept,
// since it still reflects how hard the chunk has proven to be.
func (s *Store) ResetIntervals(ctx context.Context, userID string, ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`
		UPDATE chunks
		SET interval_days = 0, repetitions = 0, due_at = ?, updated_at = ?
		WHERE user_id = ? AND id IN (?)`,
		now, now, userID, ids)
	if err != nil {
		return fmt.Errorf("failed to build reset query: %w", err)
	}
	if _, err := s.ext.ExecContext(ctx, s.ext.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to reset intervals: %w", err)
	}
	return nil
}

// DeleteAll wipes the learner's namespace: every chunk and every review
// event. Irreversible.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	if _, err := s.ext.ExecContext(ctx,
		"DELETE FROM review_events WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("failed to delete review events: %w", err)
	}
	if _, err := s.ext.ExecContext(ctx,
		"DELETE FROM chunks WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Learners returns every distinct learner id present in the store.
func (s *Store) Learners(ctx context.Context) ([]string, error) {
	var users []string
	err := sqlx.SelectContext(ctx, s.ext, &users,
		"SELECT DISTINCT user_id FROM chunks ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list learners: %w", err)
	}
	return users, nil
}

// CountDue returns how many chunks are due at or before the given time.
func (s *Store) CountDue(ctx context.Context, userID string, before time.Time) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, s.ext, &n,
		"SELECT COUNT(*) FROM chunks WHERE user_id = $1 AND due_at <= $2", userID, before)
	if err != nil {
		return 0, fmt.Errorf("failed to count due chunks: %w", err)
	}
	return n, nil
}

// Stats summarizes a learner's collection.
func (s *Store) Stats(ctx context.Context, userID string, now time.Time) (*models.Stats, error) {
	stats := &models.Stats{}
	if err := sqlx.GetContext(ctx, s.ext, &stats.TotalChunks,
		"SELECT COUNT(*) FROM chunks WHERE user_id = $1", userID); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	var err error
	stats.DueNow, err = s.CountDue(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if err := sqlx.GetContext(ctx, s.ext, &stats.Mastered, `
		SELECT COUNT(*) FROM chunks
		WHERE user_id = $1 AND repetitions >= 5 AND interval_days >= 30`, userID); err != nil {
		return nil, fmt.Errorf("failed to count mastered chunks: %w", err)
	}
	if err := sqlx.GetContext(ctx, s.ext, &stats.AvgEaseFactor,
		"SELECT COALESCE(AVG(ease_factor), 2.5) FROM chunks WHERE user_id = $1", userID); err != nil {
		return nil, fmt.Errorf("failed to average ease factor: %w", err)
	}
	return stats, nil
}
