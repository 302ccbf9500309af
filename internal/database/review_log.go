package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/chunktrainer/pkg/models"
)

// AppendReview adds one event to the history log and populates its ID.
// Events are append-only; there is no update or delete counterpart.
func (s *Store) AppendReview(ctx context.Context, e *models.ReviewEvent) error {
	err := s.ext.QueryRowxContext(ctx, `
		INSERT INTO review_events (chunk_id, user_id, quality, reviewed_at,
		                           ease_factor_after, interval_days_after)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.ChunkID, e.UserID, e.Quality, e.ReviewedAt,
		e.EaseFactorAfter, e.IntervalDaysAfter,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to append review event: %w", err)
	}
	return nil
}

// ReviewsForChunk returns a chunk's full review history, oldest first.
func (s *Store) ReviewsForChunk(ctx context.Context, userID string, chunkID int64) ([]models.ReviewEvent, error) {
	var events []models.ReviewEvent
	err := sqlx.SelectContext(ctx, s.ext, &events, `
		SELECT * FROM review_events
		WHERE user_id = $1 AND chunk_id = $2
		ORDER BY reviewed_at ASC, id ASC`,
		userID, chunkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review events for chunk %d: %w", chunkID, err)
	}
	return events, nil
}
