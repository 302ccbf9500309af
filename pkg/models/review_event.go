package models

import (
	"time"

	"github.com/example/chunktrainer/internal/sm2"
)

// ReviewEvent is one entry in the append-only review history. Events are
// never updated; EaseFactorAfter and IntervalDaysAfter snapshot the
// post-review state so history can be audited and replayed.
type ReviewEvent struct {
	ID                int64       `json:"id" db:"id"`
	ChunkID           int64       `json:"chunk_id" db:"chunk_id"`
	UserID            string      `json:"user_id" db:"user_id"`
	Quality           sm2.Quality `json:"quality" db:"quality"`
	ReviewedAt        time.Time   `json:"reviewed_at" db:"reviewed_at"`
	EaseFactorAfter   float64     `json:"ease_factor_after" db:"ease_factor_after"`
	IntervalDaysAfter int         `json:"interval_days_after" db:"interval_days_after"`
}
