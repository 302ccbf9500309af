package trainer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/example/chunktrainer/internal/database"
	"github.com/example/chunktrainer/internal/sm2"
	"github.com/example/chunktrainer/pkg/models"
)

// ProgressPoint is one sample of a chunk's scheduling state over time,
// for ease-factor graphs.
type ProgressPoint struct {
	ReviewedAt   time.Time   `json:"reviewed_at"`
	Quality      sm2.Quality `json:"quality"`
	EaseFactor   float64     `json:"ease_factor"`
	IntervalDays int         `json:"interval_days"`
}

// Progress summarizes a chunk's review history.
type Progress struct {
	ChunkID int64           `json:"chunk_id"`
	Reviews int             `json:"reviews"`
	Streak  int             `json:"streak"` // consecutive passes, counted from the latest review
	Points  []ProgressPoint `json:"points"`
}

// VerifyResult compares a chunk's stored scheduling snapshot with the
// state recomputed from its review history.
type VerifyResult struct {
	ChunkID  int64     `json:"chunk_id"`
	Reviews  int       `json:"reviews"`
	Match    bool      `json:"match"`
	Stored   sm2.State `json:"stored"`
	Replayed sm2.State `json:"replayed"`
}

// Progress builds the per-chunk progress series from the history log.
func (s *Service) Progress(ctx context.Context, userID string, chunkID int64) (*Progress, error) {
	events, err := s.History(ctx, userID, chunkID)
	if err != nil {
		return nil, err
	}
	p := &Progress{ChunkID: chunkID, Reviews: len(events)}
	for _, e := range events {
		p.Points = append(p.Points, ProgressPoint{
			ReviewedAt:   e.ReviewedAt,
			Quality:      e.Quality,
			EaseFactor:   e.EaseFactorAfter,
			IntervalDays: e.IntervalDaysAfter,
		})
	}
	for i := len(events) - 1; i >= 0 && events[i].Quality.IsPass(); i-- {
		p.Streak++
	}
	return p, nil
}

// replay recomputes scheduling state from scratch by running every review
// event through the scheduler in order. Because sm2.Update is
// deterministic, this reproduces exactly the state the chunk should be in.
func replay(createdAt time.Time, events []models.ReviewEvent) (sm2.State, error) {
	state := sm2.NewState(createdAt)
	for _, e := range events {
		next, err := sm2.Update(state, e.Quality, e.ReviewedAt)
		if err != nil {
			return sm2.State{}, fmt.Errorf("replay of event %d: %w", e.ID, err)
		}
		state = next
	}
	return state, nil
}

// VerifyChunk recomputes a chunk's state from its review history and
// reports whether the stored snapshot matches. A mismatch means either the
// snapshot is corrupted or the chunk's state was imported/reset outside
// its recorded history; the result carries both states so the caller can
// decide.
func (s *Service) VerifyChunk(ctx context.Context, userID string, chunkID int64) (*VerifyResult, error) {
	chunk, err := s.store.GetChunkRaw(ctx, userID, chunkID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ReviewsForChunk(ctx, userID, chunkID)
	if err != nil {
		return nil, err
	}
	replayed, err := replay(chunk.CreatedAt, events)
	if err != nil {
		return nil, err
	}
	stored := chunk.State()
	return &VerifyResult{
		ChunkID:  chunkID,
		Reviews:  len(events),
		Match:    statesEqual(stored, replayed),
		Stored:   stored,
		Replayed: replayed,
	}, nil
}

// RepairChunk overwrites a chunk's scheduling snapshot with the state
// recomputed from its review history. This is the only supported recovery
// path for corrupted state; it never resets progress to defaults.
func (s *Service) RepairChunk(ctx context.Context, userID string, chunkID int64, at time.Time) (*models.Chunk, error) {
	var repaired *models.Chunk
	err := s.store.InTx(ctx, func(tx *database.Store) error {
		chunk, err := tx.GetChunkRaw(ctx, userID, chunkID)
		if err != nil {
			return err
		}
		events, err := tx.ReviewsForChunk(ctx, userID, chunkID)
		if err != nil {
			return err
		}
		state, err := replay(chunk.CreatedAt, events)
		if err != nil {
			return err
		}
		chunk.SetState(state)
		chunk.UpdatedAt = at
		if err := tx.UpsertChunk(ctx, chunk); err != nil {
			return err
		}
		repaired = chunk
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Warnw("chunk repaired from history", "user", userID, "chunk", chunkID)
	return repaired, nil
}

func statesEqual(a, b sm2.State) bool {
	return math.Abs(a.EaseFactor-b.EaseFactor) < 1e-9 &&
		a.IntervalDays == b.IntervalDays &&
		a.Repetitions == b.Repetitions &&
		a.DueAt.Equal(b.DueAt)
}
