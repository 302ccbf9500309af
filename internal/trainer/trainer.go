// Package trainer wires the SM-2 scheduler to the persistence layer and
// exposes the operations the outer shells (HTTP, reminders, import) call.
package trainer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/chunktrainer/internal/database"
	"github.com/example/chunktrainer/internal/sm2"
	"github.com/example/chunktrainer/pkg/models"
)

// DefaultBatchSize is the number of chunks a daily review session surfaces.
const DefaultBatchSize = 5

// Service coordinates scheduling updates. All methods take the review time
// explicitly so behavior is deterministic under test; callers pass
// time.Now().UTC() in production.
type Service struct {
	store     *database.Store
	log       *zap.SugaredLogger
	batchSize int
}

// New creates a trainer service. A batchSize of 0 falls back to
// DefaultBatchSize.
func New(store *database.Store, log *zap.SugaredLogger, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{store: store, log: log, batchSize: batchSize}
}

// SubmitReview applies one graded review to a chunk. The chunk update and
// the history append run in a single transaction: either both land or
// neither does. Returns the updated chunk.
func (s *Service) SubmitReview(ctx context.Context, userID string, chunkID int64, quality sm2.Quality, at time.Time) (*models.Chunk, error) {
	if !quality.IsValid() {
		return nil, fmt.Errorf("%w: %d", sm2.ErrInvalidQuality, int(quality))
	}

	var updated *models.Chunk
	err := s.store.InTx(ctx, func(tx *database.Store) error {
		chunk, err := tx.GetChunkForUpdate(ctx, userID, chunkID)
		if err != nil {
			return err
		}
		next, err := sm2.Update(chunk.State(), quality, at)
		if err != nil {
			return err
		}
		chunk.SetState(next)
		chunk.UpdatedAt = at
		if err := tx.UpsertChunk(ctx, chunk); err != nil {
			return err
		}
		event := &models.ReviewEvent{
			ChunkID:           chunk.ID,
			UserID:            userID,
			Quality:           quality,
			ReviewedAt:        at,
			EaseFactorAfter:   next.EaseFactor,
			IntervalDaysAfter: next.IntervalDays,
		}
		if err := tx.AppendReview(ctx, event); err != nil {
			return err
		}
		updated = chunk
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infow("review submitted",
		"user", userID, "chunk", chunkID, "quality", quality.String(),
		"interval_days", updated.IntervalDays, "due_at", updated.DueAt)
	return updated, nil
}

// TodayBatch returns up to batchSize chunks due at the given time, oldest
// due first. It never backfills with chunks that are not yet due.
func (s *Service) TodayBatch(ctx context.Context, userID string, at time.Time) ([]models.Chunk, error) {
	return s.store.ListDue(ctx, userID, at, s.batchSize)
}

// AddChunk creates a chunk with default scheduling state, due immediately.
func (s *Service) AddChunk(ctx context.Context, userID, prompt, answer string, at time.Time) (*models.Chunk, error) {
	prompt = strings.TrimSpace(prompt)
	answer = strings.TrimSpace(answer)
	if prompt == "" || answer == "" {
		return nil, fmt.Errorf("%w: prompt and answer must be non-empty", sm2.ErrInvalidState)
	}
	chunk := models.NewChunk(userID, prompt, answer, at)
	if err := s.store.UpsertChunk(ctx, chunk); err != nil {
		return nil, err
	}
	s.log.Infow("chunk added", "user", userID, "chunk", chunk.ID)
	return chunk, nil
}

// SaveChunk overwrites a chunk after an edit. The new scheduling state must
// satisfy the SM-2 invariants; edits cannot introduce corruption.
func (s *Service) SaveChunk(ctx context.Context, chunk *models.Chunk, at time.Time) error {
	if err := chunk.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(chunk.Prompt) == "" || strings.TrimSpace(chunk.Answer) == "" {
		return fmt.Errorf("%w: prompt and answer must be non-empty", sm2.ErrInvalidState)
	}
	chunk.UpdatedAt = at
	return s.store.UpsertChunk(ctx, chunk)
}

// GetChunk returns one chunk.
func (s *Service) GetChunk(ctx context.Context, userID string, id int64) (*models.Chunk, error) {
	return s.store.GetChunk(ctx, userID, id)
}

// AllChunks returns the learner's whole collection, newest first.
func (s *Service) AllChunks(ctx context.Context, userID string) ([]models.Chunk, error) {
	return s.store.AllChunks(ctx, userID)
}

// DeleteChunks removes the given chunks and their history.
func (s *Service) DeleteChunks(ctx context.Context, userID string, ids []int64) error {
	return s.store.InTx(ctx, func(tx *database.Store) error {
		return tx.DeleteChunks(ctx, userID, ids)
	})
}

// ResetIntervals puts the given chunks back into the "new" state.
func (s *Service) ResetIntervals(ctx context.Context, userID string, ids []int64, at time.Time) error {
	return s.store.ResetIntervals(ctx, userID, ids, at)
}

// WipeAll destroys the learner's entire namespace. The caller is
// responsible for confirming intent; this method does not ask twice.
func (s *Service) WipeAll(ctx context.Context, userID string) error {
	err := s.store.InTx(ctx, func(tx *database.Store) error {
		return tx.DeleteAll(ctx, userID)
	})
	if err != nil {
		return err
	}
	s.log.Warnw("namespace wiped", "user", userID)
	return nil
}

// History returns a chunk's review events, oldest first.
func (s *Service) History(ctx context.Context, userID string, chunkID int64) ([]models.ReviewEvent, error) {
	if _, err := s.store.GetChunkRaw(ctx, userID, chunkID); err != nil {
		return nil, err
	}
	return s.store.ReviewsForChunk(ctx, userID, chunkID)
}

// Stats summarizes the learner's collection.
func (s *Service) Stats(ctx context.Context, userID string, at time.Time) (*models.Stats, error) {
	return s.store.Stats(ctx, userID, at)
}
