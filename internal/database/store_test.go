package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/chunktrainer/internal/sm2"
	"github.com/example/chunktrainer/pkg/models"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) (*Store, *sqlx.DB) {
	t.Helper()
	db, err := sqlx.Connect("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Single connection, or each query may see a fresh in-memory DB.
	db.SetMaxOpenConns(1)
	if err := initializeSchema(db, "sqlite"); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func testChunk(user, prompt string, due time.Time) *models.Chunk {
	c := models.NewChunk(user, prompt, "answer for "+prompt, baseTime)
	c.DueAt = due
	return c
}

func TestUpsertAndGetChunk(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	c := testChunk("alice", "phrase one", baseTime)
	if err := store.UpsertChunk(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("expected inserted chunk to get an id")
	}

	got, err := store.GetChunk(ctx, "alice", c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Prompt != c.Prompt || got.Answer != c.Answer {
		t.Fatalf("content mismatch: %+v", got)
	}
	if got.EaseFactor != sm2.DefaultEaseFactor || got.IntervalDays != 0 || got.Repetitions != 0 {
		t.Fatalf("unexpected default state: %+v", got)
	}
	if !got.DueAt.Equal(baseTime) {
		t.Fatalf("due_at = %v, want %v", got.DueAt, baseTime)
	}
}

func TestGetChunkNotFound(t *testing.T) {
	store, _ := setupTestStore(t)
	if _, err := store.GetChunk(context.Background(), "alice", 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetChunkScopedToLearner(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	c := testChunk("alice", "hers", baseTime)
	if err := store.UpsertChunk(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.GetChunk(ctx, "bob", c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-learner get: err = %v, want ErrNotFound", err)
	}
}

func TestUpsertChunkCannotCrossNamespaces(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	hers := testChunk("alice", "hers", baseTime)
	if err := store.UpsertChunk(ctx, hers); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Bob writes a chunk carrying alice's id.
	his := testChunk("bob", "overwritten", baseTime)
	his.ID = hers.ID
	if err := store.UpsertChunk(ctx, his); !errors.Is(err, ErrIDConflict) {
		t.Fatalf("err = %v, want ErrIDConflict", err)
	}

	got, err := store.GetChunk(ctx, "alice", hers.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Prompt != "hers" {
		t.Fatalf("alice's chunk was overwritten across the namespace: %+v", got)
	}
	if _, err := store.GetChunk(ctx, "bob", hers.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bob gained a chunk he never owned: %v", err)
	}
}

func TestUpsertExplicitIDOverwrites(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	c := testChunk("alice", "original", baseTime)
	c.ID = 7
	c.IntervalDays = 6
	c.Repetitions = 2
	if err := store.UpsertChunk(ctx, c); err != nil {
		t.Fatalf("insert with id: %v", err)
	}

	c.Prompt = "edited"
	c.IntervalDays = 16
	if err := store.UpsertChunk(ctx, c); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := store.GetChunk(ctx, "alice", 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Prompt != "edited" || got.IntervalDays != 16 {
		t.Fatalf("overwrite not applied: %+v", got)
	}
}

func TestListDueOrderingAndLimit(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	// Three overdue (two sharing a due date), one due exactly now, one future.
	overdueA := testChunk("alice", "overdue a", baseTime.AddDate(0, 0, -3))
	overdueB := testChunk("alice", "overdue b", baseTime.AddDate(0, 0, -1))
	overdueC := testChunk("alice", "overdue c", baseTime.AddDate(0, 0, -1))
	dueNow := testChunk("alice", "due now", baseTime)
	future := testChunk("alice", "future", baseTime.AddDate(0, 0, 2))
	for _, c := range []*models.Chunk{overdueA, overdueB, overdueC, dueNow, future} {
		if err := store.UpsertChunk(ctx, c); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	due, err := store.ListDue(ctx, "alice", baseTime, 5)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	wantOrder := []int64{overdueA.ID, overdueB.ID, overdueC.ID, dueNow.ID}
	if len(due) != len(wantOrder) {
		t.Fatalf("got %d due chunks, want %d", len(due), len(wantOrder))
	}
	for i, want := range wantOrder {
		if due[i].ID != want {
			t.Fatalf("position %d: id = %d, want %d", i, due[i].ID, want)
		}
	}

	// The future chunk must never appear, whatever the limit.
	for _, c := range due {
		if c.DueAt.After(baseTime) {
			t.Fatalf("chunk %d due in the future was returned", c.ID)
		}
	}

	limited, err := store.ListDue(ctx, "alice", baseTime, 2)
	if err != nil {
		t.Fatalf("list due limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != overdueA.ID || limited[1].ID != overdueB.ID {
		t.Fatalf("limit not honored or wrong priority: %+v", limited)
	}
}

func TestCorruptedStateSurfaces(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	c := testChunk("alice", "phrase", baseTime)
	if err := store.UpsertChunk(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Corrupt the row behind the store's back.
	if _, err := db.Exec("UPDATE chunks SET ease_factor = 0.9 WHERE id = $1", c.ID); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	if _, err := store.GetChunk(ctx, "alice", c.ID); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("get: err = %v, want ErrCorrupted", err)
	}
	if _, err := store.ListDue(ctx, "alice", baseTime, 5); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("list due: err = %v, want ErrCorrupted", err)
	}
	// The raw accessor still hands the record out for inspection.
	raw, err := store.GetChunkRaw(ctx, "alice", c.ID)
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	if raw.EaseFactor != 0.9 {
		t.Fatalf("raw ease factor = %v, want 0.9", raw.EaseFactor)
	}
}

func TestAppendAndListReviews(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	c := testChunk("alice", "phrase", baseTime)
	if err := store.UpsertChunk(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	qualities := []sm2.Quality{sm2.Good, sm2.Hard, sm2.Easy}
	for i, q := range qualities {
		e := &models.ReviewEvent{
			ChunkID:           c.ID,
			UserID:            "alice",
			Quality:           q,
			ReviewedAt:        baseTime.AddDate(0, 0, i),
			EaseFactorAfter:   2.5,
			IntervalDaysAfter: 1,
		}
		if err := store.AppendReview(ctx, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if e.ID == 0 {
			t.Fatal("expected event id to be populated")
		}
	}

	events, err := store.ReviewsForChunk(ctx, "alice", c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, e := range events {
		if e.Quality != qualities[i] {
			t.Fatalf("event %d quality = %v, want %v", i, e.Quality, qualities[i])
		}
		if i > 0 && e.ReviewedAt.Before(events[i-1].ReviewedAt) {
			t.Fatalf("events not ordered by reviewed_at")
		}
	}
}

func TestDeleteChunksRemovesHistory(t *testing.T) {
	store, db := setupTestStore(t)
	ctx := context.Background()

	keep := testChunk("alice", "keep", baseTime)
	drop := testChunk("alice", "drop", baseTime)
	for _, c := range []*models.Chunk{keep, drop} {
		if err := store.UpsertChunk(ctx, c); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		e := &models.ReviewEvent{ChunkID: c.ID, UserID: "alice", Quality: sm2.Good,
			ReviewedAt: baseTime, EaseFactorAfter: 2.5, IntervalDaysAfter: 1}
		if err := store.AppendReview(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := store.DeleteChunks(ctx, "alice", []int64{drop.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetChunk(ctx, "alice", drop.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted chunk still present: %v", err)
	}
	var eventCount int
	if err := db.Get(&eventCount, "SELECT COUNT(*) FROM review_events WHERE chunk_id = $1", drop.ID); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 0 {
		t.Fatalf("deleted chunk still has %d events", eventCount)
	}
	if _, err := store.GetChunk(ctx, "alice", keep.ID); err != nil {
		t.Fatalf("unrelated chunk affected: %v", err)
	}
}

func TestResetIntervals(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	c := testChunk("alice", "phrase", baseTime.AddDate(0, 0, 30))
	c.EaseFactor = 2.1
	c.IntervalDays = 30
	c.Repetitions = 5
	if err := store.UpsertChunk(ctx, c); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now := baseTime.AddDate(0, 0, 10)
	if err := store.ResetIntervals(ctx, "alice", []int64{c.ID}, now); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, err := store.GetChunk(ctx, "alice", c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IntervalDays != 0 || got.Repetitions != 0 || !got.DueAt.Equal(now) {
		t.Fatalf("reset not applied: %+v", got)
	}
	// Ease factor survives a reset; it still reflects chunk difficulty.
	if got.EaseFactor != 2.1 {
		t.Fatalf("ease factor = %v, want 2.1", got.EaseFactor)
	}
}

func TestDeleteAllScopedToLearner(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	mine := testChunk("alice", "mine", baseTime)
	theirs := testChunk("bob", "theirs", baseTime)
	for _, c := range []*models.Chunk{mine, theirs} {
		if err := store.UpsertChunk(ctx, c); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if err := store.DeleteAll(ctx, "alice"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if _, err := store.GetChunk(ctx, "alice", mine.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("alice's chunk survived the wipe: %v", err)
	}
	if _, err := store.GetChunk(ctx, "bob", theirs.ID); err != nil {
		t.Fatalf("bob's chunk was wiped too: %v", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	c := testChunk("alice", "phrase", baseTime)
	err := store.InTx(ctx, func(tx *Store) error {
		if err := tx.UpsertChunk(ctx, c); err != nil {
			return err
		}
		e := &models.ReviewEvent{ChunkID: c.ID, UserID: "alice", Quality: sm2.Good,
			ReviewedAt: baseTime, EaseFactorAfter: 2.5, IntervalDaysAfter: 1}
		if err := tx.AppendReview(ctx, e); err != nil {
			return err
		}
		return fmt.Errorf("forced failure")
	})
	if err == nil {
		t.Fatal("expected transaction error")
	}

	// Neither write may be visible.
	chunks, err := store.AllChunks(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("rolled-back chunk is visible: %+v", chunks)
	}
}

func TestStats(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	mastered := testChunk("alice", "mastered", baseTime.AddDate(0, 0, 40))
	mastered.Repetitions = 6
	mastered.IntervalDays = 45
	overdue := testChunk("alice", "overdue", baseTime.AddDate(0, 0, -1))
	fresh := testChunk("alice", "fresh", baseTime.AddDate(0, 0, 3))
	for _, c := range []*models.Chunk{mastered, overdue, fresh} {
		if err := store.UpsertChunk(ctx, c); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	stats, err := store.Stats(ctx, "alice", baseTime)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalChunks != 3 || stats.DueNow != 1 || stats.Mastered != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.AvgEaseFactor < 2.4 || stats.AvgEaseFactor > 2.6 {
		t.Fatalf("avg ease factor = %v", stats.AvgEaseFactor)
	}
}
