package models

import (
	"time"

	"github.com/example/chunktrainer/internal/sm2"
)

// Chunk represents a memorized phrase pair tracked for spaced repetition.
// Prompt and Answer are opaque text as far as scheduling is concerned.
type Chunk struct {
	ID           int64     `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Prompt       string    `json:"prompt" db:"prompt"`
	Answer       string    `json:"answer" db:"answer"`
	EaseFactor   float64   `json:"ease_factor" db:"ease_factor"`     // SM-2 EF parameter, >= 1.3
	IntervalDays int       `json:"interval_days" db:"interval_days"` // Days until next review, 0 for new chunks
	Repetitions  int       `json:"repetitions" db:"repetitions"`     // Consecutive successful reviews
	DueAt        time.Time `json:"due_at" db:"due_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// NewChunk returns a chunk with default scheduling state, due immediately.
func NewChunk(userID, prompt, answer string, now time.Time) *Chunk {
	return &Chunk{
		UserID:     userID,
		Prompt:     prompt,
		Answer:     answer,
		EaseFactor: sm2.DefaultEaseFactor,
		DueAt:      now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// State extracts the chunk's SM-2 scheduling state.
func (c *Chunk) State() sm2.State {
	return sm2.State{
		EaseFactor:   c.EaseFactor,
		IntervalDays: c.IntervalDays,
		Repetitions:  c.Repetitions,
		DueAt:        c.DueAt,
	}
}

// SetState writes a scheduling state back onto the chunk.
func (c *Chunk) SetState(s sm2.State) {
	c.EaseFactor = s.EaseFactor
	c.IntervalDays = s.IntervalDays
	c.Repetitions = s.Repetitions
	c.DueAt = s.DueAt
}

// Validate checks the scheduling invariants on the chunk. A violation in
// state read back from storage means the record is corrupted.
func (c *Chunk) Validate() error {
	return c.State().Validate()
}
