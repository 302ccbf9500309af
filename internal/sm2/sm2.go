// Package sm2 implements the SuperMemo-2 spaced repetition algorithm.
//
// The package is pure: Update takes the current scheduling state, a quality
// grade and an explicit "now", and returns the next state. Nothing here
// touches the database or the wall clock, which keeps review history
// replayable and the scheduler trivially testable.
package sm2

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Sentinel errors. Check with errors.Is.
var (
	// ErrInvalidQuality reports a quality grade outside {Hard, Good, Easy}.
	ErrInvalidQuality = errors.New("sm2: invalid quality grade")
	// ErrInvalidState reports scheduling state that violates the SM-2
	// invariants on entry. Callers should treat it as data corruption,
	// not as a normal failure.
	ErrInvalidState = errors.New("sm2: scheduling state out of bounds")
)

const (
	// MinEaseFactor is the floor SM-2 places on the easiness factor.
	MinEaseFactor = 1.3
	// DefaultEaseFactor is the easiness factor assigned to new chunks.
	DefaultEaseFactor = 2.5

	// Grades at or above passThreshold count as a successful recall.
	passThreshold = 3
)

// Quality is the learner's self-reported recall difficulty, collapsed from
// SM-2's 0-5 scale to the three review buttons.
type Quality int

const (
	// Hard means the chunk was not recalled, or only with serious trouble.
	// It scores below the pass threshold and resets the repetition streak.
	Hard Quality = iota + 1
	// Good means the chunk was recalled with some effort.
	Good
	// Easy means the chunk was recalled without hesitation.
	Easy
)

// qualityScore maps the three buttons onto SM-2's 0-5 quality scale.
// Hard deliberately scores below passThreshold, so it is a fail.
var qualityScore = map[Quality]int{
	Hard: 2,
	Good: 4,
	Easy: 5,
}

var qualityNames = [...]string{Hard: "Hard", Good: "Good", Easy: "Easy"}

// String returns "Hard", "Good" or "Easy", or "Quality(n)" for invalid values.
func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// IsValid reports whether q is one of the three recognized grades.
func (q Quality) IsValid() bool {
	return q >= Hard && q <= Easy
}

// Score returns q's position on SM-2's 0-5 quality scale.
func (q Quality) Score() int {
	return qualityScore[q]
}

// IsPass reports whether q counts as a successful recall.
func (q Quality) IsPass() bool {
	return qualityScore[q] >= passThreshold
}

// ParseQuality converts a button name ("Hard", "Good", "Easy") to a
// Quality. Matching ignores case.
func ParseQuality(s string) (Quality, error) {
	for q, name := range qualityNames {
		if name != "" && strings.EqualFold(name, s) {
			return Quality(q), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	if !q.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}
	return []byte(qualityNames[q]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(text []byte) error {
	v, err := ParseQuality(string(text))
	if err != nil {
		return err
	}
	*q = v
	return nil
}

// Value implements driver.Valuer so a Quality is stored as its button name.
func (q Quality) Value() (driver.Value, error) {
	if !q.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}
	return qualityNames[q], nil
}

// Scan implements sql.Scanner.
func (q *Quality) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return q.UnmarshalText([]byte(v))
	case []byte:
		return q.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidQuality, src)
	}
}

// State is the scheduling state SM-2 carries for one chunk.
type State struct {
	EaseFactor   float64
	IntervalDays int
	Repetitions  int
	DueAt        time.Time
}

// NewState returns the state assigned to a chunk that has never been
// reviewed: default ease factor, zero interval, due immediately.
func NewState(now time.Time) State {
	return State{
		EaseFactor: DefaultEaseFactor,
		DueAt:      now,
	}
}

// Validate checks the SM-2 invariants on s.
func (s State) Validate() error {
	if s.EaseFactor < MinEaseFactor {
		return fmt.Errorf("%w: ease factor %.4f is below %.1f", ErrInvalidState, s.EaseFactor, MinEaseFactor)
	}
	if s.IntervalDays < 0 {
		return fmt.Errorf("%w: negative interval %d", ErrInvalidState, s.IntervalDays)
	}
	if s.Repetitions < 0 {
		return fmt.Errorf("%w: negative repetition count %d", ErrInvalidState, s.Repetitions)
	}
	return nil
}

// Update applies one review to s and returns the next state.
//
// The easiness factor is always recomputed with the standard SM-2 quadratic
// adjustment and floored at MinEaseFactor. A failing grade resets the
// repetition streak and schedules the chunk for tomorrow; a passing grade
// grows the interval along the 1, 6, round(interval*EF') ladder.
//
// Update is deterministic: identical inputs produce identical outputs.
func Update(s State, q Quality, now time.Time) (State, error) {
	if !q.IsValid() {
		return State{}, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}

	// EF' = EF + (0.1 - (5-q)*(0.08 + (5-q)*0.02)), floored at 1.3.
	score := float64(q.Score())
	ef := s.EaseFactor + (0.1 - (5-score)*(0.08+(5-score)*0.02))
	if ef < MinEaseFactor {
		ef = MinEaseFactor
	}

	next := State{EaseFactor: ef}
	if q.Score() < passThreshold {
		// Failed recall: start the streak over, retry tomorrow.
		next.Repetitions = 0
		next.IntervalDays = 1
	} else {
		next.Repetitions = s.Repetitions + 1
		switch next.Repetitions {
		case 1:
			next.IntervalDays = 1
		case 2:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Round(float64(s.IntervalDays) * ef))
		}
		if next.IntervalDays < 1 {
			next.IntervalDays = 1
		}
	}
	next.DueAt = now.AddDate(0, 0, next.IntervalDays)
	return next, nil
}
