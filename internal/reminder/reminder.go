// Package reminder runs the daily due-count notification job. It only
// reads the store; due-date evaluation itself always happens on demand in
// the trainer, never on a timer.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/example/chunktrainer/internal/database"
)

// Notifier delivers a due-count reminder to a learner.
type Notifier interface {
	DueChunks(userID string, count int) error
}

// LogNotifier writes reminders to the application log. It is always
// registered so reminders are visible even without a telegram channel.
type LogNotifier struct {
	Log *zap.SugaredLogger
}

// DueChunks implements Notifier.
func (n *LogNotifier) DueChunks(userID string, count int) error {
	n.Log.Infow("chunks due for review", "user", userID, "due", count)
	return nil
}

// Scheduler fires the reminder job once a day at a fixed hour.
type Scheduler struct {
	sched     *gocron.Scheduler
	store     *database.Store
	log       *zap.SugaredLogger
	notifiers []Notifier
}

// New creates a reminder scheduler firing daily at the given hour (0-23).
func New(store *database.Store, log *zap.SugaredLogger, hour int, notifiers ...Notifier) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	sched := &Scheduler{sched: s, store: store, log: log, notifiers: notifiers}
	if _, err := s.Every(1).Day().At(fmt.Sprintf("%02d:00", hour)).Do(sched.run); err != nil {
		log.Errorw("failed to schedule reminder job", "hour", hour, "error", err)
	}
	return sched
}

// Start begins running the job in the background.
func (s *Scheduler) Start() {
	s.sched.StartAsync()
}

// Stop terminates the scheduled job.
func (s *Scheduler) Stop() {
	s.sched.Stop()
}

// run counts due chunks per learner and pings every notifier. Failures are
// logged and skipped; a broken channel must not stop the other learners'
// reminders.
func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, err := s.store.Learners(ctx)
	if err != nil {
		s.log.Errorw("failed to list learners for reminders", "error", err)
		return
	}
	now := time.Now().UTC()
	for _, user := range users {
		count, err := s.store.CountDue(ctx, user, now)
		if err != nil {
			s.log.Errorw("failed to count due chunks", "user", user, "error", err)
			continue
		}
		if count == 0 {
			continue
		}
		for _, n := range s.notifiers {
			if err := n.DueChunks(user, count); err != nil {
				s.log.Errorw("failed to send reminder", "user", user, "error", err)
			}
		}
	}
}
