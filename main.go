package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/chunktrainer/internal/config"
	"github.com/example/chunktrainer/internal/database"
	"github.com/example/chunktrainer/internal/notify"
	"github.com/example/chunktrainer/internal/reminder"
	"github.com/example/chunktrainer/internal/server"
	"github.com/example/chunktrainer/internal/trainer"
)

// seedChunks are inserted by -seed into an empty collection so a fresh
// install has something to practice on.
var seedChunks = [][2]string{
	{"おはようございます。調子はどうですか？", "Good morning. How are you?"},
	{"こんばんは。調子はどうですか？", "Good evening. How are you?"},
	{"えーと、なんて言えばいいかな…", "Let me think for a sec."},
	{"日々のトレーニングの積み重ねが大事だよね", "It's the daily training that matters."},
	{"情報をキャッチアップは頻繁に", "I've got a lot to catch up on information-wise."},
}

func main() {
	seed := flag.Bool("seed", false, "seed example chunks into an empty collection and exit")
	flag.Parse()

	cfg := config.Load()

	logger, err := newLogger(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		sugar.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	store := database.New(db)
	svc := trainer.New(store, sugar, cfg.BatchSize)

	if *seed {
		if err := runSeed(svc, sugar); err != nil {
			sugar.Fatalw("seeding failed", "error", err)
		}
		return
	}

	// Daily due-count reminders, if enabled.
	if cfg.ReminderHour >= 0 && cfg.ReminderHour <= 23 {
		notifiers := []reminder.Notifier{&reminder.LogNotifier{Log: sugar}}
		if cfg.TelegramToken != "" {
			tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
			if err != nil {
				sugar.Errorw("telegram notifier disabled", "error", err)
			} else {
				notifiers = append(notifiers, tg)
			}
		}
		sched := reminder.New(store, sugar, cfg.ReminderHour, notifiers...)
		sched.Start()
		defer sched.Stop()
	}

	router := server.NewRouter(svc, store, sugar)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		sugar.Infow("server started", "addr", cfg.HTTPAddr, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server error", "error", err)
		}
	}()

	// Wait for a termination signal, then drain in-flight requests.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	sugar.Infow("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("error during shutdown", "error", err)
	}
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// runSeed inserts the example chunks unless the collection already has
// content.
func runSeed(svc *trainer.Service, sugar *zap.SugaredLogger) error {
	ctx := context.Background()
	existing, err := svc.AllChunks(ctx, "local")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		sugar.Infow("collection not empty, skipping seed", "chunks", len(existing))
		return nil
	}
	now := time.Now().UTC()
	for _, pair := range seedChunks {
		if _, err := svc.AddChunk(ctx, "local", pair[0], pair[1], now); err != nil {
			return err
		}
	}
	sugar.Infow("seeded example chunks", "count", len(seedChunks))
	return nil
}
