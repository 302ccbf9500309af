// Package config loads application settings from the environment. A .env
// file in the working directory is honored when present.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries every runtime setting.
type Config struct {
	// DBDriver selects the storage engine: "sqlite" (default) or "postgres".
	DBDriver string
	// DBDSN is the sqlite file path or the postgres connection string.
	DBDSN string
	// HTTPAddr is the listen address for the API server.
	HTTPAddr string
	// BatchSize is the number of chunks per daily review session.
	BatchSize int
	// ReminderHour is the local hour (0-23) for daily due-count reminders;
	// -1 disables them.
	ReminderHour int
	// TelegramToken enables the telegram reminder channel when set.
	TelegramToken string
	// TelegramChatID is the chat reminders are delivered to.
	TelegramChatID int64
	// LogMode is "development" or "production".
	LogMode string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	return &Config{
		DBDriver:       getEnv("DB_TYPE", "sqlite"),
		DBDSN:          getEnv("DB_DSN", ""),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		BatchSize:      getEnvInt("BATCH_SIZE", 5),
		ReminderHour:   getEnvInt("REMINDER_HOUR", -1),
		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnvInt64("TELEGRAM_CHAT_ID", 0),
		LogMode:        getEnv("LOG_MODE", "development"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
