// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	ChatID           int64
	PipelinePath     string
	RefreshEvery     time.Duration
	PublishEvery     time.Duration
	PublishDryRun    bool
	PublishMaxItems  int
	RunOnce          bool
	AllowedUsers     []int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dryRun := true
	if raw := os.Getenv("PUBLISH_DRY_RUN"); raw != "" {
		dryRun = parseBool(raw)
	}

	// Dry-run cycles never reach Telegram, so the token is only required for
	// live publishing.
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" && !dryRun {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required unless PUBLISH_DRY_RUN is set")
	}

	rawChat := os.Getenv("CHAT_ID")
	if rawChat == "" {
		return nil, fmt.Errorf("CHAT_ID is required")
	}
	chatID, err := strconv.ParseInt(rawChat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_ID %q: %w", rawChat, err)
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/bot.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	pipelinePath := os.Getenv("PIPELINE_CONFIG")
	if pipelinePath == "" {
		pipelinePath = "./pipeline.yml"
	}

	refreshEvery, err := durationEnv("REFRESH_EVERY", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	publishEvery, err := durationEnv("PUBLISH_EVERY", 3*time.Hour)
	if err != nil {
		return nil, err
	}

	maxItems := 1
	if raw := os.Getenv("PUBLISH_MAX_ITEMS"); raw != "" {
		maxItems, err = strconv.Atoi(raw)
		if err != nil || maxItems < 1 {
			return nil, fmt.Errorf("invalid PUBLISH_MAX_ITEMS %q", raw)
		}
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		TelegramBotToken: token,
		DatabasePath:     dbPath,
		LogLevel:         logLevel,
		ChatID:           chatID,
		PipelinePath:     pipelinePath,
		RefreshEvery:     refreshEvery,
		PublishEvery:     publishEvery,
		PublishDryRun:    dryRun,
		PublishMaxItems:  maxItems,
		RunOnce:          parseBool(os.Getenv("RUN_ONCE")),
		AllowedUsers:     allowedUsers,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
