package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"digest_bot/internal/bot"
	"digest_bot/internal/config"
	"digest_bot/internal/fetcher"
	"digest_bot/internal/notify"
	"digest_bot/internal/pipeline"
	"digest_bot/internal/publisher"
	"digest_bot/internal/scheduler"
	"digest_bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	pcfg, err := config.LoadPipeline(cfg.PipelinePath)
	if err != nil {
		log.Error("load pipeline config", "path", cfg.PipelinePath, "error", err)
		os.Exit(1)
	}

	refresher, err := pipeline.New(store, fetcher.New(http.DefaultClient), &pcfg.Rules, pcfg.Options(), log)
	if err != nil {
		log.Error("create refresher", "error", err)
		os.Exit(1)
	}

	// Dry-run deployments never talk to Telegram, so the notifier is only
	// built for live publishing.
	var notifier notify.Notifier
	if !cfg.PublishDryRun {
		notifier, err = notify.NewTelegram(cfg.TelegramBotToken, log)
		if err != nil {
			log.Error("create notifier", "error", err)
			os.Exit(1)
		}
	}
	selector := publisher.New(store, notifier, log)

	publishOpts := publisher.Options{DryRun: cfg.PublishDryRun, MaxItems: cfg.PublishMaxItems}
	sched := scheduler.New(store, refresher, selector, cfg.ChatID,
		cfg.RefreshEvery, cfg.PublishEvery, publishOpts, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.RunOnce {
		log.Info("running a single cycle", "dry_run", cfg.PublishDryRun)
		sched.RunCycle(ctx)
		return
	}

	log.Info("starting digest bot", "dry_run", cfg.PublishDryRun)

	if cfg.TelegramBotToken != "" {
		b, err := bot.New(cfg.TelegramBotToken, store, cfg, refresher, selector, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		go sched.Run(ctx)
		b.Run(ctx)
	} else {
		sched.Run(ctx)
	}

	log.Info("digest bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
