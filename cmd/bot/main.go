package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"feedscroll/internal/bot"
	"feedscroll/internal/config"
	"feedscroll/internal/logging"
	"feedscroll/internal/remote"
	"feedscroll/internal/scheduler"
	"feedscroll/internal/source"
	"feedscroll/internal/storage"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireTelegram(); err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.New(os.Stderr, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var src source.Source
	if cfg.RemoteURL != "" {
		client, err := remote.New(cfg.RemoteURL, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			log.Error("create remote client", "error", err)
			os.Exit(1)
		}
		log.Info("serving feedserver catalogue", "url", cfg.RemoteURL)
		src = client
	} else {
		store, err := openStore(ctx, cfg, log)
		if err != nil {
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()
		src = store
	}

	b, err := bot.New(cfg.TelegramBotToken, src, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	log.Info("starting bot")

	b.Run(ctx)

	log.Info("bot stopped")
}

// openStore opens the local catalogue and starts importing FEED_URLS into it.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage.SQLite, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			return nil, err
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		return nil, err
	}

	sched := scheduler.New(store, log)
	if err := sched.Register(ctx, cfg.FeedURLs, cfg.ImportInterval); err != nil {
		log.Error("register feeds", "error", err)
		_ = store.Close()
		return nil, err
	}
	go sched.Run(ctx)

	return store, nil
}
