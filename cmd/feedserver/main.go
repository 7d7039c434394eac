// feedserver serves the item catalogue over HTTP and keeps it filled from
// the configured RSS feeds.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"feedscroll/internal/config"
	"feedscroll/internal/logging"
	"feedscroll/internal/scheduler"
	"feedscroll/internal/server"
	"feedscroll/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile  string
		addr     string
		dbPath   string
		feedURLs []string
	)
	flagSet := pflag.NewFlagSet("feedserver", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides LISTEN_ADDR)")
	flagSet.StringVar(&dbPath, "db", "", "path to sqlite database (overrides DATABASE_PATH)")
	flagSet.StringSliceVar(&feedURLs, "feed", nil, "RSS feed URL to import, repeatable (adds to FEED_URLS)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := config.LoadDotenv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	cfg.FeedURLs = append(cfg.FeedURLs, feedURLs...)

	log := logging.New(os.Stderr, cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(store, log)
	if err := sched.Register(ctx, cfg.FeedURLs, cfg.ImportInterval); err != nil {
		return fmt.Errorf("register feeds: %w", err)
	}
	go sched.Run(ctx)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.New(store, log).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.ListenAddr, "feeds", len(cfg.FeedURLs))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
