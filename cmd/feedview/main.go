// feedview browses a feed in the terminal. By default it reads a generated
// in-memory catalogue with simulated latency and failures; --remote reads
// a feedserver and --db reads a catalogue database directly.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"feedscroll/internal/config"
	"feedscroll/internal/feedui"
	"feedscroll/internal/logging"
	"feedscroll/internal/remote"
	"feedscroll/internal/source"
	"feedscroll/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	envFile     string
	remoteURL   string
	dbPath      string
	logFile     string
	lookahead   int
	pageSize    int
	mockItems   int
	latency     time.Duration
	failureRate float64
	tags        []string
}

func run() error {
	var f flags
	flagSet := pflag.NewFlagSet("feedview", pflag.ContinueOnError)
	flagSet.StringVar(&f.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&f.remoteURL, "remote", "", "base URL of a feedserver (overrides REMOTE_URL)")
	flagSet.StringVar(&f.dbPath, "db", "", "read a catalogue database directly")
	flagSet.StringVar(&f.logFile, "log-file", "", "write logs to this file (logs are discarded otherwise)")
	flagSet.IntVar(&f.lookahead, "lookahead", -1, "rows below the window at which the next page loads (overrides LOOKAHEAD)")
	flagSet.IntVar(&f.pageSize, "page-size", 0, "items per page (overrides PAGE_SIZE)")
	flagSet.IntVar(&f.mockItems, "mock-items", 200, "size of the generated catalogue")
	flagSet.DurationVar(&f.latency, "latency", 400*time.Millisecond, "simulated latency of the generated catalogue")
	flagSet.Float64Var(&f.failureRate, "failure-rate", 0.1, "probability of a simulated fetch failure")
	flagSet.StringSliceVar(&f.tags, "tags", nil, "tags offered for filtering with the digit keys")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := config.LoadDotenv(f.envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if f.remoteURL != "" {
		cfg.RemoteURL = f.remoteURL
	}
	if f.lookahead >= 0 {
		cfg.Lookahead = f.lookahead
	}
	if f.pageSize > 0 {
		cfg.PageSize = min(f.pageSize, config.MaxPageSize)
	}

	log := logging.Discard()
	if f.logFile != "" {
		file, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer func() { _ = file.Close() }()
		log = logging.New(file, cfg.LogLevel)
	}

	src, tags, closeSrc, err := openSource(cfg, f, log)
	if err != nil {
		return err
	}
	defer closeSrc()
	if len(f.tags) > 0 {
		tags = f.tags
	}

	// A zero setting means none; zero options mean the package defaults.
	debounce, lookahead := cfg.Debounce, cfg.Lookahead
	if debounce == 0 {
		debounce = -1
	}
	if lookahead == 0 {
		lookahead = -1
	}

	m := feedui.New(src, feedui.Options{
		PageSize:    cfg.PageSize,
		Debounce:    debounce,
		Lookahead:   lookahead,
		Threshold:   cfg.VisibilityThreshold,
		ScrollToTop: cfg.ScrollToTop,
		Tags:        tags,
		Backoff:     cfg.Backoff(),
		Logger:      log,
	})
	defer m.Close()

	log.Info("starting feedview", "page_size", cfg.PageSize, "lookahead", cfg.Lookahead)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

// openSource picks the feed source and the tags worth offering for it.
func openSource(cfg *config.Config, f flags, log *slog.Logger) (source.Source, []string, func(), error) {
	switch {
	case f.dbPath != "":
		store, err := storage.NewSQLite(f.dbPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		log.Info("reading catalogue database", "path", f.dbPath)
		return store, nil, func() { _ = store.Close() }, nil

	case cfg.RemoteURL != "":
		client, err := remote.New(cfg.RemoteURL, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("reading feedserver", "url", cfg.RemoteURL)
		return client, nil, func() {}, nil

	default:
		mock := source.NewMock(source.GenerateItems(f.mockItems, time.Now()), source.MockOptions{
			Latency:     f.latency,
			FailureRate: f.failureRate,
		})
		log.Info("reading generated catalogue", "items", f.mockItems, "failure_rate", f.failureRate)
		return mock, source.DemoTags(), func() {}, nil
	}
}
