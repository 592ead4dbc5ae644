// Command convscrape captures dashboard conversations into the archive.
//
// Usage:
//
//	convscrape -config scrape.yaml              # capture from the live dashboard
//	convscrape -url https://dash.example.com    # capture with default settings
//	convscrape -db archive.db -replay           # rebuild from stored snapshots
//
// Live capture opens a visible browser and waits for a human to complete the
// login before walking the inbox.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/convarch/archive"
	"github.com/hazyhaar/convarch/dbopen"
	"github.com/hazyhaar/convarch/scrape"
)

func main() {
	// .env first: flag defaults below read the environment.
	_ = godotenv.Load(".env")

	configPath := flag.String("config", "", "path to scrape.yaml config file")
	dashURL := flag.String("url", os.Getenv("DASHBOARD_URL"), "dashboard URL (overrides config)")
	dbPath := flag.String("db", env("ARCHIVE_DB", "archive.db"), "path to the archive database")
	replay := flag.Bool("replay", false, "rebuild conversations from stored snapshots instead of scraping")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dashURL, *dbPath, *replay); err != nil {
		logger.Error("convscrape: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dashURL, dbPath string, replay bool) error {
	cfg := scrape.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = scrape.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if dashURL != "" {
		cfg.Dashboard.URL = dashURL
	}
	if cfg.Dashboard.URL == "" && !replay {
		fmt.Fprintln(os.Stderr, "usage: convscrape -config <file> | -url <dashboard-url> [-db <file>] [-replay]")
		os.Exit(1)
	}

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer db.Close()

	svc, err := archive.New(db, logger, archive.WithEngineOptions(cfg.EngineOptions()))
	if err != nil {
		return fmt.Errorf("archive service: %w", err)
	}

	scr := scrape.New(cfg, svc, logger)
	if replay {
		return scr.Replay(ctx)
	}
	return scr.Run(ctx)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
