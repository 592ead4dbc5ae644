// Command imgfetch downloads the image files referenced by archived
// conversations. It is safe to re-run; images already on disk are skipped
// unless -force is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/convarch/archive"
	"github.com/hazyhaar/convarch/dbopen"
	"github.com/hazyhaar/convarch/images"
)

func main() {
	// .env first: flag defaults below read the environment.
	_ = godotenv.Load(".env")

	dbPath := flag.String("db", env("ARCHIVE_DB", "archive.db"), "path to the archive database")
	dir := flag.String("dir", env("IMAGES_DIR", "images"), "directory for downloaded files")
	force := flag.Bool("force", false, "re-download images that already have a file")
	workers := flag.Int("workers", 4, "concurrent downloads")
	timeout := flag.Duration("timeout", 30*time.Second, "per-image fetch timeout")
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

	if err := run(ctx, logger, *dbPath, *dir, *force, *workers, *timeout); err != nil {
		logger.Error("imgfetch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, dbPath, dir string, force bool, workers int, timeout time.Duration) error {
	db, err := dbopen.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer db.Close()

	svc, err := archive.New(db, logger)
	if err != nil {
		return fmt.Errorf("archive service: %w", err)
	}

	d := images.New(svc, images.Options{
		Dir:     dir,
		Workers: workers,
		Timeout: timeout,
		Force:   force,
		Logger:  logger,
	})

	stats, err := d.Run(ctx)
	if stats != nil {
		logger.Info("image fetch finished",
			"downloaded", stats.Downloaded, "failed", stats.Failed, "skipped", stats.Skipped)
	}
	return err
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
