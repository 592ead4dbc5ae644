// Command convarch serves the archive viewer: a read-only web UI over the
// conversations, images, runs, and anomalies that convscrape collected.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/convarch/archive"
	"github.com/hazyhaar/convarch/dbopen"
	"github.com/hazyhaar/convarch/viewer"
)

func main() {
	_ = godotenv.Load(".env")

	port := env("PORT", "8080")
	dbPath := env("ARCHIVE_DB", "archive.db")
	imagesDir := env("IMAGES_DIR", "images")
	logLevel := env("LOG_LEVEL", "info")

	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The archive holds private conversations; without AUTH_PASSWORD anyone
	// who can reach the port can read them.
	var passHash []byte
	if pw := os.Getenv("AUTH_PASSWORD"); pw != "" {
		var err error
		passHash, err = bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash password", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("AUTH_PASSWORD not set, viewer runs without authentication")
	}

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open archive", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	svc, err := archive.New(db, logger)
	if err != nil {
		slog.Error("archive service", "error", err)
		os.Exit(1)
	}

	if stats, err := svc.Stats(ctx); err == nil {
		slog.Info("archive opened", "db", dbPath,
			"clients", stats.Clients, "messages", stats.Messages,
			"images", stats.Images, "anomalies", stats.Anomalies)
	}

	vs := viewer.NewServer(svc, viewer.Options{
		ImagesDir:    imagesDir,
		PasswordHash: passHash,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           vs.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("viewer starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
