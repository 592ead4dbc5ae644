// Package images downloads the remote photos referenced by archived
// conversations into a local content-addressed directory. Filenames are the
// sha256 of the content, so identical images shared across conversations
// land on disk exactly once.
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/convarch/websafe"
)

// Ledger is the archive surface the downloader needs: which URLs still want
// fetching, and where to record the outcome.
type Ledger interface {
	PendingImages(ctx context.Context, force bool) ([]string, error)
	MarkDownloaded(ctx context.Context, imageURL, filename string) error
}

// Options configures a Downloader.
type Options struct {
	// Dir is where image files land. Created if missing.
	Dir string

	// Workers bounds concurrent fetches. Default 4.
	Workers int

	// Timeout bounds a single fetch. Default 30s.
	Timeout time.Duration

	// MaxBytes caps one image body. Default websafe.MaxFetchBody.
	MaxBytes int64

	// Force re-fetches URLs that already have a download record.
	Force bool

	// AllowPrivateHosts relaxes the SSRF guard for hosts on private
	// ranges. Meant for self-hosted storage; scheme checks still apply.
	AllowPrivateHosts bool

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Dir == "" {
		o.Dir = "images"
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = websafe.MaxFetchBody
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
}

// Stats summarizes one download batch.
type Stats struct {
	Downloaded int
	Failed     int
	Skipped    int
}

// Downloader fetches pending images with a bounded worker pool.
type Downloader struct {
	ledger Ledger
	opts   Options
	logger *slog.Logger
}

// New creates a Downloader over a ledger.
func New(ledger Ledger, opts Options) *Downloader {
	opts.defaults()
	return &Downloader{ledger: ledger, opts: opts, logger: opts.Logger}
}

// Run fetches every pending image and records the results. Per-URL failures
// are logged and counted, never fatal to the batch; the returned error
// covers setup problems only.
func (d *Downloader) Run(ctx context.Context) (*Stats, error) {
	urls, err := d.ledger.PendingImages(ctx, d.opts.Force)
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		d.logger.Info("no images pending")
		return &Stats{}, nil
	}
	if err := os.MkdirAll(d.opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("images: create dir: %w", err)
	}
	d.logger.Info("image download starting",
		"pending", len(urls), "workers", d.opts.Workers, "dir", d.opts.Dir)

	var (
		wg         sync.WaitGroup
		sem        = make(chan struct{}, d.opts.Workers)
		downloaded atomic.Int64
		failed     atomic.Int64
		skipped    atomic.Int64
	)
	for _, imageURL := range urls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := websafe.ValidateURL(imageURL); err != nil {
				if !(d.opts.AllowPrivateHosts && errors.Is(err, websafe.ErrSSRF)) {
					skipped.Add(1)
					d.logger.Warn("image url rejected", "url", imageURL, "error", err)
					return
				}
			}
			filename, err := d.fetch(ctx, imageURL)
			if err != nil {
				failed.Add(1)
				d.logger.Error("image download failed", "url", imageURL, "error", err)
				return
			}
			if err := d.ledger.MarkDownloaded(ctx, imageURL, filename); err != nil {
				failed.Add(1)
				d.logger.Error("record download failed", "url", imageURL, "error", err)
				return
			}
			downloaded.Add(1)
		}()
	}
	wg.Wait()

	stats := &Stats{
		Downloaded: int(downloaded.Load()),
		Failed:     int(failed.Load()),
		Skipped:    int(skipped.Load()),
	}
	d.logger.Info("image download finished",
		"downloaded", stats.Downloaded, "failed", stats.Failed, "skipped", stats.Skipped)
	return stats, ctx.Err()
}

// fetch downloads one image and writes it under its content hash. Returns
// the filename recorded in the ledger.
func (d *Downloader) fetch(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("images: build request: %w", err)
	}
	resp, err := d.opts.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("images: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("images: fetch: unexpected status %s", resp.Status)
	}
	body, err := websafe.LimitedReadAll(resp.Body, d.opts.MaxBytes)
	if err != nil {
		return "", fmt.Errorf("images: read body: %w", err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("images: empty body")
	}

	sum := sha256.Sum256(body)
	filename := hex.EncodeToString(sum[:]) + sniffExt(resp.Header.Get("Content-Type"), imageURL, body)
	dest := filepath.Join(d.opts.Dir, filename)
	if _, err := os.Stat(dest); err == nil {
		// Identical content already on disk, from this or another URL.
		return filename, nil
	}
	if err := writeFileAtomic(d.opts.Dir, dest, body); err != nil {
		return "", err
	}
	return filename, nil
}

// writeFileAtomic lands data under dest via a unique temp file and rename,
// so concurrent workers fetching identical content cannot tear the file.
func writeFileAtomic(dir, dest string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("images: temp file: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("images: write %s: %w", dest, errors.Join(werr, cerr))
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("images: chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("images: rename to %s: %w", dest, err)
	}
	return nil
}

// sniffExt picks a file extension: Content-Type header first, then the URL
// path suffix, then magic bytes, then ".jpg".
func sniffExt(contentType, rawURL string, body []byte) string {
	switch normalizeContentType(contentType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".jpg", ".jpeg":
			return ".jpg"
		case ".png":
			return ".png"
		case ".gif":
			return ".gif"
		case ".webp":
			return ".webp"
		}
	}
	switch {
	case bytes.HasPrefix(body, []byte{0xff, 0xd8, 0xff}):
		return ".jpg"
	case bytes.HasPrefix(body, []byte("\x89PNG\r\n\x1a\n")):
		return ".png"
	case bytes.HasPrefix(body, []byte("GIF8")):
		return ".gif"
	case len(body) >= 12 && bytes.Equal(body[0:4], []byte("RIFF")) && bytes.Equal(body[8:12], []byte("WEBP")):
		return ".webp"
	}
	return ".jpg"
}

func normalizeContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}
