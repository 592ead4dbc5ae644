package images

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memLedger is an in-memory Ledger double; download mechanics are what is
// under test here, the SQL-backed ledger has its own tests.
type memLedger struct {
	mu       sync.Mutex
	pending  []string
	marked   map[string]string
	gotForce bool
}

func newMemLedger(urls ...string) *memLedger {
	return &memLedger{pending: urls, marked: make(map[string]string)}
}

func (m *memLedger) PendingImages(_ context.Context, force bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotForce = force
	return append([]string(nil), m.pending...), nil
}

func (m *memLedger) MarkDownloaded(_ context.Context, imageURL, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked[imageURL] = filename
	return nil
}

var (
	jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), []byte("fakepngpayload")...)
)

func hashName(data []byte, ext string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + ext
}

func TestRunDownloadsPending(t *testing.T) {
	// WHAT: Two pending URLs are fetched, written under their content
	// hash with a sniffed extension, and recorded in the ledger.
	// WHY: Content addressing and the extension ladder are this module's
	// whole contract; transcripts and the viewer link these filenames.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ring.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(jpegBytes)
		case "/raw":
			// No usable content type, no path suffix: magic bytes decide.
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(pngBytes)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	ledger := newMemLedger(srv.URL+"/ring.jpg", srv.URL+"/raw")
	d := New(ledger, Options{Dir: dir, Workers: 2, AllowPrivateHosts: true, Logger: testLogger()})
	stats, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Downloaded != 2 || stats.Failed != 0 || stats.Skipped != 0 {
		t.Fatalf("stats: %+v", stats)
	}

	wantJpg := hashName(jpegBytes, ".jpg")
	wantPng := hashName(pngBytes, ".png")
	if got := ledger.marked[srv.URL+"/ring.jpg"]; got != wantJpg {
		t.Errorf("jpg filename: got %q, want %q", got, wantJpg)
	}
	if got := ledger.marked[srv.URL+"/raw"]; got != wantPng {
		t.Errorf("png filename: got %q, want %q", got, wantPng)
	}
	for _, name := range []string{wantJpg, wantPng} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("file %s: %v", name, err)
		}
	}
	if ledger.gotForce {
		t.Error("force passed to ledger without being configured")
	}
}

func TestRunDeduplicatesContent(t *testing.T) {
	// WHAT: Two URLs serving identical bytes yield one file on disk and
	// two ledger rows pointing at the same filename.
	// WHY: Chat media is heavily re-sent; content addressing is what
	// keeps the images directory from tripling.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegBytes)
	}))
	defer srv.Close()

	dir := t.TempDir()
	ledger := newMemLedger(srv.URL+"/a.jpg", srv.URL+"/b.jpg")
	d := New(ledger, Options{Dir: dir, AllowPrivateHosts: true, Force: true, Logger: testLogger()})
	stats, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Downloaded != 2 {
		t.Fatalf("stats: %+v", stats)
	}
	if ledger.marked[srv.URL+"/a.jpg"] != ledger.marked[srv.URL+"/b.jpg"] {
		t.Errorf("filenames differ: %v", ledger.marked)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d files, want 1: %v", len(entries), entries)
	}
	if !ledger.gotForce {
		t.Error("force not passed to ledger")
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	// WHAT: A batch with a good URL, a 404 and an unsafe scheme: the good
	// one lands, the rest are counted, and Run itself returns nil.
	// WHY: One dead CDN link must not kill a batch that can be re-run.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ok.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegBytes)
	}))
	defer srv.Close()

	ledger := newMemLedger(srv.URL+"/ok.jpg", srv.URL+"/gone.jpg", "ftp://cdn.example.com/x.jpg")
	d := New(ledger, Options{Dir: t.TempDir(), AllowPrivateHosts: true, Logger: testLogger()})
	stats, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Downloaded != 1 || stats.Failed != 1 || stats.Skipped != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if len(ledger.marked) != 1 {
		t.Errorf("marked: %v", ledger.marked)
	}
}

func TestRunRejectsPrivateHosts(t *testing.T) {
	// WHAT: Without AllowPrivateHosts, a loopback URL is skipped before
	// any request goes out.
	// WHY: Archived markup is attacker-influenced input; the downloader
	// must not become a proxy into the operator's network.
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(jpegBytes)
	}))
	defer srv.Close()

	ledger := newMemLedger(srv.URL + "/ring.jpg")
	d := New(ledger, Options{Dir: t.TempDir(), Logger: testLogger()})
	stats, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Skipped != 1 || stats.Downloaded != 0 {
		t.Fatalf("stats: %+v", stats)
	}
	if hits.Load() != 0 {
		t.Errorf("server was contacted %d times", hits.Load())
	}
}

func TestRunEnforcesMaxBytes(t *testing.T) {
	// WHAT: A body over MaxBytes fails that URL instead of landing a
	// truncated file.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	ledger := newMemLedger(srv.URL + "/big.jpg")
	d := New(ledger, Options{Dir: t.TempDir(), MaxBytes: 16, AllowPrivateHosts: true, Logger: testLogger()})
	stats, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Failed != 1 || stats.Downloaded != 0 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestSniffExt(t *testing.T) {
	// WHAT: The extension ladder in isolation: content type beats URL
	// suffix beats magic bytes beats the jpg fallback.
	webpBytes := []byte("RIFF\x10\x00\x00\x00WEBPVP8 ")
	cases := []struct {
		name        string
		contentType string
		url         string
		body        []byte
		want        string
	}{
		{"content type wins", "image/png; charset=utf-8", "https://cdn.example.com/y.jpg", jpegBytes, ".png"},
		{"url suffix", "text/html", "https://cdn.example.com/photo.JPEG?sig=1", nil, ".jpg"},
		{"magic gif", "", "https://cdn.example.com/raw", []byte("GIF89a-data"), ".gif"},
		{"magic webp", "", "https://cdn.example.com/raw", webpBytes, ".webp"},
		{"fallback", "", "https://cdn.example.com/raw", []byte("plain text"), ".jpg"},
	}
	for _, tc := range cases {
		if got := sniffExt(tc.contentType, tc.url, tc.body); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
