// Package viewer serves the archive over HTTP: a JSON API, an embedded
// single-page UI, downloaded image files and markdown transcripts. The
// surface is read-only; writes happen through the scraper and downloader.
package viewer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/convarch/archive"
	"github.com/hazyhaar/convarch/export"
	"github.com/hazyhaar/convarch/reconstruct"
	"github.com/hazyhaar/convarch/shield"
	"github.com/hazyhaar/convarch/websafe"
)

//go:embed index.html
var indexHTML []byte

//go:embed app.js
var appJS []byte

// Options configures the viewer server.
type Options struct {
	// ImagesDir is where the downloader left image files. Default "images".
	ImagesDir string

	// PasswordHash, when non-empty, puts everything except /healthz behind
	// HTTP Basic auth checked against this bcrypt hash. The username is
	// ignored; this is a single-operator tool.
	PasswordHash []byte

	Logger *slog.Logger
}

// Server is the viewer HTTP surface over an archive service.
type Server struct {
	svc       *archive.Service
	imagesDir string
	passHash  []byte
	logger    *slog.Logger
}

// NewServer creates a viewer Server.
func NewServer(svc *archive.Service, opts Options) *Server {
	if opts.ImagesDir == "" {
		opts.ImagesDir = "images"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		svc:       svc,
		imagesDir: opts.ImagesDir,
		passHash:  opts.PasswordHash,
		logger:    opts.Logger,
	}
}

// Router builds the HTTP handler: the shield stack in front, an open
// liveness probe, then the optionally auth-guarded UI and API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack() {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if len(s.passHash) > 0 {
			r.Use(s.requireAuth)
		}
		r.Get("/", s.handleIndex)
		r.Get("/app.js", s.handleAppJS)
		r.Get("/api/clients", s.handleClients)
		r.Get("/api/conversation", s.handleConversation)
		r.Get("/api/conversation/{conversationID}/transcript.md", s.handleTranscript)
		r.Get("/api/anomalies", s.handleAnomalies)
		r.Get("/api/runs", s.handleRuns)
		r.Get("/api/stats", s.handleStats)
		r.Get("/images/{filename}", s.handleImage)
	})
	return r
}

// requireAuth enforces Basic auth against the configured bcrypt hash.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pass, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword(s.passHash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="conversation archive"`)
			jsonErr(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleAppJS serves the UI script from its own path so the CSP can stay at
// script-src 'self' with no inline allowance.
func (s *Server) handleAppJS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.svc.Clients(r.Context())
	if err != nil {
		s.serverError(w, r, "list clients", err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		jsonErr(w, "client_id is required", http.StatusBadRequest)
		return
	}
	view, err := s.svc.ClientConversation(r.Context(), clientID)
	if errors.Is(err, archive.ErrNotFound) {
		jsonErr(w, "client not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, r, "load conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	conv, err := s.svc.ConversationByID(r.Context(), conversationID)
	if errors.Is(err, archive.ErrNotFound) {
		jsonErr(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, r, "load conversation", err)
		return
	}
	view, err := s.svc.ClientConversation(r.Context(), conv.ClientID)
	if err != nil {
		s.serverError(w, r, "load conversation", err)
		return
	}

	refs := make([]export.ImageRef, 0, len(view.Images))
	for _, img := range view.Images {
		refs = append(refs, export.ImageRef{
			MessageID: img.MessageID,
			URL:       img.ImageURL,
			Time:      img.ImageTime,
			Filename:  img.Filename,
		})
	}
	rconv := reconstruct.Conversation{
		ID:         view.Conversation.ConversationID,
		ClientID:   view.Client.ClientID,
		ClientName: view.Client.Name,
	}
	var buf bytes.Buffer
	if err := export.Transcript(&buf, rconv, view.Messages, refs); err != nil {
		s.serverError(w, r, "render transcript", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", conversationID+".md"))
	w.Write(buf.Bytes())
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	anomalies, err := s.svc.Anomalies(r.Context(), limit)
	if err != nil {
		s.serverError(w, r, "list anomalies", err)
		return
	}
	writeJSON(w, http.StatusOK, anomalies)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	runs, err := s.svc.Runs(r.Context(), limit)
	if err != nil {
		s.serverError(w, r, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.serverError(w, r, "load stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleImage serves a downloaded image file. The filename is untrusted
// input; it arrives percent-encoded from the router, so it is unescaped
// before SafePath pins it inside the images directory.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	filename, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		jsonErr(w, "invalid filename", http.StatusBadRequest)
		return
	}
	path, err := websafe.SafePath(s.imagesDir, filename)
	if err != nil {
		jsonErr(w, "invalid filename", http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op, "error", err, "trace_id", shield.GetTraceID(r.Context()))
	jsonErr(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
