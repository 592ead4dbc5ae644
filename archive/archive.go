// Package archive persists reconstructed conversations and serves them back.
//
// One Service wraps one SQLite archive. The scraper and the replay path
// write through ArchiveConversation, which reconstructs the captured nodes
// and atomically replaces the conversation's stored state. The viewer and
// the image downloader share the read surface.
package archive

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/convarch/archive/internal/store"
	"github.com/hazyhaar/convarch/idgen"
	"github.com/hazyhaar/convarch/reconstruct"
)

// Run kinds and terminal statuses recorded on the runs table.
const (
	KindScrape = "scrape"
	KindReplay = "replay"

	StatusRunning = "running"
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
)

// ClientInfo identifies a conversation partner as the scraper saw them.
// LastMessageTime is the inbox preview token ("2h", "Jun 10"); it may be
// empty, in which case a previously stored value is kept.
type ClientInfo struct {
	ID              string
	Name            string
	LastMessageTime string
}

// ConversationView aggregates everything the viewer shows for one client.
type ConversationView struct {
	Client       *store.Client         `json:"client"`
	Conversation *store.Conversation   `json:"conversation"`
	Messages     []reconstruct.Message `json:"messages"`
	Images       []*store.Image        `json:"images"`
	Anomalies    []*store.Anomaly      `json:"anomalies"`
}

// Service is the archive orchestrator.
type Service struct {
	store  *store.Store
	logger *slog.Logger
	newID  idgen.Generator
	opts   reconstruct.Options
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithIDGenerator replaces the identifier generator (tests use a
// sequential one for stable output).
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// WithEngineOptions replaces the reconstruction options applied to every
// archived conversation.
func WithEngineOptions(opts reconstruct.Options) ServiceOption {
	return func(s *Service) { s.opts = opts }
}

// New creates a Service on an already-opened archive database and applies
// the schema.
func New(db *sql.DB, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("archive: apply schema: %w", err)
	}
	svc := &Service{
		store:  store.NewStore(db),
		logger: logger,
		newID:  idgen.Default,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// BeginRun opens a new run of the given kind and returns its record.
func (s *Service) BeginRun(ctx context.Context, kind string) (*store.Run, error) {
	if kind == "" {
		kind = KindScrape
	}
	run := &store.Run{RunID: idgen.Prefixed("run_", s.newID)(), Kind: kind}
	if err := s.store.InsertRun(ctx, run); err != nil {
		return nil, err
	}
	s.logger.Info("run started", "run_id", run.RunID, "kind", kind)
	return run, nil
}

// FinishRun closes a run with its final status. errMsg is empty on success.
func (s *Service) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	if err := s.store.FinishRun(ctx, runID, status, errMsg); err != nil {
		return err
	}
	s.logger.Info("run finished", "run_id", runID, "status", status)
	return nil
}

// ArchiveConversation reconstructs the captured nodes for one client and
// atomically replaces the conversation's archived state. snapshotHTML is
// the raw container markup; nil leaves any stored snapshot untouched, which
// is how replays keep the original capture as their source of truth.
//
// The reconstruction result is returned even though it is already
// persisted, so callers can log or aggregate without re-reading.
func (s *Service) ArchiveConversation(ctx context.Context, runID string, client ClientInfo, nodes []reconstruct.RawNode, snapshotHTML []byte) (*reconstruct.Result, error) {
	if client.ID == "" {
		return nil, fmt.Errorf("%w: empty client id", ErrInvalidInput)
	}
	if client.Name == "" {
		client.Name = "Client " + client.ID
	}

	conversationID := "conv_" + client.ID
	conv := reconstruct.Conversation{
		ID:         conversationID,
		ClientID:   client.ID,
		ClientName: client.Name,
	}
	res, err := reconstruct.Reconstruct(conv, nodes, s.opts)
	if err != nil {
		return nil, err
	}

	anomalyID := idgen.Prefixed("anm_", s.newID)
	anomalies := make([]store.Anomaly, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		anomalies = append(anomalies, store.Anomaly{
			AnomalyID:    anomalyID(),
			RunID:        runID,
			Kind:         string(w.Kind),
			CaptureIndex: w.CaptureIndex,
			Detail:       w.Detail,
		})
	}

	req := &store.SaveRequest{
		RunID:           runID,
		Client:          store.Client{ClientID: client.ID, Name: client.Name},
		ConversationID:  conversationID,
		LastMessageTime: client.LastMessageTime,
		Messages:        res.Messages,
		Images:          res.Images,
		Anomalies:       anomalies,
	}
	if snapshotHTML != nil {
		sum := sha256.Sum256(snapshotHTML)
		req.Snapshot = &store.Snapshot{
			ContentHash: hex.EncodeToString(sum[:]),
			HTML:        snapshotHTML,
		}
	}
	if err := s.store.SaveConversation(ctx, req); err != nil {
		return nil, fmt.Errorf("archive: save conversation %s: %w", conversationID, err)
	}

	s.logger.Info("conversation archived",
		"client_id", client.ID,
		"client_name", client.Name,
		"messages", len(res.Messages),
		"images", len(res.Images),
		"warnings", len(res.Warnings))
	return res, nil
}

// Clients lists archived clients with their conversation heads and counts,
// ordered by display name.
func (s *Service) Clients(ctx context.Context) ([]*store.ClientSummary, error) {
	clients, err := s.store.Clients(ctx)
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = []*store.ClientSummary{}
	}
	return clients, nil
}

// ClientConversation returns everything the viewer shows for one client.
// Returns ErrNotFound when the client was never archived.
func (s *Service) ClientConversation(ctx context.Context, clientID string) (*ConversationView, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: empty client id", ErrInvalidInput)
	}
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client %s", ErrNotFound, clientID)
	}
	conv, err := s.store.ConversationByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation for client %s", ErrNotFound, clientID)
	}
	msgs, err := s.store.Messages(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	imgs, err := s.store.Images(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	anoms, err := s.store.AnomaliesByConversation(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	// Empty collections encode as [] rather than null.
	if msgs == nil {
		msgs = []reconstruct.Message{}
	}
	if imgs == nil {
		imgs = []*store.Image{}
	}
	if anoms == nil {
		anoms = []*store.Anomaly{}
	}
	return &ConversationView{
		Client:       client,
		Conversation: conv,
		Messages:     msgs,
		Images:       imgs,
		Anomalies:    anoms,
	}, nil
}

// ConversationByID resolves a conversation head by its identifier.
// Returns ErrNotFound when absent.
func (s *Service) ConversationByID(ctx context.Context, conversationID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	return conv, nil
}

// Messages returns a conversation's messages oldest first.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]reconstruct.Message, error) {
	return s.store.Messages(ctx, conversationID)
}

// Images returns a conversation's image references oldest first, joined
// with local filenames where downloaded.
func (s *Service) Images(ctx context.Context, conversationID string) ([]*store.Image, error) {
	return s.store.Images(ctx, conversationID)
}

// Anomalies returns the most recent anomalies across all conversations.
func (s *Service) Anomalies(ctx context.Context, limit int) ([]*store.Anomaly, error) {
	anoms, err := s.store.Anomalies(ctx, limit)
	if err != nil {
		return nil, err
	}
	if anoms == nil {
		anoms = []*store.Anomaly{}
	}
	return anoms, nil
}

// Runs returns the most recent runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]*store.Run, error) {
	runs, err := s.store.Runs(ctx, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	return runs, nil
}

// Run retrieves one run by id. Returns ErrNotFound when absent.
func (s *Service) Run(ctx context.Context, runID string) (*store.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	return run, nil
}

// Snapshot returns the stored container HTML for a conversation.
// Returns ErrNotFound when none was captured.
func (s *Service) Snapshot(ctx context.Context, conversationID string) (*store.Snapshot, error) {
	snap, err := s.store.Snapshot(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: snapshot for %s", ErrNotFound, conversationID)
	}
	return snap, nil
}

// Snapshots lists stored snapshots without payloads, for replay.
func (s *Service) Snapshots(ctx context.Context) ([]*store.SnapshotInfo, error) {
	return s.store.Snapshots(ctx)
}

// PendingImages returns image URLs that still need downloading. With force
// set, all referenced URLs are returned.
func (s *Service) PendingImages(ctx context.Context, force bool) ([]string, error) {
	return s.store.PendingImages(ctx, force)
}

// MarkDownloaded records a completed image download in the ledger.
func (s *Service) MarkDownloaded(ctx context.Context, imageURL, filename string) error {
	return s.store.MarkDownloaded(ctx, imageURL, filename)
}

// Download returns the ledger entry for an image URL, or nil when the image
// has not been fetched.
func (s *Service) Download(ctx context.Context, imageURL string) (*store.Download, error) {
	return s.store.GetDownload(ctx, imageURL)
}

// Stats returns aggregate row counts across the archive.
func (s *Service) Stats(ctx context.Context) (*store.ArchiveStats, error) {
	return s.store.Stats(ctx)
}
