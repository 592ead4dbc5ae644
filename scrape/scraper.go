package scrape

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/convarch/archive"
	"github.com/hazyhaar/convarch/capture"
	"github.com/hazyhaar/convarch/scrape/internal/browser"
)

//go:embed inbox.js
var inboxJS string

//go:embed client.js
var clientJS string

// loginProbeJS reports whether the page still shows the login flow and
// whether the inbox navigation link has appeared.
const loginProbeJS = `(hint) => {
	const email = document.querySelector('input[type="email"]');
	const password = document.querySelector('input[type="password"]');
	const inbox = document.querySelector('a[href*="' + hint + '"]');
	return { url: location.href, loginForm: !!(email && password), inboxLink: !!inbox };
}`

const clickInboxJS = `(hint) => {
	const link = document.querySelector('a[href*="' + hint + '"]');
	if (!link) return false;
	link.click();
	return true;
}`

const chatRowsJS = `(hint) => document.querySelectorAll('li[id*="' + hint + '"]').length > 0`

// clickRowJS opens the nth inbox conversation. The dashboard is a single
// page application: the list stays in place and the conversation pane
// re-renders, so rows keep their indexes between clicks.
const clickRowJS = `(hint, i) => {
	const rows = document.querySelectorAll('li[id*="' + hint + '"]');
	if (i >= rows.length) return false;
	rows[i].click();
	return true;
}`

// Scraper walks the dashboard inbox and archives each conversation it opens.
type Scraper struct {
	cfg     *Config
	svc     *archive.Service
	logger  *slog.Logger
	capOpts capture.Options
}

// inboxEntry is one row of the inbox list as the page renders it.
type inboxEntry struct {
	Name    string
	Preview string
}

// New creates a Scraper on top of an archive service. A nil config gets
// defaults; scraping additionally needs Dashboard.URL set.
func New(cfg *Config, svc *archive.Service, logger *slog.Logger) *Scraper {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{cfg: cfg, svc: svc, logger: logger, capOpts: cfg.CaptureOptions()}
}

// Run opens the dashboard, waits for the operator to log in, then scrapes
// up to Limits.MaxConversations inbox conversations. Every conversation is
// archived independently; one failure marks the run partial, not dead.
func (s *Scraper) Run(ctx context.Context) error {
	if err := s.cfg.validateForScrape(); err != nil {
		return err
	}
	run, err := s.svc.BeginRun(ctx, archive.KindScrape)
	if err != nil {
		return err
	}
	logger := s.logger.With("run_id", run.RunID)
	logger.Info("scrape run starting",
		"dashboard", s.cfg.Dashboard.URL,
		"max_conversations", s.cfg.Limits.MaxConversations)

	archived, failed, err := s.scrape(ctx, logger, run.RunID)
	finCtx := context.WithoutCancel(ctx)
	if err != nil {
		_ = s.svc.FinishRun(finCtx, run.RunID, archive.StatusError, err.Error())
		return err
	}

	status := archive.StatusOK
	var errMsg string
	switch {
	case failed == 0:
	case archived == 0:
		status = archive.StatusError
		errMsg = fmt.Sprintf("all %d conversations failed", failed)
	default:
		status = archive.StatusPartial
		errMsg = fmt.Sprintf("%d of %d conversations failed", failed, archived+failed)
	}
	if err := s.svc.FinishRun(finCtx, run.RunID, status, errMsg); err != nil {
		return err
	}
	logger.Info("scrape run finished", "status", status, "archived", archived, "failed", failed)
	return nil
}

func (s *Scraper) scrape(ctx context.Context, logger *slog.Logger, runID string) (archived, failed int, err error) {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:  s.cfg.Browser.Remote,
		Headless:   s.cfg.Browser.Headless,
		NavTimeout: s.cfg.Browser.NavTimeout,
		Logger:     s.logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return 0, 0, err
	}
	defer mgr.Close()

	page, err := mgr.OpenPage(ctx, s.cfg.Dashboard.URL)
	if err != nil {
		return 0, 0, err
	}
	// Bind every subsequent page operation to the run context.
	page = page.Context(ctx)

	if err := s.waitForLogin(ctx, page); err != nil {
		return 0, 0, err
	}
	if err := s.openInbox(ctx, page); err != nil {
		return 0, 0, err
	}
	entries, err := s.listInbox(page)
	if err != nil {
		return 0, 0, err
	}
	if len(entries) == 0 {
		logger.Warn("inbox is empty, nothing to scrape")
		return 0, 0, nil
	}
	n := len(entries)
	if n > s.cfg.Limits.MaxConversations {
		n = s.cfg.Limits.MaxConversations
	}
	logger.Info("inbox listed", "conversations", len(entries), "scraping", n)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return archived, failed, err
		}
		if err := s.scrapeConversation(ctx, page, runID, i, entries[i]); err != nil {
			failed++
			logger.Error("conversation failed", "index", i, "inbox_name", entries[i].Name, "error", err)
			continue
		}
		archived++
	}
	return archived, failed, nil
}

// waitForLogin polls until the operator has signed in: the page has left the
// login flow and the inbox navigation link is present. Evaluation errors are
// retried silently; the page navigates while the human types.
func (s *Scraper) waitForLogin(ctx context.Context, page *rod.Page) error {
	deadline := time.Now().Add(s.cfg.Limits.LoginTimeout)
	announced := false
	for {
		res, err := page.Eval(loginProbeJS, s.cfg.Dashboard.InboxLinkHint)
		if err == nil {
			pageURL := res.Value.Get("url").Str()
			onLogin := strings.Contains(pageURL, s.cfg.Dashboard.LoginPath) ||
				res.Value.Get("loginForm").Bool()
			if !onLogin && res.Value.Get("inboxLink").Bool() {
				if announced {
					s.logger.Info("login detected", "url", pageURL)
				}
				return nil
			}
		}
		if !announced {
			s.logger.Info("waiting for interactive login", "timeout", s.cfg.Limits.LoginTimeout)
			announced = true
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("scrape: login not completed within %s", s.cfg.Limits.LoginTimeout)
		}
		if err := sleepCtx(ctx, s.cfg.Limits.PollInterval); err != nil {
			return err
		}
	}
}

// openInbox clicks the inbox navigation link, falling back to a direct
// navigation, then waits for the conversation list to render.
func (s *Scraper) openInbox(ctx context.Context, page *rod.Page) error {
	res, err := page.Eval(clickInboxJS, s.cfg.Dashboard.InboxLinkHint)
	if err != nil || !res.Value.Bool() {
		target, jerr := url.JoinPath(s.cfg.Dashboard.URL, s.cfg.Dashboard.InboxPath)
		if jerr != nil {
			return fmt.Errorf("scrape: inbox URL: %w", jerr)
		}
		if nerr := page.Navigate(target); nerr != nil {
			return fmt.Errorf("scrape: open inbox: %w", nerr)
		}
	}
	return s.waitTrue(ctx, page, s.cfg.Limits.ListTimeout, "inbox list",
		chatRowsJS, s.cfg.Dashboard.ChatListHint)
}

func (s *Scraper) listInbox(page *rod.Page) ([]inboxEntry, error) {
	res, err := page.Eval(inboxJS, s.cfg.Dashboard.ChatListHint)
	if err != nil {
		return nil, fmt.Errorf("scrape: list inbox: %w", err)
	}
	var entries []inboxEntry
	for _, item := range res.Value.Arr() {
		entries = append(entries, inboxEntry{
			Name:    item.Get("name").Str(),
			Preview: item.Get("preview").Str(),
		})
	}
	return entries, nil
}

// scrapeConversation opens the nth inbox row, resolves the client identity,
// captures the message container and hands it to the archive.
func (s *Scraper) scrapeConversation(ctx context.Context, page *rod.Page, runID string, idx int, entry inboxEntry) error {
	res, err := page.Eval(clickRowJS, s.cfg.Dashboard.ChatListHint, idx)
	if err != nil {
		return fmt.Errorf("open conversation %d: %w", idx, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("conversation row %d disappeared from the inbox", idx)
	}
	if err := sleepCtx(ctx, s.cfg.Limits.SettleDelay); err != nil {
		return err
	}

	ident, err := page.Eval(clientJS, s.cfg.Dashboard.ClientLinkHint)
	if err != nil {
		return fmt.Errorf("read client identity: %w", err)
	}
	clientID := ident.Value.Get("clientId").Str()
	if clientID == "" {
		return fmt.Errorf("no client profile link in conversation header")
	}
	name := ident.Value.Get("clientName").Str()
	if name == "" {
		name = entry.Name
	}

	dom, err := browser.PageHTML(ctx, page)
	if err != nil {
		return fmt.Errorf("read page DOM: %w", err)
	}
	container, err := capture.FindMessageContainer(dom, s.capOpts)
	if err != nil {
		return err
	}
	nodes, err := capture.ParseContainer(container, s.capOpts)
	if err != nil {
		return err
	}

	client := archive.ClientInfo{ID: clientID, Name: name, LastMessageTime: entry.Preview}
	_, err = s.svc.ArchiveConversation(ctx, runID, client, nodes, container)
	return err
}

// waitTrue re-evaluates a boolean page expression until it holds.
func (s *Scraper) waitTrue(ctx context.Context, page *rod.Page, timeout time.Duration, what, js string, args ...any) error {
	deadline := time.Now().Add(timeout)
	for {
		res, err := page.Eval(js, args...)
		if err == nil && res.Value.Bool() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("scrape: timed out after %s waiting for %s", timeout, what)
		}
		if err := sleepCtx(ctx, s.cfg.Limits.PollInterval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
