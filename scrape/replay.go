package scrape

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hazyhaar/convarch/archive"
	"github.com/hazyhaar/convarch/capture"
)

// Replay rebuilds every archived conversation from its stored capture,
// without a browser. Running it after a classifier change upgrades old
// archives in place; the captures themselves are left untouched.
func (s *Scraper) Replay(ctx context.Context) error {
	run, err := s.svc.BeginRun(ctx, archive.KindReplay)
	if err != nil {
		return err
	}
	logger := s.logger.With("run_id", run.RunID)
	finCtx := context.WithoutCancel(ctx)

	infos, err := s.svc.Snapshots(ctx)
	if err != nil {
		_ = s.svc.FinishRun(finCtx, run.RunID, archive.StatusError, err.Error())
		return err
	}
	logger.Info("replay starting", "captures", len(infos), "workers", s.cfg.Limits.Workers)

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, s.cfg.Limits.Workers)
		archived atomic.Int64
		failed   atomic.Int64
	)
	for _, info := range infos {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			err := s.replayOne(ctx, run.RunID, info.ConversationID, info.ClientID, info.ClientName)
			if err != nil {
				failed.Add(1)
				logger.Error("replay failed", "conversation_id", info.ConversationID, "error", err)
				return
			}
			archived.Add(1)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		_ = s.svc.FinishRun(finCtx, run.RunID, archive.StatusError, err.Error())
		return err
	}

	status := archive.StatusOK
	var errMsg string
	switch {
	case failed.Load() == 0:
	case archived.Load() == 0:
		status = archive.StatusError
		errMsg = fmt.Sprintf("all %d captures failed", failed.Load())
	default:
		status = archive.StatusPartial
		errMsg = fmt.Sprintf("%d of %d captures failed", failed.Load(), len(infos))
	}
	if err := s.svc.FinishRun(finCtx, run.RunID, status, errMsg); err != nil {
		return err
	}
	logger.Info("replay finished", "status", status, "archived", archived.Load(), "failed", failed.Load())
	return nil
}

// replayOne re-parses one stored capture and archives the result. The
// snapshot argument to ArchiveConversation stays nil: replays must never
// overwrite the original capture.
func (s *Scraper) replayOne(ctx context.Context, runID, conversationID, clientID, clientName string) error {
	snap, err := s.svc.Snapshot(ctx, conversationID)
	if err != nil {
		return err
	}
	nodes, err := capture.ParseContainer(snap.HTML, s.capOpts)
	if err != nil {
		return err
	}
	client := archive.ClientInfo{ID: clientID, Name: clientName}
	_, err = s.svc.ArchiveConversation(ctx, runID, client, nodes, nil)
	return err
}
