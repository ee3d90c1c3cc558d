package client

import (
	"context"
	"errors"
	"time"

	"github.com/bnema/mxload/internal/adapters/matrix"
	"github.com/bnema/mxload/internal/domain"
	"go.uber.org/zap"
)

// StartSync launches the background sync task for this session. No-op if
// one is already running.
func (s *Session) StartSync(ctx context.Context) {
	s.mu.Lock()
	if s.syncDone != nil {
		s.mu.Unlock()
		return
	}
	syncCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.syncCancel = cancel
	s.syncDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.SyncLoop(syncCtx)
	}()
}

// StopSync cancels the background sync task and waits for it to exit. An
// in-flight long-poll is aborted through its context; it never blocks
// shutdown.
func (s *Session) StopSync() {
	s.mu.Lock()
	cancel, done := s.syncCancel, s.syncDone
	s.syncCancel, s.syncDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SyncLoop continuously long-polls /sync until ctx is canceled, folding
// every response into session state. Rate limiting (429) is honored with
// one extra full poll-timeout sleep; any other failure logs and the loop
// continues immediately with the unchanged cursor. Best effort by design:
// a failing homeserver shows up in the logs, not as a stopped client.
func (s *Session) SyncLoop(ctx context.Context) {
	username := s.Username()
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.Sync(ctx)
		switch {
		case err == nil:

		case ctx.Err() != nil:
			return

		case matrix.RateLimited(err):
			s.log.Warn("sync says to slow down", zap.String("user", username))
			if sleepCtx(ctx, s.syncTimeout) != nil {
				return
			}

		case errors.Is(err, domain.ErrNoSyncCursor):
			s.log.Error("sync returned no next-batch cursor", zap.String("user", username))

		default:
			s.log.Error("sync failed", zap.String("user", username), zap.Error(err))
		}
	}
}

// sleepCtx sleeps for d or until ctx is canceled, returning the ctx error
// in the latter case.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
