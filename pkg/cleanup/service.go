// Package cleanup enforces the retention windows: expired messages are
// archived and dropped, stale blobs deleted, and abandoned conversation
// sessions swept.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/quackhq/quack/pkg/blob"
	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/sessions"
)

// Sweep cadences. Messages and blobs carry hour-scale TTLs; conversation
// sessions turn over faster.
const (
	MailboxSweepInterval = time.Hour
	BlobSweepInterval    = time.Hour
	SessionSweepInterval = 15 * time.Minute
)

// Service runs the periodic retention sweeps.
type Service struct {
	store    *mailbox.Store
	blobs    *blob.Store
	sessions *sessions.Registry

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates the retention service. Any nil component skips its
// sweep.
func NewService(store *mailbox.Store, blobs *blob.Store, sessionRegistry *sessions.Registry) *Service {
	return &Service{
		store:    store,
		blobs:    blobs,
		sessions: sessionRegistry,
	}
}

// Start launches the background sweep loops.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention service started",
		"mailbox_interval", MailboxSweepInterval,
		"blob_interval", BlobSweepInterval,
		"session_interval", SessionSweepInterval)
}

// Stop signals the loops to exit and waits for them to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	// One pass at startup so a long-stopped relay catches up immediately.
	s.sweepMailbox(ctx)
	s.sweepBlobs(ctx)
	s.sweepSessions()

	mailboxTicker := time.NewTicker(MailboxSweepInterval)
	defer mailboxTicker.Stop()
	blobTicker := time.NewTicker(BlobSweepInterval)
	defer blobTicker.Stop()
	sessionTicker := time.NewTicker(SessionSweepInterval)
	defer sessionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mailboxTicker.C:
			s.sweepMailbox(ctx)
		case <-blobTicker.C:
			s.sweepBlobs(ctx)
		case <-sessionTicker.C:
			s.sweepSessions()
		}
	}
}

func (s *Service) sweepMailbox(ctx context.Context) {
	if s.store == nil {
		return
	}
	archived, removed, err := s.store.Sweep(ctx)
	if err != nil {
		slog.Error("Retention: mailbox sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("Retention: swept expired messages", "archived", archived, "removed", removed)
	}
}

func (s *Service) sweepBlobs(ctx context.Context) {
	if s.blobs == nil {
		return
	}
	if removed := s.blobs.Sweep(ctx); removed > 0 {
		slog.Info("Retention: swept expired blobs", "removed", removed)
	}
}

func (s *Service) sweepSessions() {
	if s.sessions == nil {
		return
	}
	abandoned, discarded := s.sessions.Sweep()
	if abandoned > 0 || discarded > 0 {
		slog.Info("Retention: swept conversation sessions",
			"abandoned", abandoned, "discarded", discarded)
	}
}
