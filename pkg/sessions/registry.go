// Package sessions tracks conversation state between agent pairs. Each
// (from, to, thread) triple owns a session with turn bookkeeping; a janitor
// abandons stale sessions and discards old terminal ones.
package sessions

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quackhq/quack/pkg/mailbox"
	"github.com/quackhq/quack/pkg/models"
)

// JanitorInterval is how often stale sessions are swept.
const JanitorInterval = 15 * time.Minute

// Registry is the in-memory session table with JSON snapshot persistence.
// The retention service drives Sweep on its 15 minute cadence.
type Registry struct {
	mu       sync.Mutex
	path     string
	sessions map[string]*models.ConversationSession
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry opens the session registry, restoring from snapshotPath when
// present. An empty path disables persistence.
func NewRegistry(snapshotPath string, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:     snapshotPath,
		sessions: make(map[string]*models.ConversationSession),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if snapshotPath != "" {
		var snap map[string]*models.ConversationSession
		ok, err := mailbox.ReadSnapshot(snapshotPath, &snap)
		if err != nil {
			return nil, err
		}
		if ok {
			r.sessions = snap
		}
	}
	return r, nil
}

func (r *Registry) persistLocked() {
	if r.path == "" {
		return
	}
	if err := mailbox.WriteSnapshot(r.path, r.sessions); err != nil {
		slog.Error("Failed to persist session snapshot", "error", err)
	}
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(id), "/"))
}

// lookupLocked finds the session for a pair in either direction.
func (r *Registry) lookupLocked(from, to, threadID string) *models.ConversationSession {
	if s, ok := r.sessions[models.ConversationKey(from, to, threadID)]; ok {
		return s
	}
	if s, ok := r.sessions[models.ConversationKey(to, from, threadID)]; ok {
		return s
	}
	return nil
}

// Track records one message flowing through a conversation, creating the
// session on first contact. Control messages adjust the session state
// instead of counting as turns.
func (r *Registry) Track(msg *models.Message) *models.ConversationSession {
	from := normalize(msg.From)
	to := normalize(msg.To)
	threadID := msg.ThreadID

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := r.lookupLocked(from, to, threadID)
	if s == nil {
		s = &models.ConversationSession{
			Key:          models.ConversationKey(from, to, threadID),
			From:         from,
			To:           to,
			ThreadID:     threadID,
			Participants: []string{from, to},
			Status:       models.ConversationActive,
			CurrentTurn:  to,
			StartedAt:    now,
		}
		r.sessions[s.Key] = s
	}

	s.MessageCount++
	s.LastMessage = now
	s.ExpiresAt = now.Add(models.ConversationTTL)
	r.addParticipantLocked(s, from)
	r.addParticipantLocked(s, to)

	// The turn passes to the recipient when the current holder speaks.
	if from == s.CurrentTurn || s.CurrentTurn == "" {
		s.TurnCount++
		s.CurrentTurn = to
	}

	if msg.IsControlMessage {
		switch msg.ControlType {
		case models.ControlConversationEnd:
			s.Status = models.ConversationCompleted
			completed := now
			s.CompletedAt = &completed
		case models.ControlReplySkip:
			s.Status = models.ConversationAwaitingReply
		case models.ControlAnnounceSkip:
			// State unchanged; the sender just declined to announce.
		}
	} else if s.Status == models.ConversationAwaitingReply {
		s.Status = models.ConversationActive
	}

	r.persistLocked()
	copied := *s
	return &copied
}

func (r *Registry) addParticipantLocked(s *models.ConversationSession, id string) {
	for _, p := range s.Participants {
		if p == id {
			return
		}
	}
	s.Participants = append(s.Participants, id)
}

// Get returns the session for a pair and thread, in either direction.
func (r *Registry) Get(from, to, threadID string) (*models.ConversationSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookupLocked(normalize(from), normalize(to), threadID)
	if s == nil {
		return nil, false
	}
	copied := *s
	return &copied, true
}

// List returns every tracked session.
func (r *Registry) List() []*models.ConversationSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.ConversationSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		copied := *s
		out = append(out, &copied)
	}
	return out
}

// Sweep abandons expired active sessions and discards terminal sessions
// past retention. Returns (abandoned, discarded).
func (r *Registry) Sweep() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	abandoned, discarded := 0, 0
	for key, s := range r.sessions {
		switch s.Status {
		case models.ConversationActive, models.ConversationAwaitingReply,
			models.ConversationAwaitingHuman:
			if now.After(s.ExpiresAt) {
				s.Status = models.ConversationAbandoned
				abandoned++
			}
		case models.ConversationCompleted, models.ConversationAbandoned:
			cutoff := s.LastMessage
			if s.CompletedAt != nil {
				cutoff = *s.CompletedAt
			}
			if now.Sub(cutoff) > models.ConversationRetention {
				delete(r.sessions, key)
				discarded++
			}
		}
	}
	if abandoned > 0 || discarded > 0 {
		r.persistLocked()
		slog.Info("Session sweep complete", "abandoned", abandoned, "discarded", discarded)
	}
	return abandoned, discarded
}
