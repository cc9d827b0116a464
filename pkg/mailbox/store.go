// Package mailbox implements the core message store: named inboxes holding
// messages with a strict lifecycle, TTL expiry, threading, and a
// write-through JSON snapshot.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quackhq/quack/pkg/models"
)

// Auditor records lifecycle events. Implementations must be best-effort:
// a failed audit write never blocks or fails the mutating operation.
type Auditor interface {
	Record(ctx context.Context, action, actor, targetType, targetID string, details map[string]any, sourceAddr string)
}

// Archiver freezes a completed thread before the sweep removes it.
type Archiver interface {
	ArchiveThread(ctx context.Context, threadID string, messages []models.Message, metadata map[string]any) error
}

// ApprovalPolicy decides whether a send is auto-approved or held for review.
type ApprovalPolicy interface {
	ShouldAutoApprove(ctx context.Context, from, to string) bool
}

// Notifier fans accepted and approved messages out to inbox subscribers.
// Every entry point (HTTP, bridge, MCP tools) funnels through the store, so
// hooking fan-out here means no path can forget to emit.
type Notifier interface {
	Notify(ctx context.Context, eventType, inbox string, msg *models.Message)
}

// Store is the mailbox. All state is guarded by mu; the snapshot write
// happens under the lock so no caller observes an inbox between append and
// persist.
type Store struct {
	mu      sync.Mutex
	inboxes map[string][]*models.Message
	byID    map[string]*models.Message
	inboxOf map[string]string // message id → inbox path

	policy   ApprovalPolicy
	audit    Auditor
	archiver Archiver
	notifier Notifier

	snapshotPath string
	now          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSnapshot enables write-through persistence to the given file.
func WithSnapshot(path string) Option {
	return func(s *Store) { s.snapshotPath = path }
}

// WithPolicy sets the auto-approval policy. Without one, every send is
// approved (the unregistered-pair default).
func WithPolicy(p ApprovalPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithAuditor sets the audit sink.
func WithAuditor(a Auditor) Option {
	return func(s *Store) { s.audit = a }
}

// WithArchiver sets the thread archiver used by the sweep.
func WithArchiver(a Archiver) Option {
	return func(s *Store) { s.archiver = a }
}

// WithNotifier sets the subscriber fan-out sink.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a mailbox store, loading the snapshot if one exists.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		inboxes: make(map[string][]*models.Message),
		byID:    make(map[string]*models.Message),
		inboxOf: make(map[string]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.snapshotPath != "" {
		if err := s.loadSnapshot(); err != nil {
			return nil, fmt.Errorf("failed to load mailbox snapshot: %w", err)
		}
	}
	return s, nil
}

// SendInput carries everything a send needs. Actor and SourceAddr feed the
// audit trail only.
type SendInput struct {
	To      string
	From    string
	Task    string
	Context string
	Files   []models.FileRef

	Project             string
	ProjectName         string
	ConversationExcerpt string
	Priority            models.Priority
	Tags                []string

	Routing     models.RoutingMode
	Destination string
	ReplyTo     string

	// ImpliedProject treats the path as if it carried project metadata,
	// allowing bare root inboxes. The bridge sets this for coalesced sends.
	ImpliedProject bool

	// RequireApproval overrides the routing policy: true forces pending,
	// false forces approved, nil defers to the policy.
	RequireApproval *bool

	Actor      string
	SourceAddr string
}

// Send validates, routes, and appends a new message. It returns a clone of
// the stored message.
func (s *Store) Send(ctx context.Context, in SendInput) (*models.Message, error) {
	path := NormalizePath(in.To)
	hasProject := in.ImpliedProject || in.Project != "" || in.ProjectName != ""
	if err := ValidatePath(path, hasProject); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Task) == "" {
		return nil, models.NewValidationError("task", "task is required")
	}
	if in.From == "" {
		return nil, models.NewValidationError("from", "sender is required")
	}
	if in.Priority != "" && !models.ValidPriority(in.Priority) {
		return nil, models.NewValidationError("priority", "unknown priority: "+string(in.Priority))
	}

	routing := in.Routing
	if routing == "" {
		routing = models.RoutingDirect
	}
	if in.Destination != "" && routing != models.RoutingCowork {
		return nil, models.NewValidationError("destination", "destination override requires cowork routing")
	}

	now := s.now()
	msg := &models.Message{
		ID:                  uuid.NewString(),
		To:                  path,
		From:                strings.TrimSpace(in.From),
		Timestamp:           now,
		ExpiresAt:           now.Add(models.MessageTTL),
		Task:                in.Task,
		Context:             in.Context,
		Files:               in.Files,
		Project:             in.Project,
		ProjectName:         in.ProjectName,
		ConversationExcerpt: in.ConversationExcerpt,
		Priority:            in.Priority,
		Tags:                in.Tags,
		Routing:             routing,
		Destination:         in.Destination,
		ReplyTo:             in.ReplyTo,
	}
	if msg.Files == nil {
		msg.Files = []models.FileRef{}
	}

	// Control messages are detected by exact task text, case-insensitive.
	switch models.ControlType(strings.ToUpper(strings.TrimSpace(in.Task))) {
	case models.ControlReplySkip:
		msg.IsControlMessage = true
		msg.ControlType = models.ControlReplySkip
	case models.ControlAnnounceSkip:
		msg.IsControlMessage = true
		msg.ControlType = models.ControlAnnounceSkip
	case models.ControlConversationEnd:
		msg.IsControlMessage = true
		msg.ControlType = models.ControlConversationEnd
		msg.ThreadStatus = "completed"
	}

	// Initial status: explicit override beats the policy; without a policy
	// the unregistered-pair default is approve.
	autoApprove := true
	if s.policy != nil {
		autoApprove = s.policy.ShouldAutoApprove(ctx, msg.From, path)
	}
	if in.RequireApproval != nil {
		autoApprove = !*in.RequireApproval
	}
	if autoApprove {
		msg.Status = models.StatusApproved
		t := now
		msg.RoutedAt = &t
	} else {
		msg.Status = models.StatusPending
	}

	s.mu.Lock()
	var parent, completedParent *models.Message
	var parentPrev models.MessageStatus

	// Threading: inherit the parent's thread, bump its reply count, and
	// auto-complete it if still actionable.
	if msg.ReplyTo != "" {
		var ok bool
		parent, ok = s.byID[msg.ReplyTo]
		if !ok {
			s.mu.Unlock()
			return nil, fmt.Errorf("reply parent %s: %w", msg.ReplyTo, models.ErrNotFound)
		}
		if parent.ThreadID != "" {
			msg.ThreadID = parent.ThreadID
		} else {
			msg.ThreadID = parent.ID
		}
		parent.ReplyCount++
		if parent.Actionable() {
			parentPrev = parent.Status
			parent.Status = models.StatusCompleted
			completedParent = parent
		}
	} else {
		msg.ThreadID = msg.ID
	}

	if msg.IsControlMessage && msg.ControlType == models.ControlConversationEnd {
		s.setThreadStatusLocked(msg.ThreadID, "completed")
	}

	s.inboxes[path] = append(s.inboxes[path], msg)
	s.byID[msg.ID] = msg
	s.inboxOf[msg.ID] = path

	if err := s.persistLocked(); err != nil {
		// Roll back the in-memory append so no caller sees a message the
		// snapshot never recorded.
		s.removeLocked(msg.ID)
		if parent != nil {
			parent.ReplyCount--
		}
		if completedParent != nil {
			completedParent.Status = parentPrev
		}
		s.mu.Unlock()
		return nil, err
	}
	result := msg.Clone()
	var parentClone *models.Message
	if completedParent != nil {
		parentClone = completedParent.Clone()
	}
	s.mu.Unlock()

	s.record(ctx, models.AuditMessageSend, in.Actor, msg.ID, map[string]any{
		"to": path, "from": msg.From, "status": string(msg.Status),
	}, in.SourceAddr)
	if parentClone != nil {
		s.record(ctx, models.AuditMessageComplete, in.Actor, parentClone.ID, map[string]any{
			"auto_completed_by": msg.ID,
		}, in.SourceAddr)
	}
	s.notify(models.WebhookMessageReceived, result)

	return result, nil
}

// CheckInbox returns the messages of an inbox. By default only actionable
// messages (pending, approved, in_progress) are returned; includeTerminal
// returns everything. autoApprove promotes pending messages to approved
// before they are returned, so no caller with that flag ever sees pending.
func (s *Store) CheckInbox(ctx context.Context, path string, includeTerminal, autoApprove bool) ([]*models.Message, error) {
	path = NormalizePath(path)
	if err := ValidatePath(path, true); err != nil {
		return nil, err
	}

	s.mu.Lock()
	msgs := s.inboxes[path]
	var promoted []*models.Message
	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		if autoApprove && m.Status == models.StatusPending {
			m.Status = models.StatusApproved
			t := s.now()
			m.RoutedAt = &t
			promoted = append(promoted, m)
		}
		if includeTerminal || m.Actionable() {
			out = append(out, m.Clone())
		}
	}
	if len(promoted) > 0 {
		if err := s.persistLocked(); err != nil {
			// Promotions must not be observable if the snapshot failed.
			for _, m := range promoted {
				m.Status = models.StatusPending
				m.RoutedAt = nil
			}
			s.mu.Unlock()
			return nil, err
		}
	}
	clones := make([]*models.Message, len(promoted))
	for i, m := range promoted {
		clones[i] = m.Clone()
	}
	s.mu.Unlock()

	for _, m := range clones {
		s.record(ctx, models.AuditMessageApprove, "", m.ID, map[string]any{
			"auto_approve_on_check": true, "inbox": path,
		}, "")
		s.notify(models.WebhookMessageApproved, m)
	}
	return out, nil
}

// Get returns a message by id.
func (s *Store) Get(_ context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	return m.Clone(), nil
}

// MarkRead stamps the read timestamp. Pending and approved messages move to
// the read state; later states keep their status.
func (s *Store) MarkRead(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	m, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	t := s.now()
	m.ReadAt = &t
	prev := m.Status
	if prev == models.StatusPending || prev == models.StatusApproved {
		m.Status = models.StatusRead
	}
	if err := s.persistLocked(); err != nil {
		m.ReadAt = nil
		m.Status = prev
		s.mu.Unlock()
		return nil, err
	}
	out := m.Clone()
	s.mu.Unlock()

	s.record(ctx, models.AuditMessageRead, "", id, map[string]any{"from_status": string(prev)}, "")
	return out, nil
}

// Approve transitions a pending message to approved. Approving anything
// else is a conflict.
func (s *Store) Approve(ctx context.Context, id, actor string) (*models.Message, error) {
	return s.approve(ctx, id, actor, "")
}

// ApproveFrom is Approve with an explicit audit source (the bridge uses it
// to tag its fallback approvals).
func (s *Store) ApproveFrom(ctx context.Context, id, actor, source string) (*models.Message, error) {
	return s.approve(ctx, id, actor, source)
}

func (s *Store) approve(ctx context.Context, id, actor, source string) (*models.Message, error) {
	s.mu.Lock()
	m, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	if m.Status != models.StatusPending {
		s.mu.Unlock()
		return nil, fmt.Errorf("approve requires pending, message is %s: %w", m.Status, models.ErrInvalidTransition)
	}
	m.Status = models.StatusApproved
	t := s.now()
	m.RoutedAt = &t
	if err := s.persistLocked(); err != nil {
		m.Status = models.StatusPending
		m.RoutedAt = nil
		s.mu.Unlock()
		return nil, err
	}
	out := m.Clone()
	s.mu.Unlock()

	s.record(ctx, models.AuditMessageApprove, actor, id, map[string]any{"inbox": out.To}, source)
	s.notify(models.WebhookMessageApproved, out)
	return out, nil
}

// Complete marks a message completed. Any actionable state is accepted; the
// receiver reports completion regardless of whether dispatch ever moved the
// message to in_progress.
func (s *Store) Complete(ctx context.Context, id, actor string) (*models.Message, error) {
	s.mu.Lock()
	m, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	prev := m.Status
	if !m.Actionable() && prev != models.StatusRead {
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot complete message in status %s: %w", prev, models.ErrInvalidTransition)
	}
	m.Status = models.StatusCompleted
	if err := s.persistLocked(); err != nil {
		m.Status = prev
		s.mu.Unlock()
		return nil, err
	}
	out := m.Clone()
	s.mu.Unlock()

	s.record(ctx, models.AuditMessageComplete, actor, id, map[string]any{"from_status": string(prev)}, "")
	return out, nil
}

// UpdateStatus moves a message to target if the lifecycle table allows it.
func (s *Store) UpdateStatus(ctx context.Context, id string, target models.MessageStatus, actor string) (*models.Message, error) {
	if !models.ValidStatus(target) {
		return nil, models.NewValidationError("status", "unknown status: "+string(target))
	}

	s.mu.Lock()
	m, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	prev := m.Status
	if !CanTransition(prev, target) {
		s.mu.Unlock()
		return nil, fmt.Errorf("transition %s → %s: %w", prev, target, models.ErrInvalidTransition)
	}
	m.Status = target
	if target == models.StatusApproved {
		t := s.now()
		m.RoutedAt = &t
	}
	if err := s.persistLocked(); err != nil {
		m.Status = prev
		s.mu.Unlock()
		return nil, err
	}
	out := m.Clone()
	s.mu.Unlock()

	s.record(ctx, models.AuditMessageStatus, actor, id, map[string]any{
		"from": string(prev), "to": string(target),
	}, "")
	if target == models.StatusApproved {
		s.notify(models.WebhookMessageApproved, out)
	}
	return out, nil
}

// Delete removes a message outright.
func (s *Store) Delete(ctx context.Context, id, actor string) error {
	s.mu.Lock()
	m, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	inbox := s.inboxOf[id]
	s.removeLocked(id)
	if err := s.persistLocked(); err != nil {
		// Re-insert; deletion must not be observable if the snapshot failed.
		s.inboxes[inbox] = append(s.inboxes[inbox], m)
		s.byID[id] = m
		s.inboxOf[id] = inbox
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.record(ctx, models.AuditMessageDelete, actor, id, map[string]any{"inbox": inbox}, "")
	return nil
}

// AppendPing appends an in-band wake-up message to an inbox. Pings bypass
// the routing policy; they are system-generated and born approved.
func (s *Store) AppendPing(ctx context.Context, inbox, from, task string) (*models.Message, error) {
	inbox = NormalizePath(inbox)
	now := s.now()
	msg := &models.Message{
		ID:        uuid.NewString(),
		To:        inbox,
		From:      from,
		Timestamp: now,
		ExpiresAt: now.Add(models.MessageTTL),
		Status:    models.StatusApproved,
		RoutedAt:  &now,
		Task:      task,
		Files:     []models.FileRef{},
		Tags:      []string{"ping", "auto"},
		Routing:   models.RoutingDirect,
	}
	msg.ThreadID = msg.ID

	s.mu.Lock()
	s.inboxes[inbox] = append(s.inboxes[inbox], msg)
	s.byID[msg.ID] = msg
	s.inboxOf[msg.ID] = inbox
	if err := s.persistLocked(); err != nil {
		s.removeLocked(msg.ID)
		s.mu.Unlock()
		return nil, err
	}
	out := msg.Clone()
	s.mu.Unlock()

	s.record(ctx, models.AuditMessageSend, from, msg.ID, map[string]any{
		"to": inbox, "ping": true,
	}, "")
	s.notify(models.WebhookMessageReceived, out)
	return out, nil
}

// Thread returns every message whose thread id or own id matches key,
// ordered by timestamp ascending (id breaks ties).
func (s *Store) Thread(_ context.Context, key string) ([]*models.Message, error) {
	s.mu.Lock()
	var out []*models.Message
	for _, msgs := range s.inboxes {
		for _, m := range msgs {
			if m.ThreadID == key || m.ID == key {
				out = append(out, m.Clone())
			}
		}
	}
	s.mu.Unlock()

	if len(out) == 0 {
		return nil, fmt.Errorf("thread %s: %w", key, models.ErrNotFound)
	}
	sortByTimestamp(out)
	return out, nil
}

// ThreadView is one reconstructed thread.
type ThreadView struct {
	ThreadID     string            `json:"threadId"`
	Messages     []*models.Message `json:"messages"`
	LastActivity time.Time         `json:"lastActivity"`
}

// Threads groups all messages by thread, each sorted ascending, ordered by
// the group's latest timestamp descending.
func (s *Store) Threads(_ context.Context) []*ThreadView {
	s.mu.Lock()
	groups := make(map[string][]*models.Message)
	for _, msgs := range s.inboxes {
		for _, m := range msgs {
			groups[m.ThreadID] = append(groups[m.ThreadID], m.Clone())
		}
	}
	s.mu.Unlock()

	views := make([]*ThreadView, 0, len(groups))
	for id, msgs := range groups {
		sortByTimestamp(msgs)
		views = append(views, &ThreadView{
			ThreadID:     id,
			Messages:     msgs,
			LastActivity: msgs[len(msgs)-1].Timestamp,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].LastActivity.Equal(views[j].LastActivity) {
			return views[i].LastActivity.After(views[j].LastActivity)
		}
		return views[i].ThreadID < views[j].ThreadID
	})
	return views
}

// ApprovedMessages returns clones of every approved message across all
// inboxes. The dispatcher polls this.
func (s *Store) ApprovedMessages(_ context.Context) []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Message
	for _, msgs := range s.inboxes {
		for _, m := range msgs {
			if m.Status == models.StatusApproved {
				out = append(out, m.Clone())
			}
		}
	}
	return out
}

// Stats summarizes the store for the status endpoint.
type Stats struct {
	Inboxes  int            `json:"inboxes"`
	Messages int            `json:"messages"`
	ByStatus map[string]int `json:"byStatus"`
}

// Stats returns inbox and message counts.
func (s *Store) Stats(_ context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Inboxes: len(s.inboxes), ByStatus: make(map[string]int)}
	for _, msgs := range s.inboxes {
		st.Messages += len(msgs)
		for _, m := range msgs {
			st.ByStatus[string(m.Status)]++
		}
	}
	return st
}

// Sweep archives completed threads that are about to expire, then drops all
// expired messages and any inbox left empty. Returns (threads archived,
// messages removed).
func (s *Store) Sweep(ctx context.Context) (int, int, error) {
	now := s.now()

	// Pass 1: find completed threads with expired messages and archive them
	// before anything is destroyed.
	s.mu.Lock()
	expiredThreads := make(map[string]bool)
	for _, msgs := range s.inboxes {
		for _, m := range msgs {
			if m.Status == models.StatusCompleted && !now.Before(m.ExpiresAt) {
				expiredThreads[m.ThreadID] = true
			}
		}
	}
	toArchive := make(map[string][]models.Message, len(expiredThreads))
	for threadID := range expiredThreads {
		var thread []*models.Message
		for _, msgs := range s.inboxes {
			for _, m := range msgs {
				if m.ThreadID == threadID {
					thread = append(thread, m.Clone())
				}
			}
		}
		sortByTimestamp(thread)
		frozen := make([]models.Message, len(thread))
		for i, m := range thread {
			frozen[i] = *m
		}
		toArchive[threadID] = frozen
	}
	s.mu.Unlock()

	archived := 0
	archiveFailed := make(map[string]bool)
	for threadID, msgs := range toArchive {
		if s.archiver == nil {
			break
		}
		if err := s.archiver.ArchiveThread(ctx, threadID, msgs, map[string]any{"reason": "ttl_sweep"}); err != nil {
			slog.Error("Thread archive failed, keeping messages until next sweep",
				"thread_id", threadID, "error", err)
			archiveFailed[threadID] = true
			continue
		}
		archived++
		s.record(ctx, models.AuditThreadArchive, "", threadID, map[string]any{
			"message_count": len(msgs),
		}, "")
	}

	// Pass 2: drop expired messages, keeping threads whose archive failed.
	s.mu.Lock()
	removed := 0
	var removedIDs []string
	for path, msgs := range s.inboxes {
		kept := msgs[:0]
		for _, m := range msgs {
			expired := !now.Before(m.ExpiresAt)
			if expired && !archiveFailed[m.ThreadID] {
				delete(s.byID, m.ID)
				delete(s.inboxOf, m.ID)
				removedIDs = append(removedIDs, m.ID)
				removed++
				continue
			}
			kept = append(kept, m)
		}
		if len(kept) == 0 {
			delete(s.inboxes, path)
		} else {
			s.inboxes[path] = kept
		}
	}
	var persistErr error
	if removed > 0 {
		persistErr = s.persistLocked()
	}
	s.mu.Unlock()

	if persistErr != nil {
		return archived, removed, persistErr
	}
	for _, id := range removedIDs {
		s.record(ctx, models.AuditMessageExpire, "", id, nil, "")
	}
	return archived, removed, nil
}

// Reset drops every inbox. Used by tests and the admin reset endpoint.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboxes = make(map[string][]*models.Message)
	s.byID = make(map[string]*models.Message)
	s.inboxOf = make(map[string]string)
	return s.persistLocked()
}

// setThreadStatusLocked stamps a thread status on every message of a thread.
func (s *Store) setThreadStatusLocked(threadID, status string) {
	for _, msgs := range s.inboxes {
		for _, m := range msgs {
			if m.ThreadID == threadID {
				m.ThreadStatus = status
			}
		}
	}
}

// removeLocked unlinks a message from all indexes.
func (s *Store) removeLocked(id string) {
	path, ok := s.inboxOf[id]
	if !ok {
		return
	}
	msgs := s.inboxes[path]
	for i, m := range msgs {
		if m.ID == id {
			s.inboxes[path] = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
	if len(s.inboxes[path]) == 0 {
		delete(s.inboxes, path)
	}
	delete(s.byID, id)
	delete(s.inboxOf, id)
}

func (s *Store) record(ctx context.Context, action, actor, targetID string, details map[string]any, sourceAddr string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, action, actor, "message", targetID, details, sourceAddr)
}

// notifyTimeout bounds each fan-out delivery spawned by notify.
const notifyTimeout = 10 * time.Second

// notify hands msg to the notifier off the caller's path. Each delivery
// gets its own deadline so a slow subscriber never holds a store goroutine.
func (s *Store) notify(eventType string, msg *models.Message) {
	if s.notifier == nil || msg == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		s.notifier.Notify(ctx, eventType, msg.To, msg)
	}()
}

func sortByTimestamp(msgs []*models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
