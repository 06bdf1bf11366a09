// Package engine implements the conversation session: the optimistic send
// pipeline, the push event router, typing presence, read-receipt propagation
// and the projections the UI consumes. All state flows through one
// conversation store, so local intents and asynchronous push events converge
// on the same view.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
	"github.com/halcyon-im/halcyon/internal/pubsub"
	"github.com/halcyon-im/halcyon/internal/store"
)

// API is the request/response collaborator behind every remote write. The
// backend's persistence and business rules live on the other side of it.
type API interface {
	FetchMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Message, error)
	CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	EditMessage(ctx context.Context, messageID string, userID uuid.UUID, content string) error
	DeleteMessage(ctx context.Context, messageID string, userID uuid.UUID) error
	ToggleReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) error
	PinMessage(ctx context.Context, messageID string, userID uuid.UUID) error
	UnpinMessage(ctx context.Context, messageID string, userID uuid.UUID) error
	MarkRead(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) error
}

// Self identifies the local user inside the session
type Self struct {
	UserID      uuid.UUID
	DisplayName string
	AvatarURL   string
}

// Hooks are optional callbacks for the UI collaborator. They fire after the
// store has mutated; handlers must not call back into the session
// synchronously.
type Hooks struct {
	// OnMessages fires whenever the message list or a derived view changed
	OnMessages func()
	// OnTyping fires with the new typing set on every change
	OnTyping func([]domain.TypingSignal)
}

// Config assembles a session's collaborators
type Config struct {
	ConversationID uuid.UUID
	Self           Self
	API            API
	PubSub         pubsub.PubSub
	Uploader       Uploader // optional; sends without attachments need none
	Logger         *slog.Logger
	Hooks          Hooks

	FetchLimit     int           // initial window size, default 50
	TypingExpiry   time.Duration // default 3s
	TypingCooldown time.Duration // default 2s
}

const defaultFetchLimit = 50

// Session owns the state of one open conversation view. The store is owned
// exclusively by this session; no two views mutate the same store instance.
type Session struct {
	conversationID uuid.UUID
	self           Self
	api            API
	ps             pubsub.PubSub
	uploader       Uploader
	store          *store.Store
	typing         *TypingTracker
	receipts       *ReadPropagator
	hooks          Hooks
	logger         *slog.Logger
	fetchLimit     int

	mu     sync.Mutex
	sub    pubsub.Subscription
	closed bool
}

// NewSession creates a session. Call Open to load history and attach to the
// push channel.
func NewSession(cfg Config) (*Session, error) {
	if cfg.ConversationID == uuid.Nil {
		return nil, domain.ErrConversationNotFound
	}
	if cfg.API == nil || cfg.PubSub == nil {
		return nil, fmt.Errorf("session requires API and PubSub collaborators")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session", "conversation_id", cfg.ConversationID)

	fetchLimit := cfg.FetchLimit
	if fetchLimit <= 0 {
		fetchLimit = defaultFetchLimit
	}

	st := store.New(cfg.ConversationID, cfg.Self.UserID, logger)
	s := &Session{
		conversationID: cfg.ConversationID,
		self:           cfg.Self,
		api:            cfg.API,
		ps:             cfg.PubSub,
		uploader:       cfg.Uploader,
		store:          st,
		receipts:       NewReadPropagator(st),
		hooks:          cfg.Hooks,
		logger:         logger,
		fetchLimit:     fetchLimit,
	}
	s.typing = NewTypingTracker(cfg.TypingExpiry, cfg.TypingCooldown, cfg.Hooks.OnTyping)
	return s, nil
}

// Open performs the initial bulk fetch, subscribes to the conversation's
// event channel and announces the view to the roster with a read broadcast.
// The fetch and the subscription share the store's idempotent insert path, so
// overlap between the two sources cannot duplicate.
func (s *Session) Open(ctx context.Context) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}

	history, err := s.api.FetchMessages(ctx, s.conversationID, s.fetchLimit)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	for _, m := range history {
		m.DeliveryState = domain.DeliveryConfirmed
		if err := s.store.Insert(m); err != nil {
			s.logger.Warn("skipping malformed history entry", "error", err)
		}
	}
	s.notifyMessages()

	topic := pubsub.Topics.Conversation(s.conversationID.String())
	sub, err := s.ps.Subscribe(ctx, topic, s.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sub.Unsubscribe()
		return domain.ErrSessionClosed
	}
	s.sub = sub
	s.mu.Unlock()

	s.MarkViewedNow(ctx)
	s.logger.Info("conversation opened", "history", len(history))
	return nil
}

// Close detaches from the push channel and stops all typing timers.
// In-flight sends are not cancelled: they resolve or fail asynchronously and
// reconcile by id, independent of view lifetime.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			return err
		}
	}
	s.typing.Close()
	s.logger.Info("conversation closed")
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ============================================================================
// Views
// ============================================================================

// Messages returns the ordered message list
func (s *Session) Messages() []domain.Message { return s.store.Messages() }

// TypingUsers returns the visible typing set
func (s *Session) TypingUsers() []domain.TypingSignal { return s.typing.Active() }

// Pinned returns the pinned projection, most-recently-pinned first
func (s *Session) Pinned() []domain.Message { return s.store.PinnedMessages() }

// Thread returns the replies to a parent message in chronological order
func (s *Session) Thread(parentID string) []domain.Message { return s.store.Thread(parentID) }

// ReplyCount returns how many replies a parent message has
func (s *Session) ReplyCount(parentID string) int { return s.store.ReplyCount(parentID) }

// GroupedReactions returns a message's reactions grouped by emoji
func (s *Session) GroupedReactions(messageID string) []store.ReactionGroup {
	return s.store.GroupedReactions(messageID)
}

// UnreadCount returns how many messages from others are not yet read locally
func (s *Session) UnreadCount() int { return s.store.UnreadCount() }

// ============================================================================
// Intents (send lives in sender.go)
// ============================================================================

// Edit changes a message's content. The store is patched optimistically; the
// server's later update event is authoritative either way.
func (s *Session) Edit(ctx context.Context, messageID, content string) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	if content == "" {
		return domain.ErrEmptyMessage
	}

	edited := true
	s.store.ApplyPatch(messageID, domain.MessagePatch{Content: &content, IsEdited: &edited})
	s.notifyMessages()

	if err := s.api.EditMessage(ctx, messageID, s.self.UserID, content); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// Delete marks a message deleted and performs the remote delete
func (s *Session) Delete(ctx context.Context, messageID string) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}

	deleted := true
	s.store.ApplyPatch(messageID, domain.MessagePatch{IsDeleted: &deleted})
	s.notifyMessages()

	if err := s.api.DeleteMessage(ctx, messageID, s.self.UserID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// React optimistically flips the local user's reaction, then performs the
// remote toggle. A later reactions patch replaces the local guess wholesale.
func (s *Session) React(ctx context.Context, messageID, emoji string) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}

	s.store.ToggleReaction(messageID, s.self.UserID, emoji)
	s.notifyMessages()

	if err := s.api.ToggleReaction(ctx, messageID, s.self.UserID, emoji); err != nil {
		return fmt.Errorf("toggle reaction: %w", err)
	}
	return nil
}

// Pin pins a message locally and remotely
func (s *Session) Pin(ctx context.Context, messageID string) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}

	s.store.SetPinned(messageID, true)
	s.notifyMessages()

	if err := s.api.PinMessage(ctx, messageID, s.self.UserID); err != nil {
		return fmt.Errorf("pin message: %w", err)
	}
	return nil
}

// Unpin removes a pin locally and remotely
func (s *Session) Unpin(ctx context.Context, messageID string) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}

	s.store.SetPinned(messageID, false)
	s.notifyMessages()

	if err := s.api.UnpinMessage(ctx, messageID, s.self.UserID); err != nil {
		return fmt.Errorf("unpin message: %w", err)
	}
	return nil
}

// MarkViewedNow records locally that everything visible has been read and
// broadcasts the read cursor to the roster. Failure to broadcast is logged,
// not surfaced: the next view or message triggers another attempt.
func (s *Session) MarkViewedNow(ctx context.Context) {
	s.store.MarkViewed(time.Now())
	s.notifyMessages()

	if err := s.api.MarkRead(ctx, s.conversationID, s.self.UserID); err != nil {
		s.logger.Warn("mark read failed", "error", err)
	}
}

// Typing broadcasts a typing signal for the local user, rate-limited to one
// per cool-down window; suppressed keystrokes are dropped silently.
func (s *Session) Typing(ctx context.Context) error {
	if s.isClosed() {
		return domain.ErrSessionClosed
	}
	if !s.typing.AllowBroadcast() {
		return nil
	}

	topic := pubsub.Topics.Conversation(s.conversationID.String())
	msg, err := pubsub.NewMessage(topic, pubsub.EventTyping, TypingPayload{
		ConversationID: s.conversationID,
		UserID:         s.self.UserID,
		DisplayName:    s.self.DisplayName,
		AvatarURL:      s.self.AvatarURL,
	})
	if err != nil {
		return err
	}
	return s.ps.Publish(ctx, topic, msg)
}

func (s *Session) notifyMessages() {
	if s.hooks.OnMessages != nil {
		s.hooks.OnMessages()
	}
}
