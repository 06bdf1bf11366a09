package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/halcyon-im/halcyon/internal/domain"
	"github.com/halcyon-im/halcyon/internal/pubsub"
)

// handleEvent is the single entry point for the conversation's push channel.
// Events are applied in delivery order with no reordering buffer; every
// handler is idempotent, so duplicate or replayed deliveries after a
// transport reconnect change nothing beyond the first application.
func (s *Session) handleEvent(ctx context.Context, msg *pubsub.Message) {
	if s.isClosed() {
		return
	}

	switch msg.Type {
	case pubsub.EventMessageNew:
		s.handleMessageNew(msg.Payload)
	case pubsub.EventMessageUpdate:
		s.handleMessageUpdate(msg.Payload)
	case pubsub.EventTyping:
		s.handleTyping(msg.Payload)
	case pubsub.EventRead:
		s.handleRead(msg.Payload)
	default:
		s.logger.Debug("ignoring unknown event type", "type", msg.Type)
	}
}

// handleMessageNew inserts a message from another participant, clears their
// typing indicator and broadcasts a read cursor since the message was just
// observed. A message from the local user is ignored: it is already handled
// by the optimistic path. (A second active session of the same user would
// therefore not see its own sends via push; it relies on its own optimistic
// path too.)
func (s *Session) handleMessageNew(payload json.RawMessage) {
	var p MessageNewPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn("invalid message:new payload", "error", err)
		return
	}
	if p.SenderID == s.self.UserID {
		s.logger.Debug("ignoring push echo of own message", "message_id", p.ID)
		return
	}

	if err := s.store.Insert(p.Message()); err != nil {
		s.logger.Warn("dropping message:new without id", "error", err)
		return
	}
	s.typing.Clear(p.SenderID)
	s.notifyMessages()

	// The message is on screen now, so tell the roster it has been read
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		defer cancel()
		s.MarkViewedNow(ctx)
	}()
}

// handleMessageUpdate merges a partial update. Unknown ids are dropped by the
// store; a patch for a still-optimistic entry is buffered there and replayed
// after reconciliation.
func (s *Session) handleMessageUpdate(payload json.RawMessage) {
	var p MessageUpdatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn("invalid message:update payload", "error", err)
		return
	}
	if p.ID == "" {
		s.logger.Warn("dropping message:update without id")
		return
	}

	s.store.ApplyPatch(p.ID, p.Patch())
	s.notifyMessages()
}

// handleTyping routes a typing signal to the tracker; self-originated signals
// are ignored (the local user knows they are typing)
func (s *Session) handleTyping(payload json.RawMessage) {
	var p TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn("invalid typing payload", "error", err)
		return
	}
	if p.UserID == s.self.UserID {
		return
	}
	s.typing.Touch(p.Signal())
}

// handleRead routes a participant's read cursor to the propagator
func (s *Session) handleRead(payload json.RawMessage) {
	var p ReadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn("invalid read payload", "error", err)
		return
	}
	if p.UserID == s.self.UserID {
		return
	}

	s.receipts.Apply(domain.ReadCursor{
		ConversationID: p.ConversationID,
		UserID:         p.UserID,
		ReadAt:         p.ReadAt,
	})
	s.notifyMessages()
}
