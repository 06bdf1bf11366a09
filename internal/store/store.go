// Package store holds the single source of truth for an open conversation:
// the ordered message list plus the derived pinned, thread and reaction views.
// Both the optimistic send pipeline and the push event router mutate through
// it, so the two paths converge on one consistent state.
//
// Every method is a synchronous, atomic state transition under one mutex.
// Races between async completions (network responses, push events, timers)
// are therefore purely temporal: operations interleave but never overlap.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
)

// Store is the authoritative in-memory state for one open conversation.
// It is owned by exactly one conversation session at a time.
type Store struct {
	mu             sync.Mutex
	conversationID uuid.UUID
	selfID         uuid.UUID

	// messages is kept totally ordered by CreatedAt, ties broken by arrival
	// sequence. Once confirmed, a message never moves; the store only
	// appends and merges.
	messages []*domain.Message
	byID     map[string]*domain.Message
	arrival  map[string]uint64
	nextSeq  uint64

	// pinned is the ordered pinned set, most-recently-pinned first.
	// Always a view over IsPinned flags plus explicit ordering, never an
	// independent authoritative list.
	pinned []string

	// pending buffers patches that arrived for a still-optimistic entry,
	// keyed by local id, replayed once reconciliation completes
	pending map[string][]domain.MessagePatch

	logger *slog.Logger
}

// New creates a store for the given conversation. selfID identifies the local
// user; MarkRead and the unread projection are defined relative to it.
func New(conversationID, selfID uuid.UUID, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		conversationID: conversationID,
		selfID:         selfID,
		byID:           make(map[string]*domain.Message),
		arrival:        make(map[string]uint64),
		pending:        make(map[string][]domain.MessagePatch),
		logger:         logger.With("component", "store", "conversation_id", conversationID),
	}
}

// ConversationID returns the conversation this store belongs to
func (s *Store) ConversationID() uuid.UUID { return s.conversationID }

// SelfID returns the local user id
func (s *Store) SelfID() uuid.UUID { return s.selfID }

// Insert adds a message preserving chronological order. Inserting an id that
// is already present is a no-op, which absorbs duplicate push deliveries and
// the replace-then-echo race. Returns ErrMissingID for a message with no id.
func (s *Store) Insert(m domain.Message) error {
	if m.ID == "" {
		return domain.ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[m.ID]; ok {
		s.logger.Debug("insert ignored, id already present", "message_id", m.ID)
		return nil
	}
	s.insertLocked(m)
	return nil
}

// insertLocked places a clone of m at its chronological position.
// Equal timestamps sort by arrival: a new insert goes after existing equals.
func (s *Store) insertLocked(m domain.Message) *domain.Message {
	clone := m.Clone()
	s.nextSeq++
	s.arrival[clone.ID] = s.nextSeq

	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(clone.CreatedAt)
	})
	s.messages = append(s.messages, nil)
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = &clone
	s.byID[clone.ID] = &clone

	if clone.IsPinned {
		s.pinLocked(clone.ID)
	}
	return &clone
}

// ReplaceLocal atomically removes the local-id entry and inserts the server
// record in its place. If the local entry no longer exists (removed by a
// race), the server entry is inserted fresh; if the server id is already
// present (the push echo won), the local entry is simply dropped. Either way
// at most one copy of the logically-equivalent message remains visible.
// Reactions and pin state accrued on the optimistic copy are preserved when
// the server record does not carry its own, and patches buffered against the
// local id are replayed onto the server record.
func (s *Store) ReplaceLocal(localID string, server domain.Message) error {
	if server.ID == "" {
		return domain.ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buffered := s.pending[localID]
	delete(s.pending, localID)

	local, hadLocal := s.byID[localID]
	if hadLocal {
		if len(server.Reactions) == 0 && len(local.Reactions) > 0 {
			server.Reactions = append([]domain.Reaction(nil), local.Reactions...)
		}
		if local.IsPinned && !server.IsPinned {
			server.IsPinned = true
		}
		s.removeLocked(localID)
	}

	server.DeliveryState = domain.DeliveryConfirmed
	if _, ok := s.byID[server.ID]; ok {
		// Push echo arrived first; the server record is already here
		s.logger.Debug("replace absorbed by existing server entry", "message_id", server.ID)
	} else {
		s.insertLocked(server)
	}

	for _, p := range buffered {
		s.applyPatchLocked(server.ID, p)
	}
	return nil
}

// Remove deletes a message entry outright, along with any pinned-list entry
// and buffered patches. Used when an optimistic send fails. Missing ids are
// a silent no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	s.removeLocked(id)
}

func (s *Store) removeLocked(id string) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	delete(s.arrival, id)
	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	s.unpinLocked(id)
}

// ApplyPatch merges partial fields into the matching entry. Unknown ids are
// dropped silently: the likely cause is benign reordering (a patch arriving
// before its insert, or a paginated-out target), not an error. A patch whose
// id refers to a still-optimistic entry is buffered against the local id and
// replayed when reconciliation completes.
func (s *Store) ApplyPatch(id string, p domain.MessagePatch) {
	if p.IsEmpty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[id]
	if !ok {
		s.logger.Debug("patch dropped, unknown message id", "message_id", id)
		return
	}
	if entry.DeliveryState == domain.DeliveryOptimistic {
		s.pending[id] = append(s.pending[id], p)
		return
	}
	s.applyPatchLocked(id, p)
}

func (s *Store) applyPatchLocked(id string, p domain.MessagePatch) {
	entry, ok := s.byID[id]
	if !ok {
		return
	}
	if p.Content != nil {
		c := *p.Content
		entry.Content = &c
	}
	if p.IsEdited != nil {
		entry.IsEdited = *p.IsEdited
	}
	if p.IsDeleted != nil {
		entry.IsDeleted = *p.IsDeleted
	}
	if p.Reactions != nil {
		// Authoritative set replaces the local guess wholesale
		entry.Reactions = append([]domain.Reaction(nil), (*p.Reactions)...)
	}
	if p.IsPinned != nil {
		s.setPinnedLocked(entry, *p.IsPinned)
	}
}

// MarkRead flips read state for every message authored by the local user with
// CreatedAt <= upto that userID has not already read. This is a retroactive
// bulk flip driven by a read cursor, not a per-message acknowledgment.
func (s *Store) MarkRead(userID uuid.UUID, upto time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.SenderID != s.selfID || m.CreatedAt.After(upto) {
			continue
		}
		if m.ReadByUser(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, domain.ReadReceipt{UserID: userID, ReadAt: upto})
	}
}

// MarkViewed records that the local user has seen every message from other
// participants with CreatedAt <= upto. This is the local half of the read
// flow; the outbound mark-read call tells the rest of the roster.
func (s *Store) MarkViewed(upto time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.SenderID == s.selfID || m.CreatedAt.After(upto) {
			continue
		}
		if m.ReadByUser(s.selfID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, domain.ReadReceipt{UserID: s.selfID, ReadAt: upto})
	}
}

// ToggleReaction flips the (emoji, user) pair on a message: add if absent,
// remove if present. This is the optimistic local guess; a later reactions
// patch from the server always replaces it. Missing ids are a silent no-op.
func (s *Store) ToggleReaction(messageID string, userID uuid.UUID, emoji string) {
	if emoji == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[messageID]
	if !ok {
		return
	}
	for i, r := range entry.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			entry.Reactions = append(entry.Reactions[:i], entry.Reactions[i+1:]...)
			return
		}
	}
	entry.Reactions = append(entry.Reactions, domain.Reaction{Emoji: emoji, UserID: userID})
}

// SetPinned pins or unpins a message. Pinning prepends to the pinned order if
// not already present; unpinning removes by id. Missing ids are a silent no-op.
func (s *Store) SetPinned(messageID string, pinned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[messageID]
	if !ok {
		return
	}
	s.setPinnedLocked(entry, pinned)
}

func (s *Store) setPinnedLocked(entry *domain.Message, pinned bool) {
	entry.IsPinned = pinned
	if pinned {
		s.pinLocked(entry.ID)
	} else {
		s.unpinLocked(entry.ID)
	}
}

// pinLocked prepends id to the pinned order; re-pinning an already-pinned
// message keeps its position
func (s *Store) pinLocked(id string) {
	for _, p := range s.pinned {
		if p == id {
			return
		}
	}
	s.pinned = append([]string{id}, s.pinned...)
}

func (s *Store) unpinLocked(id string) {
	for i, p := range s.pinned {
		if p == id {
			s.pinned = append(s.pinned[:i], s.pinned[i+1:]...)
			return
		}
	}
}

// Get returns a copy of the message with the given id
func (s *Store) Get(id string) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byID[id]
	if !ok {
		return domain.Message{}, false
	}
	return entry.Clone(), true
}

// Messages returns the full ordered message list as copies
func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages in the store
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// SetAttachmentUploaded updates one attachment of an optimistic entry in
// place once its upload completes: the local blob reference becomes the
// remote URL and the optimistic flag clears. No replacement is needed for
// this sub-step.
func (s *Store) SetAttachmentUploaded(messageID string, index int, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[messageID]
	if !ok || index < 0 || index >= len(entry.Attachments) {
		return
	}
	entry.Attachments[index].URL = url
	entry.Attachments[index].IsOptimistic = false
}
