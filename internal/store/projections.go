package store

import (
	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
)

// ReactionGroup is one emoji with everyone who applied it, in application order
type ReactionGroup struct {
	Emoji   string
	UserIDs []uuid.UUID
}

// GroupedReactions projects a message's flat reaction list into emoji groups.
// Recomputed on read, never stored, so it cannot go stale against the flat list.
func (s *Store) GroupedReactions(messageID string) []ReactionGroup {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byID[messageID]
	if !ok {
		return nil
	}

	index := make(map[string]int)
	groups := make([]ReactionGroup, 0, len(entry.Reactions))
	for _, r := range entry.Reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, ReactionGroup{Emoji: r.Emoji})
		}
		groups[i].UserIDs = append(groups[i].UserIDs, r.UserID)
	}
	return groups
}

// PinnedIDs returns the pinned order, most-recently-pinned first
func (s *Store) PinnedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pinned...)
}

// PinnedMessages resolves the pinned order to message copies
func (s *Store) PinnedMessages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Message, 0, len(s.pinned))
	for _, id := range s.pinned {
		if entry, ok := s.byID[id]; ok {
			out = append(out, entry.Clone())
		}
	}
	return out
}

// Thread returns the chronologically-ordered replies to a parent message.
// Replies are ordinary messages carrying a ReplyToID; because this is a
// filter over the single store, it stays consistent with edits and deletes
// regardless of arrival order.
func (s *Store) Thread(parentID string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Message
	for _, m := range s.messages {
		if m.ReplyToID != nil && *m.ReplyToID == parentID {
			out = append(out, m.Clone())
		}
	}
	return out
}

// ReplyCount returns the number of replies to a parent message
func (s *Store) ReplyCount(parentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if m.ReplyToID != nil && *m.ReplyToID == parentID {
			n++
		}
	}
	return n
}

// UnreadCount counts messages from other participants the local user has not
// read yet. Deleted messages do not count.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if m.SenderID == s.selfID || m.IsDeleted {
			continue
		}
		if !m.ReadByUser(s.selfID) {
			n++
		}
	}
	return n
}
