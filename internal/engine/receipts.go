package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
	"github.com/halcyon-im/halcyon/internal/store"
)

// ReadPropagator turns incoming read cursors into retroactive read flips on
// the local user's messages. One cursor per (conversation, user) covers every
// message up to its timestamp, keeping the protocol O(events) rather than
// O(messages x participants).
type ReadPropagator struct {
	mu      sync.Mutex
	store   *store.Store
	cursors map[uuid.UUID]time.Time
}

// NewReadPropagator creates a propagator over the given store
func NewReadPropagator(st *store.Store) *ReadPropagator {
	return &ReadPropagator{
		store:   st,
		cursors: make(map[uuid.UUID]time.Time),
	}
}

// Apply processes a read cursor from another participant. Cursors only move
// forward; a stale or duplicate cursor is absorbed without effect, and the
// store flip itself is idempotent.
func (r *ReadPropagator) Apply(cursor domain.ReadCursor) {
	r.mu.Lock()
	if last, ok := r.cursors[cursor.UserID]; ok && !cursor.ReadAt.After(last) {
		r.mu.Unlock()
		return
	}
	r.cursors[cursor.UserID] = cursor.ReadAt
	r.mu.Unlock()

	r.store.MarkRead(cursor.UserID, cursor.ReadAt)
}

// Cursor returns the latest known read cursor for a participant
func (r *ReadPropagator) Cursor(userID uuid.UUID) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.cursors[userID]
	return t, ok
}
