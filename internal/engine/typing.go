package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
	"golang.org/x/time/rate"
)

const (
	// DefaultTypingExpiry clears a remote typing indicator after this much
	// silence from the sender
	DefaultTypingExpiry = 3 * time.Second

	// DefaultTypingCooldown bounds how often the local user's keystrokes
	// re-broadcast a typing signal
	DefaultTypingCooldown = 2 * time.Second
)

// typingEntry pairs a visible signal with its cancellable expiry timer
type typingEntry struct {
	signal    domain.TypingSignal
	startedAt time.Time
	timer     *time.Timer
}

// TypingTracker maintains the visible typing set for a conversation.
//
// Remote side: each incoming signal (re)starts a per-sender expiry timer;
// silence past the expiry window removes the sender, and a message from the
// sender removes them immediately, so the indicator never outlives an actual
// send. Local side: AllowBroadcast gates outbound signals to one per
// cool-down window regardless of typing speed.
type TypingTracker struct {
	mu      sync.Mutex
	active  map[uuid.UUID]*typingEntry
	expiry  time.Duration
	limiter *rate.Limiter

	// onChange, if set, is invoked with the new typing set after every
	// addition or removal (including timer expiry)
	onChange func([]domain.TypingSignal)

	closed bool
}

// NewTypingTracker creates a tracker with the given expiry and broadcast
// cool-down; zero durations fall back to the defaults.
func NewTypingTracker(expiry, cooldown time.Duration, onChange func([]domain.TypingSignal)) *TypingTracker {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	if cooldown <= 0 {
		cooldown = DefaultTypingCooldown
	}
	return &TypingTracker{
		active:   make(map[uuid.UUID]*typingEntry),
		expiry:   expiry,
		limiter:  rate.NewLimiter(rate.Every(cooldown), 1),
		onChange: onChange,
	}
}

// AllowBroadcast reports whether an outbound typing signal may be sent now.
// While suppressed (within the cool-down after the previous broadcast),
// further keystrokes return false and nothing is sent.
func (t *TypingTracker) AllowBroadcast() bool {
	return t.limiter.Allow()
}

// Touch records a typing signal from a remote sender, restarting the
// sender's expiry timer
func (t *TypingTracker) Touch(sig domain.TypingSignal) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if entry, ok := t.active[sig.UserID]; ok {
		entry.signal = sig
		entry.timer.Stop()
		entry.timer.Reset(t.expiry)
		t.mu.Unlock()
		return
	}

	userID := sig.UserID
	entry := &typingEntry{
		signal:    sig,
		startedAt: time.Now(),
		timer:     time.AfterFunc(t.expiry, func() { t.Clear(userID) }),
	}
	t.active[userID] = entry
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snapshot)
}

// Clear removes a sender from the typing set, cancelling their expiry timer.
// Called on expiry and when a message from the sender arrives.
func (t *TypingTracker) Clear(userID uuid.UUID) {
	t.mu.Lock()
	entry, ok := t.active[userID]
	if !ok {
		t.mu.Unlock()
		return
	}
	entry.timer.Stop()
	delete(t.active, userID)
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snapshot)
}

// Active returns the current typing set, oldest signal first
func (t *TypingTracker) Active() []domain.TypingSignal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *TypingTracker) snapshotLocked() []domain.TypingSignal {
	entries := make([]*typingEntry, 0, len(t.active))
	for _, e := range t.active {
		entries = append(entries, e)
	}
	// Stable display order: whoever started typing first shows first
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].startedAt.Before(entries[j-1].startedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	out := make([]domain.TypingSignal, len(entries))
	for i, e := range entries {
		out[i] = e.signal
	}
	return out
}

func (t *TypingTracker) notify(snapshot []domain.TypingSignal) {
	if t.onChange != nil {
		t.onChange(snapshot)
	}
}

// Close stops all expiry timers and empties the typing set
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, entry := range t.active {
		entry.timer.Stop()
	}
	t.active = make(map[uuid.UUID]*typingEntry)
}
