package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
)

func TestTypingTracker_ExpiresAfterSilence(t *testing.T) {
	tracker := NewTypingTracker(50*time.Millisecond, time.Second, nil)
	defer tracker.Close()

	user := uuid.New()
	tracker.Touch(domain.TypingSignal{UserID: user, DisplayName: "alice"})

	if len(tracker.Active()) != 1 {
		t.Fatalf("expected 1 typing user, got %d", len(tracker.Active()))
	}

	deadline := time.After(time.Second)
	for len(tracker.Active()) > 0 {
		select {
		case <-deadline:
			t.Fatal("typing signal did not expire")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTypingTracker_RenewalRestartsTimer(t *testing.T) {
	tracker := NewTypingTracker(80*time.Millisecond, time.Second, nil)
	defer tracker.Close()

	user := uuid.New()
	tracker.Touch(domain.TypingSignal{UserID: user})

	// Keep renewing past the original expiry window
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		tracker.Touch(domain.TypingSignal{UserID: user})
	}
	if len(tracker.Active()) != 1 {
		t.Fatal("renewed signal should still be active")
	}
}

func TestTypingTracker_ClearRemovesImmediately(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, time.Second, nil)
	defer tracker.Close()

	user := uuid.New()
	tracker.Touch(domain.TypingSignal{UserID: user})
	tracker.Clear(user)

	if len(tracker.Active()) != 0 {
		t.Fatal("cleared signal should be gone before expiry")
	}

	tracker.Clear(user) // clearing an absent user is a no-op
}

func TestTypingTracker_ActiveOrderedByStart(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, time.Second, nil)
	defer tracker.Close()

	first := uuid.New()
	second := uuid.New()
	tracker.Touch(domain.TypingSignal{UserID: first, DisplayName: "first"})
	time.Sleep(5 * time.Millisecond)
	tracker.Touch(domain.TypingSignal{UserID: second, DisplayName: "second"})

	// Renewing the first typist must not move them to the back
	tracker.Touch(domain.TypingSignal{UserID: first, DisplayName: "first"})

	active := tracker.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 typing users, got %d", len(active))
	}
	if active[0].DisplayName != "first" || active[1].DisplayName != "second" {
		t.Fatalf("unexpected order: %v", active)
	}
}

func TestTypingTracker_OnChangeFires(t *testing.T) {
	changes := make(chan int, 10)
	tracker := NewTypingTracker(time.Minute, time.Second, func(set []domain.TypingSignal) {
		changes <- len(set)
	})
	defer tracker.Close()

	user := uuid.New()
	tracker.Touch(domain.TypingSignal{UserID: user})
	if got := <-changes; got != 1 {
		t.Fatalf("expected set size 1, got %d", got)
	}

	// A renewal is not a set change
	tracker.Touch(domain.TypingSignal{UserID: user})

	tracker.Clear(user)
	if got := <-changes; got != 0 {
		t.Fatalf("expected set size 0, got %d", got)
	}
}

func TestTypingTracker_BroadcastCooldown(t *testing.T) {
	tracker := NewTypingTracker(time.Minute, 100*time.Millisecond, nil)
	defer tracker.Close()

	if !tracker.AllowBroadcast() {
		t.Fatal("first keystroke should broadcast")
	}
	if tracker.AllowBroadcast() {
		t.Fatal("second keystroke inside the cool-down should be suppressed")
	}

	time.Sleep(120 * time.Millisecond)
	if !tracker.AllowBroadcast() {
		t.Fatal("keystroke after the cool-down should broadcast again")
	}
}

func TestNewLocalID_UniqueAndRecognizable(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := newLocalID()
		if !domain.IsLocalID(id) {
			t.Fatalf("id %q not recognizable as local", id)
		}
		if seen[id] {
			t.Fatalf("duplicate local id %q", id)
		}
		seen[id] = true
	}
}
