package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reply(id, parentID string, sender uuid.UUID, at time.Time) domain.Message {
	m := msg(id, sender, at, "reply")
	m.ReplyToID = &parentID
	return m
}

func TestThread_OrderIndependentOfArrival(t *testing.T) {
	s := newTestStore()
	base := time.Now()

	require.NoError(t, s.Insert(msg("parent", peerID, base, "P")))

	// R2 (t=2) arrives before R1 (t=1)
	require.NoError(t, s.Insert(reply("r2", "parent", peerID, base.Add(2*time.Second))))
	require.NoError(t, s.Insert(reply("r1", "parent", selfID, base.Add(1*time.Second))))

	thread := s.Thread("parent")
	require.Len(t, thread, 2)
	assert.Equal(t, "r1", thread[0].ID)
	assert.Equal(t, "r2", thread[1].ID)

	assert.Equal(t, 2, s.ReplyCount("parent"))
	assert.Equal(t, 0, s.ReplyCount("r1"))
}

func TestThread_ConsistentWithDeletes(t *testing.T) {
	s := newTestStore()
	base := time.Now()
	require.NoError(t, s.Insert(msg("parent", peerID, base, "P")))
	require.NoError(t, s.Insert(reply("r1", "parent", peerID, base.Add(time.Second))))

	deleted := true
	s.ApplyPatch("r1", domain.MessagePatch{IsDeleted: &deleted})

	thread := s.Thread("parent")
	require.Len(t, thread, 1)
	assert.True(t, thread[0].IsDeleted, "thread is a filter over the store, so it sees the delete")
}

func TestGroupedReactions(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Insert(msg("m1", peerID, time.Now(), "x")))

	third := uuid.New()
	s.ToggleReaction("m1", selfID, "👍")
	s.ToggleReaction("m1", peerID, "🔥")
	s.ToggleReaction("m1", third, "👍")

	groups := s.GroupedReactions("m1")
	require.Len(t, groups, 2)
	assert.Equal(t, "👍", groups[0].Emoji)
	assert.Equal(t, []uuid.UUID{selfID, third}, groups[0].UserIDs)
	assert.Equal(t, "🔥", groups[1].Emoji)

	assert.Nil(t, s.GroupedReactions("missing"))
}

func TestPinnedMessages_ResolvesInOrder(t *testing.T) {
	s := newTestStore()
	base := time.Now()
	require.NoError(t, s.Insert(msg("m1", peerID, base, "one")))
	require.NoError(t, s.Insert(msg("m2", peerID, base.Add(time.Second), "two")))

	s.SetPinned("m1", true)
	s.SetPinned("m2", true)

	pinned := s.PinnedMessages()
	require.Len(t, pinned, 2)
	assert.Equal(t, "m2", pinned[0].ID)
	assert.Equal(t, "m1", pinned[1].ID)
}

func TestUnreadCount(t *testing.T) {
	s := newTestStore()
	base := time.Now()

	require.NoError(t, s.Insert(msg("mine", selfID, base, "own message never counts")))
	require.NoError(t, s.Insert(msg("a", peerID, base.Add(time.Second), "x")))
	require.NoError(t, s.Insert(msg("b", peerID, base.Add(2*time.Second), "y")))
	assert.Equal(t, 2, s.UnreadCount())

	s.MarkViewed(base.Add(time.Second))
	assert.Equal(t, 1, s.UnreadCount())

	s.MarkViewed(base.Add(time.Hour))
	assert.Equal(t, 0, s.UnreadCount())

	// Deleted messages never count
	require.NoError(t, s.Insert(msg("c", peerID, base.Add(3*time.Second), "z")))
	deleted := true
	s.ApplyPatch("c", domain.MessagePatch{IsDeleted: &deleted})
	assert.Equal(t, 0, s.UnreadCount())
}
