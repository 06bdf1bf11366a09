package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsLocalID(t *testing.T) {
	assert.True(t, IsLocalID("loc-1-a3f29b"))
	assert.False(t, IsLocalID(uuid.NewString()))
	assert.False(t, IsLocalID(""))
}

func TestMessage_HasReaction(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	m := &Message{
		Reactions: []Reaction{
			{Emoji: "👍", UserID: alice},
			{Emoji: "🔥", UserID: bob},
		},
	}

	assert.True(t, m.HasReaction(alice, "👍"))
	assert.False(t, m.HasReaction(alice, "🔥"))
	assert.False(t, m.HasReaction(bob, "👍"))
}

func TestMessage_ReadByUser(t *testing.T) {
	reader := uuid.New()
	m := &Message{
		ReadBy: []ReadReceipt{{UserID: reader, ReadAt: time.Now()}},
	}

	assert.True(t, m.ReadByUser(reader))
	assert.False(t, m.ReadByUser(uuid.New()))
}

func TestMessage_Clone_DoesNotAlias(t *testing.T) {
	content := "original"
	replyTo := "parent-id"
	m := Message{
		ID:          "m1",
		Content:     &content,
		ReplyToID:   &replyTo,
		Reactions:   []Reaction{{Emoji: "👍", UserID: uuid.New()}},
		ReadBy:      []ReadReceipt{{UserID: uuid.New(), ReadAt: time.Now()}},
		Attachments: []Attachment{{URL: "blob://x", Kind: "image"}},
	}

	clone := m.Clone()
	*clone.Content = "mutated"
	clone.Reactions[0].Emoji = "🔥"
	clone.Attachments[0].URL = "https://cdn/x"

	assert.Equal(t, "original", *m.Content)
	assert.Equal(t, "👍", m.Reactions[0].Emoji)
	assert.Equal(t, "blob://x", m.Attachments[0].URL)
	assert.Equal(t, "parent-id", *clone.ReplyToID)
}

func TestMessagePatch_IsEmpty(t *testing.T) {
	assert.True(t, MessagePatch{}.IsEmpty())

	edited := true
	assert.False(t, MessagePatch{IsEdited: &edited}.IsEmpty())

	reactions := []Reaction{}
	assert.False(t, MessagePatch{Reactions: &reactions}.IsEmpty())
}
