package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	ConversationTypeDM      ConversationType = "dm"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeChannel ConversationType = "channel"
)

type MemberRole string

const (
	MemberRoleMember MemberRole = "member"
	MemberRoleAdmin  MemberRole = "admin"
)

// Conversation holds the roster and metadata for a chat (DM, group or channel).
// The pinned list and typing set are materialized by the conversation store,
// not persisted here.
type Conversation struct {
	ID        uuid.UUID        `json:"id"`
	Type      ConversationType `json:"type"`
	Title     string           `json:"title,omitempty"` // groups and channels
	ImageURL  string           `json:"image_url,omitempty"`
	IsPrivate bool             `json:"is_private,omitempty"`
	CreatedAt time.Time        `json:"created_at"`

	// Populated on fetch
	Members []ConversationMember `json:"members,omitempty"`
}

// ConversationMember represents a user's membership in a conversation
type ConversationMember struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Role           MemberRole `json:"role"`
	DisplayName    string     `json:"display_name,omitempty"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	JoinedAt       time.Time  `json:"joined_at"`
}

// TypingSignal is an ephemeral "user is typing" marker. It is client-local,
// keyed by user, and expires after a few seconds of silence; it is never
// part of persisted state.
type TypingSignal struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

// ReadCursor is a per-conversation, per-user "read up to" timestamp, used to
// retroactively bulk-flip read state without per-message receipt events.
type ReadCursor struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}
