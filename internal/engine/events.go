package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
)

// ============================================================================
// Push event payloads (server -> client)
// ============================================================================

// MessageNewPayload announces a message created by any participant
type MessageNewPayload struct {
	ID             string               `json:"id"`
	ConversationID uuid.UUID            `json:"conversation_id"`
	SenderID       uuid.UUID            `json:"sender_id"`
	Content        *string              `json:"content,omitempty"`
	Format         domain.ContentFormat `json:"format,omitempty"`
	Attachments    []domain.Attachment  `json:"attachments,omitempty"`
	ReplyToID      *string              `json:"reply_to_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	SenderName     string               `json:"sender_name,omitempty"`
	SenderAvatar   string               `json:"sender_avatar,omitempty"`
}

// Message converts the payload into a confirmed store entry
func (p MessageNewPayload) Message() domain.Message {
	return domain.Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		Content:        p.Content,
		Format:         p.Format,
		Attachments:    p.Attachments,
		ReplyToID:      p.ReplyToID,
		CreatedAt:      p.CreatedAt,
		DeliveryState:  domain.DeliveryConfirmed,
	}
}

// MessageUpdatePayload carries whatever subset of fields changed on a message
type MessageUpdatePayload struct {
	ID             string             `json:"id"`
	ConversationID uuid.UUID          `json:"conversation_id"`
	Content        *string            `json:"content,omitempty"`
	IsEdited       *bool              `json:"is_edited,omitempty"`
	IsDeleted      *bool              `json:"is_deleted,omitempty"`
	IsPinned       *bool              `json:"is_pinned,omitempty"`
	Reactions      *[]domain.Reaction `json:"reactions,omitempty"`
}

// Patch extracts the partial update for the store
func (p MessageUpdatePayload) Patch() domain.MessagePatch {
	return domain.MessagePatch{
		Content:   p.Content,
		IsEdited:  p.IsEdited,
		IsDeleted: p.IsDeleted,
		IsPinned:  p.IsPinned,
		Reactions: p.Reactions,
	}
}

// TypingPayload signals that a user is typing. Also published outbound for
// the local user's own keystrokes.
type TypingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	DisplayName    string    `json:"display_name,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
}

// Signal converts the payload into the tracker's ephemeral entry
func (p TypingPayload) Signal() domain.TypingSignal {
	return domain.TypingSignal{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}
}

// ReadPayload carries a participant's read cursor
type ReadPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}
