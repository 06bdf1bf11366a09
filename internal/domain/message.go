package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeliveryState tracks where a message is in the send lifecycle
type DeliveryState string

const (
	// DeliveryOptimistic means the message exists only locally, under a local id
	DeliveryOptimistic DeliveryState = "optimistic"
	// DeliveryConfirmed means the server has acknowledged the message
	DeliveryConfirmed DeliveryState = "confirmed"
	// DeliveryFailed means the create call was rejected; the entry is removed from display
	DeliveryFailed DeliveryState = "failed"
)

// ContentFormat is the rendering format of a message body
type ContentFormat string

const (
	FormatText     ContentFormat = "text"
	FormatMarkdown ContentFormat = "markdown"
)

// LocalIDPrefix marks client-generated ids. Server ids are UUIDs and never
// carry this prefix, so the two id spaces cannot collide.
const LocalIDPrefix = "loc-"

// IsLocalID reports whether id was generated client-side for an optimistic entry
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Attachment describes a file attached to a message.
// While the upload is in flight, URL points at a local blob reference and
// IsOptimistic is set; the entry is updated in place when the upload completes.
type Attachment struct {
	URL          string `json:"url"`
	Kind         string `json:"kind"` // "image", "video", "file", ...
	Name         string `json:"name,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	IsOptimistic bool   `json:"is_optimistic,omitempty"`
}

// Reaction is a single (emoji, user) pair. A message never holds duplicate pairs.
type Reaction struct {
	Emoji  string    `json:"emoji"`
	UserID uuid.UUID `json:"user_id"`
}

// ReadReceipt records that a user has read a message
type ReadReceipt struct {
	UserID uuid.UUID `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// Message is the central entity of a conversation.
// ID is either a local id (optimistic, temporary) or a server id (authoritative);
// exactly one is active at any time.
type Message struct {
	ID             string        `json:"id"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	SenderID       uuid.UUID     `json:"sender_id"`
	CreatedAt      time.Time     `json:"created_at"`
	Content        *string       `json:"content,omitempty"`
	Format         ContentFormat `json:"format,omitempty"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	ReplyToID      *string       `json:"reply_to_id,omitempty"`
	Reactions      []Reaction    `json:"reactions,omitempty"`
	ReadBy         []ReadReceipt `json:"read_by,omitempty"`
	IsEdited       bool          `json:"is_edited,omitempty"`
	IsDeleted      bool          `json:"is_deleted,omitempty"`
	IsPinned       bool          `json:"is_pinned,omitempty"`
	DeliveryState  DeliveryState `json:"delivery_state,omitempty"`
}

// HasReaction reports whether userID has applied emoji to the message
func (m *Message) HasReaction(userID uuid.UUID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// ReadByUser reports whether userID appears in the message's read set
func (m *Message) ReadByUser(userID uuid.UUID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, so callers can hand messages across goroutines
// without aliasing the store's slices
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		c := *m.Content
		out.Content = &c
	}
	if m.ReplyToID != nil {
		r := *m.ReplyToID
		out.ReplyToID = &r
	}
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Reactions != nil {
		out.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	if m.ReadBy != nil {
		out.ReadBy = append([]ReadReceipt(nil), m.ReadBy...)
	}
	return out
}

// MessagePatch is a partial update applied against a message by server id.
// Nil fields are absent from the patch. Reactions replace the set wholesale:
// the last server state always wins over any local guess.
type MessagePatch struct {
	Content   *string     `json:"content,omitempty"`
	IsEdited  *bool       `json:"is_edited,omitempty"`
	IsDeleted *bool       `json:"is_deleted,omitempty"`
	IsPinned  *bool       `json:"is_pinned,omitempty"`
	Reactions *[]Reaction `json:"reactions,omitempty"`
}

// IsEmpty reports whether the patch carries no fields
func (p MessagePatch) IsEmpty() bool {
	return p.Content == nil && p.IsEdited == nil && p.IsDeleted == nil &&
		p.IsPinned == nil && p.Reactions == nil
}
