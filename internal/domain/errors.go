package domain

import "errors"

// Domain errors - use these for consistent error handling
var (
	// Store misuse (benign missing-id cases are silent no-ops, not errors)
	ErrMissingID = errors.New("message has no id")

	// Conversation errors
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotMember            = errors.New("user is not a member of this conversation")

	// Message errors
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrMessageDeleted  = errors.New("message has been deleted")

	// Session errors
	ErrSessionClosed = errors.New("conversation session is closed")
	ErrTokenInvalid  = errors.New("invalid token")
)
