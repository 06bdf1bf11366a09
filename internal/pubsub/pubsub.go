// Package pubsub provides the push-transport abstraction for realtime
// conversation events. The in-memory implementation serves tests and
// loopback rigs; the Redis and websocket-gateway backends serve real
// deployments behind the same interface.
package pubsub

import (
	"context"
	"encoding/json"
	"time"
)

// Event names carried over the push channel
const (
	EventMessageNew    = "message:new"
	EventMessageUpdate = "message:update"
	EventTyping        = "typing"
	EventRead          = "read"
)

// Message represents a pub/sub message with typed payload
type Message struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// NewMessage builds a message for a topic, marshaling the payload
func NewMessage(topic, eventType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Topic:     topic,
		Type:      eventType,
		Payload:   data,
		Timestamp: time.Now(),
	}, nil
}

// Handler is a callback for processing messages. For a given subscription,
// handlers run sequentially in delivery order; the engine's apply rules
// depend on that and do no reordering of their own.
type Handler func(ctx context.Context, msg *Message)

// Subscription represents an active subscription that can be closed
type Subscription interface {
	// Unsubscribe removes the subscription
	Unsubscribe() error
}

// PubSub defines the interface for publish/subscribe operations.
// All implementations must be safe for concurrent use.
type PubSub interface {
	// Publish sends a message to all subscribers of the given topic.
	// Returns error if the message could not be published.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers a handler for messages on the given topic.
	// Returns a Subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close shuts down the pub/sub system and releases resources.
	Close() error
}

// TopicBuilder helps construct consistent topic names
type TopicBuilder struct{}

// Conversation returns the topic for a conversation's event channel
func (t TopicBuilder) Conversation(conversationID string) string {
	return "conversation:" + conversationID
}

// User returns the topic for user-specific events
func (t TopicBuilder) User(userID string) string {
	return "user:" + userID
}

// Topics is a helper for building topic names
var Topics = TopicBuilder{}
