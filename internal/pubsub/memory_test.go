package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestMemoryPubSub_PublishSubscribe(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	ctx := context.Background()
	topic := Topics.Conversation("conv-1")

	received := make(chan *Message, 1)
	sub, err := ps.Subscribe(ctx, topic, func(ctx context.Context, msg *Message) {
		received <- msg
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	msg, err := NewMessage(topic, EventMessageNew, map[string]string{"id": "m1"})
	if err != nil {
		t.Fatalf("new message failed: %v", err)
	}
	if err := ps.Publish(ctx, topic, msg); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != EventMessageNew {
			t.Errorf("expected type %q, got %q", EventMessageNew, got.Type)
		}
		var payload map[string]string
		if err := json.Unmarshal(got.Payload, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload["id"] != "m1" {
			t.Errorf("expected payload id m1, got %q", payload["id"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryPubSub_DeliveryOrder(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	ctx := context.Background()
	topic := Topics.Conversation("conv-order")

	const count = 100
	got := make(chan string, count)
	sub, err := ps.Subscribe(ctx, topic, func(ctx context.Context, msg *Message) {
		got <- msg.Type
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	for i := 0; i < count; i++ {
		msg, _ := NewMessage(topic, fmt.Sprintf("event-%d", i), nil)
		if err := ps.Publish(ctx, topic, msg); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	for i := 0; i < count; i++ {
		select {
		case typ := <-got:
			if want := fmt.Sprintf("event-%d", i); typ != want {
				t.Fatalf("out of order: expected %q at position %d, got %q", want, i, typ)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestMemoryPubSub_MultipleSubscribers(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	ctx := context.Background()
	topic := Topics.Conversation("conv-multi")

	ch1 := make(chan *Message, 1)
	ch2 := make(chan *Message, 1)

	sub1, _ := ps.Subscribe(ctx, topic, func(ctx context.Context, msg *Message) { ch1 <- msg })
	defer sub1.Unsubscribe()
	sub2, _ := ps.Subscribe(ctx, topic, func(ctx context.Context, msg *Message) { ch2 <- msg })
	defer sub2.Unsubscribe()

	if ps.SubscriberCount(topic) != 2 {
		t.Fatalf("expected 2 subscribers, got %d", ps.SubscriberCount(topic))
	}

	msg, _ := NewMessage(topic, EventTyping, nil)
	if err := ps.Publish(ctx, topic, msg); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	for i, ch := range []chan *Message{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive the message", i+1)
		}
	}
}

func TestMemoryPubSub_TopicIsolation(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	ctx := context.Background()
	received := make(chan *Message, 1)

	sub, _ := ps.Subscribe(ctx, Topics.Conversation("a"), func(ctx context.Context, msg *Message) {
		received <- msg
	})
	defer sub.Unsubscribe()

	msg, _ := NewMessage(Topics.Conversation("b"), EventRead, nil)
	if err := ps.Publish(ctx, Topics.Conversation("b"), msg); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-received:
		t.Fatal("received message from a different topic")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryPubSub_Unsubscribe(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	ctx := context.Background()
	topic := Topics.User("u1")

	received := make(chan *Message, 1)
	sub, _ := ps.Subscribe(ctx, topic, func(ctx context.Context, msg *Message) {
		received <- msg
	})

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if ps.SubscriberCount(topic) != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", ps.SubscriberCount(topic))
	}
	if ps.TopicCount() != 0 {
		t.Fatalf("expected empty topic to be removed, got %d topics", ps.TopicCount())
	}

	msg, _ := NewMessage(topic, EventRead, nil)
	if err := ps.Publish(ctx, topic, msg); err != nil {
		t.Fatalf("publish after unsubscribe failed: %v", err)
	}

	select {
	case <-received:
		t.Fatal("received message after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryPubSub_ClosedRejectsOperations(t *testing.T) {
	ps := NewMemoryPubSub()
	topic := Topics.Conversation("conv-closed")
	ctx := context.Background()

	if err := ps.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := ps.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}

	if _, err := ps.Subscribe(ctx, topic, func(ctx context.Context, msg *Message) {}); err != ErrClosed {
		t.Errorf("expected ErrClosed from subscribe, got %v", err)
	}

	msg, _ := NewMessage(topic, EventTyping, nil)
	if err := ps.Publish(ctx, topic, msg); err != ErrClosed {
		t.Errorf("expected ErrClosed from publish, got %v", err)
	}
}
