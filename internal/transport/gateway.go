// Package transport connects the engine's pub/sub abstraction to a remote
// websocket gateway. One connection multiplexes any number of topic
// subscriptions; the gateway fans conversation events into the socket and
// accepts outbound publishes (typing broadcasts).
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/halcyon-im/halcyon/internal/pubsub"
)

const (
	// Time allowed to write a message to the gateway
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the gateway
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size
	maxMessageSize = 65536

	sendBuffer = 256
)

// Control frame types exchanged with the gateway, besides event envelopes
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	framePublish     = "publish"
)

// envelope is the wire format in both directions. Inbound frames carry the
// topic and event type of a pub/sub message; outbound control frames reuse
// the same shape with Type set to a control name and Topic as the argument.
type envelope struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// gatewaySubscription is one local handler registration
type gatewaySubscription struct {
	gw    *Gateway
	topic string
	id    uint64
}

func (s *gatewaySubscription) Unsubscribe() error {
	return s.gw.unsubscribe(s.topic, s.id)
}

// Gateway implements pubsub.PubSub over a single websocket connection.
// Handlers for a topic run sequentially on the read pump, preserving the
// gateway's delivery order.
type Gateway struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]map[uint64]pubsub.Handler
	nextID   uint64
	closed   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to the gateway URL, authenticating with the bearer token,
// and starts the read and write pumps.
func Dial(ctx context.Context, gatewayURL, token string, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	header := make(map[string][]string)
	if token != "" {
		header["Authorization"] = []string{"Bearer " + token}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	gw := &Gateway{
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		handlers: make(map[string]map[uint64]pubsub.Handler),
		logger:   logger.With("component", "gateway"),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go gw.readPump(pumpCtx)
	go gw.writePump(pumpCtx)

	gw.logger.Info("connected to gateway", "url", gatewayURL)
	return gw, nil
}

// Subscribe registers a handler for a topic; the first handler for a topic
// asks the gateway to start forwarding it
func (g *Gateway) Subscribe(ctx context.Context, topic string, handler pubsub.Handler) (pubsub.Subscription, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, pubsub.ErrClosed
	}

	first := g.handlers[topic] == nil
	if first {
		g.handlers[topic] = make(map[uint64]pubsub.Handler)
	}
	g.nextID++
	id := g.nextID
	g.handlers[topic][id] = handler
	g.mu.Unlock()

	if first {
		if err := g.sendControl(frameSubscribe, topic, nil); err != nil {
			g.unsubscribeLocal(topic, id)
			return nil, err
		}
	}
	return &gatewaySubscription{gw: g, topic: topic, id: id}, nil
}

// Publish sends an event to the gateway for fanout to the topic's subscribers
func (g *Gateway) Publish(ctx context.Context, topic string, msg *pubsub.Message) error {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return pubsub.ErrClosed
	}

	inner, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return g.sendControl(framePublish, topic, inner)
}

func (g *Gateway) sendControl(frameType, topic string, payload json.RawMessage) error {
	data, err := json.Marshal(envelope{
		Type:      frameType,
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	select {
	case g.send <- data:
		return nil
	default:
		// Buffer full: the connection is stalled; better to drop than block
		g.logger.Warn("gateway send buffer full, dropping frame", "frame", frameType, "topic", topic)
		return nil
	}
}

func (g *Gateway) unsubscribe(topic string, id uint64) error {
	if last := g.unsubscribeLocal(topic, id); last {
		return g.sendControl(frameUnsubscribe, topic, nil)
	}
	return nil
}

// unsubscribeLocal removes the handler and reports whether it was the last
// one for the topic
func (g *Gateway) unsubscribeLocal(topic string, id uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	subs, ok := g.handlers[topic]
	if !ok {
		return false
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(g.handlers, topic)
		return true
	}
	return false
}

// readPump reads frames off the socket and dispatches them to topic handlers
// in arrival order
func (g *Gateway) readPump(ctx context.Context) {
	defer func() {
		g.Close()
		close(g.done)
	}()

	g.conn.SetReadLimit(maxMessageSize)
	_ = g.conn.SetReadDeadline(time.Now().Add(pongWait))
	g.conn.SetPongHandler(func(string) error {
		_ = g.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := g.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("gateway read error", "error", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.logger.Warn("invalid gateway frame", "error", err)
			continue
		}

		msg := &pubsub.Message{
			Topic:     env.Topic,
			Type:      env.Type,
			Payload:   env.Payload,
			Timestamp: env.Timestamp,
		}

		g.mu.Lock()
		handlers := make([]pubsub.Handler, 0, len(g.handlers[env.Topic]))
		for _, h := range g.handlers[env.Topic] {
			handlers = append(handlers, h)
		}
		g.mu.Unlock()

		// Inline dispatch keeps delivery order per topic
		for _, h := range handlers {
			h(ctx, msg)
		}
	}
}

// writePump drains the send buffer and keeps the connection alive with pings
func (g *Gateway) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = g.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = g.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = g.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-g.send:
			_ = g.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := g.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = g.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := g.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close tears down the connection and drops all local subscriptions
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.handlers = make(map[string]map[uint64]pubsub.Handler)
	g.mu.Unlock()

	g.cancel()
	return g.conn.Close()
}
