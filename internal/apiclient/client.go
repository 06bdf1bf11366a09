// Package apiclient implements the request/response collaborator the engine
// writes through: message create/edit/delete, reaction and pin toggles, read
// cursors and the initial bulk fetch.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/halcyon-im/halcyon/internal/domain"
	"golang.org/x/time/rate"
)

const defaultTimeout = 15 * time.Second

// Client talks to the messaging backend's REST API. Write calls share a rate
// limiter so a burst of intents cannot flood the backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option customizes the client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit bounds outbound requests per second
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// New creates a client for the given API base URL, authenticating every
// request with the bearer token
func New(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		logger:  logger.With("component", "apiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is the backend's error envelope
type apiError struct {
	Error string `json:"error"`
}

// do performs one JSON round trip. in may be nil for bodyless requests; out
// may be nil when the response body is irrelevant.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// FetchMessages loads the newest window of a conversation's history
func (c *Client) FetchMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]domain.Message, error) {
	path := fmt.Sprintf("/conversations/%s/messages", conversationID)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// createMessageRequest is the authoritative-write body
type createMessageRequest struct {
	Content     *string              `json:"content,omitempty"`
	Format      domain.ContentFormat `json:"format,omitempty"`
	Attachments []domain.Attachment  `json:"attachments,omitempty"`
	ReplyToID   *string              `json:"reply_to_id,omitempty"`
}

// CreateMessage performs the authoritative write for an optimistic entry and
// returns the server record that reconciles it
func (c *Client) CreateMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	req := createMessageRequest{
		Content:     msg.Content,
		Format:      msg.Format,
		Attachments: msg.Attachments,
		ReplyToID:   msg.ReplyToID,
	}

	var out domain.Message
	path := fmt.Sprintf("/conversations/%s/messages", msg.ConversationID)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return domain.Message{}, err
	}
	out.DeliveryState = domain.DeliveryConfirmed
	return out, nil
}

// EditMessage replaces a message's content (last writer wins)
func (c *Client) EditMessage(ctx context.Context, messageID string, userID uuid.UUID, content string) error {
	body := map[string]string{"content": content, "user_id": userID.String()}
	return c.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), body, nil)
}

// DeleteMessage soft-deletes a message
func (c *Client) DeleteMessage(ctx context.Context, messageID string, userID uuid.UUID) error {
	path := fmt.Sprintf("/messages/%s?user_id=%s", url.PathEscape(messageID), userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ToggleReaction flips the (emoji, user) pair on a message server-side
func (c *Client) ToggleReaction(ctx context.Context, messageID string, userID uuid.UUID, emoji string) error {
	body := map[string]string{"emoji": emoji, "user_id": userID.String()}
	return c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reactions/toggle", body, nil)
}

// PinMessage pins a message for the whole conversation
func (c *Client) PinMessage(ctx context.Context, messageID string, userID uuid.UUID) error {
	body := map[string]string{"user_id": userID.String()}
	return c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/pin", body, nil)
}

// UnpinMessage removes a pin
func (c *Client) UnpinMessage(ctx context.Context, messageID string, userID uuid.UUID) error {
	path := fmt.Sprintf("/messages/%s/pin?user_id=%s", url.PathEscape(messageID), userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// MarkRead advances the caller's read cursor to now
func (c *Client) MarkRead(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID) error {
	body := map[string]string{"user_id": userID.String()}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/conversations/%s/read", conversationID), body, nil)
}
