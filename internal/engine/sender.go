package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/halcyon-im/halcyon/internal/domain"
)

// localSeq is monotonic across all sessions in the process; combined with a
// random suffix it keeps rapid sends from ever colliding on a local id
var localSeq atomic.Uint64

// newLocalID generates a temporary id for an optimistic entry
func newLocalID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%s%d-%s", domain.LocalIDPrefix, localSeq.Add(1), hex.EncodeToString(buf[:]))
}

// Uploader is the external collaborator that moves attachment bytes to
// storage. The engine only tracks upload state; the mechanics of compression
// and transfer live behind this interface.
type Uploader interface {
	// Upload stores the attachment's local blob and returns its remote URL
	Upload(ctx context.Context, att domain.Attachment) (string, error)
}

// SendOptions carries the optional parts of a send intent
type SendOptions struct {
	Format      domain.ContentFormat
	Attachments []domain.Attachment // URL is the local blob reference
	ReplyToID   *string
}

// Send runs the optimistic send pipeline:
//
//  1. Insert a placeholder under a fresh local id so the message shows
//     immediately.
//  2. Upload attachments concurrently, updating the placeholder's entries in
//     place as each completes.
//  3. Perform the authoritative create; on success the placeholder is
//     atomically replaced by the server record, on failure it is removed and
//     the error surfaces to the caller (the compose input is not restored).
//
// Deduplication against the push echo of the same message relies solely on id
// equality inside the store; no content heuristics are attempted.
func (s *Session) Send(ctx context.Context, content string, opts *SendOptions) (domain.Message, error) {
	if s.isClosed() {
		return domain.Message{}, domain.ErrSessionClosed
	}
	if opts == nil {
		opts = &SendOptions{}
	}
	if content == "" && len(opts.Attachments) == 0 {
		return domain.Message{}, domain.ErrEmptyMessage
	}

	format := opts.Format
	if format == "" {
		format = domain.FormatText
	}

	attachments := make([]domain.Attachment, len(opts.Attachments))
	for i, att := range opts.Attachments {
		att.IsOptimistic = true
		attachments[i] = att
	}

	msg := domain.Message{
		ID:             newLocalID(),
		ConversationID: s.conversationID,
		SenderID:       s.self.UserID,
		CreatedAt:      time.Now(),
		Format:         format,
		Attachments:    attachments,
		ReplyToID:      opts.ReplyToID,
		DeliveryState:  domain.DeliveryOptimistic,
	}
	if content != "" {
		msg.Content = &content
	}

	if err := s.store.Insert(msg); err != nil {
		return domain.Message{}, err
	}
	s.notifyMessages()

	if err := s.uploadAttachments(ctx, &msg); err != nil {
		s.store.Remove(msg.ID)
		s.notifyMessages()
		return domain.Message{}, fmt.Errorf("upload attachment: %w", err)
	}

	server, err := s.api.CreateMessage(ctx, msg)
	if err != nil {
		msg.DeliveryState = domain.DeliveryFailed
		s.store.Remove(msg.ID)
		s.notifyMessages()
		s.logger.Error("create message failed", "local_id", msg.ID, "error", err)
		return domain.Message{}, fmt.Errorf("create message: %w", err)
	}

	if err := s.store.ReplaceLocal(msg.ID, server); err != nil {
		return domain.Message{}, err
	}
	s.notifyMessages()

	confirmed, _ := s.store.Get(server.ID)
	return confirmed, nil
}

// Reply sends a message threaded under a parent
func (s *Session) Reply(ctx context.Context, parentID, content string, opts *SendOptions) (domain.Message, error) {
	if opts == nil {
		opts = &SendOptions{}
	}
	opts.ReplyToID = &parentID
	return s.Send(ctx, content, opts)
}

// uploadAttachments runs all uploads concurrently and waits for the batch.
// Each completion flips the corresponding optimistic entry in place; the
// authoritative create only goes out once every attachment has a real URL.
func (s *Session) uploadAttachments(ctx context.Context, msg *domain.Message) error {
	if s.uploader == nil || len(msg.Attachments) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range msg.Attachments {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url, err := s.uploader.Upload(ctx, msg.Attachments[i])
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			mu.Lock()
			msg.Attachments[i].URL = url
			msg.Attachments[i].IsOptimistic = false
			mu.Unlock()
			s.store.SetAttachmentUploaded(msg.ID, i, url)
			s.notifyMessages()
		}(i)
	}
	wg.Wait()
	return firstErr
}
