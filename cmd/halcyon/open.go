package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/halcyon-im/halcyon/internal/apiclient"
	"github.com/halcyon-im/halcyon/internal/config"
	"github.com/halcyon-im/halcyon/internal/domain"
	"github.com/halcyon-im/halcyon/internal/engine"
	"github.com/halcyon-im/halcyon/internal/identity"
	"github.com/halcyon-im/halcyon/internal/pubsub"
	"github.com/halcyon-im/halcyon/internal/transport"
)

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <conversation-id>",
		Short: "Open a conversation and stream it live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpen(args[0])
		},
	}
}

func runOpen(rawID string) error {
	conversationID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	self, err := identity.FromToken(cfg.Token)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ps, err := newPushTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer ps.Close()

	api := apiclient.New(cfg.APIBaseURL, cfg.Token, slog.Default())

	session, err := engine.NewSession(engine.Config{
		ConversationID: conversationID,
		Self: engine.Self{
			UserID:      self.ID,
			DisplayName: self.DisplayName,
			AvatarURL:   self.AvatarURL,
		},
		API:            api,
		PubSub:         ps,
		Logger:         slog.Default(),
		FetchLimit:     cfg.FetchLimit,
		TypingExpiry:   cfg.TypingExpiry,
		TypingCooldown: cfg.TypingCooldown,
		Hooks: engine.Hooks{
			OnTyping: printTyping,
		},
	})
	if err != nil {
		return err
	}

	if err := session.Open(ctx); err != nil {
		return err
	}
	defer session.Close()

	for _, m := range session.Messages() {
		printMessage(self.ID, m)
	}
	fmt.Printf("-- %s connected as %s; type to send, Ctrl-C to leave --\n",
		conversationID, self.DisplayName)

	// Stdin loop: every line is a send, every keystroke batch a typing ping
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	seen := len(session.Messages())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			_ = session.Typing(ctx)
			if _, err := session.Send(ctx, line, nil); err != nil {
				fmt.Fprintln(os.Stderr, "send failed:", err)
			}
			// Print whatever arrived since the last prompt
			msgs := session.Messages()
			for _, m := range msgs[min(seen, len(msgs)):] {
				printMessage(self.ID, m)
			}
			seen = len(msgs)
		}
	}
}

func newPushTransport(ctx context.Context, cfg *config.Config) (pubsub.PubSub, error) {
	switch cfg.PushTransport {
	case "redis":
		return pubsub.NewRedisPubSub(cfg.RedisURL)
	case "memory":
		return pubsub.NewMemoryPubSub(), nil
	default:
		return transport.Dial(ctx, cfg.GatewayURL, cfg.Token, slog.Default())
	}
}

func printMessage(selfID uuid.UUID, m domain.Message) {
	who := m.SenderID.String()[:8]
	if m.SenderID == selfID {
		who = "you"
	}
	body := ""
	if m.Content != nil {
		body = *m.Content
	}
	switch {
	case m.IsDeleted:
		body = "(deleted)"
	case m.IsEdited:
		body += " (edited)"
	}
	marker := ""
	if m.DeliveryState == domain.DeliveryOptimistic {
		marker = " …"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Format("15:04:05"), who, body, marker)
}

func printTyping(typing []domain.TypingSignal) {
	if len(typing) == 0 {
		return
	}
	names := make([]string, len(typing))
	for i, t := range typing {
		names[i] = t.DisplayName
	}
	fmt.Printf("-- %s typing --\n", strings.Join(names, ", "))
}
