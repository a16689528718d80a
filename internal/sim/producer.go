// Package sim drives a scripted conversation through a publisher, standing in
// for the execution engine that produces events in a real deployment. It is
// used by the simulate command and by end-to-end tests.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inercia/specula/internal/event"
	"github.com/inercia/specula/internal/ident"
	"github.com/inercia/specula/internal/logging"
)

// Publisher accepts events for fan-out. It is satisfied by *bus.Bus for
// in-process producers and by *client.Client for remote ones.
type Publisher interface {
	Publish(ev event.Event) error
}

// Producer publishes a scripted conversation.
type Producer struct {
	pub    Publisher
	logger *slog.Logger

	// chunkDelay is the pause between streamed text chunks.
	chunkDelay time.Duration
	// askPermission adds a permission request/reply round trip.
	askPermission bool
	// duplicates republishes every event once, simulating at-least-once
	// delivery; a correct consumer converges to the same state.
	duplicates bool
}

// Option configures the producer.
type Option func(*Producer)

// WithChunkDelay sets the pause between streamed text chunks.
// Zero disables pacing, which is what tests want.
func WithChunkDelay(d time.Duration) Option {
	return func(p *Producer) {
		p.chunkDelay = d
	}
}

// WithPermission adds a permission request and reply to the conversation.
func WithPermission(enabled bool) Option {
	return func(p *Producer) {
		p.askPermission = enabled
	}
}

// WithDuplicates publishes every event twice, simulating at-least-once
// delivery for convergence tests and demos.
func WithDuplicates(enabled bool) Option {
	return func(p *Producer) {
		p.duplicates = enabled
	}
}

// WithLogger sets the producer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Producer) {
		p.logger = logger
	}
}

// New creates a producer publishing to pub.
func New(pub Publisher, opts ...Option) *Producer {
	p := &Producer{
		pub:        pub,
		logger:     logging.Sim(),
		chunkDelay: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunConversation publishes one full conversation: a session, a user message,
// and an assistant reply streamed chunk by chunk, ending with session.idle.
// Returns the session ID.
func (p *Producer) RunConversation(ctx context.Context, title, prompt string, reply []string) (string, error) {
	sessionID := ident.Session()
	now := time.Now().UnixMilli()

	session := event.Session{
		ID:    sessionID,
		Title: title,
		Time:  event.SessionTime{Created: now, Updated: now},
	}
	if err := p.publish(event.SessionUpdated(session)); err != nil {
		return "", err
	}
	p.logger.Info("Simulated session started", "session_id", sessionID, "title", title)

	// User turn: one message with a single text part.
	userMsg := event.Message{
		ID:        ident.Message(),
		SessionID: sessionID,
		Role:      "user",
		Created:   now,
	}
	if err := p.publish(event.MessageUpdated(userMsg)); err != nil {
		return "", err
	}
	if err := p.publish(event.PartUpdated(event.Part{
		ID:        ident.Part(),
		MessageID: userMsg.ID,
		SessionID: sessionID,
		Type:      event.PartTypeText,
		Text:      prompt,
	})); err != nil {
		return "", err
	}

	// Assistant turn: the text part is re-published with growing content,
	// the way streamed model output arrives.
	asstMsg := event.Message{
		ID:        ident.Message(),
		SessionID: sessionID,
		Role:      "assistant",
		Created:   time.Now().UnixMilli(),
	}
	if err := p.publish(event.MessageUpdated(asstMsg)); err != nil {
		return "", err
	}

	if p.askPermission {
		if err := p.permissionRoundTrip(ctx, sessionID, asstMsg.ID); err != nil {
			return "", err
		}
	}

	partID := ident.Part()
	text := ""
	for _, chunk := range reply {
		if err := p.wait(ctx); err != nil {
			return "", err
		}
		text += chunk
		if err := p.publish(event.PartUpdated(event.Part{
			ID:        partID,
			MessageID: asstMsg.ID,
			SessionID: sessionID,
			Type:      event.PartTypeText,
			Text:      text,
		})); err != nil {
			return "", err
		}
	}

	asstMsg.Completed = time.Now().UnixMilli()
	if err := p.publish(event.MessageUpdated(asstMsg)); err != nil {
		return "", err
	}
	if err := p.publish(event.SessionIdle(sessionID)); err != nil {
		return "", err
	}
	p.logger.Info("Simulated session idle", "session_id", sessionID)
	return sessionID, nil
}

// permissionRoundTrip publishes a permission request and, after a pause, an
// approving reply.
func (p *Producer) permissionRoundTrip(ctx context.Context, sessionID, messageID string) error {
	perm := event.Permission{
		ID:        ident.Permission(),
		SessionID: sessionID,
		MessageID: messageID,
		Title:     "Run `go test ./...`",
		Created:   time.Now().UnixMilli(),
	}
	if err := p.publish(event.PermissionUpdated(perm)); err != nil {
		return err
	}
	if err := p.wait(ctx); err != nil {
		return err
	}
	return p.publish(event.PermissionReplied(sessionID, perm.ID, "once"))
}

// publish funnels the two-value constructor results into one error path.
func (p *Producer) publish(ev event.Event, err error) error {
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	if err := p.pub.Publish(ev); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	if p.duplicates {
		if err := p.pub.Publish(ev); err != nil {
			return fmt.Errorf("publish %s: %w", ev.Type, err)
		}
	}
	return nil
}

func (p *Producer) wait(ctx context.Context) error {
	if p.chunkDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.chunkDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
