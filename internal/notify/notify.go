package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectMangaCreated     = "catalog.manga.created"
	SubjectChapterPublished = "catalog.chapter.published"
	SubjectMessageSent      = "social.message.sent"
)

type MangaCreated struct {
	MangaID int64     `json:"manga_id"`
	Slug    string    `json:"slug"`
	Title   string    `json:"title"`
	OwnerID string    `json:"owner_id"`
	At      time.Time `json:"at"`
}

type ChapterPublished struct {
	MangaSlug   string    `json:"manga_slug"`
	ChapterSlug string    `json:"chapter_slug"`
	Number      int       `json:"number"`
	NewPanels   int       `json:"new_panels"`
	At          time.Time `json:"at"`
}

type MessageSent struct {
	MessageID   int64     `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

// Nop drops every event; used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

type NatsPublisher struct {
	nc *nats.Conn
}

func NewNatsPublisher(url string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("mangaverse"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NatsPublisher{nc: nc}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

// Emit publishes event and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, subject string, event any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, subject, event); err != nil {
		slog.Warn("publish event failed", "subject", subject, "error", err)
	}
}
