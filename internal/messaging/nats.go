// Package messaging mirrors chat activity onto NATS subjects so other
// services (bots, archivers, notifiers) can follow the conversation feed.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/famchat/internal/dialog"
	"github.com/vovakirdan/famchat/internal/store"
)

// Subject suffixes appended to the configured prefix.
const (
	SubjectGeneral  = "message.general"
	SubjectPrivate  = "message.private"
	SubjectDeleted  = "message.deleted"
	SubjectPresence = "presence"
)

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "famchat",
		SubjectPrefix: "famchat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher publishes feed events. It satisfies core.Publisher.
type Publisher struct {
	conn   conn
	nc     *nats.Conn
	prefix string
}

// FeedMessage is the payload published for new messages.
type FeedMessage struct {
	ID          int64     `json:"id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	DialogKey   string    `json:"dialogKey,omitempty"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text,omitempty"`
	URL         string    `json:"url,omitempty"`
	MimeType    string    `json:"mimetype,omitempty"`
	Caption     string    `json:"caption,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	PublishedAt time.Time `json:"publishedAt"`
}

// FeedDeletion is the payload published when a message is removed.
type FeedDeletion struct {
	ID        int64  `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	DialogKey string `json:"dialogKey,omitempty"`
}

// FeedPresence is the payload published on presence transitions.
type FeedPresence struct {
	Username string    `json:"username"`
	Online   bool      `json:"online"`
	At       time.Time `json:"at"`
}

// Connect dials NATS and returns a ready publisher.
func Connect(cfg Config, logger *zerolog.Logger) (*Publisher, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")

	p := newPublisher(nc, cfg.SubjectPrefix)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "famchat"
	}
	return &Publisher{conn: c, prefix: prefix}
}

// Subject returns the full subject for suffix.
func (p *Publisher) Subject(suffix string) string {
	return p.prefix + "." + suffix
}

// PublishMessage publishes a newly persisted message.
func (p *Publisher) PublishMessage(_ context.Context, msg *store.Message) error {
	ev := FeedMessage{
		ID:          msg.ID,
		From:        msg.From,
		To:          msg.To,
		Kind:        string(msg.Kind),
		Text:        msg.Text,
		Caption:     msg.Caption,
		CreatedAt:   msg.CreatedAt,
		PublishedAt: time.Now().UTC(),
	}
	if msg.Attachment != nil {
		ev.URL = msg.Attachment.URL
		ev.MimeType = msg.Attachment.MimeType
	}
	subject := p.Subject(SubjectGeneral)
	if !msg.IsGeneral() {
		ev.DialogKey = dialog.Key(msg.From, msg.To)
		subject = p.Subject(SubjectPrivate)
	}
	return p.publish(subject, ev)
}

// PublishDeletion publishes the removal of msg.
func (p *Publisher) PublishDeletion(_ context.Context, msg *store.Message) error {
	ev := FeedDeletion{ID: msg.ID, From: msg.From, To: msg.To}
	if !msg.IsGeneral() {
		ev.DialogKey = dialog.Key(msg.From, msg.To)
	}
	return p.publish(p.Subject(SubjectDeleted), ev)
}

// PublishPresence publishes a user going online or offline.
func (p *Publisher) PublishPresence(_ context.Context, username string, online bool) error {
	return p.publish(p.Subject(SubjectPresence), FeedPresence{
		Username: username,
		Online:   online,
		At:       time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
