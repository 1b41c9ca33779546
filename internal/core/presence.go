package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/famchat/internal/metrics"
)

// Presence turns registry changes into online-users, online-count and
// user-status events for every authenticated connection.
type Presence struct {
	mu        sync.Mutex
	registry  *Registry
	broadcast func(*Event)
	publisher Publisher
	log       *zerolog.Logger
}

// NewPresence creates a presence broadcaster. broadcast must deliver the
// event to all authenticated connections without blocking.
func NewPresence(registry *Registry, broadcast func(*Event), publisher Publisher, logger *zerolog.Logger) *Presence {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Presence{
		registry:  registry,
		broadcast: broadcast,
		publisher: publisher,
		log:       logger,
	}
}

// Handle reacts to one registry change. Changes are processed one at a time
// so every recipient observes presence snapshots in the same order.
func (p *Presence) Handle(change PresenceChange) {
	p.mu.Lock()
	defer p.mu.Unlock()

	online := p.registry.OnlineUsernames()
	metrics.OnlineUsers.Set(float64(len(online)))

	if change.Transition {
		p.log.Info().
			Str("user", change.Username).
			Bool("online", change.Online).
			Msg("presence changed")
		p.broadcast(&Event{Kind: EventUserStatus, User: change.Username, Online: change.Online})
		p.publish(change)
	}
	p.broadcast(&Event{Kind: EventOnlineUsers, Users: online})
	p.broadcast(&Event{Kind: EventOnlineCount, Count: len(online)})
}

func (p *Presence) publish(change PresenceChange) {
	if p.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.publisher.PublishPresence(ctx, change.Username, change.Online); err != nil {
		p.log.Warn().Err(err).Str("user", change.Username).Msg("publish presence failed")
	}
}
