package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/famchat/internal/auth"
	"github.com/vovakirdan/famchat/internal/metrics"
	"github.com/vovakirdan/famchat/internal/store"
)

const defaultStorageTimeout = 5 * time.Second

// Directory is the identity directory used by the hub.
type Directory interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, password string) (*store.User, string, error)
	ValidateToken(token string) (*auth.Claims, error)
	ListUsernames(ctx context.Context) ([]string, error)
}

// Limiter decides whether a user may send another message.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Publisher mirrors chat activity to an external feed. Failures never
// affect delivery to connected clients.
type Publisher interface {
	PublishMessage(ctx context.Context, msg *store.Message) error
	PublishDeletion(ctx context.Context, msg *store.Message) error
	PublishPresence(ctx context.Context, username string, online bool) error
}

// Options configures a Hub.
type Options struct {
	Store     store.MessageStore
	Directory Directory
	Registry  *Registry
	Limiter   Limiter
	Publisher Publisher
	Logger    *zerolog.Logger

	StorageTimeout time.Duration
	HistoryLimit   int
}

// Hub routes client commands to the directory and conversation store and
// delivers the resulting events to the right connections.
type Hub struct {
	store     store.MessageStore
	directory Directory
	registry  *Registry
	presence  *Presence
	limiter   Limiter
	publisher Publisher
	log       *zerolog.Logger

	storageTimeout time.Duration
	historyLimit   int

	mu      sync.RWMutex
	clients map[string]*Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a new chat hub instance.
func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	timeout := opts.StorageTimeout
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		store:          opts.Store,
		directory:      opts.Directory,
		registry:       registry,
		limiter:        opts.Limiter,
		publisher:      opts.Publisher,
		log:            logger,
		storageTimeout: timeout,
		historyLimit:   store.NormalizeLimit(opts.HistoryLimit),
		clients:        make(map[string]*Client),
		ctx:            ctx,
		cancel:         cancel,
	}
	h.presence = NewPresence(registry, h.broadcastAuthenticated, opts.Publisher, logger)
	registry.OnChange(h.presence.Handle)
	return h
}

// Registry exposes the session registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run blocks until ctx is cancelled, then stops every client goroutine.
func (h *Hub) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-h.ctx.Done():
	}
	h.cancel()
	h.wg.Wait()
}

// RegisterClient adds an anonymous connection and starts processing its commands.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	metrics.Connections.Inc()

	h.wg.Add(1)
	go h.serve(c)
}

// UnregisterClient stops processing for c. Its session, if any, is released
// by the client's own goroutine so presence updates stay ordered.
func (h *Hub) UnregisterClient(c *Client) {
	c.close()
}

// serve processes one client's commands in order.
func (h *Hub) serve(c *Client) {
	defer h.wg.Done()
	defer h.detach(c)

	for {
		select {
		case cmd := <-c.Commands:
			if cmd != nil {
				h.dispatch(c, cmd)
			}
		case <-c.done:
			return
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	metrics.Connections.Dec()

	c.username = ""
	h.registry.Unbind(c.ID)
	c.close()
	h.log.Debug().Str("conn", c.ID).Msg("client detached")
}

func (h *Hub) client(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// reply delivers ev to c, waiting for buffer space until c goes away.
func (h *Hub) reply(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	case <-c.done:
	case <-h.ctx.Done():
	}
}

// send delivers ev to c without blocking. Slow consumers miss the event.
func (h *Hub) send(c *Client, ev *Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.Events <- ev:
	default:
		metrics.DroppedEventsTotal.Inc()
		h.log.Warn().Str("conn", c.ID).Int("kind", int(ev.Kind)).Msg("client buffer full, event dropped")
	}
}

// fanout delivers ev to every listed connection. The origin connection gets
// a blocking reply; everyone else a best-effort send.
func (h *Hub) fanout(origin *Client, connIDs []string, ev *Event) {
	for _, id := range connIDs {
		if origin != nil && id == origin.ID {
			h.reply(origin, ev)
			continue
		}
		if c, ok := h.client(id); ok {
			h.send(c, ev)
		}
	}
}

func (h *Hub) broadcastAuthenticated(ev *Event) {
	h.fanout(nil, h.registry.ConnectionIDs(), ev)
}

func (h *Hub) storageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(h.ctx, h.storageTimeout)
}

func observe(op string, start time.Time) {
	metrics.StorageLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (h *Hub) storageFailure(c *Client, op string, err error) {
	metrics.StorageErrorsTotal.WithLabelValues(op).Inc()
	h.log.Error().Err(err).Str("conn", c.ID).Str("op", op).Msg("storage operation failed")
	h.reply(c, errorEvent(ErrCodeStorageUnavailable, "service temporarily unavailable, try again"))
}
