package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/famchat/internal/auth"
	"github.com/vovakirdan/famchat/internal/store"
	"github.com/vovakirdan/famchat/internal/store/sqlite"
)

const testPassword = "secret123"

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// expectNoEvent drains ch for wait and fails if an event of kind shows up.
func expectNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		case <-timer.C:
			return
		}
	}
}

type testEnv struct {
	hub   *Hub
	store *sqlite.SQLiteStore
	auth  *auth.Service
	seq   int
}

func newTestEnv(t *testing.T, configure ...func(*Options)) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("core-test-secret"),
		Issuer:   "famchat-test",
		Audience: "famchat-test",
		TTL:      time.Hour,
	})

	opts := Options{Store: st, Directory: svc, StorageTimeout: time.Second}
	for _, fn := range configure {
		fn(&opts)
	}

	hub := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testEnv{hub: hub, store: st, auth: svc}
}

func (e *testEnv) connect(t *testing.T) *Client {
	t.Helper()
	e.seq++
	c := NewClient("conn-" + string(rune('a'+e.seq)))
	e.hub.RegisterClient(c)
	return c
}

func (e *testEnv) register(t *testing.T, c *Client, username string) {
	t.Helper()
	c.Commands <- &Command{Kind: CommandRegister, Username: username, Password: testPassword}
	ev := mustEvent(t, c.Events, EventRegisterResponse)
	if !ev.Success {
		t.Fatalf("register %s failed: %+v", username, ev)
	}
}

func (e *testEnv) login(t *testing.T, c *Client, username string) *Event {
	t.Helper()
	c.Commands <- &Command{Kind: CommandLogin, Username: username, Password: testPassword}
	ev := mustEvent(t, c.Events, EventLoginResponse)
	if !ev.Success {
		t.Fatalf("login %s failed: %+v", username, ev)
	}
	mustEvent(t, c.Events, EventGeneralHistory)
	return ev
}

// signIn registers username on a fresh connection and logs it in.
func (e *testEnv) signIn(t *testing.T, username string) *Client {
	t.Helper()
	c := e.connect(t)
	e.register(t, c, username)
	e.login(t, c, username)
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) bool { return false }

type recordingPublisher struct {
	mu       sync.Mutex
	messages []*store.Message
	deleted  []int64
	presence []string
}

func (p *recordingPublisher) PublishMessage(_ context.Context, msg *store.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) PublishDeletion(_ context.Context, msg *store.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, msg.ID)
	return nil
}

func (p *recordingPublisher) PublishPresence(_ context.Context, username string, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := "offline"
	if online {
		state = "online"
	}
	p.presence = append(p.presence, username+":"+state)
	return nil
}

func (p *recordingPublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages), len(p.deleted)
}
