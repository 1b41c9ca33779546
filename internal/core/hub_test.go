package core

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/famchat/internal/store"
	"github.com/vovakirdan/famchat/internal/store/sqlite"
)

func TestHubRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	c := env.connect(t)

	env.register(t, c, "alice")

	c.Commands <- &Command{Kind: CommandRegister, Username: "alice", Password: testPassword}
	ev := mustEvent(t, c.Events, EventRegisterResponse)
	if ev.Success || ev.Error == nil || ev.Error.Code != ErrCodeDuplicateUsername {
		t.Fatalf("expected duplicate_username, got %+v", ev)
	}

	c.Commands <- &Command{Kind: CommandLogin, Username: "alice", Password: "wrong-password"}
	ev = mustEvent(t, c.Events, EventLoginResponse)
	if ev.Success || ev.Error.Code != ErrCodeBadCredential {
		t.Fatalf("expected bad_credential, got %+v", ev)
	}

	c.Commands <- &Command{Kind: CommandLogin, Username: "nobody", Password: testPassword}
	ev = mustEvent(t, c.Events, EventLoginResponse)
	if ev.Success || ev.Error.Code != ErrCodeUserNotFound {
		t.Fatalf("expected user_not_found, got %+v", ev)
	}

	c.Commands <- &Command{Kind: CommandLogin, Username: "alice", Password: testPassword}
	ev = mustEvent(t, c.Events, EventLoginResponse)
	if !ev.Success || ev.User != "alice" || ev.Token == "" {
		t.Fatalf("unexpected login response: %+v", ev)
	}
	users := mustEvent(t, c.Events, EventUsersList)
	if !slices.Equal(users.Users, []string{"alice"}) {
		t.Fatalf("unexpected users list: %v", users.Users)
	}
	hist := mustEvent(t, c.Events, EventGeneralHistory)
	if len(hist.Messages) != 0 {
		t.Fatalf("expected empty history, got %d", len(hist.Messages))
	}
	if !env.hub.Registry().IsOnline("alice") {
		t.Fatalf("alice should be online")
	}
}

func TestHubRegisterRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	c := env.connect(t)

	c.Commands <- &Command{Kind: CommandRegister, Username: "ab", Password: testPassword}
	ev := mustEvent(t, c.Events, EventRegisterResponse)
	if ev.Success || ev.Error.Code != ErrCodeValidation {
		t.Fatalf("expected validation_failed, got %+v", ev)
	}

	c.Commands <- &Command{Kind: CommandRegister, Username: "alice", Password: "123"}
	ev = mustEvent(t, c.Events, EventRegisterResponse)
	if ev.Success || ev.Error.Code != ErrCodeValidation {
		t.Fatalf("expected validation_failed, got %+v", ev)
	}
}

func TestHubAnonymousCommandsAreRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.connect(t)

	for _, cmd := range []*Command{
		{Kind: CommandSendMessage, Text: "hi"},
		{Kind: CommandLoadGeneral},
		{Kind: CommandLoadDialog, Recipient: "bob"},
		{Kind: CommandDeleteMessage, MessageID: 1},
		{Kind: CommandLogout},
	} {
		c.Commands <- cmd
		ev := mustEvent(t, c.Events, EventError)
		if ev.Error.Code != ErrCodeUnauthenticated {
			t.Fatalf("%v: expected unauthenticated, got %+v", cmd.Kind, ev.Error)
		}
	}

	msgs, err := env.store.LoadGeneral(context.Background(), 10)
	if err != nil {
		t.Fatalf("load general: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("anonymous send must not persist, got %d messages", len(msgs))
	}
}

func TestHubGeneralMessageReachesAuthenticatedOnly(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")
	bob := env.signIn(t, "bob")
	lurker := env.connect(t)

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "hi all"}

	got := mustEvent(t, bob.Events, EventNewMessage)
	if got.Message.From != "alice" || got.Message.Text != "hi all" || got.Message.ID == 0 {
		t.Fatalf("unexpected message: %+v", got.Message)
	}
	if !got.Message.IsGeneral() {
		t.Fatalf("expected general message, got to=%q", got.Message.To)
	}
	echo := mustEvent(t, alice.Events, EventNewMessage)
	if echo.Message.ID != got.Message.ID {
		t.Fatalf("sender echo id %d, want %d", echo.Message.ID, got.Message.ID)
	}
	expectNoEvent(t, lurker.Events, EventNewMessage, 150*time.Millisecond)

	alice.Commands <- &Command{Kind: CommandLoadGeneral}
	hist := mustEvent(t, alice.Events, EventGeneralHistory)
	if len(hist.Messages) != 1 || hist.Messages[0].Text != "hi all" {
		t.Fatalf("unexpected history: %+v", hist.Messages)
	}
}

func TestHubPrivateMessageRouting(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")
	bob := env.signIn(t, "bob")
	carol := env.signIn(t, "carol")

	alice.Commands <- &Command{Kind: CommandSendMessage, Recipient: "bob", Text: "psst"}

	got := mustEvent(t, bob.Events, EventPrivateMessage)
	if got.Message.From != "alice" || got.Message.To != "bob" || got.Message.Text != "psst" {
		t.Fatalf("unexpected private message: %+v", got.Message)
	}
	mustEvent(t, alice.Events, EventPrivateMessage)
	expectNoEvent(t, carol.Events, EventPrivateMessage, 150*time.Millisecond)
}

func TestHubPrivateMessageToSelfIsRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")

	alice.Commands <- &Command{Kind: CommandSendMessage, Recipient: "alice", Text: "note to self"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", ev.Error)
	}

	msgs, err := env.store.LoadDialog(context.Background(), "alice", "alice", 10)
	if err != nil {
		t.Fatalf("load dialog: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("self message must not be stored: %+v", msgs)
	}
}

func TestHubPrivateMessageStoreAndForward(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")

	bob := env.connect(t)
	env.register(t, bob, "bob")

	alice.Commands <- &Command{Kind: CommandSendMessage, Recipient: "bob", Text: "while you were out"}
	mustEvent(t, alice.Events, EventPrivateMessage)
	expectNoEvent(t, bob.Events, EventPrivateMessage, 100*time.Millisecond)

	env.login(t, bob, "bob")
	bob.Commands <- &Command{Kind: CommandLoadDialog, Recipient: "alice"}
	hist := mustEvent(t, bob.Events, EventDialogHistory)
	if hist.User != "alice" || len(hist.Messages) != 1 {
		t.Fatalf("unexpected dialog history: %+v", hist)
	}
	if hist.Messages[0].Text != "while you were out" {
		t.Fatalf("unexpected text %q", hist.Messages[0].Text)
	}

	alice.Commands <- &Command{Kind: CommandLoadDialog, Recipient: "bob"}
	mine := mustEvent(t, alice.Events, EventDialogHistory)
	if len(mine.Messages) != 1 || mine.Messages[0].ID != hist.Messages[0].ID {
		t.Fatalf("dialog history must be symmetric: %+v", mine.Messages)
	}
}

func TestHubSendFile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")

	alice.Commands <- &Command{Kind: CommandSendFile}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", ev.Error)
	}

	att := &store.Attachment{
		StoredName:   "0d4c-photo.png",
		OriginalName: "photo.png",
		URL:          "/uploads/0d4c-photo.png",
		MimeType:     "image/png",
		SizeBytes:    2048,
	}
	alice.Commands <- &Command{Kind: CommandSendFile, Attachment: att, Caption: "look"}
	got := mustEvent(t, alice.Events, EventNewMessage)
	if got.Message.Kind != store.MessageKindFile || got.Message.Caption != "look" {
		t.Fatalf("unexpected file message: %+v", got.Message)
	}
	if got.Message.Attachment == nil || got.Message.Attachment.URL != att.URL {
		t.Fatalf("attachment lost: %+v", got.Message.Attachment)
	}
}

func TestHubDeleteOwnGeneralMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")
	bob := env.signIn(t, "bob")

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "oops"}
	msg := mustEvent(t, alice.Events, EventNewMessage).Message
	mustEvent(t, bob.Events, EventNewMessage)

	alice.Commands <- &Command{Kind: CommandDeleteMessage, MessageID: msg.ID}
	if ev := mustEvent(t, bob.Events, EventMessageDeleted); ev.MessageID != msg.ID {
		t.Fatalf("unexpected deleted id %d", ev.MessageID)
	}
	mustEvent(t, alice.Events, EventMessageDeleted)

	if _, err := env.store.GetMessage(context.Background(), msg.ID); !errors.Is(err, store.ErrMessageNotFound) {
		t.Fatalf("message should be gone, got %v", err)
	}
}

func TestHubDeleteRequiresAuthor(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")
	bob := env.signIn(t, "bob")

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "mine"}
	msg := mustEvent(t, bob.Events, EventNewMessage).Message

	bob.Commands <- &Command{Kind: CommandDeleteMessage, MessageID: msg.ID}
	ev := mustEvent(t, bob.Events, EventError)
	if ev.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", ev.Error)
	}
	expectNoEvent(t, alice.Events, EventMessageDeleted, 100*time.Millisecond)

	if _, err := env.store.GetMessage(context.Background(), msg.ID); err != nil {
		t.Fatalf("message must survive: %v", err)
	}
}

func TestHubDeletePrivateScopedToParticipants(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")
	bob := env.signIn(t, "bob")
	carol := env.signIn(t, "carol")

	alice.Commands <- &Command{Kind: CommandSendMessage, Recipient: "bob", Text: "secret"}
	msg := mustEvent(t, bob.Events, EventPrivateMessage).Message

	alice.Commands <- &Command{Kind: CommandDeleteMessage, MessageID: msg.ID}
	mustEvent(t, bob.Events, EventMessageDeleted)
	mustEvent(t, alice.Events, EventMessageDeleted)
	expectNoEvent(t, carol.Events, EventMessageDeleted, 150*time.Millisecond)
}

func TestHubDeleteUnknownMessageIsNoop(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")

	alice.Commands <- &Command{Kind: CommandDeleteMessage, MessageID: 4242}
	expectNoEvent(t, alice.Events, EventError, 150*time.Millisecond)
}

func TestHubPresenceTransitions(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")
	bob1 := env.signIn(t, "bob")

	ev := mustEvent(t, alice.Events, EventUserStatus)
	if ev.User != "bob" || !ev.Online {
		t.Fatalf("expected bob online, got %+v", ev)
	}
	count := mustEvent(t, alice.Events, EventOnlineCount)
	if count.Count != 2 {
		t.Fatalf("expected 2 online, got %d", count.Count)
	}

	bob2 := env.connect(t)
	env.login(t, bob2, "bob")
	expectNoEvent(t, alice.Events, EventUserStatus, 150*time.Millisecond)

	env.hub.UnregisterClient(bob1)
	waitFor(t, func() bool { return len(env.hub.Registry().Resolve("bob")) == 1 })
	expectNoEvent(t, alice.Events, EventUserStatus, 150*time.Millisecond)

	env.hub.UnregisterClient(bob2)
	ev = mustEvent(t, alice.Events, EventUserStatus)
	if ev.User != "bob" || ev.Online {
		t.Fatalf("expected bob offline, got %+v", ev)
	}
	if env.hub.Registry().IsOnline("bob") {
		t.Fatalf("bob should be offline")
	}
	online := mustEvent(t, alice.Events, EventOnlineUsers)
	if !slices.Equal(online.Users, []string{"alice"}) {
		t.Fatalf("unexpected online users %v", online.Users)
	}
}

func TestHubLogoutReturnsToAnonymous(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")

	alice.Commands <- &Command{Kind: CommandLogout}
	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "still here?"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error.Code != ErrCodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %+v", ev.Error)
	}
	if env.hub.Registry().IsOnline("alice") {
		t.Fatalf("alice should be offline after logout")
	}
}

func TestHubResumeWithToken(t *testing.T) {
	env := newTestEnv(t)
	first := env.connect(t)
	env.register(t, first, "alice")
	token := env.login(t, first, "alice").Token

	second := env.connect(t)
	second.Commands <- &Command{Kind: CommandResume, Token: token}
	ev := mustEvent(t, second.Events, EventLoginResponse)
	if !ev.Success || ev.User != "alice" {
		t.Fatalf("resume failed: %+v", ev)
	}
	mustEvent(t, second.Events, EventGeneralHistory)
	if got := env.hub.Registry().Resolve("alice"); len(got) != 2 {
		t.Fatalf("expected 2 alice sessions, got %v", got)
	}

	third := env.connect(t)
	third.Commands <- &Command{Kind: CommandResume, Token: token + "x"}
	ev = mustEvent(t, third.Events, EventLoginResponse)
	if ev.Success || ev.Error.Code != ErrCodeUnauthenticated {
		t.Fatalf("expected rejected token, got %+v", ev)
	}
}

func TestHubRegisterBroadcastsUsersList(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "alice")

	newcomer := env.connect(t)
	env.register(t, newcomer, "zed")

	ev := mustEvent(t, alice.Events, EventUsersList)
	if !slices.Equal(ev.Users, []string{"alice", "zed"}) {
		t.Fatalf("unexpected users list %v", ev.Users)
	}
}

func TestHubConcurrentRegistrationSameUsername(t *testing.T) {
	env := newTestEnv(t)

	const n = 8
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = env.connect(t)
	}
	for _, c := range clients {
		c.Commands <- &Command{Kind: CommandRegister, Username: "dave", Password: testPassword}
	}

	var (
		mu        sync.Mutex
		successes int
		dups      int
		wg        sync.WaitGroup
	)
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			select {
			case ev := <-c.Events:
				mu.Lock()
				defer mu.Unlock()
				if ev.Success {
					successes++
				} else if ev.Error != nil && ev.Error.Code == ErrCodeDuplicateUsername {
					dups++
				}
			case <-time.After(5 * time.Second):
			}
		}(c)
	}
	wg.Wait()

	if successes != 1 || dups != n-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", n-1, successes, dups)
	}
}

func TestHubRateLimited(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Limiter = denyLimiter{} })
	alice := env.signIn(t, "alice")

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "spam"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error.Code != ErrCodeRateLimited {
		t.Fatalf("expected rate_limited, got %+v", ev.Error)
	}
}

func TestHubStorageUnavailable(t *testing.T) {
	broken, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	_ = broken.Close()

	env := newTestEnv(t)
	c := env.connect(t)
	env.register(t, c, "alice")

	// Directory stays healthy; only the conversation store is down.
	hub := NewHub(Options{Store: broken, Directory: env.auth, StorageTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	alice := NewClient("broken-a")
	hub.RegisterClient(alice)
	alice.Commands <- &Command{Kind: CommandLogin, Username: "alice", Password: testPassword}
	mustEvent(t, alice.Events, EventLoginResponse)
	if ev := mustEvent(t, alice.Events, EventError); ev.Error.Code != ErrCodeStorageUnavailable {
		t.Fatalf("history load should fail, got %+v", ev.Error)
	}

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "hello?"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error.Code != ErrCodeStorageUnavailable {
		t.Fatalf("expected storage_unavailable, got %+v", ev.Error)
	}
}

func TestHubPublishesActivity(t *testing.T) {
	pub := &recordingPublisher{}
	env := newTestEnv(t, func(o *Options) { o.Publisher = pub })
	alice := env.signIn(t, "alice")

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "feed me"}
	msg := mustEvent(t, alice.Events, EventNewMessage).Message
	alice.Commands <- &Command{Kind: CommandDeleteMessage, MessageID: msg.ID}
	mustEvent(t, alice.Events, EventMessageDeleted)

	waitFor(t, func() bool {
		sent, deleted := pub.counts()
		return sent == 1 && deleted == 1
	})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if !slices.Contains(pub.presence, "alice:online") {
		t.Fatalf("presence not published: %v", pub.presence)
	}
}
