// Package storetest holds behavioural checks every store.Store implementation
// must pass. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/famchat/internal/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"CreateAndGetUser", testCreateAndGetUser},
		{"DuplicateUsername", testDuplicateUsername},
		{"ConcurrentDuplicateUsername", testConcurrentDuplicateUsername},
		{"ListUsernames", testListUsernames},
		{"AppendAssignsIncreasingIDs", testAppendAssignsIncreasingIDs},
		{"LoadGeneralOrderAndLimit", testLoadGeneralOrderAndLimit},
		{"LoadDialogIsSymmetric", testLoadDialogIsSymmetric},
		{"FileAttachmentRoundTrip", testFileAttachmentRoundTrip},
		{"DeleteMessage", testDeleteMessage},
		{"TiesBrokenByID", testTiesBrokenByID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

func testCreateAndGetUser(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	created, err := st.CreateUser(ctx, "alice", "hash")
	req.NoError(err)
	req.NotZero(created.ID)
	req.Equal("alice", created.Username)

	fetched, err := st.GetUserByUsername(ctx, "alice")
	req.NoError(err)
	req.Equal(created.ID, fetched.ID)
	req.Equal("hash", fetched.PasswordHash)

	_, err = st.GetUserByUsername(ctx, "nobody")
	req.ErrorIs(err, store.ErrUserNotFound)
}

func testDuplicateUsername(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	_, err := st.CreateUser(ctx, "alice", "hash")
	req.NoError(err)

	_, err = st.CreateUser(ctx, "alice", "other")
	req.ErrorIs(err, store.ErrDuplicateUsername)

	names, err := st.ListUsernames(ctx)
	req.NoError(err)
	req.Equal([]string{"alice"}, names)
}

func testConcurrentDuplicateUsername(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.CreateUser(ctx, "racer", fmt.Sprintf("hash-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		req.ErrorIs(err, store.ErrDuplicateUsername)
	}
	req.Equal(1, succeeded)

	names, err := st.ListUsernames(ctx)
	req.NoError(err)
	req.Equal([]string{"racer"}, names)
}

func testListUsernames(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	names, err := st.ListUsernames(ctx)
	req.NoError(err)
	req.Empty(names)

	for _, u := range []string{"carol", "alice", "bob"} {
		_, err := st.CreateUser(ctx, u, "hash")
		req.NoError(err)
	}

	names, err = st.ListUsernames(ctx)
	req.NoError(err)
	req.Equal([]string{"alice", "bob", "carol"}, names)
}

func testAppendAssignsIncreasingIDs(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	var last int64
	for i := range 5 {
		msg := &store.Message{From: "alice", To: store.GeneralRecipient, Text: fmt.Sprintf("m%d", i)}
		req.NoError(st.AppendMessage(ctx, msg))
		req.Greater(msg.ID, last)
		req.False(msg.CreatedAt.IsZero())
		req.Equal(store.MessageKindText, msg.Kind)
		last = msg.ID
	}
}

func testLoadGeneralOrderAndLimit(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := range 5 {
		req.NoError(st.AppendMessage(ctx, &store.Message{
			From:      "alice",
			To:        store.GeneralRecipient,
			Text:      fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	// A private message must not leak into the general room.
	req.NoError(st.AppendMessage(ctx, &store.Message{From: "alice", To: "bob", Text: "secret"}))

	all, err := st.LoadGeneral(ctx, 100)
	req.NoError(err)
	req.Len(all, 5)
	for i, m := range all {
		req.Equal(fmt.Sprintf("m%d", i), m.Text)
		req.True(m.IsGeneral())
		if i > 0 {
			req.False(m.CreatedAt.Before(all[i-1].CreatedAt))
		}
	}

	tail, err := st.LoadGeneral(ctx, 2)
	req.NoError(err)
	req.Len(tail, 2)
	req.Equal("m3", tail[0].Text)
	req.Equal("m4", tail[1].Text)
}

func testLoadDialogIsSymmetric(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	msgs := []*store.Message{
		{From: "alice", To: "bob", Text: "hey", CreatedAt: base},
		{From: "bob", To: "alice", Text: "hi", CreatedAt: base.Add(time.Second)},
		{From: "alice", To: "carol", Text: "other", CreatedAt: base.Add(2 * time.Second)},
		{From: "alice", To: store.GeneralRecipient, Text: "public", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, m := range msgs {
		req.NoError(st.AppendMessage(ctx, m))
	}

	ab, err := st.LoadDialog(ctx, "alice", "bob", 100)
	req.NoError(err)
	ba, err := st.LoadDialog(ctx, "bob", "alice", 100)
	req.NoError(err)

	req.Len(ab, 2)
	req.Equal("hey", ab[0].Text)
	req.Equal("hi", ab[1].Text)
	req.Equal(ids(ab), ids(ba))

	limited, err := st.LoadDialog(ctx, "bob", "alice", 1)
	req.NoError(err)
	req.Len(limited, 1)
	req.Equal("hi", limited[0].Text)
}

func testFileAttachmentRoundTrip(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	msg := &store.Message{
		From: "alice",
		To:   store.GeneralRecipient,
		Kind: store.MessageKindFile,
		Attachment: &store.Attachment{
			StoredName:   "abc-cat.png",
			OriginalName: "cat.png",
			URL:          "/uploads/abc-cat.png",
			MimeType:     "image/png",
			SizeBytes:    1234,
		},
		Caption: "look",
	}
	req.NoError(st.AppendMessage(ctx, msg))

	got, err := st.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.Equal(store.MessageKindFile, got.Kind)
	req.Equal("look", got.Caption)
	req.NotNil(got.Attachment)
	req.Equal(*msg.Attachment, *got.Attachment)
}

func testDeleteMessage(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	keep := &store.Message{From: "alice", To: store.GeneralRecipient, Text: "keep"}
	drop := &store.Message{From: "alice", To: store.GeneralRecipient, Text: "drop"}
	private := &store.Message{From: "alice", To: "bob", Text: "drop too"}
	for _, m := range []*store.Message{keep, drop, private} {
		req.NoError(st.AppendMessage(ctx, m))
	}

	deleted, err := st.DeleteMessage(ctx, drop.ID)
	req.NoError(err)
	req.True(deleted)

	deleted, err = st.DeleteMessage(ctx, private.ID)
	req.NoError(err)
	req.True(deleted)

	_, err = st.GetMessage(ctx, drop.ID)
	req.True(errors.Is(err, store.ErrMessageNotFound))

	general, err := st.LoadGeneral(ctx, 100)
	req.NoError(err)
	req.Equal([]int64{keep.ID}, ids(general))

	dialog, err := st.LoadDialog(ctx, "alice", "bob", 100)
	req.NoError(err)
	req.Empty(dialog)

	deleted, err = st.DeleteMessage(ctx, drop.ID)
	req.NoError(err)
	req.False(deleted)
}

func testTiesBrokenByID(t *testing.T, st store.Store) {
	req := require.New(t)
	ctx := context.Background()

	at := time.Now().UTC().Truncate(time.Millisecond)
	var want []int64
	for i := range 3 {
		m := &store.Message{From: "alice", To: store.GeneralRecipient, Text: fmt.Sprintf("t%d", i), CreatedAt: at}
		req.NoError(st.AppendMessage(ctx, m))
		want = append(want, m.ID)
	}

	got, err := st.LoadGeneral(ctx, 100)
	req.NoError(err)
	req.Equal(want, ids(got))
}

func ids(msgs []*store.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
