package core

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/vovakirdan/famchat/internal/metrics"
	"github.com/vovakirdan/famchat/internal/store"
)

func (h *Hub) dispatch(c *Client, cmd *Command) {
	h.log.Debug().Str("conn", c.ID).Str("cmd", cmd.Kind.String()).Msg("command")

	switch cmd.Kind {
	case CommandRegister:
		h.handleRegister(c, cmd)
		return
	case CommandLogin:
		h.handleLogin(c, cmd)
		return
	case CommandResume:
		h.handleResume(c, cmd)
		return
	}

	if c.username == "" {
		h.reply(c, errorEvent(ErrCodeUnauthenticated, "login required"))
		return
	}

	switch cmd.Kind {
	case CommandLogout:
		h.handleLogout(c)
	case CommandSendMessage, CommandSendFile:
		h.handleSend(c, cmd)
	case CommandLoadGeneral:
		h.handleLoadGeneral(c)
	case CommandLoadDialog:
		h.handleLoadDialog(c, cmd)
	case CommandDeleteMessage:
		h.handleDelete(c, cmd)
	default:
		h.reply(c, errorEvent(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) handleRegister(c *Client, cmd *Command) {
	ctx, cancel := h.storageContext()
	defer cancel()

	start := time.Now()
	_, err := h.directory.Register(ctx, cmd.Username, cmd.Password)
	observe("register", start)
	if err != nil {
		ce := ErrorFor(err)
		if ce.Code == ErrCodeStorageUnavailable {
			metrics.StorageErrorsTotal.WithLabelValues("register").Inc()
			h.log.Error().Err(err).Str("conn", c.ID).Msg("register failed")
		}
		h.reply(c, &Event{Kind: EventRegisterResponse, Text: ce.Message, Error: ce})
		return
	}

	h.log.Info().Str("user", cmd.Username).Msg("user registered")
	h.reply(c, &Event{Kind: EventRegisterResponse, Success: true, Text: "registration successful"})

	users, err := h.directory.ListUsernames(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("list users after register failed")
		return
	}
	h.fanout(c, h.registry.ConnectionIDs(), &Event{Kind: EventUsersList, Users: users})
}

func (h *Hub) handleLogin(c *Client, cmd *Command) {
	ctx, cancel := h.storageContext()
	defer cancel()

	start := time.Now()
	user, token, err := h.directory.Login(ctx, cmd.Username, cmd.Password)
	observe("login", start)
	if err != nil {
		ce := ErrorFor(err)
		if ce.Code == ErrCodeStorageUnavailable {
			metrics.StorageErrorsTotal.WithLabelValues("login").Inc()
			h.log.Error().Err(err).Str("conn", c.ID).Msg("login failed")
		}
		h.reply(c, &Event{Kind: EventLoginResponse, Text: ce.Message, Error: ce})
		return
	}
	h.authenticate(ctx, c, user.Username, token)
}

func (h *Hub) handleResume(c *Client, cmd *Command) {
	claims, err := h.directory.ValidateToken(cmd.Token)
	if err != nil {
		ce := coreError(ErrCodeUnauthenticated, "invalid or expired token")
		h.reply(c, &Event{Kind: EventLoginResponse, Text: ce.Message, Error: ce})
		return
	}

	ctx, cancel := h.storageContext()
	defer cancel()
	h.authenticate(ctx, c, claims.Username, cmd.Token)
}

// authenticate binds c to username and sends the post-login bundle:
// login-response, directory listing and general history.
func (h *Hub) authenticate(ctx context.Context, c *Client, username, token string) {
	c.username = username
	h.reply(c, &Event{
		Kind:    EventLoginResponse,
		Success: true,
		Text:    "login successful",
		User:    username,
		Token:   token,
	})
	h.registry.Bind(c.ID, username)
	h.log.Info().Str("conn", c.ID).Str("user", username).Msg("session bound")

	if users, err := h.directory.ListUsernames(ctx); err != nil {
		h.storageFailure(c, "list_users", err)
	} else {
		h.reply(c, &Event{Kind: EventUsersList, Users: users})
	}

	h.handleLoadGeneral(c)
}

func (h *Hub) handleLogout(c *Client) {
	h.log.Info().Str("conn", c.ID).Str("user", c.username).Msg("logout")
	c.username = ""
	h.registry.Unbind(c.ID)
}

func (h *Hub) handleSend(c *Client, cmd *Command) {
	msg := &store.Message{
		From:      c.username,
		To:        cmd.Recipient,
		Kind:      store.MessageKindText,
		Text:      cmd.Text,
		CreatedAt: time.Now().UTC(),
	}
	if msg.To == "" {
		msg.To = store.GeneralRecipient
	}
	if msg.To == c.username {
		h.reply(c, errorEvent(ErrCodeBadRequest, "cannot message yourself"))
		return
	}
	if cmd.Kind == CommandSendFile {
		if cmd.Attachment == nil || cmd.Attachment.StoredName == "" {
			h.reply(c, errorEvent(ErrCodeBadRequest, "file metadata required"))
			return
		}
		msg.Kind = store.MessageKindFile
		msg.Text = ""
		msg.Attachment = cmd.Attachment
		msg.Caption = cmd.Caption
	} else if msg.Text == "" {
		h.reply(c, errorEvent(ErrCodeBadRequest, "message text required"))
		return
	}

	ctx, cancel := h.storageContext()
	defer cancel()

	if h.limiter != nil && !h.limiter.Allow(ctx, c.username) {
		metrics.RateLimitedTotal.Inc()
		h.reply(c, errorEvent(ErrCodeRateLimited, "too many messages, slow down"))
		return
	}

	start := time.Now()
	err := h.store.AppendMessage(ctx, msg)
	observe("append_message", start)
	if err != nil {
		h.storageFailure(c, "append_message", err)
		return
	}

	var (
		ev      *Event
		targets []string
		scope   = "general"
	)
	if msg.IsGeneral() {
		ev = &Event{Kind: EventNewMessage, Message: msg}
		targets = h.registry.ConnectionIDs()
	} else {
		scope = "private"
		ev = &Event{Kind: EventPrivateMessage, Message: msg}
		targets = h.participantConnections(msg)
	}
	metrics.MessagesTotal.WithLabelValues(scope, string(msg.Kind)).Inc()
	h.fanout(c, targets, ev)

	if h.publisher != nil {
		if err := h.publisher.PublishMessage(ctx, msg); err != nil {
			h.log.Warn().Err(err).Int64("id", msg.ID).Msg("publish message failed")
		}
	}
}

func (h *Hub) handleLoadGeneral(c *Client) {
	ctx, cancel := h.storageContext()
	defer cancel()

	start := time.Now()
	msgs, err := h.store.LoadGeneral(ctx, h.historyLimit)
	observe("load_general", start)
	if err != nil {
		h.storageFailure(c, "load_general", err)
		return
	}
	h.reply(c, &Event{Kind: EventGeneralHistory, Messages: msgs})
}

func (h *Hub) handleLoadDialog(c *Client, cmd *Command) {
	if cmd.Recipient == "" || cmd.Recipient == store.GeneralRecipient {
		h.reply(c, errorEvent(ErrCodeBadRequest, "username required"))
		return
	}

	ctx, cancel := h.storageContext()
	defer cancel()

	start := time.Now()
	msgs, err := h.store.LoadDialog(ctx, c.username, cmd.Recipient, h.historyLimit)
	observe("load_dialog", start)
	if err != nil {
		h.storageFailure(c, "load_dialog", err)
		return
	}
	h.reply(c, &Event{Kind: EventDialogHistory, User: cmd.Recipient, Messages: msgs})
}

func (h *Hub) handleDelete(c *Client, cmd *Command) {
	ctx, cancel := h.storageContext()
	defer cancel()

	msg, err := h.store.GetMessage(ctx, cmd.MessageID)
	if errors.Is(err, store.ErrMessageNotFound) {
		h.log.Debug().Int64("id", cmd.MessageID).Msg("delete of unknown message ignored")
		return
	}
	if err != nil {
		h.storageFailure(c, "get_message", err)
		return
	}
	if msg.From != c.username {
		h.log.Warn().Str("user", c.username).Int64("id", msg.ID).Msg("delete rejected: not the author")
		h.reply(c, errorEvent(ErrCodeUnauthorized, "you can only delete your own messages"))
		return
	}

	start := time.Now()
	deleted, err := h.store.DeleteMessage(ctx, msg.ID)
	observe("delete_message", start)
	if err != nil {
		h.storageFailure(c, "delete_message", err)
		return
	}
	if !deleted {
		return
	}
	metrics.DeletionsTotal.Inc()

	ev := &Event{Kind: EventMessageDeleted, MessageID: msg.ID}
	if msg.IsGeneral() {
		h.fanout(c, h.registry.ConnectionIDs(), ev)
	} else {
		h.fanout(c, h.participantConnections(msg), ev)
	}

	if h.publisher != nil {
		if err := h.publisher.PublishDeletion(ctx, msg); err != nil {
			h.log.Warn().Err(err).Int64("id", msg.ID).Msg("publish deletion failed")
		}
	}
}

// participantConnections returns every connection bound to either side of a
// private message.
func (h *Hub) participantConnections(msg *store.Message) []string {
	var ids []string
	for _, name := range msg.Participants() {
		ids = append(ids, h.registry.Resolve(name)...)
	}
	return lo.Uniq(ids)
}
