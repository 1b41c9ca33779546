package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/famchat/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	password := flag.String("password", "", "password")
	register := flag.Bool("register", false, "register the user before logging in")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	creds := proto.CredentialsData{Username: *user, Password: *password}
	if *register {
		if err := send(ctx, conn, proto.InboundTypeRegister, creds); err != nil {
			return err
		}
	}
	if err := send(ctx, conn, proto.InboundTypeLogin, creds); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *user)
	fmt.Println("Type to chat in general. /to <user> <text> sends privately, /dm <user> loads a dialog, /del <id> deletes. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	return wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload})
}

func printMessage(m proto.MessageData) {
	where := "general"
	if !m.IsGeneral {
		where = "dm " + m.Username + "->" + m.RecipientUsername
	}
	body := m.Message
	if m.Type == "file" {
		body = fmt.Sprintf("[file %s %s] %s", m.OriginalName, m.URL, m.Caption)
	}
	fmt.Printf("#%d [%s] %s: %s\n", m.ID, where, m.Username, body)
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out frame
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			fmt.Printf("! %s (%s)\n", out.Error.Msg, out.Error.Code)
			continue
		}

		switch out.Event {
		case proto.EventNewMessage, proto.EventPrivateMessage:
			var m proto.MessageData
			if err := json.Unmarshal(out.Data, &m); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			printMessage(m)
		case proto.EventGeneralHistory:
			var h proto.HistoryData
			if err := json.Unmarshal(out.Data, &h); err != nil {
				log.Printf("unmarshal history: %v", err)
				continue
			}
			for _, m := range h.Messages {
				printMessage(m)
			}
		case proto.EventPrivateHistory:
			var h proto.PrivateHistoryData
			if err := json.Unmarshal(out.Data, &h); err != nil {
				log.Printf("unmarshal dialog: %v", err)
				continue
			}
			fmt.Printf("-- dialog with %s --\n", h.Username)
			for _, m := range h.Messages {
				printMessage(m)
			}
		case proto.EventUserStatus:
			var s proto.UserStatusData
			if err := json.Unmarshal(out.Data, &s); err == nil {
				fmt.Printf("* %s is %s\n", s.Username, s.Status)
			}
		case proto.EventMessageDeleted:
			var d proto.DeletedData
			if err := json.Unmarshal(out.Data, &d); err == nil {
				fmt.Printf("* message #%d deleted\n", d.ID)
			}
		case proto.EventOnlineUsers, proto.EventOnlineCount, proto.EventUsersList:
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, string(out.Data))
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := dispatchLine(ctx, conn, text); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

func dispatchLine(ctx context.Context, conn *websocket.Conn, text string) error {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/to":
		if len(fields) < 3 {
			fmt.Println("usage: /to <user> <text>")
			return nil
		}
		body := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(text, "/to"), " "+fields[1]))
		return send(ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{RecipientUsername: fields[1], Message: body})
	case "/dm":
		if len(fields) != 2 {
			fmt.Println("usage: /dm <user>")
			return nil
		}
		return send(ctx, conn, proto.InboundTypeLoadPrivate, proto.LoadPrivateData{Username: fields[1]})
	case "/del":
		id, err := strconv.ParseInt(strings.TrimPrefix(text, "/del "), 10, 64)
		if len(fields) != 2 || err != nil {
			fmt.Println("usage: /del <id>")
			return nil
		}
		return send(ctx, conn, proto.InboundTypeDeleteMessage, proto.DeleteMessageData{ID: id})
	default:
		return send(ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{Message: text})
	}
}
