package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

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
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:3000/ws", "WebSocket address")
	user := flag.String("user", "tester", "username to register and log in with")
	password := flag.String("password", "smoke-test-pass", "password")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	creds := proto.CredentialsData{Username: *user, Password: *password}
	// Registration fails harmlessly when the user already exists.
	if err := send(proto.InboundTypeRegister, creds); err != nil {
		return err
	}
	if err := send(proto.InboundTypeLogin, creds); err != nil {
		return err
	}

	loggedIn := false
	for {
		var out frame
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", out.Type)
		if out.Event != "" {
			fmt.Printf(" event=%s", out.Event)
		}
		fmt.Println()
		if out.Error != nil {
			fmt.Printf("Error: %s (%s)\n", out.Error.Msg, out.Error.Code)
		}

		switch out.Event {
		case proto.EventRegisterResponse:
			var resp proto.ResponseData
			if err := json.Unmarshal(out.Data, &resp); err == nil {
				fmt.Printf("Register: success=%v %s\n", resp.Success, resp.Message)
			}
		case proto.EventLoginResponse:
			var resp proto.ResponseData
			if err := json.Unmarshal(out.Data, &resp); err != nil {
				return fmt.Errorf("unmarshal login response: %w", err)
			}
			if !resp.Success {
				return fmt.Errorf("login failed: %s", resp.Message)
			}
		case proto.EventGeneralHistory:
			if loggedIn {
				continue
			}
			loggedIn = true
			if err := send(proto.InboundTypeSendMessage, proto.SendMessageData{Message: *text}); err != nil {
				return err
			}
		case proto.EventNewMessage:
			var msg proto.MessageData
			if err := json.Unmarshal(out.Data, &msg); err != nil {
				fmt.Printf("Raw data: %s\n", string(out.Data))
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("Message: id=%d user=%s text=%q ts=%s\n", msg.ID, msg.Username, msg.Message, msg.Timestamp.Format(time.RFC3339))
			return nil
		}
	}
}
