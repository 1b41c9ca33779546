package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/famchat/internal/auth"
	"github.com/vovakirdan/famchat/internal/blob"
	"github.com/vovakirdan/famchat/internal/config"
	"github.com/vovakirdan/famchat/internal/core"
	"github.com/vovakirdan/famchat/internal/proto"
	"github.com/vovakirdan/famchat/internal/store/sqlite"
)

const testSecret = "test-secret"

type testServer struct {
	ts   *httptest.Server
	hub  *core.Hub
	auth *auth.Service
	cfg  config.Config
}

func startTestServer(t *testing.T, configure ...func(*config.Config)) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testSecret
	cfg.UploadDir = t.TempDir()
	for _, fn := range configure {
		fn(&cfg)
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	disabledLogger := zerolog.Nop()
	hub := core.NewHub(core.Options{
		Store:          st,
		Directory:      authService,
		Logger:         &disabledLogger,
		StorageTimeout: time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	blobs, err := blob.NewDisk(cfg.UploadDir, uploadsPrefix, cfg.MaxUploadBytes)
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	server := NewServer(hub, authService, blobs, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})

	return &testServer{ts: ts, hub: hub, auth: authService, cfg: cfg}
}

func (s *testServer) dial(t *testing.T, ctx context.Context, query string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws" + query
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		raw = b
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readEvent reads frames until the named event arrives and decodes its data into v.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, name string, v any) {
	t.Helper()
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == name {
			if v != nil {
				if err := json.Unmarshal(out.Data, v); err != nil {
					t.Fatalf("decode %s: %v", name, err)
				}
			}
			return
		}
	}
}

// readError reads frames until an error frame arrives.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for error: %v", err)
		}
		if out.Type == proto.OutboundTypeError {
			return out.Error
		}
	}
}

func wsLogin(t *testing.T, ctx context.Context, conn *websocket.Conn, username string) proto.ResponseData {
	t.Helper()
	send(t, ctx, conn, proto.InboundTypeLogin, proto.CredentialsData{Username: username, Password: "password123"})
	var resp proto.ResponseData
	readEvent(t, ctx, conn, proto.EventLoginResponse, &resp)
	if !resp.Success {
		t.Fatalf("login %s failed: %+v", username, resp)
	}
	readEvent(t, ctx, conn, proto.EventGeneralHistory, nil)
	return resp
}
