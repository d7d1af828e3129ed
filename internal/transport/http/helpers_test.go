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

	"github.com/agromongol/agrochat-server/internal/auth"
	"github.com/agromongol/agrochat-server/internal/config"
	"github.com/agromongol/agrochat-server/internal/core"
	"github.com/agromongol/agrochat-server/internal/proto"
	"github.com/agromongol/agrochat-server/internal/store/memory"
)

const testJWTSecret = "test-secret"

type testServer struct {
	*httptest.Server
	hub   *core.Hub
	store *memory.Store
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.AllowedOrigins = []string{"*"}
	return cfg
}

func startTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	st := memory.New()
	hub := core.NewHub(st, core.Options{EventBuffer: cfg.WS.EventBuffer, Logger: &logger})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := NewServer(hub, st, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})

	return &testServer{Server: ts, hub: hub, store: st}
}

func (s *testServer) wsURL() string {
	return strings.Replace(s.URL, "http", "ws", 1) + "/ws"
}

func dialWS(ctx context.Context, t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendInbound(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

type testOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readOutbound(ctx context.Context, t *testing.T, conn *websocket.Conn) testOutbound {
	t.Helper()

	var out testOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return out
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// createTestToken signs a token for userID with the test secret.
func createTestToken(t *testing.T, userID string) string {
	t.Helper()

	token, err := auth.GenerateToken(&auth.JWTConfig{
		Secret:   []byte(testJWTSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}, userID, "")
	if err != nil {
		t.Fatalf("failed to create test token: %v", err)
	}
	return token
}

func jwtTestConfig(required bool) config.Config {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{
		JWTSecret:   testJWTSecret,
		JWTIssuer:   "test",
		JWTAudience: "test",
		Required:    required,
	}
	return cfg
}
