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

	"github.com/bonfirelabs/bonfire-server/internal/auth"
	"github.com/bonfirelabs/bonfire-server/internal/config"
	"github.com/bonfirelabs/bonfire-server/internal/core"
	"github.com/bonfirelabs/bonfire-server/internal/proto"
	"github.com/bonfirelabs/bonfire-server/internal/store/sqlite"
)

var testAuthConfig = auth.Config{
	Secret:   []byte("test-secret"),
	Issuer:   "bonfire",
	Audience: "bonfire-clients",
}

type testEnv struct {
	ts     *httptest.Server
	store  *sqlite.SQLiteStore
	roomID int64
}

// startTestServer boots the full stack on an in-memory store with one room
// whose members are users 1 (alice) and 2 (bob).
func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	room, err := st.CreateRoom(ctx, "general", "group")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, uid := range []int64{1, 2} {
		if err := st.AddMember(ctx, uid, room.ID); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}

	logger := zerolog.Nop()
	hub := core.NewHub(st, core.NewMembershipAuthorizer(st), core.Options{
		OutboxSize:      16,
		MaxMessageBytes: 512,
		DedupTTL:        time.Minute,
		TypingTTL:       time.Minute,
		SweepInterval:   50 * time.Millisecond,
		IdleTimeout:     time.Minute,
	}, &logger)

	runCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go hub.Run(runCtx)

	server := NewServer(hub, auth.NewJWTVerifier(testAuthConfig), st, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, roomID: room.ID}
}

func (e *testEnv) wsURL(token string) string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?token=" + token
}

func signToken(t *testing.T, userID int64, username string) string {
	t.Helper()

	token, err := auth.SignForTest(testAuthConfig, userID, username, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func dialWS(t *testing.T, ctx context.Context, env *testEnv, userID int64, username string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, env.wsURL(signToken(t, userID, username)), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s frame: %v", frameType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: payload}); err != nil {
		t.Fatalf("write %s frame: %v", frameType, err)
	}
}

type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readEvent skips frames until one matching the event name arrives.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, eventName string) json.RawMessage {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame while waiting for %q: %v", eventName, err)
		}
		if frame.Type == proto.OutboundTypeEvent && frame.Event == eventName {
			return frame.Data
		}
	}
}

// readError skips frames until an error frame arrives.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame while waiting for error: %v", err)
		}
		if frame.Type == proto.OutboundTypeError && frame.Error != nil {
			return frame.Error
		}
	}
}
