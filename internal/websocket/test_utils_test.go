package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskplanner/internal/auth"
	"taskplanner/internal/config"
	"taskplanner/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		WriteWait:      time.Second,
		PongWait:       2 * time.Second,
		PingPeriod:     time.Second,
		MaxMessageSize: 4096,
		SendBufferSize: 16,
	}
}

func createTestHub() *Hub {
	return NewHub(testWSConfig(), logger.Discard())
}

// createTestClient builds a handle with no transport. Frames it receives stay
// in its send buffer.
func createTestClient(hub *Hub, userID string) *Client {
	return newClient(hub, nil, auth.Identity{ID: userID, Username: "user-" + userID, Role: auth.RoleUser, Active: true})
}

// queued drains and decodes every frame waiting in the client's buffer.
func queued(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case frame := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

type stubVerifier map[string]*auth.Identity

func (s stubVerifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	if token == "" {
		return nil, auth.ErrUnauthenticated
	}
	identity, ok := s[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	if !identity.Active {
		return nil, auth.ErrAccountDisabled
	}
	copied := *identity
	return &copied, nil
}

func defaultVerifier() stubVerifier {
	return stubVerifier{
		"token-u1":  {ID: "u1", Username: "alice", Role: auth.RoleUser, Active: true},
		"token-u2":  {ID: "u2", Username: "bob", Role: auth.RoleUser, Active: true},
		"token-off": {ID: "u3", Username: "carol", Role: auth.RoleUser, Active: false},
	}
}

type testServer struct {
	hub    *Hub
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hub := createTestHub()
	server := httptest.NewServer(NewHandler(hub, defaultVerifier()))
	t.Cleanup(func() {
		hub.Shutdown()
		server.Close()
	})
	return &testServer{hub: hub, server: server}
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.server.URL, "http")
}

func (ts *testServer) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(ts.wsURL(), header)
}

func (ts *testServer) mustDial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := ts.dial(t, token)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

// readUntil skips frames until one named event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		env := readEnvelope(t, conn)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("event %q not received", event)
	return Envelope{}
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := EncodeEnvelope(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}
