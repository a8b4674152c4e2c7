package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, opts ...HubOption) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(opts...)
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestHub_relaysNotesChanged(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, nil)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	n := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Relay(ctx, n)
	require.Eventually(t, func() bool { return n.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	n.Notify()

	msg := readEnvelope(t, conn)
	assert.Equal(t, EventNotesChanged, msg["type"])
	assert.NotZero(t, msg["timestamp"])
}

func TestHub_subscriptionsFilterEvents(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, nil)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"action": "subscribe",
		"events": []string{EventSyncCompleted},
	}))
	ack := readEnvelope(t, conn)
	assert.Equal(t, "subscribe_ack", ack["action"])

	h.Broadcast(EventNotesChanged, nil)
	h.BroadcastSyncCompleted(3, 1, 20*time.Millisecond)

	msg := readEnvelope(t, conn)
	assert.Equal(t, EventSyncCompleted, msg["type"])
	data := msg["data"].(map[string]interface{})
	assert.EqualValues(t, 3, data["applied"])
	assert.EqualValues(t, 1, data["conflicts"])
}

func TestHub_ping(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, nil)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	assert.Equal(t, "pong", readEnvelope(t, conn)["action"])
}

func TestHub_unregistersOnClose(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv, nil)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_checkOrigin(t *testing.T) {
	h := NewHub(WithAllowedOrigins("app.example.com"))

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8090/ws", nil)
	assert.True(t, h.checkOrigin(req), "no origin header")

	req.Header.Set("Origin", "http://localhost:8090")
	assert.True(t, h.checkOrigin(req), "same host")

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, h.checkOrigin(req), "allow-listed")

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, h.checkOrigin(req))
}

func TestHub_rejectsForeignOrigin(t *testing.T) {
	_, srv := startHub(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_broadcastWithoutRunDoesNotBlock(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer+10; i++ {
			h.Broadcast(EventNotesChanged, nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked")
	}
}
