// ABOUTME: Tests for the push channel client against an in-process WebSocket server
// ABOUTME: Covers FIFO delivery, acks, auth rejection, disconnect handling and dedupe

package push

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

	"github.com/2389/chat-sync/internal/dedupe"
	"github.com/2389/chat-sync/internal/model"
)

// newTestServer starts a WebSocket server that hands every accepted
// connection to serve. Requests bearing "Bearer bad" are rejected.
func newTestServer(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer bad" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, data any, ack string) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Frame{Event: event, Data: raw, Ack: ack})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func startClient(t *testing.T, cfg Config) (*Client, chan error) {
	t.Helper()
	c := NewClient(cfg, nil)
	ctx, cancel := context.WithCancel(t.Context())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return c, done
}

func TestClient_DeliversEventsInOrder(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		for i := 1; i <= 5; i++ {
			writeFrame(t, conn, EventTypingUpdate, TypingUpdate{ConversationID: 3, UserID: int64(i), IsTyping: true}, "")
		}
		// Hold the connection open until the client goes away.
		_, _, _ = conn.ReadMessage()
	})
	c, _ := startClient(t, Config{URL: url, Token: "good"})

	assert.Equal(t, EventConnected, nextEvent(t, c.Events()).Name)
	for i := 1; i <= 5; i++ {
		ev := nextEvent(t, c.Events())
		require.Equal(t, EventTypingUpdate, ev.Name)
		var p TypingUpdate
		require.NoError(t, ev.Decode(&p))
		assert.Equal(t, int64(i), p.UserID)
	}
}

func TestClient_EmitWithAck(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if json.Unmarshal(data, &f) != nil || f.Event != EventMessageCreate {
				continue
			}
			var p MessageCreate
			_ = json.Unmarshal(f.Data, &p)
			writeFrame(t, conn, EventAck, Ack{OK: true, Message: &model.Message{ID: 501, ConversationID: p.ConversationID, Content: p.Content}}, f.Ack)
		}
	})
	c, _ := startClient(t, Config{URL: url})
	require.Equal(t, EventConnected, nextEvent(t, c.Events()).Name)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	ack, err := c.EmitWithAck(ctx, EventMessageCreate, MessageCreate{ConversationID: 4, Content: "hi", Attachments: []string{}})
	require.NoError(t, err)
	assert.True(t, ack.OK)
	require.NotNil(t, ack.Message)
	assert.Equal(t, int64(501), ack.Message.ID)
	assert.Equal(t, "hi", ack.Message.Content)
}

func TestClient_RejectedAckCarriesServerReason(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if json.Unmarshal(data, &f) != nil || f.Event != EventMessageCreate {
				continue
			}
			writeFrame(t, conn, EventAck, map[string]any{"ok": false, "message": "Conversation not found"}, f.Ack)
		}
	})
	c, _ := startClient(t, Config{URL: url})
	require.Equal(t, EventConnected, nextEvent(t, c.Events()).Name)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	ack, err := c.EmitWithAck(ctx, EventMessageCreate, MessageCreate{ConversationID: 9, Content: "hi", Attachments: []string{}})
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Nil(t, ack.Message)
	assert.Equal(t, "Conversation not found", ack.Error)
}

func TestAck_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOK    bool
		wantError string
		wantID    int64
	}{
		{name: "success with message", input: `{"ok":true,"message":{"id":7,"conversationId":1,"content":"hi"}}`, wantOK: true, wantID: 7},
		{name: "success without message", input: `{"ok":true}`, wantOK: true},
		{name: "rejection with error", input: `{"ok":false,"error":"too long"}`, wantError: "too long"},
		{name: "rejection with string message", input: `{"ok":false,"message":"Conversation not found"}`, wantError: "Conversation not found"},
		{name: "error wins over message", input: `{"ok":false,"error":"forbidden","message":"ignored"}`, wantError: "forbidden"},
		{name: "rejection ignores record", input: `{"ok":false,"message":{"id":7}}`},
		{name: "null message", input: `{"ok":true,"message":null}`, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ack Ack
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ack))
			assert.Equal(t, tt.wantOK, ack.OK)
			assert.Equal(t, tt.wantError, ack.Error)
			if tt.wantID == 0 {
				assert.Nil(t, ack.Message)
				return
			}
			require.NotNil(t, ack.Message)
			assert.Equal(t, tt.wantID, ack.Message.ID)
		})
	}
}

func TestAck_UnmarshalJSONRejectsBadMessage(t *testing.T) {
	var ack Ack
	assert.Error(t, json.Unmarshal([]byte(`{"ok":true,"message":42}`), &ack))
}

func TestClient_AckTimeoutIsTransient(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c, _ := startClient(t, Config{URL: url})
	require.Equal(t, EventConnected, nextEvent(t, c.Events()).Name)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err := c.EmitWithAck(ctx, EventMessageCreate, MessageCreate{ConversationID: 1, Content: "x"})
	assert.ErrorIs(t, err, model.ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_DisconnectFailsPendingAck(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		// Read the emit, then drop the connection without acking.
		_, _, _ = conn.ReadMessage()
	})
	c, _ := startClient(t, Config{URL: url, ReconnectInterval: time.Hour})
	require.Equal(t, EventConnected, nextEvent(t, c.Events()).Name)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	_, err := c.EmitWithAck(ctx, EventMessageCreate, MessageCreate{ConversationID: 1, Content: "x"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, model.ErrTransient)

	assert.Equal(t, EventDisconnected, nextEvent(t, c.Events()).Name)
	assert.False(t, c.Connected())
}

func TestClient_EmitWhileDisconnected(t *testing.T) {
	c := NewClient(Config{URL: "ws://127.0.0.1:1"}, nil)
	err := c.Emit(EventTypingStart, ConversationRef{ConversationID: 1})
	assert.ErrorIs(t, err, model.ErrTransient)
}

func TestClient_AuthRejected(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {})
	_, done := startClient(t, Config{URL: url, Token: "bad"})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, model.ErrAuthExpired)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on auth rejection")
	}
}

func TestClient_DropsDuplicateMessageFrames(t *testing.T) {
	msg := model.Message{ID: 9, ConversationID: 1, Content: "once"}
	url := newTestServer(t, func(conn *websocket.Conn) {
		writeFrame(t, conn, EventMessageCreated, msg, "")
		writeFrame(t, conn, EventMessageCreated, msg, "")
		writeFrame(t, conn, EventTypingUpdate, TypingUpdate{ConversationID: 1, UserID: 2, IsTyping: true}, "")
		writeFrame(t, conn, EventTypingUpdate, TypingUpdate{ConversationID: 1, UserID: 2, IsTyping: true}, "")
		_, _, _ = conn.ReadMessage()
	})
	c, _ := startClient(t, Config{URL: url, Dedupe: dedupe.New(nil, time.Minute, 100)})

	require.Equal(t, EventConnected, nextEvent(t, c.Events()).Name)
	assert.Equal(t, EventMessageCreated, nextEvent(t, c.Events()).Name)
	assert.Equal(t, EventTypingUpdate, nextEvent(t, c.Events()).Name)
	assert.Equal(t, EventTypingUpdate, nextEvent(t, c.Events()).Name)
}

func TestClient_SkipsMalformedFrames(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		writeFrame(t, conn, EventPresenceUpdate, model.Presence{UserID: 2, Status: model.PresenceOnline}, "")
		_, _, _ = conn.ReadMessage()
	})
	c, _ := startClient(t, Config{URL: url})

	require.Equal(t, EventConnected, nextEvent(t, c.Events()).Name)
	ev := nextEvent(t, c.Events())
	assert.Equal(t, EventPresenceUpdate, ev.Name)
}

func TestClient_RunClosesEventsOnCancel(t *testing.T) {
	url := newTestServer(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})
	c := NewClient(Config{URL: url}, nil)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Equal(t, EventConnected, nextEvent(t, c.Events()).Name)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	for range c.Events() {
	}
}
