package relay

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/douyudm/dmclient/internal/core/event"
	"github.com/douyudm/dmclient/internal/danmaku"
	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

type received struct {
	Kind   string          `json:"kind"`
	RoomID int             `json:"room_id"`
	Type   string          `json:"type"`
	Error  string          `json:"error"`
	Event  json.RawMessage `json:"event"`
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m received
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestHubRelaysBusEvents(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()
	b := event.NewBus()
	h.Attach(b)
	conn := dialHub(t, h)

	event.Publish(b, event.Connected{RoomID: 100})
	chat := &danmaku.ChatMessage{Text: "hello"}
	chat.UserName = "Alice"
	event.Publish(b, event.Received{RoomID: 100, Event: chat})
	event.Publish(b, event.Disconnected{RoomID: 100, Err: errors.New("reset")})

	if m := readMessage(t, conn); m.Kind != "connected" || m.RoomID != 100 {
		t.Fatalf("first = %+v", m)
	}
	m := readMessage(t, conn)
	if m.Kind != "message" || m.Type != "ChatMessage" {
		t.Fatalf("second = %+v", m)
	}
	var body struct {
		UserName string `json:"user_name"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(m.Event, &body); err != nil || body.UserName != "Alice" || body.Text != "hello" {
		t.Fatalf("event body = %s (%v)", m.Event, err)
	}
	if m := readMessage(t, conn); m.Kind != "disconnected" || m.Error != "reset" {
		t.Fatalf("third = %+v", m)
	}
}

func TestHubDropsClosedClients(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("closed client still registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.Broadcast(Message{Kind: "message"})
}
