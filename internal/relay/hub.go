// Package relay fans room events out to websocket clients as JSON.
package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/douyudm/dmclient/internal/core/event"
	"github.com/douyudm/dmclient/internal/danmaku"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
)

// Message is one JSON document sent to relay clients.
type Message struct {
	Kind   string        `json:"kind"` // "connected", "disconnected" or "message"
	RoomID int           `json:"room_id"`
	Type   string        `json:"type,omitempty"`
	Error  string        `json:"error,omitempty"`
	Event  danmaku.Event `json:"event,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub manages websocket clients. Broadcasting never blocks: a client whose
// buffer is full is disconnected.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Attach subscribes the hub to b. The returned function detaches it.
func (h *Hub) Attach(b *event.Bus) (detach func()) {
	cancels := []func(){
		event.Subscribe(b, func(ev event.Connected) {
			h.Broadcast(Message{Kind: "connected", RoomID: ev.RoomID})
		}),
		event.Subscribe(b, func(ev event.Disconnected) {
			m := Message{Kind: "disconnected", RoomID: ev.RoomID}
			if ev.Err != nil {
				m.Error = ev.Err.Error()
			}
			h.Broadcast(m)
		}),
		event.Subscribe(b, func(ev event.Received) {
			h.Broadcast(Message{Kind: "message", RoomID: ev.RoomID, Type: ev.Event.Type().String(), Event: ev.Event})
		}),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// ServeHTTP upgrades the request and keeps the client until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket 升級失敗", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Info("relay 客戶端連線", zap.String("ip", r.RemoteAddr))

	go h.writeLoop(c)

	// Inbound messages are ignored; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// Broadcast queues m for every client.
func (h *Hub) Broadcast(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		h.log.Error("relay 訊息序列化失敗", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("relay 客戶端過慢，斷開連線")
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}
