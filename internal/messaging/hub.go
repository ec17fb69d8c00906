package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mangaverse/pkg/models"
)

const (
	EventMessageNew = "message.new"
	EventError      = "error"
)

type Event struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	Message *models.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	At      time.Time       `json:"at"`
}

// Hub tracks the open websocket connections of each user so new messages
// can be pushed to every tab the recipient has open.
type Hub struct {
	// WriteWait bounds each push; a client that stops reading is dropped
	// once it elapses.
	WriteWait time.Duration

	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

const defaultWriteWait = 10 * time.Second

func NewHub() *Hub {
	return &Hub{
		WriteWait: defaultWriteWait,
		conns:     make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) Join(userID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*websocket.Conn]struct{})
		h.conns[userID] = set
	}
	set[ws] = struct{}{}
}

func (h *Hub) Leave(userID string, ws *websocket.Conn) {
	h.mu.Lock()
	if set, ok := h.conns[userID]; ok {
		delete(set, ws)
		if len(set) == 0 {
			delete(h.conns, userID)
		}
	}
	h.mu.Unlock()

	_ = ws.Close()
}

// Deliver pushes ev to userID's connections and reports how many received
// it. Connections that fail to write are dropped.
func (h *Hub) Deliver(userID string, ev Event) int {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for ws := range h.conns[userID] {
		_ = ws.SetWriteDeadline(time.Now().Add(h.WriteWait))
		if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = ws.Close()
			delete(h.conns[userID], ws)
			continue
		}
		delivered++
	}
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
	return delivered
}

// Clients returns the number of open connections across all users.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.conns {
		n += len(set)
	}
	return n
}
