// Package websocket keeps the live browser connections of signed-in users and
// pushes notification frames to them.
package websocket

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
)

// ErrNotConnected is returned when a user has no open connection.
var ErrNotConnected = errors.New("recipient not connected")

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one connection of a user.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte
	conn   Conn
}

// NewClient wraps conn for userID.
func NewClient(userID string, conn Conn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Send:   make(chan []byte, 256),
		conn:   conn,
	}
}

// Hub tracks clients by user id. A user may hold several connections.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{users: make(map[string]map[*Client]struct{})}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.users[client.UserID] == nil {
		h.users[client.UserID] = make(map[*Client]struct{})
	}
	h.users[client.UserID][client] = struct{}{}
}

// Unregister removes a client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.users[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.users, client.UserID)
	}
	close(client.Send)
}

// SendToUser queues payload on every connection of userID. Full buffers are
// skipped. It fails only when the user has no connection at all.
func (h *Hub) SendToUser(userID string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.users[userID]
	if len(conns) == 0 {
		return ErrNotConnected
	}
	for client := range conns {
		select {
		case client.Send <- payload:
		default:
		}
	}
	return nil
}

// ClientCount returns the number of connections of userID.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Serve registers client and pumps frames until the connection closes.
// Inbound frames are read only to detect the close.
func (h *Hub) Serve(client *Client) {
	h.Register(client)
	go writePump(client)

	defer func() {
		h.Unregister(client)
		client.conn.Close()
	}()
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(client *Client) {
	defer client.conn.Close()

	for message := range client.Send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
