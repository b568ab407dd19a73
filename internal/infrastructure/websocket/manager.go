package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"fleetchat/internal/infrastructure/presence"
)

// Client represents one WebSocket connection. A user may hold several at
// once; clients are keyed by connection ID, not user ID.
type Client struct {
	ConnID string
	UserID string // set once the connection is verified
	Conn   *websocket.Conn
	Send   chan []byte
}

// EventHandler receives inbound frames and lifecycle transitions. Implemented
// in the handler layer so the manager stays free of usecase imports.
type EventHandler interface {
	HandleEvent(ctx context.Context, client *Client, event string, payload json.RawMessage)
	HandleDisconnect(ctx context.Context, client *Client)
}

// Manager manages all active WebSocket connections.
type Manager struct {
	clients    map[string]*Client
	registry   *presence.Registry
	handler    EventHandler
	Register   chan *Client
	Unregister chan *Client
	broadcast  chan []byte
	mutex      sync.RWMutex
}

func NewManager(registry *presence.Registry) *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		registry:   registry,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

// SetHandler must run before Start; the manager does not guard it.
func (m *Manager) SetHandler(h EventHandler) {
	m.handler = h
}

// Start runs the manager's main loop in a goroutine.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client.ConnID] = client
				m.mutex.Unlock()
				log.Printf("Client registered: %s", client.ConnID)

			case client := <-m.Unregister:
				m.removeClient(client)
				if m.handler != nil {
					// Off-loop: disconnect work hits the store and may
					// feed frames back into this loop's broadcast channel.
					go m.handler.HandleDisconnect(ctx, client)
				}
				log.Printf("Client unregistered: %s", client.ConnID)

			case message := <-m.broadcast:
				m.mutex.RLock()
				targets := make([]*Client, 0, len(m.clients))
				for _, client := range m.clients {
					targets = append(targets, client)
				}
				m.mutex.RUnlock()
				for _, client := range targets {
					m.trySend(client, message)
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	if _, ok := m.clients[client.ConnID]; ok {
		delete(m.clients, client.ConnID)
		close(client.Send)
	}
	m.mutex.Unlock()
}

// trySend drops slow consumers rather than blocking the loop.
func (m *Manager) trySend(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		m.removeClient(client)
		m.registry.Unbind(client.ConnID)
	}
}

// SendToConn delivers a message to a single connection.
func (m *Manager) SendToConn(connID string, message []byte) {
	m.mutex.RLock()
	client, ok := m.clients[connID]
	m.mutex.RUnlock()
	if ok {
		m.trySend(client, message)
	}
}

// SendToUser fans a message out to every connection the user holds.
func (m *Manager) SendToUser(userID string, message []byte) {
	for _, connID := range m.registry.ConnectionsFor(userID) {
		m.SendToConn(connID, message)
	}
}

// SendToUsers delivers a message to each listed user.
func (m *Manager) SendToUsers(userIDs []string, message []byte) {
	for _, userID := range userIDs {
		m.SendToUser(userID, message)
	}
}

// Broadcast queues a message for every connected client.
func (m *Manager) Broadcast(message []byte) {
	m.broadcast <- message
}

// envelope is the inbound frame shape: an event name plus its payload.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ReadPump reads frames from the WebSocket connection and dispatches them
// to the event handler.
func (c *Client) ReadPump(ctx context.Context, m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			log.Printf("Malformed frame from %s ignored", c.ConnID)
			continue
		}
		if m.handler != nil {
			m.handler.HandleEvent(ctx, c, env.Event, env.Payload)
		}
	}
}

// WritePump sends queued messages to the WebSocket connection.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		err := c.Conn.WriteMessage(websocket.TextMessage, message)
		if err != nil {
			log.Printf("error: %v", err)
			return
		}
	}
}
