package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type      string `json:"type"`
	VillageID string `json:"village_id"`
	Data      any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action    string `json:"action"` // "subscribe" or "unsubscribe"
	VillageID string `json:"village_id"`
}

// WSConn wraps a WebSocket connection with its user and subscriptions.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub manages WebSocket connections and village-channel subscriptions.
// Queue events (upgrade started/completed/canceled) fan out through here so
// every open view of a village sees the same authoritative finish times.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	villages    map[string]map[*WSConn]bool // villageID -> set of connections
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		villages:    make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
	for villageID, conns := range h.villages {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.villages, villageID)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a village channel.
func (h *Hub) Subscribe(c *WSConn, villageID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.villages[villageID] == nil {
		h.villages[villageID] = make(map[*WSConn]bool)
	}
	h.villages[villageID][c] = true
}

// Unsubscribe removes a connection from a village channel.
func (h *Hub) Unsubscribe(c *WSConn, villageID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.villages[villageID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.villages, villageID)
		}
	}
}

// BroadcastToVillage sends an event to all connections subscribed to a village.
func (h *Hub) BroadcastToVillage(villageID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("villageId", villageID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.villages[villageID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("userId", c.userID).Str("villageId", villageID).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// BroadcastToUser sends an event to a specific user across all their connections.
func (h *Hub) BroadcastToUser(userID string, event WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.connections {
		if c.userID == userID {
			select {
			case c.send <- data:
			default:
			}
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// VillageSubscriberCount returns the number of connections subscribed to a village.
func (h *Hub) VillageSubscriberCount(villageID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.villages[villageID])
}
