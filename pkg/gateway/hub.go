package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/uagent/toolcore/pkg/interaction"
)

// Hub tracks connected clients and fans events out to all of them. It
// implements interaction.Notifier so pending questions reach every
// connected operator console.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
	seq     uint64
}

// NewHub creates an empty hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Add adds a client to the hub
func (h *Hub) Add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

// Remove removes a client from the hub
func (h *Hub) Remove(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, clientID)
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients returns information about all connected clients
func (h *Hub) Clients() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(h.clients))
	for _, client := range h.clients {
		infos = append(infos, ClientInfo{
			ID:           client.ID,
			ConnectedAt:  client.ConnectedAt,
			LastActivity: client.LastActivity,
			IPAddress:    client.IPAddress,
		})
	}
	return infos
}

// UpdateActivity updates the last activity time for a client
func (h *Hub) UpdateActivity(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, exists := h.clients[clientID]; exists {
		client.LastActivity = time.Now()
	}
}

// PublishQuestion implements interaction.Notifier
func (h *Hub) PublishQuestion(q interaction.Question) {
	h.Broadcast("interaction.question", q)
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event string, data interface{}) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Seq:       int64(atomic.AddUint64(&h.seq, 1)),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.Write(websocket.TextMessage, jsonData); err != nil {
			h.logger.Warn().
				Err(err).
				Str("clientId", client.ID).
				Str("event", event).
				Msg("Failed to broadcast to client")
		}
	}
}
