package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventMessage represents a server-initiated event
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// AnswerRequest is a client's answer to a pending question
type AnswerRequest struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// CallRequest asks the coordinator to run a tool
type CallRequest struct {
	Role           string                 `json:"role"`
	Tool           string                 `json:"tool"`
	Params         map[string]interface{} `json:"params,omitempty"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty"`
}

// ClientInfo represents information about a connected client
type ClientInfo struct {
	ID           string    `json:"id"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID           string
	Conn         *websocket.Conn
	ConnectedAt  time.Time
	LastActivity time.Time
	IPAddress    string

	writeMu sync.Mutex
}

// Write sends one message to the client. Gorilla connections allow a
// single concurrent writer, so writes serialize here.
func (c *Client) Write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}
