// Package gateway exposes the tool core over HTTP and WebSocket: tool
// calls, the pending-interaction queue, and operational endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/uagent/toolcore/internal/metrics"
	"github.com/uagent/toolcore/pkg/catalog"
	"github.com/uagent/toolcore/pkg/executor"
	"github.com/uagent/toolcore/pkg/interaction"
)

// Server is the gateway server
type Server struct {
	host        string
	port        int
	server      *http.Server
	upgrader    websocket.Upgrader
	hub         *Hub
	coordinator *executor.Coordinator
	correlator  *interaction.Correlator
	catalog     *catalog.Catalog
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	Hub         *Hub
	Coordinator *executor.Coordinator
	Correlator  *interaction.Correlator
	Catalog     *catalog.Catalog
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// NewServer creates a gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if cfg.Correlator == nil {
		return nil, fmt.Errorf("correlator is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Logger)
	}

	return &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		hub:         cfg.Hub,
		coordinator: cfg.Coordinator,
		correlator:  cfg.Correlator,
		catalog:     cfg.Catalog,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Hub returns the client hub, which also serves as the interaction
// notifier.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/call", s.handleCall)
	mux.HandleFunc("/tools", s.handleTools)
	mux.HandleFunc("/interactions", s.handleInteractions)
	mux.HandleFunc("/interactions/answer", s.handleAnswer)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start starts the gateway server without blocking
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the gateway server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down gateway server")
	s.hub.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	return s.server.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		conn.Close()
		return
	}

	client := &Client{
		ID:           id,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    r.RemoteAddr,
	}
	s.hub.Add(client)
	s.logger.Info().Str("clientId", id).Msg("Client connected")

	go s.readLoop(client)
}

// readLoop handles inbound client messages. The only client-initiated
// message is an interaction answer.
func (s *Server) readLoop(client *Client) {
	defer func() {
		s.hub.Remove(client.ID)
		client.Conn.Close()
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			return
		}
		s.hub.UpdateActivity(client.ID)

		var req AnswerRequest
		if err := json.Unmarshal(data, &req); err != nil || req.ID == "" {
			s.writeEvent(client, "interaction.error", map[string]interface{}{
				"message": "expected {\"id\": ..., \"value\": ...}",
			})
			continue
		}

		accepted := s.correlator.Answer(req.ID, req.Value)
		s.writeEvent(client, "interaction.answered", map[string]interface{}{
			"id":       req.ID,
			"accepted": accepted,
		})
	}
}

func (s *Server) writeEvent(client *Client, event string, data interface{}) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := client.Write(websocket.TextMessage, jsonData); err != nil {
		s.logger.Warn().Err(err).Str("clientId", client.ID).Msg("Failed to write event")
	}
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == "" || req.Tool == "" {
		writeJSONError(w, http.StatusBadRequest, "role and tool are required")
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	result := s.coordinator.Execute(r.Context(), req.Role, req.Tool, req.Params, timeout)

	status := http.StatusOK
	if !result.Success {
		status = statusForKind(result.ErrorKind)
	}
	writeJSON(w, status, result)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	names := s.catalog.List()
	tools := make([]catalog.Descriptor, 0, len(names))
	for _, name := range names {
		if desc, ok := s.catalog.Get(name); ok {
			tools = append(tools, desc)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending": s.correlator.Pending(),
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeJSONError(w, http.StatusBadRequest, "id and value are required")
		return
	}

	if !s.correlator.Answer(req.ID, req.Value) {
		writeJSONError(w, http.StatusNotFound, "no pending interaction accepts this answer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accepted": true})
}

func statusForKind(kind executor.Kind) int {
	switch kind {
	case executor.KindPermissionDenied:
		return http.StatusForbidden
	case executor.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case executor.KindInvalidParameters:
		return http.StatusBadRequest
	case executor.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case executor.KindExecutionTimeout, executor.KindInteractionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
