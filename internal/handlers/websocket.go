package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/linkprobe/internal/common"
	"github.com/ternarybob/linkprobe/internal/interfaces"
	"github.com/ternarybob/linkprobe/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Callers authenticate with an API key, not cookies
	},
}

const defaultWriteTimeout = 10 * time.Second

// WSMessage is the envelope for every message sent to clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type wsClient struct {
	accountID string
	mu        sync.Mutex // serialises writes on conn
}

// WebSocketHandler streams test status events to the owning account's
// connected clients.
type WebSocketHandler struct {
	logger           arbor.ILogger
	identity         interfaces.IdentityService
	eventService     interfaces.EventService
	subscription     interfaces.SubscriptionID // Zero when not subscribed
	clients          map[*websocket.Conn]*wsClient
	mu               sync.RWMutex
	allowedEvents    map[string]bool // Whitelist of events to broadcast (empty = allow all)
	writeTimeout     time.Duration
	serverInstanceID string // Clients use this to detect a server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, identity interfaces.IdentityService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		identity:         identity,
		eventService:     eventService,
		clients:          make(map[*websocket.Conn]*wsClient),
		allowedEvents:    make(map[string]bool),
		writeTimeout:     defaultWriteTimeout,
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		h.writeTimeout = common.ParseDuration(config.WriteTimeout, defaultWriteTimeout)
	}

	if eventService != nil {
		id, err := eventService.Subscribe(interfaces.EventTestStatusChanged, h.handleStatusEvent)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to subscribe WebSocket handler to status events")
		}
		h.subscription = id
	}

	logger.Debug().
		Str("server_instance_id", h.serverInstanceID).
		Int("allowed_events", len(h.allowedEvents)).
		Msg("WebSocket handler initialized")

	return h
}

// HandleWebSocket handles GET /ws. Browsers cannot set headers on an
// upgrade request, so the API key may also arrive as ?token=.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, ok := BearerToken(r)
	if !ok {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		WriteError(w, http.StatusUnauthorized, models.ErrUnauthenticated.Error())
		return
	}
	identity, err := h.identity.Resolve(r.Context(), token)
	if err != nil {
		WriteDomainError(w, err, h.logger)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{accountID: identity.AccountID}

	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Str("account_id", identity.AccountID).Int("clients", clientCount).Msg("WebSocket client connected")

	h.send(conn, client, WSMessage{
		Type:    "connected",
		Payload: map[string]string{"serverInstanceId": h.serverInstanceID},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client disconnected")
	}()

	// Read until the client goes away; inbound messages are ignored
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastTestStatus sends event to every client of the owning account.
func (h *WebSocketHandler) BroadcastTestStatus(event models.TestStatusEvent) {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[string(interfaces.EventTestStatusChanged)] {
		return
	}

	msg := WSMessage{Type: string(interfaces.EventTestStatusChanged), Payload: event}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	clients := make([]*wsClient, 0, len(h.clients))
	for conn, client := range h.clients {
		if client.accountID != event.AccountID {
			continue
		}
		conns = append(conns, conn)
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		h.send(conn, clients[i], msg)
	}
}

// Close unsubscribes from the event bus and disconnects every client.
func (h *WebSocketHandler) Close() {
	if h.eventService != nil && h.subscription != 0 {
		if err := h.eventService.Unsubscribe(interfaces.EventTestStatusChanged, h.subscription); err != nil {
			h.logger.Debug().Err(err).Msg("WebSocket handler was not subscribed")
		}
		h.subscription = 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, client := range h.clients {
		client.mu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		client.mu.Unlock()
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *WebSocketHandler) handleStatusEvent(ctx context.Context, event interfaces.Event) error {
	status, ok := event.Payload.(models.TestStatusEvent)
	if !ok {
		h.logger.Warn().Str("event_type", string(event.Type)).Msg("Unexpected status event payload")
		return nil
	}
	h.BroadcastTestStatus(status)
	return nil
}

func (h *WebSocketHandler) send(conn *websocket.Conn, client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}
