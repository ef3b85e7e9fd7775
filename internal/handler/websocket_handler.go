// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"servo-commissioning/internal/model"
	"servo-commissioning/internal/utils"
)

const (
	pingPeriod   = 54 * time.Second
	readDeadline = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler streams attempt progress and outcomes to presentation
// clients. Every client receives every attempt's events.
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a handler that forwards every event on the bus
func NewWebSocketHandler(eventBus *EventBus, logger *zap.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin may connect
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		connections: NewConnectionManager(),
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}

	go h.forward(eventBus.Subscribe())

	return h
}

// HandleProgressConnection upgrades the request and registers the client
// @Summary Attempt progress stream
// @Description WebSocket stream of started, progress and outcome messages for every attempt
// @Tags WebSocket
// @Router /ws/progress [get]
func (h *WebSocketHandler) HandleProgressConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Progress WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// forward turns bus events into client messages until the bus closes
func (h *WebSocketHandler) forward(events <-chan model.AttemptEvent) {
	for event := range events {
		h.BroadcastAttemptEvent(event)
	}
}

// BroadcastAttemptEvent sends one attempt event to every client
func (h *WebSocketHandler) BroadcastAttemptEvent(event model.AttemptEvent) {
	message := &WebSocketMessage{
		Type:      messageType(event.Type),
		Data:      event,
		Timestamp: event.Timestamp,
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	if skipped := h.connections.Broadcast(messageBytes); skipped > 0 {
		h.logger.Warn("Client send channel full during broadcast",
			zap.Int("skipped_clients", skipped),
			zap.String("event_type", string(event.Type)),
		)
	}
}

func messageType(t model.EventType) string {
	switch t {
	case model.EventAttemptStarted:
		return MessageStarted
	case model.EventAttemptCompleted:
		return MessageOutcome
	default:
		return MessageProgress
	}
}

func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(readDeadline))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendMessage(client, &WebSocketMessage{
				Type:      MessageError,
				Data:      map[string]interface{}{"error": "invalid message"},
				Timestamp: time.Now(),
			})
			continue
		}

		// The stream is one-way; only application pings are answered
		if message.Type == "ping" {
			h.sendMessage(client, &WebSocketMessage{
				Type:      MessagePong,
				Timestamp: time.Now(),
			})
		}
	}
}

func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.SendTo(client, messageBytes) {
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
