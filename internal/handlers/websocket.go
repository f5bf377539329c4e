// -----------------------------------------------------------------------
// WebSocket handler - live job event stream
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every frame sent to a client.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler streams job lifecycle events to connected clients.
// Each connection holds its own event subscription, so a slow client
// drops its own events without affecting anyone else.
type WebSocketHandler struct {
	events interfaces.EventService
	logger arbor.ILogger
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &WebSocketHandler{
		events: events,
		logger: logger,
	}
}

// HandleWebSocket upgrades the connection and streams job events as
// JSON frames. An optional ?level= query filters by event severity:
// failed and error transitions are error level, retries warn, the rest
// info.
// GET /ws?level=warn
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	minLevel := plog.TraceLevel
	if raw := r.URL.Query().Get("level"); raw != "" {
		lvl := plog.ParseLevel(raw)
		if lvl < plog.TraceLevel || lvl > plog.ErrorLevel {
			http.Error(w, "Invalid level filter", http.StatusBadRequest)
			return
		}
		minLevel = lvl
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	eventCh, cancel := h.events.Subscribe()
	defer cancel()

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	// Drain client frames so pings and close messages are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn().Err(err).Msg("WebSocket error")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if eventLevel(event) < minLevel {
				continue
			}
			msg := WSMessage{Type: "job_event", Payload: event}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Msg("WebSocket write failed, dropping client")
				return
			}
		}
	}
}

// eventLevel maps a job transition to a log severity for filtering.
func eventLevel(event models.JobEvent) plog.Level {
	switch event.NewStatus {
	case models.JobStatusFailed, models.JobStatusError:
		return plog.ErrorLevel
	case models.JobStatusRetryPending:
		return plog.WarnLevel
	default:
		return plog.InfoLevel
	}
}
