package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kandev/voicectl/internal/common/errors"
	"github.com/kandev/voicectl/internal/events"
	"github.com/kandev/voicectl/internal/events/bus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024

	streamBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamEvents forwards agent lifecycle events to a websocket client
// WS /agents/stream
func (h *Handler) StreamEvents(c *gin.Context) {
	if h.eventBus == nil {
		respond(c, errors.ServiceUnavailable("event stream is not enabled"))
		return
	}

	clientID := uuid.New().String()
	log := h.logger.WithFields(zap.String("client_id", clientID))

	// Subscribe before upgrading so nothing published after the handshake is missed.
	send := make(chan *bus.Event, streamBufferSize)
	sub, err := h.eventBus.Subscribe(events.AllAgentEvents, func(_ context.Context, e *bus.Event) error {
		select {
		case send <- e:
		default:
			log.Warn("Stream client is too slow, dropping event", zap.String("event_type", e.Type))
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to subscribe stream client", zap.Error(err))
		respond(c, errors.InternalError("failed to subscribe to events", err))
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	log.Info("Event stream client connected")
	closed := make(chan struct{})
	go readPump(conn, closed, log.Zap())
	writePump(conn, send, closed)
	log.Info("Event stream client disconnected")
}

// readPump discards client messages and closes closed when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}, log *zap.Logger) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("Stream read error", zap.Error(err))
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan *bus.Event, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case e := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
