package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/relay/internal/logger"
	"github.com/remote-agent-terminal/relay/internal/session"
	"github.com/remote-agent-terminal/relay/internal/ws"
)

// WebSocketHandler upgrades relay clients and hands them to the session manager.
type WebSocketHandler struct {
	upgrader *ws.Upgrader
	manager  *session.Manager
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(upgrader *ws.Upgrader, manager *session.Manager, log *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: upgrader,
		manager:  manager,
		logger:   logger.OrDiscard(log),
	}
}

// Attach handles GET / and GET /ws. The session runs on its own goroutine;
// Attach returns as soon as it has been started.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request)
	if err != nil {
		// The upgrader has already replied with an HTTP error
		h.logger.Warn("upgrade failed", logger.Remote(c.Request.RemoteAddr), logger.Error(err))
		return
	}

	if _, err := h.manager.Start(conn); err != nil {
		h.logger.Info("connection rejected", logger.Remote(conn.RemoteAddr()), logger.Error(err))
	}
}

// RegisterRoutes registers the WebSocket endpoints.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Attach)
	r.GET("/ws", h.Attach)
}
