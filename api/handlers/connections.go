// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/relay/internal/model"
	"github.com/remote-agent-terminal/relay/internal/session"
	"github.com/remote-agent-terminal/relay/internal/ws"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ConnectionStore is the read side of the connection repository.
type ConnectionStore interface {
	GetByID(ctx context.Context, id string) (*model.Connection, error)
	List(ctx context.Context, limit int) ([]*model.Connection, error)
}

// ConnectionHandler serves connection history and relay statistics.
type ConnectionHandler struct {
	store   ConnectionStore
	manager *session.Manager
	hub     *ws.Hub
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(store ConnectionStore, manager *session.Manager, hub *ws.Hub) *ConnectionHandler {
	return &ConnectionHandler{
		store:   store,
		manager: manager,
		hub:     hub,
	}
}

// ConnectionResponse represents a connection record in API responses.
type ConnectionResponse struct {
	ID          string `json:"id"`
	RemoteAddr  string `json:"remoteAddr"`
	State       string `json:"state"`
	CloseReason string `json:"closeReason,omitempty"`
	MessagesIn  int64  `json:"messagesIn"`
	MessagesOut int64  `json:"messagesOut"`
	Duration    string `json:"duration"`
	OpenedAt    string `json:"openedAt"`
	ClosedAt    string `json:"closedAt,omitempty"`
}

// StatsResponse reports hub counters and live sessions.
type StatsResponse struct {
	Hub          ws.HubStats     `json:"hub"`
	LiveSessions int             `json:"liveSessions"`
	Sessions     []session.Stats `json:"sessions"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toConnectionResponse converts a model.Connection to ConnectionResponse.
func toConnectionResponse(c *model.Connection) *ConnectionResponse {
	resp := &ConnectionResponse{
		ID:          c.ID,
		RemoteAddr:  c.RemoteAddr,
		State:       string(c.State),
		CloseReason: c.CloseReason,
		MessagesIn:  c.MessagesIn,
		MessagesOut: c.MessagesOut,
		Duration:    formatDuration(c.Duration()),
		OpenedAt:    c.OpenedAt.Format(time.RFC3339),
	}
	if c.ClosedAt != nil {
		resp.ClosedAt = c.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// List handles GET /api/connections - lists recent connections, newest first.
func (h *ConnectionHandler) List(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	conns, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list connections: "+err.Error())
		return
	}

	response := make([]*ConnectionResponse, len(conns))
	for i, conn := range conns {
		response[i] = toConnectionResponse(conn)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/connections/:id - gets a specific connection.
func (h *ConnectionHandler) Get(c *gin.Context) {
	id := c.Param("id")

	conn, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrConnectionNotFound) {
			sendError(c, http.StatusNotFound, "CONNECTION_NOT_FOUND", "Connection "+id+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get connection: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toConnectionResponse(conn))
}

// Stats handles GET /api/stats - reports hub counters and live sessions.
func (h *ConnectionHandler) Stats(c *gin.Context) {
	sessions := h.manager.List()
	c.JSON(http.StatusOK, StatsResponse{
		Hub:          h.hub.Stats(),
		LiveSessions: len(sessions),
		Sessions:     sessions,
	})
}

// RegisterRoutes registers the connection handler routes on a Gin router group.
func (h *ConnectionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/connections", h.List)
	rg.GET("/connections/:id", h.Get)
	rg.GET("/stats", h.Stats)
}
