package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the WebSocket endpoints, the JSON API and /health onto a
// fresh gin engine.
func NewRouter(ws *WebSocketHandler, conns *ConnectionHandler, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))

	r.GET("/health", Health)
	ws.RegisterRoutes(r)

	api := r.Group("/api")
	api.Use(CORS())
	{
		conns.RegisterRoutes(api)
	}

	return r
}
