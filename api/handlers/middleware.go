package handlers

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/relay/internal/logger"
)

// RequestLogger logs each HTTP request through slog. Upgraded WebSocket
// requests are logged when the handshake completes.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	log = logger.OrDiscard(log)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		log.LogAttrs(c.Request.Context(), level, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			logger.Remote(c.ClientIP()),
			logger.Duration(time.Since(start)),
		)
	}
}

// Health handles GET /health.
func Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status": "ok",
	})
}

// CORS allows browser dashboards on other origins to read the JSON API.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
