package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/relay/api/handlers"
	"github.com/remote-agent-terminal/relay/internal/config"
	"github.com/remote-agent-terminal/relay/internal/db"
	"github.com/remote-agent-terminal/relay/internal/logger"
	"github.com/remote-agent-terminal/relay/internal/model"
	"github.com/remote-agent-terminal/relay/internal/repository"
	"github.com/remote-agent-terminal/relay/internal/server"
	"github.com/remote-agent-terminal/relay/internal/session"
	"github.com/remote-agent-terminal/relay/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "", "listen address (overrides RELAY_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", logger.Error(err))
		return 1
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(log)

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.Error("failed to create database directory", logger.Error(err))
		return 1
	}

	// Initialize database
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to initialize database", logger.Error(err))
		return 1
	}
	defer database.Close()

	connRepo := repository.NewConnectionRepository(database)

	// Rows left open by a previous process that did not shut down cleanly
	if n, err := connRepo.CloseStale(context.Background(), model.CloseReasonUnknown); err != nil {
		log.Warn("failed to close stale connections", logger.Error(err))
	} else if n > 0 {
		log.Info("closed stale connections", slog.Int64("count", n))
	}

	// Bind before anything starts accepting sessions
	srv, err := server.Listen(cfg.Addr,
		server.WithLogger(log),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
	)
	if err != nil {
		log.Error("failed to bind", logger.Error(err))
		return 1
	}

	hub := ws.NewHub(cfg.QueueCapacity)
	sessionManager := session.NewManager(hub, connRepo, session.Config{
		WelcomeMessage: cfg.WelcomeMessage,
	}, log)

	upgrader := ws.NewUpgrader(ws.ConnOptions{
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		MaxMessageSize: cfg.MaxMessageSize,
	}, cfg.AllowedOrigins)

	// Initialize handlers
	wsHandler := handlers.NewWebSocketHandler(upgrader, sessionManager, log)
	connHandler := handlers.NewConnectionHandler(connRepo, sessionManager, hub)

	gin.SetMode(cfg.GinMode)
	router := handlers.NewRouter(wsHandler, connHandler, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting relay",
		slog.String("addr", srv.Addr().String()),
		slog.Int("queue_capacity", cfg.QueueCapacity),
		slog.String("db_path", cfg.DBPath),
	)

	code := 0
	if err := srv.Serve(ctx, router); err != nil {
		log.Error("server error", logger.Error(err))
		code = 1
	}

	// Upgraded connections outlive http.Server.Shutdown
	sessionManager.Close()
	hub.Close()

	log.Info("relay stopped")
	return code
}
