package main

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/krantiutils/ring-ai-sub000/internal/aisession"
	"github.com/krantiutils/ring-ai-sub000/internal/auth"
	"github.com/krantiutils/ring-ai-sub000/internal/bridge"
	"github.com/krantiutils/ring-ai-sub000/internal/calls"
	"github.com/krantiutils/ring-ai-sub000/pkg/logger"
	"github.com/krantiutils/ring-ai-sub000/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type deps struct {
	auth     *auth.Manager
	router   bridge.CallRouter
	manager  *calls.Manager
	pool     *aisession.Pool
	executor bridge.ToolExecutor
	db       *sql.DB
	log      *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Gateways are native apps, not browsers; origin checks do not apply.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d deps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Device socket. One persistent connection per gateway; everything a
	// device does flows over this.
	r.GET("/ws/gateway", auth.RequireGatewayToken(d.auth), func(c *gin.Context) {
		gatewayID := c.GetString("gateway_id")
		log := logger.FromGin(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response.
			log.Warn("websocket upgrade failed", "gateway_id", gatewayID, "err", err)
			return
		}
		defer conn.Close()

		b := bridge.New(conn, gatewayID, d.router, d.manager, d.executor, log)
		_ = b.Run(c.Request.Context())
	})

	// Read-only ops surface.
	v1 := r.Group("/v1")
	v1.Use(auth.RequireGatewayToken(d.auth))
	{
		v1.GET("/sessions", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"session_ids": d.pool.ListSessions(),
				"in_use":      d.pool.InUse(),
				"max":         d.pool.Max(),
			})
		})

		v1.GET("/calls/active", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"active_calls": d.manager.ActiveCallCount()})
		})
	}
}
