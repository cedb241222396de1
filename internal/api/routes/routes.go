package routes

import (
	"log/slog"
	"net/http"
	"time"

	"taskplanner/internal/api/handlers"
	"taskplanner/internal/api/middleware"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	WSHandler      http.Handler
	Broker         handlers.Broker
	Users          handlers.UserDirectory
	Presence       handlers.PresenceMirror
	Verifier       middleware.TokenVerifier
	RateLimiter    middleware.RateLimiter
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Router struct {
	engine       *gin.Engine
	wsHandler    *handlers.WSHandler
	adminHandler *handlers.AdminHandler
	rateLimitMW  *middleware.RateLimitMiddleware
	authMW       *middleware.AuthMiddleware
}

func NewRouter(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.LogApi(logger.With("component", "http"), "/healthz"))

	return &Router{
		engine:       engine,
		wsHandler:    handlers.NewWSHandler(deps.WSHandler),
		adminHandler: handlers.NewAdminHandler(deps.Broker, deps.Users, deps.Presence, logger),
		rateLimitMW:  middleware.NewRateLimitMiddleware(deps.RateLimiter, logger),
		authMW:       middleware.NewAuthMiddleware(deps.Verifier, logger),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.engine.Group("/api/v1")

	// The handshake authenticates itself so rejections carry the lifecycle reasons.
	api.GET("/ws",
		r.rateLimitMW.RateLimitIP(30, time.Minute),
		r.wsHandler.HandleWebSocket,
	)

	admin := api.Group("/admin")
	admin.Use(r.authMW.RequireAuth(), r.authMW.RequireAdmin())
	admin.Use(r.rateLimitMW.RateLimit(100, time.Minute))
	{
		ws := admin.Group("/websocket")
		ws.GET("/stats", r.adminHandler.GetStats)
		ws.GET("/connected-users", r.adminHandler.GetConnectedUsers)
		ws.POST("/disconnect/:id", r.adminHandler.DisconnectUser)
		ws.GET("/deliveries", r.adminHandler.GetDeliveries)
		ws.POST("/metrics/reset", r.adminHandler.ResetMetrics)
		ws.GET("/presence", r.adminHandler.GetPresence)

		notifications := admin.Group("/notifications")
		notifications.POST("/send/:id", r.adminHandler.SendNotification)
		notifications.POST("/broadcast", r.adminHandler.BroadcastNotification)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
