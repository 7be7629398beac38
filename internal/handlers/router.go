package handlers

import (
	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Router handles HTTP routing setup
type Router struct {
	sessionHandler *SessionHandler
	airdropHandler *AirdropHandler
	balanceHandler *BalanceHandler
	healthHandler  *HealthHandler
	metrics        *metrics.MetricsCollector
}

// NewRouter creates a new Router instance with all handlers
func NewRouter(sessions *services.SessionManager, healthHandler *HealthHandler, m *metrics.MetricsCollector) *Router {
	return &Router{
		sessionHandler: NewSessionHandler(sessions),
		airdropHandler: NewAirdropHandler(sessions),
		balanceHandler: NewBalanceHandler(sessions),
		healthHandler:  healthHandler,
		metrics:        m,
	}
}

// SetupRoutes configures all API routes. Extra middleware, such as API key
// authentication, applies to the API group only.
func (r *Router) SetupRoutes(engine *gin.Engine, middleware ...gin.HandlerFunc) {
	api := engine.Group("/api", middleware...)
	{
		api.POST("/sessions", r.sessionHandler.CreateSession)

		session := api.Group("/sessions/:id")
		{
			session.GET("", r.sessionHandler.GetSession)
			session.DELETE("", r.sessionHandler.DeleteSession)
			session.PUT("/wallet", r.sessionHandler.ConnectWallet)
			session.DELETE("/wallet", r.sessionHandler.DisconnectWallet)
			session.PUT("/amount", r.sessionHandler.SetAmount)
			session.GET("/notifications", r.sessionHandler.GetNotifications)
			session.GET("/balance", r.balanceHandler.GetBalance)
			session.POST("/balance/refresh", r.balanceHandler.RefreshBalance)
			session.POST("/airdrop", r.airdropHandler.RequestAirdrop)
		}
	}
}

// SetupHealthRoutes configures health check and metrics routes
func (r *Router) SetupHealthRoutes(engine *gin.Engine) {
	health := engine.Group("/health")
	{
		health.GET("", r.healthHandler.GetHealth)
		health.GET("/live", r.healthHandler.GetLiveness)
		health.GET("/ready", r.healthHandler.GetReadiness)
		health.GET("/rpc", r.healthHandler.GetRPCHealth)
		health.GET("/db", r.healthHandler.GetDatabaseHealth)
	}

	engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
}
