package handlers

import (
	"net/http"
	"time"

	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/logger"
	"github.com/ayushjava07/DripX/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	rpcHealthChecker *services.RPCHealthChecker
	dbHealthChecker  *services.DatabaseHealthChecker
	sessions         *services.SessionManager
	metrics          *metrics.MetricsCollector
}

// NewHealthHandler creates a new health handler. dbHealthChecker may be nil when
// API key authentication is disabled.
func NewHealthHandler(
	rpcHealthChecker *services.RPCHealthChecker,
	dbHealthChecker *services.DatabaseHealthChecker,
	sessions *services.SessionManager,
	m *metrics.MetricsCollector,
) *HealthHandler {
	return &HealthHandler{
		rpcHealthChecker: rpcHealthChecker,
		dbHealthChecker:  dbHealthChecker,
		sessions:         sessions,
		metrics:          m,
	}
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status    services.HealthStatus            `json:"status"`
	Timestamp time.Time                        `json:"timestamp"`
	Services  map[string]*services.HealthCheck `json:"services"`
	Sessions  int                              `json:"sessions"`
	Metrics   metrics.Snapshot                 `json:"metrics"`
	Version   string                           `json:"version,omitempty"`
}

// GetHealth returns the overall health status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()
	serviceChecks := map[string]*services.HealthCheck{
		"solana_rpc": h.rpcHealthChecker.Summary(h.rpcHealthChecker.CheckEndpoints(ctx)),
	}
	if h.dbHealthChecker != nil {
		serviceChecks["mongodb"] = h.dbHealthChecker.CheckHealth(ctx)
		serviceChecks["mongodb_indexes"] = h.dbHealthChecker.CheckIndexes(ctx)
	}

	overall := services.HealthStatusHealthy
	for _, check := range serviceChecks {
		overall = worse(overall, check.Status)
	}

	c.JSON(httpStatus(overall), HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  serviceChecks,
		Sessions:  h.sessions.Count(),
		Metrics:   h.metrics.Snapshot(),
		Version:   logger.Version,
	})
}

// GetLiveness returns a simple liveness check
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// GetReadiness reports ready when at least one ledger endpoint answers and,
// if configured, the API key store is reachable
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	ctx := c.Request.Context()

	notReady := func(message string) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"message":   message,
			"timestamp": time.Now(),
		})
	}

	if h.rpcHealthChecker.Summary(h.rpcHealthChecker.CheckEndpoints(ctx)).Status == services.HealthStatusUnhealthy {
		notReady("no RPC endpoint available")
		return
	}
	if h.dbHealthChecker != nil && h.dbHealthChecker.CheckHealth(ctx).Status == services.HealthStatusUnhealthy {
		notReady("database not available")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// GetRPCHealth returns one check per configured ledger endpoint
func (h *HealthHandler) GetRPCHealth(c *gin.Context) {
	checks := h.rpcHealthChecker.CheckEndpoints(c.Request.Context())
	summary := h.rpcHealthChecker.Summary(checks)

	c.JSON(httpStatus(summary.Status), gin.H{
		"status":    summary.Status,
		"message":   summary.Message,
		"endpoints": checks,
	})
}

// GetDatabaseHealth returns detailed database health information
func (h *HealthHandler) GetDatabaseHealth(c *gin.Context) {
	if h.dbHealthChecker == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "disabled"})
		return
	}

	check := h.dbHealthChecker.CheckHealth(c.Request.Context())
	c.JSON(httpStatus(check.Status), check)
}

func httpStatus(status services.HealthStatus) int {
	if status == services.HealthStatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// worse returns the more severe of two statuses
func worse(a, b services.HealthStatus) services.HealthStatus {
	rank := map[services.HealthStatus]int{
		services.HealthStatusHealthy:   0,
		services.HealthStatusDegraded:  1,
		services.HealthStatusUnhealthy: 2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
