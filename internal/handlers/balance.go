package handlers

import (
	"net/http"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/logger"

	"github.com/gin-gonic/gin"
)

// BalanceHandler handles balance-related HTTP requests
type BalanceHandler struct {
	sessions *services.SessionManager
}

// NewBalanceHandler creates a new BalanceHandler instance
func NewBalanceHandler(sessions *services.SessionManager) *BalanceHandler {
	return &BalanceHandler{sessions: sessions}
}

// GetBalance handles GET /api/sessions/:id/balance. It returns the last
// published snapshot without touching the ledger.
func (h *BalanceHandler) GetBalance(c *gin.Context) {
	session, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Balance())
}

// RefreshBalance handles POST /api/sessions/:id/balance/refresh
func (h *BalanceHandler) RefreshBalance(c *gin.Context) {
	session, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}

	if err := session.RefreshBalance(c.Request.Context()); err != nil {
		models.HandleError(c, coreError(err), logger.GetLogger().WithContext(c.Request.Context()))
		return
	}
	c.JSON(http.StatusOK, session.Balance())
}
