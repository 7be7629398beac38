package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AirdropHandler handles disbursement requests
type AirdropHandler struct {
	sessions *services.SessionManager
}

// NewAirdropHandler creates a new AirdropHandler instance
func NewAirdropHandler(sessions *services.SessionManager) *AirdropHandler {
	return &AirdropHandler{sessions: sessions}
}

// RequestAirdrop handles POST /api/sessions/:id/airdrop.
//
// The body is optional; without an amount the session's amount field is used.
// By default the disbursement runs in the background and 202 is returned; its
// progress shows up in the session state and notifications. With ?wait=true the
// call blocks and returns the outcome.
func (h *AirdropHandler) RequestAirdrop(c *gin.Context) {
	session, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	log := logger.GetLogger().WithContext(c.Request.Context())

	var req models.AirdropRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		models.HandleError(c, models.NewAppErrorWithDetails(models.ErrorCodeMalformedJSON, "Invalid JSON format", err.Error()), log)
		return
	}

	if c.Query("wait") == "true" {
		outcome, err := session.Submit(c.Request.Context(), req.Amount)
		if err != nil {
			models.HandleError(c, coreError(err), log)
			return
		}
		c.JSON(http.StatusOK, outcome.View())
		return
	}

	if _, err := session.SubmitAsync(req.Amount); err != nil {
		models.HandleError(c, coreError(err), log)
		return
	}

	log.Info("Airdrop accepted", zap.Bool("amount_in_body", req.Amount != nil))
	c.JSON(http.StatusAccepted, session.Describe())
}
