package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler handles session, wallet, amount and notification requests
type SessionHandler struct {
	sessions *services.SessionManager
}

// NewSessionHandler creates a new SessionHandler instance
func NewSessionHandler(sessions *services.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// CreateSession handles POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	session := h.sessions.Create()
	c.JSON(http.StatusCreated, session.Describe())
}

// GetSession handles GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, session.Describe())
}

// DeleteSession handles DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if !h.sessions.Delete(id) {
		models.HandleError(c, models.NewSessionNotFoundError(id), logger.GetLogger().WithContext(c.Request.Context()))
		return
	}
	c.Status(http.StatusNoContent)
}

// ConnectWallet handles PUT /api/sessions/:id/wallet
func (h *SessionHandler) ConnectWallet(c *gin.Context) {
	session, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	log := logger.GetLogger().WithContext(c.Request.Context())

	var req models.WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.HandleError(c, models.NewAppErrorWithDetails(models.ErrorCodeMalformedJSON, "Invalid JSON format", err.Error()), log)
		return
	}

	if err := session.ConnectWallet(c.Request.Context(), req.Address); err != nil {
		if errors.Is(err, services.ErrInvalidIdentity) {
			appErr := models.NewAppErrorWithDetails(models.ErrorCodeInvalidWallet, "Invalid wallet address format", "Wallet address: "+req.Address)
			models.HandleError(c, appErr, log)
			return
		}
		models.HandleError(c, err, log)
		return
	}

	log.Info("Wallet connected", zap.String("wallet_address", req.Address))
	c.JSON(http.StatusOK, session.Describe())
}

// DisconnectWallet handles DELETE /api/sessions/:id/wallet
func (h *SessionHandler) DisconnectWallet(c *gin.Context) {
	session, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}

	if err := session.DisconnectWallet(); err != nil {
		models.HandleError(c, coreError(err), logger.GetLogger().WithContext(c.Request.Context()))
		return
	}
	c.JSON(http.StatusOK, session.Describe())
}

// SetAmount handles PUT /api/sessions/:id/amount. Keystrokes failing the
// input filter are rejected and leave the field unchanged.
func (h *SessionHandler) SetAmount(c *gin.Context) {
	session, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}
	log := logger.GetLogger().WithContext(c.Request.Context())

	var req models.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		models.HandleError(c, models.NewAppErrorWithDetails(models.ErrorCodeMalformedJSON, "Invalid JSON format", err.Error()), log)
		return
	}

	if !session.SetAmount(req.Value) {
		appErr := models.NewAppErrorWithDetails(models.ErrorCodeInvalidAmount,
			"Only digits and a single decimal point are allowed",
			"Current amount: "+session.Amount(),
		)
		models.HandleError(c, appErr, log)
		return
	}

	c.JSON(http.StatusOK, gin.H{"amount": session.Amount()})
}

// GetNotifications handles GET /api/sessions/:id/notifications.
// Pending notifications are drained; ?recent=N returns history without draining.
func (h *SessionHandler) GetNotifications(c *gin.Context) {
	session, ok := lookupSession(c, h.sessions)
	if !ok {
		return
	}

	if raw := c.Query("recent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			models.HandleError(c, models.NewValidationError("Invalid recent parameter", "recent must be a non-negative integer"),
				logger.GetLogger().WithContext(c.Request.Context()))
			return
		}
		c.JSON(http.StatusOK, models.NotificationsResponse{Notifications: session.Feed().Recent(n)})
		return
	}

	c.JSON(http.StatusOK, models.NotificationsResponse{Notifications: session.Feed().Drain()})
}

// lookupSession resolves :id and tags the request context with it. On failure
// the error response has been written.
func lookupSession(c *gin.Context, sessions *services.SessionManager) (*services.Session, bool) {
	id := c.Param("id")
	ctx := logger.ContextWithSessionID(c.Request.Context(), id)
	c.Request = c.Request.WithContext(ctx)

	session, err := sessions.Get(id)
	if err != nil {
		models.HandleError(c, models.NewSessionNotFoundError(id), logger.GetLogger().WithContext(ctx))
		return nil, false
	}
	return session, true
}

// coreError maps faucet core errors to API errors
func coreError(err error) *models.AppError {
	var unavailable *services.AllEndpointsUnavailableError
	var invalid *services.ValidationError

	switch {
	case errors.Is(err, services.ErrNoWallet):
		return models.NewAppErrorWithDetails(models.ErrorCodeWalletNotConnected, "No wallet connected", "Connect a wallet first")
	case errors.Is(err, services.ErrDisbursementInFlight):
		return models.NewAppError(models.ErrorCodeDisbursementInFlight, "An airdrop is already in progress")
	case errors.Is(err, services.ErrSessionNotFound):
		return models.NewAppError(models.ErrorCodeSessionNotFound, "Session not found")
	case errors.As(err, &invalid):
		return models.NewAppErrorWithDetails(models.ErrorCodeInvalidAmount, "Only digits and a single decimal point are allowed", invalid.Message)
	case errors.As(err, &unavailable):
		return models.NewRPCError("All RPC endpoints are unavailable", err)
	default:
		return models.NewRPCError("Ledger request failed", err)
	}
}
