package middleware

import (
	"errors"
	"strings"

	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware creates a middleware for API key authentication
func AuthMiddleware(authService services.AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.GetLogger().WithContext(c.Request.Context())

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Missing API key in Authorization header",
				zap.String("client_ip", c.ClientIP()),
				zap.String("user_agent", c.Request.UserAgent()),
			)
			models.HandleError(c, models.NewAppErrorWithDetails(
				models.ErrorCodeMissingAPIKey,
				"API key is required",
				"Provide API key in Authorization header",
			), log)
			return
		}

		apiKey := parseAuthorization(authHeader)
		if apiKey == "" {
			models.HandleError(c, models.NewAppErrorWithDetails(
				models.ErrorCodeInvalidAPIKey,
				"Invalid API key format",
				"API key cannot be empty",
			), log)
			return
		}

		validatedKey, err := authService.ValidateAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			var appErr *models.AppError
			switch {
			case errors.Is(err, services.ErrInvalidAPIKey):
				appErr = models.NewAuthenticationError("Invalid API key")
			case errors.Is(err, services.ErrInactiveAPIKey):
				appErr = models.NewAppError(models.ErrorCodeInactiveAPIKey, "API key is inactive")
			case errors.Is(err, services.ErrExpiredAPIKey):
				appErr = models.NewAppError(models.ErrorCodeInactiveAPIKey, "API key has expired")
			case errors.Is(err, services.ErrDatabaseError):
				appErr = models.NewDatabaseError("Authentication service unavailable", err)
			default:
				appErr = models.NewAppErrorWithCause(models.ErrorCodeInvalidAPIKey, "Authentication failed", err)
			}
			models.HandleError(c, appErr, log)
			return
		}

		c.Set("api_key_id", validatedKey.ID.Hex())
		c.Set("api_key_name", validatedKey.Name)

		ctx := logger.ContextWithUserID(c.Request.Context(), validatedKey.ID.Hex())
		c.Request = c.Request.WithContext(ctx)

		log.Debug("Authentication successful", zap.String("api_key_name", validatedKey.Name))
		c.Next()
	}
}

// parseAuthorization accepts "Bearer <key>", "Bearer<key>" and a bare key
func parseAuthorization(header string) string {
	apiKey := strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(apiKey), "bearer") {
		apiKey = strings.TrimSpace(apiKey[len("bearer"):])
	}
	return apiKey
}
