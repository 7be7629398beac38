package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ayushjava07/DripX/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorCode is the machine-readable code in every error body
type ErrorCode string

const (
	ErrorCodeMissingAPIKey  ErrorCode = "MISSING_API_KEY"
	ErrorCodeInvalidAPIKey  ErrorCode = "INVALID_API_KEY"
	ErrorCodeInactiveAPIKey ErrorCode = "INACTIVE_API_KEY"

	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInvalidWallet  ErrorCode = "INVALID_WALLET_ADDRESS"
	ErrorCodeInvalidAmount  ErrorCode = "INVALID_AMOUNT"
	ErrorCodeMalformedJSON  ErrorCode = "MALFORMED_JSON"

	ErrorCodeSessionNotFound      ErrorCode = "SESSION_NOT_FOUND"
	ErrorCodeWalletNotConnected   ErrorCode = "WALLET_NOT_CONNECTED"
	ErrorCodeDisbursementInFlight ErrorCode = "DISBURSEMENT_IN_FLIGHT"

	ErrorCodeRPCUnavailable ErrorCode = "RPC_UNAVAILABLE"
	ErrorCodeDatabaseError  ErrorCode = "DATABASE_ERROR"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

var statusByCode = map[ErrorCode]int{
	ErrorCodeMissingAPIKey:        http.StatusUnauthorized,
	ErrorCodeInvalidAPIKey:        http.StatusUnauthorized,
	ErrorCodeInactiveAPIKey:       http.StatusUnauthorized,
	ErrorCodeInvalidRequest:       http.StatusBadRequest,
	ErrorCodeInvalidWallet:        http.StatusBadRequest,
	ErrorCodeInvalidAmount:        http.StatusBadRequest,
	ErrorCodeMalformedJSON:        http.StatusBadRequest,
	ErrorCodeSessionNotFound:      http.StatusNotFound,
	ErrorCodeWalletNotConnected:   http.StatusConflict,
	ErrorCodeDisbursementInFlight: http.StatusConflict,
	ErrorCodeRPCUnavailable:       http.StatusBadGateway,
}

// HTTPStatusCode maps a code to its response status; unknown codes are 500
func (e ErrorCode) HTTPStatusCode() int {
	if status, ok := statusByCode[e]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error         ErrorDetail `json:"error"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// AppError carries a code, a user-facing message and an optional cause
type AppError struct {
	Code    ErrorCode
	Message string
	Details string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) StatusCode() int {
	return e.Code.HTTPStatusCode()
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details}
}

func NewValidationError(message, details string) *AppError {
	return NewAppErrorWithDetails(ErrorCodeInvalidRequest, message, details)
}

func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorCodeInvalidAPIKey, message)
}

func NewRPCError(message string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorCodeRPCUnavailable, message, cause)
}

func NewDatabaseError(message string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorCodeDatabaseError, message, cause)
}

func NewSessionNotFoundError(id string) *AppError {
	return NewAppErrorWithDetails(ErrorCodeSessionNotFound, "Session not found", "Session: "+id)
}

// HandleError logs err and aborts the request with its JSON error body.
// Errors that are not an *AppError become a 500 INTERNAL_ERROR.
func HandleError(c *gin.Context, err error, log *logger.Logger) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = NewAppErrorWithCause(ErrorCodeInternalError, "Internal server error", err)
	}
	status := appErr.StatusCode()

	if log != nil {
		fields := []zap.Field{
			zap.String("error_code", string(appErr.Code)),
			zap.String("error_message", appErr.Message),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		}
		if appErr.Cause != nil {
			fields = append(fields, zap.Error(appErr.Cause))
		}
		if status >= http.StatusInternalServerError {
			log.Error("Application error", fields...)
		} else {
			log.Warn("Client error", fields...)
		}
	}

	correlationID := logger.GetCorrelationIDFromContext(c.Request.Context())
	if correlationID == "" {
		correlationID = c.GetString(string(logger.CorrelationIDKey))
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	})
}
