package logger

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey names a request-scoped ID carried through context
type ContextKey string

const (
	CorrelationIDKey ContextKey = "correlation_id"
	RequestIDKey     ContextKey = "request_id"
	// UserIDKey carries the authenticated API key ID
	UserIDKey    ContextKey = "user_id"
	SessionIDKey ContextKey = "session_id"
)

// contextKeys is the order WithContext emits fields in
var contextKeys = []ContextKey{CorrelationIDKey, RequestIDKey, UserIDKey, SessionIDKey}

func stringValue(ctx context.Context, key ContextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func newID() string {
	return uuid.New().String()
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func ContextWithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}

func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

func GetCorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, CorrelationIDKey)
}

func GetUserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}
