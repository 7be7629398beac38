package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Version is reported in log lines and status endpoints
const Version = "1.0.0"

// Logger embeds a zap logger so the leveled methods are promoted as is.
type Logger struct {
	*zap.Logger
}

// Config selects the zap preset, level and sinks
type Config struct {
	Level       string   `json:"level" default:"info"`
	Environment string   `json:"environment" default:"development"`
	OutputPaths []string `json:"output_paths"`
}

var (
	mu           sync.RWMutex
	globalLogger *Logger
)

// New wraps an existing zap logger
func New(zapLogger *zap.Logger) *Logger {
	return &Logger{Logger: zapLogger}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return New(zap.NewNop())
}

// SetLogger replaces the process-wide logger
func SetLogger(l *Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// Initialize builds the process-wide logger. The "test" environment
// installs a no-op logger.
func Initialize(cfg *Config) error {
	l, err := build(cfg)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

func build(cfg *Config) (*Logger, error) {
	var zc zap.Config
	switch cfg.Environment {
	case "test":
		return NewNop(), nil
	case "production":
		zc = zap.NewProductionConfig()
		zc.DisableStacktrace = true
	default:
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc.Level = level
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	zc.InitialFields = map[string]interface{}{
		"service": "dripx-faucet",
		"version": Version,
	}

	zl, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return New(zl), nil
}

// GetLogger returns the process-wide logger, falling back to a
// development logger at info when Initialize was never called.
func GetLogger() *Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	l, err := build(&Config{Level: "info"})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize fallback logger: %v", err))
	}
	mu.Lock()
	if globalLogger == nil {
		globalLogger = l
	}
	l = globalLogger
	mu.Unlock()
	return l
}

// WithContext tags the logger with every ID carried by ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []zap.Field
	for _, key := range contextKeys {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	if len(fields) == 0 {
		return l
	}
	return New(l.Logger.With(fields...))
}

// WithFields tags the logger with arbitrary key/value pairs
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return New(l.Logger.With(zf...))
}

// WithSession tags the logger with a faucet session ID
func (l *Logger) WithSession(sessionID string) *Logger {
	return New(l.Logger.With(zap.String(string(SessionIDKey), sessionID)))
}
