package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayushjava07/DripX/internal/config"
	"github.com/ayushjava07/DripX/internal/handlers"
	"github.com/ayushjava07/DripX/internal/middleware"
	"github.com/ayushjava07/DripX/internal/models"
	"github.com/ayushjava07/DripX/internal/services"
	"github.com/ayushjava07/DripX/pkg/logger"
	"github.com/ayushjava07/DripX/pkg/metrics"
	"github.com/ayushjava07/DripX/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// Server represents the main application server
type Server struct {
	httpServer  *http.Server
	config      *config.Config
	metrics     *metrics.MetricsCollector
	selector    *services.Selector
	sessions    *services.SessionManager
	mongoClient *mongo.Client
	authService *services.AuthService
	// authenticator guards /api when set
	authenticator services.AuthServiceInterface
	rateLimiter *ratelimiter.RateLimiter
	router      *handlers.Router
	stopCh      chan struct{}
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := &logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.Logging.Environment,
		OutputPaths: cfg.Logging.OutputPaths,
	}
	if err := logger.Initialize(loggerConfig); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.GetLogger()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	log.Info("Starting DripX faucet server",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Strings("rpc_endpoints", cfg.RPC.Endpoints),
		zap.String("max_amount", cfg.Faucet.MaxAmount.String()),
		zap.Duration("cooldown", cfg.Faucet.Cooldown),
		zap.Duration("confirmation_timeout", cfg.Faucet.ConfirmationTimeout),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
		zap.Int("rate_limit_rpm", cfg.RateLimit.RequestsPerMinute),
		zap.String("log_level", cfg.Logging.Level),
		zap.String("environment", cfg.Logging.Environment),
	)

	server, err := NewServer(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	if err := server.Start(); err != nil {
		log.Fatal("Server failed to start", zap.Error(err))
	}
}

// NewServer creates a new server instance with all dependencies
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log := logger.GetLogger()
	log.Info("Initializing server components")

	metricsCollector := metrics.NewMetricsCollector()

	log.Debug("Initializing RPC endpoint selector")
	selectorOpts := []services.SelectorOption{services.WithSelectorMetrics(metricsCollector)}
	if cfg.RPC.StickyTTL > 0 {
		selectorOpts = append(selectorOpts, services.WithStickyTTL(cfg.RPC.StickyTTL))
	}
	selector := services.NewSelector(
		models.EndpointsFromAddresses(cfg.RPC.Endpoints),
		services.NewSolanaDialer(&cfg.RPC),
		cfg.RPC.ProbeTimeout,
		selectorOpts...,
	)

	rpcHealthChecker := services.NewRPCHealthChecker(selector, cfg.RPC.HealthCheckWait)
	summary := rpcHealthChecker.Summary(rpcHealthChecker.CheckEndpoints(ctx))
	if summary.Status == services.HealthStatusUnhealthy {
		log.Warn("No Solana RPC endpoint reachable at startup", zap.String("message", summary.Message))
	} else {
		log.Info("Solana RPC endpoints checked", zap.String("status", string(summary.Status)), zap.String("message", summary.Message))
	}

	sessions := services.NewSessionManager(cfg, selector, metricsCollector)

	server := &Server{
		config:      cfg,
		metrics:     metricsCollector,
		selector:    selector,
		sessions:    sessions,
		rateLimiter: ratelimiter.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL),
		stopCh:      make(chan struct{}),
	}

	var dbHealthChecker *services.DatabaseHealthChecker
	if cfg.Auth.Enabled {
		log.Debug("Connecting to the API key store")
		client, err := services.ConnectMongo(ctx, &cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize auth service: %w", err)
		}
		server.mongoClient = client
		server.authService = services.NewAuthService(client, &cfg.MongoDB)
		server.authenticator = server.authService

		if err := server.authService.EnsureIndexes(ctx); err != nil {
			log.Warn("Failed to ensure API key indexes", zap.Error(err))
		}
		dbHealthChecker = services.NewDatabaseHealthChecker(client, &cfg.MongoDB)
	}

	healthHandler := handlers.NewHealthHandler(rpcHealthChecker, dbHealthChecker, sessions, metricsCollector)
	server.router = handlers.NewRouter(sessions, healthHandler, metricsCollector)

	log.Info("Server components initialized successfully")
	return server, nil
}

// Start starts the HTTP server with graceful shutdown handling
func (s *Server) Start() error {
	log := logger.GetLogger()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	s.setupMiddleware(engine)
	s.setupRoutes(engine)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:           engine,
		ReadTimeout:       s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
		IdleTimeout:       s.config.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	log.Info("HTTP server configured",
		zap.String("address", s.httpServer.Addr),
		zap.Duration("read_timeout", s.config.Server.ReadTimeout),
		zap.Duration("write_timeout", s.config.Server.WriteTimeout),
		zap.Duration("idle_timeout", s.config.Server.IdleTimeout),
	)

	s.startCleanupRoutines()

	go func() {
		log.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	return s.waitForShutdown()
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware(engine *gin.Engine) {
	// Recovery must run first
	engine.Use(logger.RecoveryMiddleware())
	engine.Use(logger.LoggingMiddleware())
	engine.Use(middleware.MetricsMiddleware(s.metrics))
	engine.Use(s.corsMiddleware())
}

// setupRoutes configures all application routes
func (s *Server) setupRoutes(engine *gin.Engine) {
	s.router.SetupHealthRoutes(engine)

	// Rate limiting runs before auth so failed key guesses are throttled too
	apiMiddleware := []gin.HandlerFunc{s.rateLimiter.Middleware()}
	if s.authenticator != nil {
		apiMiddleware = append(apiMiddleware, middleware.AuthMiddleware(s.authenticator))
	}
	s.router.SetupRoutes(engine, apiMiddleware...)

	engine.GET("/status", s.statusHandler)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// statusHandler reports the running configuration and counters
func (s *Server) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":      "dripx",
		"status":       "running",
		"version":      logger.Version,
		"uptime":       s.metrics.GetUptime().String(),
		"sessions":     s.sessions.Count(),
		"endpoints":    s.selector.Endpoints(),
		"max_amount":   s.config.Faucet.MaxAmount.String(),
		"unit":         s.config.Faucet.UnitSymbol,
		"cooldown":     s.config.Faucet.Cooldown.String(),
		"success_rate": s.metrics.SuccessRate(),
		"auth_enabled": s.authenticator != nil,
	})
}

// startCleanupRoutines starts background cleanup tasks
func (s *Server) startCleanupRoutines() {
	log := logger.GetLogger()

	s.sessions.StartCleanup()

	if interval := s.config.RateLimit.CleanupInterval; interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case now := <-ticker.C:
					s.rateLimiter.Cleanup(now)
				case <-s.stopCh:
					return
				}
			}
		}()
	}

	log.Info("Background cleanup routines started",
		zap.Duration("session_cleanup_interval", s.config.Session.CleanupInterval),
		zap.Duration("rate_limit_cleanup_interval", s.config.RateLimit.CleanupInterval),
	)
}

// waitForShutdown waits for interrupt signal and performs graceful shutdown
func (s *Server) waitForShutdown() error {
	log := logger.GetLogger()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", zap.Duration("timeout", shutdownTimeout))
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	s.cleanup()

	log.Info("Server gracefully stopped")
	return nil
}

// cleanup stops background work, waits for running disbursements and closes the store
func (s *Server) cleanup() {
	log := logger.GetLogger()
	log.Info("Cleaning up services...")

	close(s.stopCh)
	s.sessions.Stop()

	if s.authService != nil {
		s.authService.Close()
	}
	if s.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mongoClient.Disconnect(ctx); err != nil {
			log.Error("Error closing MongoDB connection", zap.Error(err))
		}
	}

	log.Info("Cleanup completed")
	if err := log.Sync(); err != nil {
		fmt.Printf("Error syncing logger: %v\n", err)
	}
}
