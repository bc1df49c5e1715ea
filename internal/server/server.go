// Package server sets up the HTTP surface of the fraud engine: the
// transaction intake (the insert-time trigger-equivalent), the read-only
// alerts API consumed by dashboards, and the live alert feed.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/svdesai/fraudscope/internal/config"
	"github.com/svdesai/fraudscope/internal/fraud"
	"github.com/svdesai/fraudscope/internal/health"
	"github.com/svdesai/fraudscope/internal/idgen"
	"github.com/svdesai/fraudscope/internal/logging"
	"github.com/svdesai/fraudscope/internal/metrics"
	"github.com/svdesai/fraudscope/internal/ratelimit"
	"github.com/svdesai/fraudscope/internal/realtime"
	"github.com/svdesai/fraudscope/internal/security"
	"github.com/svdesai/fraudscope/internal/validation"
)

// Server wraps the HTTP server and the fraud engine dependencies.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	txns   fraud.TransactionStore
	alerts fraud.AlertStore
	runner *fraud.Runner
	hub    *realtime.Hub

	rateLimiter  *ratelimit.Limiter
	healthReg    *health.Registry
	db           *sql.DB // nil if using in-memory stores
	router       *gin.Engine
	httpSrv      *http.Server
	cancelRunCtx context.CancelFunc

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStores sets custom stores (for testing)
func WithStores(txns fraud.TransactionStore, alerts fraud.AlertStore) Option {
	return func(s *Server) {
		s.txns = txns
		s.alerts = alerts
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, "json"),
		healthReg: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	if s.txns == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}
			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)

			if err := db.Ping(); err != nil {
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}

			s.db = db
			s.txns = fraud.NewPostgresTransactionStore(db)
			s.alerts = fraud.NewPostgresAlertStore(db)
			s.logger.Info("using PostgreSQL storage")
		} else {
			s.txns = fraud.NewMemoryTransactionStore()
			s.alerts = fraud.NewMemoryAlertStore()
			s.logger.Warn("DATABASE_URL not set, using in-memory storage")
		}
	}

	s.hub = realtime.NewHub(s.logger)

	ruleCfg := cfg.RuleConfig()
	engine := fraud.NewEngine(fraud.NewWindowStore(ruleCfg.WindowCapacity), fraud.DefaultRules(ruleCfg))
	sink := fraud.NewSink(s.alerts, s.hub, s.logger)
	s.runner = fraud.NewRunner(engine, sink, s.txns, s.logger)

	s.healthReg.Register("database", s.databaseCheck)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.infoHandler)
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	{
		v1.POST("/transactions", s.ingestTransaction)
		v1.GET("/alerts", s.listAlerts)
		v1.GET("/alerts/summary", s.alertSummary)
		v1.POST("/alerts/:id/ack", s.acknowledgeAlert)
		v1.GET("/accounts/:id/alerts", s.listAccountAlerts)
		v1.POST("/rescore", s.rescore)
		v1.GET("/feed", func(c *gin.Context) {
			s.hub.HandleWebSocket(c.Writer, c.Request)
		})
		v1.GET("/feed/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, s.hub.Stats())
		})
	}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start alert feed hub
	go s.hub.Run(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Window state lives in memory only. Replay stored history before taking
	// traffic so velocity/geo/device rules see each account's recent past;
	// rule-level dedup makes the replay a no-op for already-alerted txns.
	go func() {
		if _, err := s.runner.RunBatch(runCtx, nil); err != nil {
			s.logger.Error("startup window replay failed", "error", err)
		}
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines (hub, replay)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// MarkReady short-circuits the startup replay gate (for testing).
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// batchRunner builds a runner over fresh windows for on-demand replays.
func (s *Server) batchRunner() *fraud.Runner {
	ruleCfg := s.cfg.RuleConfig()
	engine := fraud.NewEngine(fraud.NewWindowStore(ruleCfg.WindowCapacity), fraud.DefaultRules(ruleCfg))
	return fraud.NewRunner(engine, fraud.NewSink(s.alerts, s.hub, s.logger), s.txns, s.logger)
}

func (s *Server) databaseCheck(ctx context.Context) health.Status {
	if s.db == nil {
		return health.Status{Name: "database", Healthy: true, Detail: "in-memory"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
	}
	return health.Status{Name: "database", Healthy: true}
}
