// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/riskmesh/internal/auth"
	"github.com/mbd888/riskmesh/internal/circuitbreaker"
	"github.com/mbd888/riskmesh/internal/config"
	"github.com/mbd888/riskmesh/internal/events"
	"github.com/mbd888/riskmesh/internal/health"
	"github.com/mbd888/riskmesh/internal/idgen"
	"github.com/mbd888/riskmesh/internal/logging"
	"github.com/mbd888/riskmesh/internal/metrics"
	"github.com/mbd888/riskmesh/internal/models"
	"github.com/mbd888/riskmesh/internal/oracle"
	"github.com/mbd888/riskmesh/internal/proof"
	"github.com/mbd888/riskmesh/internal/ratelimit"
	"github.com/mbd888/riskmesh/internal/realtime"
	"github.com/mbd888/riskmesh/internal/results"
	"github.com/mbd888/riskmesh/internal/rewards"
	"github.com/mbd888/riskmesh/internal/risk"
	"github.com/mbd888/riskmesh/internal/rolegate"
	"github.com/mbd888/riskmesh/internal/security"
	"github.com/mbd888/riskmesh/internal/syncutil"
	"github.com/mbd888/riskmesh/internal/traces"
	"github.com/mbd888/riskmesh/internal/validation"
	"github.com/mbd888/riskmesh/internal/wallet"
)

// Version is reported by the health endpoints. Set by ldflags in cmd/server.
var Version = "dev"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB // nil if using in-memory

	authMgr   *auth.Manager
	grants    rolegate.Store
	signalLog events.Store
	bus       *events.Bus
	hub       *realtime.Hub
	guard     *syncutil.Guard

	roles   *rolegate.Service
	oracles *oracle.Service
	risk    *risk.Service
	models  *models.Service
	results *results.Service
	rewards *rewards.Service

	payout      rewards.Transferrer
	wallet      *wallet.Wallet // nil when payouts are only recorded
	verifier    proof.Verifier
	health      *health.Registry
	rateLimiter *ratelimit.Limiter

	router        *gin.Engine
	httpSrv       *http.Server
	logCloser     io.Closer
	traceShutdown func(context.Context) error
	cancelRunCtx  context.CancelFunc

	ready atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTransferrer replaces the payout transferrer (for testing)
func WithTransferrer(t rewards.Transferrer) Option {
	return func(s *Server) {
		s.payout = t
	}
}

// WithVerifier replaces the proof verifier
func WithVerifier(v proof.Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

// WithDB uses an already-open database instead of dialing DatabaseURL.
func WithDB(db *sql.DB) Option {
	return func(s *Server) {
		s.db = db
	}
}

// stores groups the per-package stores so New can pick a backend once.
type stores struct {
	auth    auth.Store
	grants  rolegate.Store
	signals events.Store
	oracles oracle.Store
	risk    risk.Store
	models  models.Store
	results results.Store
	rewards rewards.Store
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg, guard: syncutil.NewGuard()}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger, s.logCloser = logging.NewWithFile(cfg.LogLevel, cfg.LogFormat, logging.FileOptions{Path: cfg.LogFile})
	}

	ctx := context.Background()

	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.traceShutdown = shutdown

	if s.db == nil && cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	}

	st, err := s.openStores(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.seedGrants(ctx, st.grants); err != nil {
		return nil, fmt.Errorf("failed to seed capability grants: %w", err)
	}

	if s.payout == nil {
		if err := s.openPayout(); err != nil {
			return nil, err
		}
	}
	if s.verifier == nil {
		s.verifier = proof.Placeholder{}
	}

	// Signal fan-out: websocket dashboard plus the replayable signal log.
	s.hub = realtime.NewHub(s.logger)
	s.signalLog = st.signals
	s.bus = events.NewBus(s.logger).
		WithSink("realtime", s.hub).
		WithSink("signal_log", events.NewLogSink(st.signals))

	s.authMgr = auth.NewManager(st.auth).WithKeyTTL(cfg.APIKeyTTL)
	s.grants = st.grants
	s.roles = rolegate.NewService(st.grants).WithEmitter(s.bus)

	s.oracles = oracle.NewService(st.oracles, st.grants).
		WithEmitter(s.bus).
		WithGuard(s.guard)
	s.risk = risk.NewService(st.risk, st.grants).
		WithSources(s.oracles).
		WithEmitter(s.bus).
		WithGuard(s.guard).
		WithStalenessWindow(cfg.StalenessWindow)
	s.models = models.NewService(st.models, st.grants).
		WithEmitter(s.bus).
		WithGuard(s.guard)
	s.results = results.NewService(st.results, s.models, st.grants, s.verifier).
		WithEmitter(s.bus).
		WithGuard(s.guard).
		WithValidity(cfg.ResultValidity)
	s.rewards = rewards.NewService(st.rewards, st.grants, s.payout).
		WithEmitter(s.bus).
		WithGuard(s.guard)

	s.health = health.NewRegistry(3 * time.Second)
	if s.db != nil {
		s.health.Register("database", health.Database(s.db))
	}
	if s.wallet != nil {
		s.health.Register("payout_wallet", health.PayoutWallet(s.wallet))
	}
	s.health.Register("server", func(context.Context) health.Status {
		if !s.ready.Load() {
			return health.Status{Detail: "starting or draining"}
		}
		return health.Status{Healthy: true}
	})

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) openStores(ctx context.Context) (*stores, error) {
	if s.db == nil {
		s.logger.Info("using in-memory storage (data will not persist)")
		return &stores{
			auth:    auth.NewMemoryStore(),
			grants:  rolegate.NewMemoryStore(),
			signals: events.NewMemoryStore(),
			oracles: oracle.NewMemoryStore(),
			risk:    risk.NewMemoryStore(),
			models:  models.NewMemoryStore(),
			results: results.NewMemoryStore(),
			rewards: rewards.NewMemoryStore(),
		}, nil
	}

	authStore := auth.NewPostgresStore(s.db)
	grantStore := rolegate.NewPostgresStore(s.db)
	signalStore := events.NewPostgresStore(s.db)
	oracleStore := oracle.NewPostgresStore(s.db)
	riskStore := risk.NewPostgresStore(s.db)
	modelStore := models.NewPostgresStore(s.db)
	resultStore := results.NewPostgresStore(s.db)
	rewardStore := rewards.NewPostgresStore(s.db)

	for name, m := range map[string]migrator{
		"auth":     authStore,
		"rolegate": grantStore,
		"signals":  signalStore,
		"oracle":   oracleStore,
		"risk":     riskStore,
		"models":   modelStore,
		"results":  resultStore,
		"rewards":  rewardStore,
	} {
		if err := m.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate %s: %w", name, err)
		}
	}

	return &stores{
		auth:    authStore,
		grants:  grantStore,
		signals: signalStore,
		oracles: oracleStore,
		risk:    riskStore,
		models:  modelStore,
		results: resultStore,
		rewards: rewardStore,
	}, nil
}

func (s *Server) seedGrants(ctx context.Context, store rolegate.Store) error {
	seeds := []struct {
		capability rolegate.Capability
		addrs      []string
	}{
		{rolegate.Admin, s.cfg.AdminAddresses},
		{rolegate.RiskAssessor, s.cfg.AssessorAddresses},
		{rolegate.OracleManager, s.cfg.OracleManagerAddresses},
		{rolegate.AIOperator, s.cfg.OperatorAddresses},
		{rolegate.Verifier, s.cfg.VerifierAddresses},
	}
	for _, seed := range seeds {
		if err := rolegate.Seed(ctx, store, seed.capability, seed.addrs); err != nil {
			return err
		}
		if len(seed.addrs) > 0 {
			s.logger.Info("seeded capability", "capability", seed.capability, "count", len(seed.addrs))
		}
	}
	return nil
}

func (s *Server) openPayout() error {
	if !s.cfg.PayoutsEnabled() {
		s.logger.Warn("PAYOUT_PRIVATE_KEY not set, reward claims are recorded but not broadcast")
		s.payout = rewards.NewRecordingTransferrer()
		return nil
	}
	w, err := wallet.New(wallet.Config{
		RPCURL:     s.cfg.RPCURL,
		PrivateKey: s.cfg.PayoutPrivateKey,
		ChainID:    s.cfg.ChainID,
	}, wallet.WithConfirmation(s.cfg.PayoutConfirmTimeout))
	if err != nil {
		return fmt.Errorf("failed to open payout wallet: %w", err)
	}
	s.wallet = w
	s.payout = rewards.NewBreakerTransferrer(w, circuitbreaker.New(5, 30*time.Second))
	s.logger.Info("payout wallet ready", "address", w.Address(), "chain_id", s.cfg.ChainID)
	return nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
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

	s.router.Use(s.requestIDMiddleware())
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(nil))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())

	// Resolve the caller before rate limiting so keys get their own bucket.
	s.router.Use(auth.Middleware(s.authMgr))
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         s.cfg.RateLimitBurst,
	})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.RequestID()
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

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if caller := auth.Caller(c); caller != "" {
			attrs = append(attrs, "caller", caller)
		}

		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	health.NewHandler(s.health, Version).RegisterRoutes(s.router)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")
	v1.GET("/info", s.infoHandler)

	authHandler := auth.NewHandler(s.authMgr)
	authHandler.RegisterBootstrapRoutes(v1, s.cfg.AdminSecret)

	events.NewHandler(s.signalLog).RegisterRoutes(v1)

	roleHandler := rolegate.NewHandler(s.roles)
	oracleHandler := oracle.NewHandler(s.oracles)
	riskHandler := risk.NewHandler(s.risk)
	modelHandler := models.NewHandler(s.models)
	resultHandler := results.NewHandler(s.results)
	rewardHandler := rewards.NewHandler(s.rewards)

	roleHandler.RegisterRoutes(v1)
	oracleHandler.RegisterRoutes(v1)
	riskHandler.RegisterRoutes(v1)
	modelHandler.RegisterRoutes(v1)
	resultHandler.RegisterRoutes(v1)
	rewardHandler.RegisterRoutes(v1)

	protected := v1.Group("")
	protected.Use(auth.RequireAuth())
	authHandler.RegisterRoutes(protected)
	roleHandler.RegisterProtectedRoutes(protected)
	oracleHandler.RegisterProtectedRoutes(protected)
	riskHandler.RegisterProtectedRoutes(protected)
	modelHandler.RegisterProtectedRoutes(protected)
	resultHandler.RegisterProtectedRoutes(protected)
	rewardHandler.RegisterProtectedRoutes(protected)
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":            "riskmesh",
		"version":         Version,
		"storage":         s.storageKind(),
		"payouts":         s.cfg.PayoutsEnabled(),
		"verifier":        proofName(s.verifier),
		"stalenessWindow": s.cfg.StalenessWindow.String(),
		"resultValidity":  s.cfg.ResultValidity.String(),
		"realtime":        s.hub.Stats(),
	})
}

func (s *Server) storageKind() string {
	if s.db != nil {
		return "postgres"
	}
	return "memory"
}

func proofName(v proof.Verifier) string {
	if n, ok := v.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "custom"
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and blocks until a signal, ctx cancellation or
// a listener error.
func (s *Server) Run(ctx context.Context) error {
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
		s.logger.Info("starting server", "port", s.cfg.Port, "storage", s.storageKind())
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.ready.Store(true)
	s.logger.Info("server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		s.cleanup()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown drains in-flight requests, then releases every resource.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	s.cleanup()
	s.logger.Info("server stopped")
	return shutdownErr
}

func (s *Server) cleanup() {
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.wallet != nil {
		if err := s.wallet.Close(); err != nil {
			s.logger.Error("wallet close error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}
	if s.logCloser != nil {
		_ = s.logCloser.Close()
	}
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
