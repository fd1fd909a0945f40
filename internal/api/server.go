package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/treatment-compliance-server/internal/audit"
	"github.com/treatment-compliance-server/internal/domain"
	"github.com/treatment-compliance-server/internal/middleware"
	"github.com/treatment-compliance-server/internal/protocol"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Catalog is the read side of the protocol index used by the API.
type Catalog interface {
	domain.ProtocolIndex
	Stats() protocol.Stats
}

// DrugMatcher checks drug mentions against protocol medications.
type DrugMatcher interface {
	Match(mention, protocolDrug string) (bool, domain.MatchKind)
	FamiliesOf(mention string) []string
}

// BreakerReporter exposes the state of the advisory circuit breaker.
type BreakerReporter interface {
	BreakerState() gobreaker.State
}

// HealthCheck probes one dependency; a non-nil error marks the service degraded.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the HTTP API is wired to.
// Audit, Advisor and HealthChecks are optional.
type Dependencies struct {
	Logger       *logrus.Logger
	Catalog      Catalog
	Scorer       domain.ComplianceScorer
	Drugs        DrugMatcher
	Audit        audit.Store
	Advisor      BreakerReporter
	HealthChecks map[string]HealthCheck
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies) (*Server, error) {
	if deps.Catalog == nil || deps.Scorer == nil || deps.Drugs == nil {
		return nil, errors.New("api: catalog, scorer and drug matcher are required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	var limiter *rate.Limiter
	if cfg.Server.RateLimit > 0 {
		burst := cfg.Server.RateBurst
		if burst <= 0 {
			burst = int(cfg.Server.RateLimit) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), burst)
	}

	router := gin.New()
	server := &Server{
		configManager: configManager,
		deps:          deps,
		logger:        deps.Logger,
		router:        router,
	}

	router.Use(gin.CustomRecovery(server.handlePanic))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(limiter))
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	server.setupRoutes()

	return server, nil
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("starting server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/compliance/score", s.handleScore)
		v1.GET("/protocols", s.handleListCancerTypes)
		v1.GET("/protocols/:cancer_type", s.handleGetProtocols)
		v1.POST("/drugs/match", s.handleMatchDrugs)

		assessments := v1.Group("/assessments")
		assessments.Use(s.requireAudit)
		{
			assessments.GET("", s.handleListAssessments)
			assessments.GET("/:id", s.handleGetAssessment)
			assessments.POST("/:id/review", s.handleSaveReview)
		}
		v1.GET("/audit/export", s.requireAudit, s.handleExport)
	}
}
