package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rmaselli/smartFleet-app-sub002/internal/config"
	"github.com/rmaselli/smartFleet-app-sub002/internal/domain"
	"github.com/rmaselli/smartFleet-app-sub002/internal/usecase"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

type Server struct {
	cfg    config.Config
	r      *gin.Engine
	logger *zap.Logger

	identity      *usecase.IdentityService
	sheets        *usecase.SheetService
	ledger        *usecase.AttachmentLedger
	admin         *usecase.AdminService
	catalog       domain.Catalog
	authenticator domain.Authenticator

	adminAPIKey   string
	storeMode     string
	health        HealthFunc
	maxPhotoBytes int64

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration
}

type ServerDeps struct {
	Identity      *usecase.IdentityService
	Sheets        *usecase.SheetService
	Ledger        *usecase.AttachmentLedger
	Admin         *usecase.AdminService
	Catalog       domain.Catalog
	Authenticator domain.Authenticator
	RateLimiter   domain.RateLimiter
	Logger        *zap.Logger
	StoreMode     string
	Health        HealthFunc
}

// NewServer wires the use cases from deps and mounts every route.
func NewServer(cfg config.Config, deps usecase.Deps, limiter domain.RateLimiter, health HealthFunc) *Server {
	identity := usecase.NewIdentityService(deps)
	mode := "postgres"
	if cfg.MemoryMode() {
		mode = "memory"
	}
	return NewServerWithDeps(cfg, ServerDeps{
		Identity:      identity,
		Sheets:        usecase.NewSheetService(deps),
		Ledger:        usecase.NewAttachmentLedger(deps),
		Admin:         usecase.NewAdminService(deps),
		Catalog:       deps.Catalog,
		Authenticator: identity,
		RateLimiter:   limiter,
		Logger:        deps.Logger,
		StoreMode:     mode,
		Health:        health,
	})
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        logger,
		identity:      deps.Identity,
		sheets:        deps.Sheets,
		ledger:        deps.Ledger,
		admin:         deps.Admin,
		catalog:       deps.Catalog,
		authenticator: deps.Authenticator,
		adminAPIKey:   cfg.AdminAPIKey,
		storeMode:     deps.StoreMode,
		health:        deps.Health,
		maxPhotoBytes: int64(cfg.MaxPhotoBytes),
	}
	if s.authenticator == nil && s.identity != nil {
		s.authenticator = s.identity
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(limiter domain.RateLimiter) {
	s.rateLimiter = limiter
	s.rateLimitRequests = s.cfg.LoginRateLimitRequests
	s.rateLimitWindow = s.cfg.LoginRateLimitWindow()
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/auth/login", s.handleLogin)
		v1.GET("/auth/me", s.handleMe)

		v1.GET("/platforms", s.handleListPlatforms)
		v1.GET("/platforms/:platform_id/checklist", s.handlePlatformChecklist)

		v1.POST("/sheets", s.handleCreateSheet)
		v1.GET("/sheets", s.handleListSheets)
		v1.GET("/sheets/:id", s.handleGetSheet)
		v1.POST("/sheets/:id/transitions", s.handleTransition)
		v1.GET("/sheets/:id/checklist", s.handleChecklistStatus)
		v1.POST("/sheets/:id/photos/vehicle", s.handleAddVehiclePhoto)
		v1.POST("/sheets/:id/photos/items", s.handleAddItemPhoto)
		v1.GET("/sheets/:id/attachments", s.handleListAttachments)

		admin := v1.Group("/admin")
		admin.POST("/operators", s.handleAdminCreateOperator)
		admin.POST("/operators/:id/credential", s.handleAdminResetCredential)
		admin.POST("/operators/:id/status", s.handleAdminSetStatus)
		admin.DELETE("/sheets/:id", s.handleAdminDeleteSheet)
		admin.GET("/audit-events", s.handleAdminAuditEvents)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "mode": s.storeMode})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": s.storeMode})
}
