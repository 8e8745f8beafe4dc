package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apascualco/maestro/internal/application"
	"github.com/apascualco/maestro/internal/infrastructure/config"
	"github.com/apascualco/maestro/internal/infrastructure/http/handler"
	"github.com/apascualco/maestro/internal/infrastructure/http/middleware"
	"github.com/apascualco/maestro/internal/infrastructure/jwt"
	"github.com/apascualco/maestro/internal/infrastructure/observability"
	"github.com/apascualco/maestro/internal/infrastructure/probe"
	"github.com/apascualco/maestro/internal/infrastructure/provision"
	"github.com/apascualco/maestro/internal/infrastructure/ratelimit"
	"github.com/apascualco/maestro/internal/infrastructure/redis"
	"github.com/apascualco/maestro/internal/infrastructure/tracing"
	"github.com/apascualco/maestro/internal/infrastructure/transport"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	httpServer *http.Server
	startTime  time.Time

	bus          *application.EventBus
	registry     *application.Registry
	orchestrator *application.Orchestrator
	engine       *application.WorkflowEngine
	monitor      *application.HealthMonitor

	jwtService  *jwt.Service
	redisClient *redis.Client
	rateLimiter ratelimit.RateLimiter
	exporter    tracing.SpanExporter
}

func NewServer(cfg *config.Config) (*Server, error) {
	jwtService, err := jwt.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}
	switch {
	case jwtService.CanValidate():
		slog.Info("jwt service authentication enabled")
	case cfg.ServiceToken != "":
		slog.Info("static token authentication enabled")
	default:
		slog.Warn("no credentials configured, control plane runs open")
	}

	var redisClient *redis.Client
	var rateLimiter ratelimit.RateLimiter

	if cfg.RateLimitEnabled {
		if cfg.RedisURL != "" {
			redisClient, err = redis.NewClient(cfg.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("failed to create redis client: %w", err)
			}
			rateLimiter = ratelimit.NewLimiter(redisClient.Client)
			slog.Info("rate limiting enabled with Redis")
		} else {
			rateLimiter = ratelimit.NewInMemoryLimiter()
			slog.Warn("rate limiting enabled with in-memory limiter (not recommended for production)")
		}
	}

	exporter := tracing.NewExporter(cfg)

	bus := application.NewEventBus()
	registry := application.NewRegistry(application.RegistryConfig{
		HeartbeatTTL: cfg.HeartbeatTTL,
	}, bus)

	invoker := transport.NewHTTPInvoker(jwtService, exporter, observability.Noop{})
	readiness := probe.NewHTTPProbe()
	provisioner := provision.NewTemplateProvisioner(cfg.ProvisionEndpointTemplate)

	orchestrator := application.NewOrchestrator(registry, invoker, provisioner, readiness, bus,
		application.OrchestratorConfig{
			CallTimeout:       cfg.CallTimeout,
			DrainGrace:        cfg.DrainGrace,
			ReadyTimeout:      cfg.ReadyTimeout,
			ReadyPollInterval: cfg.ReadyPollInterval,
			Breaker: application.BreakerConfig{
				FailureThreshold:  cfg.BreakerFailureThreshold,
				ResetTimeout:      cfg.BreakerResetTimeout,
				HalfOpenMaxCalls:  cfg.BreakerHalfOpenMaxCalls,
				RequiredSuccesses: cfg.BreakerRequiredSuccesses,
			},
		})

	engine := application.NewWorkflowEngine(orchestrator, bus, application.EngineConfig{
		MaxConcurrent:             cfg.WorkflowMaxConcurrent,
		StepTimeout:               cfg.WorkflowStepTimeout,
		BaseBackoff:               cfg.WorkflowBaseBackoff,
		MaxBackoff:                cfg.WorkflowMaxBackoff,
		CompensationTimeout:       cfg.CompensationTimeout,
		CompensationBypassBreaker: cfg.CompensationBypassBreaker,
	})

	monitor := application.NewHealthMonitor(registry, readiness, application.MonitorConfig{
		ProbeInterval: cfg.ProbeInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
		HeartbeatTTL:  cfg.HeartbeatTTL,
	})

	s := &Server{
		config:       cfg,
		startTime:    time.Now(),
		bus:          bus,
		registry:     registry,
		orchestrator: orchestrator,
		engine:       engine,
		monitor:      monitor,
		jwtService:   jwtService,
		redisClient:  redisClient,
		rateLimiter:  rateLimiter,
		exporter:     exporter,
	}
	s.setupRouter()
	return s, nil
}

func (s *Server) setupRouter() {
	if s.config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: s.config.CORSAllowedOrigins,
		AllowedMethods: s.config.CORSAllowedMethods,
		AllowedHeaders: s.config.CORSAllowedHeaders,
	}))

	s.router.GET("/health", handler.HealthHandler(s.startTime, s.config.Version))
	s.router.GET("/ready", handler.ReadyHandler())

	s.setupControlPlaneRoutes()
}

func (s *Server) setupControlPlaneRoutes() {
	serviceHandler := handler.NewServiceHandler(s.orchestrator)
	workflowHandler := handler.NewWorkflowHandler(s.engine)
	eventsHandler := handler.NewEventsHandler(s.bus)

	v1 := s.router.Group("/v1")
	v1.Use(middleware.ServiceAuth(s.jwtService, s.config.ServiceToken))
	// rate limiting runs after auth so authenticated callers are keyed by
	// their service id instead of source address
	if s.rateLimiter != nil {
		v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:    s.rateLimiter,
			ServiceRPM: s.config.RateLimitServiceRPM,
			IPRPM:      s.config.RateLimitIPRPM,
		}))
	}

	{
		v1.POST("/services", serviceHandler.Register)
		v1.GET("/services", serviceHandler.List)
		v1.GET("/services/:id", serviceHandler.Get)
		v1.DELETE("/services/:id", serviceHandler.Unregister)
		v1.POST("/services/:id/instances", serviceHandler.AddInstance)
		v1.DELETE("/services/:id/instances/:instanceID", serviceHandler.RemoveInstance)
		v1.POST("/services/:id/scale", serviceHandler.Scale)
		v1.POST("/services/:id/call", serviceHandler.Call)
		v1.GET("/services/:id/health", serviceHandler.Health)

		v1.POST("/instances/heartbeat", serviceHandler.Heartbeat)

		v1.POST("/workflows", workflowHandler.Submit)
		v1.GET("/workflows/:id", workflowHandler.Get)
		v1.POST("/workflows/:id/cancel", workflowHandler.Cancel)

		v1.GET("/events", eventsHandler.Stream)
	}
}

// Router exposes the assembled handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Run() error {
	s.monitor.Start()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.monitor.Stop()

	if err := s.engine.Shutdown(ctx); err != nil {
		slog.Warn("workflow engine shutdown incomplete", "error", err)
	}

	if s.exporter != nil {
		if err := s.exporter.Shutdown(ctx); err != nil {
			slog.Warn("trace exporter shutdown failed", "error", err)
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			return err
		}
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
