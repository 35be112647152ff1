package server

import (
	"context"
	"fmt"
	"time"

	_ "parley/docs" // swagger docs
	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/featureflags"
	"parley/internal/middleware"
	"parley/internal/repository"
	"parley/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config          *config.Config
	db              *gorm.DB
	redis           *redis.Client
	promMiddleware  *fiberprometheus.FiberPrometheus
	featureFlags    *featureflags.Manager
	convRepo        repository.ConversationRepository
	memberRepo      repository.MembershipRepository
	threadRepo      repository.ThreadRepository
	roomService     *service.RoomService
	memberService   *service.MemberService
	resolverService *service.ResolverService
	threadService   *service.ThreadService
	activityService *service.ActivityService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	convRepo := repository.NewConversationRepository(db)
	memberRepo := repository.NewMembershipRepository(db)
	threadRepo := repository.NewThreadRepository(db)

	prom := middleware.InitMetrics("parley-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		convRepo:       convRepo,
		memberRepo:     memberRepo,
		threadRepo:     threadRepo,
	}
	server.roomService = service.NewRoomService(convRepo, memberRepo)
	server.memberService = service.NewMemberService(convRepo, memberRepo, cache.LookupInvite)
	server.resolverService = service.NewResolverService(convRepo)
	server.threadService = service.NewThreadService(convRepo, memberRepo, threadRepo)
	server.activityService = service.NewActivityService(convRepo)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// OpenTelemetry spans per request
	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS before middlewares that can short-circuit (e.g. limiter) so
	// browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Parley Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Conversation routes
	protected := api.Group("", middleware.AuthRequired(s.config))
	protected.Get("/feature-flags", s.GetFeatureFlags)
	conversations := protected.Group("/conversations")
	conversations.Post("/", s.CreateRoom)
	conversations.Get("/", s.ListRooms)
	conversations.Post("/direct", middleware.RateLimit(
		s.redis, 30, time.Minute, "resolve_direct"), s.ResolveDirect)

	// Specific /:id/:resource routes BEFORE generic /:id routes
	conversations.Post("/:id/join", middleware.RateLimit(
		s.redis, 10, time.Minute, "join_room"), s.JoinRoom)
	conversations.Post("/:id/leave", s.LeaveRoom)
	conversations.Post("/:id/members", s.AddMember)
	conversations.Get("/:id/members", s.ListMembers)
	conversations.Patch("/:id/members/me", s.UpdateSelfMembership)
	conversations.Get("/:id/members/:userId/history", s.MembershipHistory)
	conversations.Patch("/:id/members/:userId/role", s.ChangeRole)
	conversations.Delete("/:id/members/:userId", s.RemoveMember)
	conversations.Patch("/:id/settings", s.UpdateSettings)
	conversations.Post("/:id/archive", s.ArchiveRoom)
	conversations.Post("/:id/lock", s.LockRoom)
	conversations.Post("/:id/unlock", s.UnlockRoom)
	conversations.Post("/:id/invites", s.MintInvite)
	conversations.Delete("/:id/invites/:token", s.RevokeInvite)
	conversations.Post("/:id/threads", s.CreateThread)
	conversations.Get("/:id/threads", s.ListThreads)
	conversations.Get("/:id/permissions/:action", s.CheckMyPermission)
	// Generic /:id routes must be last
	conversations.Patch("/:id", s.UpdateInfo)
	conversations.Get("/:id", s.GetRoom)

	// Internal service-to-service surface
	internal := app.Group("/internal",
		middleware.InternalAuthRequired(s.config.InternalAPIToken))
	internal.Get("/conversations/:id/members/:userId/permissions/:action", s.InternalHasPermission)
	internal.Get("/conversations/:id/members/:userId", s.InternalIsActiveMember)
	internal.Post("/conversations/:id/activity", s.InternalApplyActivity)
}

// Shutdown releases server-held resources (DB pool, Redis connection).
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			return fmt.Errorf("redis shutdown: %w", err)
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return fmt.Errorf("database handle: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("database shutdown: %w", err)
		}
	}
	return nil
}

// storeCtx bounds one storage operation with the configured timeout.
func (s *Server) storeCtx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.config.StoreTimeout())
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional: invites and the membership cache degrade without it.
	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}
