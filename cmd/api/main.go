package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/uni-helpdesk/internal/api/http"
	"github.com/spec-kit/uni-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/uni-helpdesk/internal/auth"
	"github.com/spec-kit/uni-helpdesk/internal/config"
	"github.com/spec-kit/uni-helpdesk/internal/events"
	"github.com/spec-kit/uni-helpdesk/internal/mail"
	"github.com/spec-kit/uni-helpdesk/internal/observability"
	"github.com/spec-kit/uni-helpdesk/internal/persistence"
	"github.com/spec-kit/uni-helpdesk/internal/ratelimit"
	"github.com/spec-kit/uni-helpdesk/internal/repository"
	"github.com/spec-kit/uni-helpdesk/internal/service"
	"github.com/spec-kit/uni-helpdesk/internal/storage"
	"github.com/spec-kit/uni-helpdesk/internal/worker"
)

const (
	maxFilesPerUpload = 10
	shutdownTimeout   = 15 * time.Second
	eventQueueSize    = 256
	eventWorkers      = 2
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	ticketRepo, staffRepo := buildRepositories(pg)
	metrics := observability.NewMetrics()

	policy := ratelimit.Policy{Window: cfg.RateLimit.Window, MaxHits: cfg.RateLimit.MaxHits}
	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == "redis" {
		limiter = ratelimit.NewRedisLimiter(redis.Client, policy, cfg.RateLimit.KeyPrefix, time.Now)
	} else {
		limiter = ratelimit.NewMemoryLimiter(policy)
	}
	logger.Info("rate limiter ready",
		zap.String("backend", cfg.RateLimit.Backend),
		zap.Duration("window", policy.Window),
		zap.Int("max", policy.MaxHits))

	backend, err := storage.NewBackend(cfg.Upload)
	if err != nil {
		logger.Fatal("failed to init upload storage", zap.Error(err))
	}
	uploader := storage.NewUploader(backend, cfg.Upload)

	sender, err := mail.NewSender(cfg.SMTP, logger)
	if err != nil {
		logger.Fatal("failed to init mail sender", zap.Error(err))
	}

	queue := worker.NewQueue(events.NewInMemoryDispatcher(), eventQueueSize, eventWorkers, logger)
	validator := service.NewValidator(cfg.Student.EmailDomain, cfg.Upload.AllowedReferencePrefixes())
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Validator:  validator,
		Dispatcher: queue,
		Logger:     logger,
	})
	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		TicketRepo:        ticketRepo,
		Dispatcher:        queue,
		Logger:            logger,
		StrictTransitions: cfg.Workflow.StrictTransitions,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: ticketRepo,
		StaffRepo:  staffRepo,
		Dispatcher: queue,
		Logger:     logger,
	})
	authService := service.NewAuthService(service.AuthDependencies{
		StaffRepo:    staffRepo,
		TokenManager: tokens,
		Validator:    validator,
		Logger:       logger,
		BcryptCost:   cfg.Auth.BcryptCost,
	})
	worker.StartNotificationWorker(queue, service.NewNotificationService(queue, sender, logger, metrics, cfg.App.BaseURL))

	if !pg.Enabled() {
		seedDevAdmin(ctx, cfg, staffRepo, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		BodyLimit:             int(cfg.Upload.MaxBytes)*maxFilesPerUpload + 1<<20,
		DisableStartupMessage: cfg.App.IsProduction(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics)
	routes := httptransport.RouteConfig{
		Health:       healthHandler,
		Tickets:      handlers.NewTicketsHandler(ticketService, workflowService, validator),
		StaffTickets: handlers.NewStaffTicketsHandler(ticketService, workflowService, assignmentService, validator),
		Staff: handlers.NewStaffHandler(authService, handlers.SessionCookie{
			Name:   cfg.Auth.CookieName,
			Secure: cfg.App.IsProduction(),
		}),
		Uploads:        handlers.NewUploadsHandler(uploader, cfg.Upload.MaxBytes),
		Pipeline:       httptransport.NewPipeline(limiter, metrics, logger, cfg.App.TrustProxyHeaders),
		AuthMiddleware: auth.NewSessionMiddleware(tokens, staffRepo, cfg.Auth.CookieName),
	}
	if local, ok := backend.(*storage.LocalBackend); ok {
		routes.UploadsDir = local.Dir()
		routes.UploadsPrefix = cfg.Upload.PublicPrefix
	}
	httptransport.RegisterRoutes(app, routes)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	healthHandler.StartDraining()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("pending notifications dropped", zap.Error(err))
	}
}

// buildRepositories picks PostgreSQL when configured and the in-memory
// stores otherwise.
func buildRepositories(pg *persistence.Postgres) (repository.TicketRepository, repository.StaffRepository) {
	if pg.Enabled() {
		pool := pg.PoolHandle()
		return repository.NewTicketRepository(pool), repository.NewStaffRepository(pool)
	}
	return repository.NewMemoryTicketRepository(nil), repository.NewMemoryStaffRepository(nil)
}

// seedDevAdmin provisions the seed admin into the in-memory store, which
// would otherwise start with no way to log in.
func seedDevAdmin(ctx context.Context, cfg *config.Config, staffRepo repository.StaffRepository, logger *zap.Logger) {
	if cfg.Seed.AdminEmail == "" || cfg.Seed.AdminPassword == "" {
		logger.Warn("in-memory store without ADMIN_SEED_EMAIL/ADMIN_SEED_PASSWORD; admin login disabled")
		return
	}
	staff := service.NewStaffService(staffRepo, cfg.Auth.BcryptCost, logger)
	if _, err := staff.EnsureAdmin(ctx, "", cfg.Seed.AdminEmail, cfg.Seed.AdminPassword); err != nil {
		logger.Warn("seed admin rejected", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
