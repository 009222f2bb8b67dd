package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/agency-backoffice-api/api/swagger"
	"github.com/noah-isme/agency-backoffice-api/internal/handler"
	"github.com/noah-isme/agency-backoffice-api/internal/middleware"
	"github.com/noah-isme/agency-backoffice-api/internal/repository"
	"github.com/noah-isme/agency-backoffice-api/internal/service"
	"github.com/noah-isme/agency-backoffice-api/pkg/cache"
	"github.com/noah-isme/agency-backoffice-api/pkg/config"
	"github.com/noah-isme/agency-backoffice-api/pkg/database"
	"github.com/noah-isme/agency-backoffice-api/pkg/jobs"
	"github.com/noah-isme/agency-backoffice-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/agency-backoffice-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/agency-backoffice-api/pkg/middleware/requestid"
	"github.com/noah-isme/agency-backoffice-api/pkg/scheduler"
	"github.com/noah-isme/agency-backoffice-api/pkg/storage"
)

// @title Agency Back-Office API
// @version 1.0.0
// @description Recruitment agency back-office: application lifecycle, documents, settlements and finance.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	guard := service.NewAccessGuard(cfg.Access.RoleCapabilities)

	readiness := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, "agency", logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
			readiness["redis"] = repo.Ping
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.DashboardTTL, logr, cacheRepo != nil)

	applicationRepo := repository.NewApplicationRepository(db)
	checklistRepo := repository.NewChecklistRepository(db)
	requirementRepo := repository.NewRequirementRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	costRepo := repository.NewCostRepository(db)
	feeTemplateRepo := repository.NewFeeTemplateRepository(db)
	settlementRepo := repository.NewSettlementRepository(db)
	settingsRepo := repository.NewTenantSettingsRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	reportRepo := repository.NewReportRepository(db)
	userRepo := repository.NewUserRepository(db)

	resolver := service.NewDocumentResolver(requirementRepo, cacheSvc, cfg.Cache.RequirementsTTL, logr)
	settingsSvc := service.NewSettingsService(settingsRepo, guard, cfg.Cancellation, userRepo, logr)
	applicationSvc := service.NewApplicationService(service.ApplicationDeps{
		Repo:         applicationRepo,
		Requirements: requirementRepo,
		Checklist:    checklistRepo,
		Templates:    feeTemplateRepo,
		Policies:     settingsSvc,
		Resolver:     resolver,
		Guard:        guard,
		Cache:        cacheSvc,
		Metrics:      metricsSvc,
		Audit:        userRepo,
		Validator:    validate,
		Logger:       logr,
	})
	checklistSvc := service.NewChecklistService(applicationRepo, checklistRepo, resolver, guard, userRepo, validate, logr)
	requirementSvc := service.NewRequirementService(requirementRepo, resolver, guard, validate, logr)
	financeSvc := service.NewFinanceService(applicationRepo, paymentRepo, costRepo, guard, cacheSvc, userRepo, validate, logr)
	feeTemplateSvc := service.NewFeeTemplateService(feeTemplateRepo, guard, userRepo, validate, logr)
	settlementSvc := service.NewSettlementService(applicationRepo, settlementRepo, settingsSvc, guard, cacheSvc, metricsSvc, userRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(dashboardRepo, guard, cacheSvc, service.DashboardServiceConfig{CacheTTL: cfg.Cache.DashboardTTL}, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	var reportHandler *handler.ReportHandler
	var sched *scheduler.Scheduler
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare report storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exporter := service.NewExportService(paymentRepo, costRepo, settlementRepo, files, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr)
		worker := service.NewReportWorker(reportRepo, exporter, metricsSvc, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			RetryDelay: 2 * time.Second,
			OnDead:     worker.OnDead,
			Logger:     logr,
		})
		reportQueue.Start(ctx)

		reportSvc := service.NewReportService(reportRepo, reportQueue, exporter, guard, metricsSvc, validate, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupSchedule: cfg.Reports.CleanupSchedule,
		})
		reportSvc.RecoverPendingJobs(ctx)

		sched = scheduler.New(logr)
		if err := sched.Register(ctx, reportSvc.CleanupTask()); err != nil {
			logr.Fatal("failed to register report cleanup", zap.Error(err))
		}
		sched.Start()
		reportHandler = handler.NewReportHandler(reportSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics"))
	r.Use(middleware.WithResponseMeta())

	registerRoutes(r, routeDeps{
		prefix:       cfg.APIPrefix,
		guard:        guard,
		tokens:       authSvc,
		audit:        userRepo,
		logger:       logr,
		auth:         handler.NewAuthHandler(authSvc),
		applications: handler.NewApplicationHandler(applicationSvc),
		documents:    handler.NewDocumentHandler(checklistSvc, requirementSvc),
		finance:      handler.NewFinanceHandler(financeSvc),
		feeTemplates: handler.NewFeeTemplateHandler(feeTemplateSvc),
		settings:     handler.NewSettingsHandler(settingsSvc),
		settlements:  handler.NewSettlementHandler(settlementSvc),
		dashboard:    handler.NewDashboardHandler(dashboardSvc),
		reports:      reportHandler,
		metrics:      handler.NewMetricsHandler(metricsSvc, readiness),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
}
