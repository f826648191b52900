package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/verdatum/lca-review-api/api/swagger"
	"github.com/verdatum/lca-review-api/internal/handler"
	"github.com/verdatum/lca-review-api/internal/middleware"
	"github.com/verdatum/lca-review-api/internal/models"
	"github.com/verdatum/lca-review-api/internal/repository"
	"github.com/verdatum/lca-review-api/internal/service"
	"github.com/verdatum/lca-review-api/pkg/cache"
	"github.com/verdatum/lca-review-api/pkg/config"
	"github.com/verdatum/lca-review-api/pkg/database"
	"github.com/verdatum/lca-review-api/pkg/logger"
	corsmiddleware "github.com/verdatum/lca-review-api/pkg/middleware/cors"
	reqidmiddleware "github.com/verdatum/lca-review-api/pkg/middleware/requestid"
	"github.com/verdatum/lca-review-api/pkg/storage"
)

// @title LCA Review API
// @version 1.0.0
// @description Reference integrity and review-state resolution for LCA datasets
// @BasePath /
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}

	docRepo := repository.NewDocumentRepository(db)
	stateRepo := repository.NewReviewStateRepository(db)
	taskRepo := repository.NewReviewTaskRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()

	resolverOpts := []service.ResolverOption{
		service.WithResolverMetrics(metrics),
		service.WithMaxChainDepth(cfg.Resolver.MaxChainDepth),
		service.WithFetchTimeout(cfg.Resolver.FetchTimeout),
	}
	if cfg.Resolver.CacheEnabled {
		resolverOpts = append(resolverOpts, service.WithDocumentCache(cacheRepo, cfg.Resolver.CacheTTL))
	}
	resolverSvc := service.NewResolverService(docRepo, logr, resolverOpts...)

	validationSvc := service.NewValidationService(resolverSvc, docRepo, stateRepo, logr,
		service.WithCheckConcurrency(cfg.Resolver.CheckConcurrency))

	notificationSvc := service.NewNotificationService(cacheRepo, cfg.Notifications, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	reviewSvc := service.NewReviewService(taskRepo, stateRepo, docRepo, userRepo, logr,
		service.WithConsensusPolicy(service.PolicyFromName(cfg.Review.Policy)),
		service.WithTerminalNotifier(notificationSvc),
		service.WithReviewMetrics(metrics))

	datasetSvc := service.NewDatasetService(docRepo, logr)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:            cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		RefreshExpiry:     cfg.JWT.RefreshExpiration,
	})

	var exportSvc *service.ExportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("report storage init failed", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc = service.NewExportService(taskRepo, store, signer, logr, true)
		go reportCleanupLoop(ctx, exportSvc, cfg.Reports)
	} else {
		exportSvc = service.NewExportService(taskRepo, nil, nil, logr, false)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	reviewHandler := handler.NewReviewHandler(reviewSvc)
	validationHandler := handler.NewValidationHandler(validationSvc, resolverSvc)
	datasetHandler := handler.NewDatasetHandler(datasetSvc)
	reportHandler := handler.NewReportHandler(exportSvc)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/me", middleware.JWT(authSvc), authHandler.Me)

	api.POST("/references/check", middleware.OptionalJWT(authSvc), validationHandler.CheckReferences)
	api.GET("/flows/:id/reference-unit", middleware.OptionalJWT(authSvc), validationHandler.ResolveUnit)

	datasets := api.Group("/datasets", middleware.JWT(authSvc))
	datasets.GET("/:id/versions", datasetHandler.ListVersions)
	datasets.GET("/:id/review-state", reviewHandler.ReviewState)
	datasets.POST("/:id/revisions",
		middleware.RequireRoles(models.RoleModeler, models.RoleAdmin), datasetHandler.CreateRevision)
	datasets.POST("/:id/versions/:version/submit",
		middleware.RequireRoles(models.RoleModeler, models.RoleAdmin), reviewHandler.Submit)

	tasks := api.Group("/review-tasks", middleware.JWT(authSvc))
	tasks.GET("", reviewHandler.ListTasks)
	tasks.GET("/:id", reviewHandler.GetTask)
	tasks.POST("/:id/decisions",
		middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin), reviewHandler.RecordDecision)
	tasks.POST("/:id/report", reportHandler.ExportTaskReport)

	api.GET("/reports/download", reportHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func reportCleanupLoop(ctx context.Context, exports *service.ExportService, cfg config.ReportsConfig) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exports.CleanupExpired(cfg.SignedURLTTL)
		}
	}
}
