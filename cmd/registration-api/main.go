package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	_ "github.com/noah-isme/madrasah-registration/api/swagger"
	"github.com/noah-isme/madrasah-registration/internal/handler"
	"github.com/noah-isme/madrasah-registration/internal/middleware"
	"github.com/noah-isme/madrasah-registration/internal/repository"
	"github.com/noah-isme/madrasah-registration/internal/service"
	"github.com/noah-isme/madrasah-registration/pkg/cache"
	"github.com/noah-isme/madrasah-registration/pkg/config"
	"github.com/noah-isme/madrasah-registration/pkg/database"
	"github.com/noah-isme/madrasah-registration/pkg/jobs"
	"github.com/noah-isme/madrasah-registration/pkg/lock"
	"github.com/noah-isme/madrasah-registration/pkg/logger"
	"github.com/noah-isme/madrasah-registration/pkg/mailer"
	corsmiddleware "github.com/noah-isme/madrasah-registration/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/madrasah-registration/pkg/middleware/requestid"
	"github.com/noah-isme/madrasah-registration/pkg/payment"
	"github.com/noah-isme/madrasah-registration/pkg/sms"
	"github.com/noah-isme/madrasah-registration/pkg/tracing"
)

// @title Madrasah Registration API
// @version 1.0.0
// @description Registration approval and payment provisioning
// @BasePath /api/v1
// @schemes http https

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, err := tracing.Setup(ctx, cfg.Tracing, cfg.Env)
	if err != nil {
		logr.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(flushCtx); err != nil {
			logr.Warn("failed to flush spans", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	var locker lock.Locker = lock.NewLocalLocker()
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.Approval.LockPrefix, cfg.Approval.LockTTL)
	} else {
		logr.Warn("redis not configured, approval lock is process-local")
	}

	metricsSvc := service.NewMetricsService()

	applications := repository.NewApplicationRepository(db)
	students := repository.NewStudentRepository(db)
	audits := repository.NewAuditRepository(db)

	if cfg.Stripe.SecretKey == "" {
		logr.Warn("STRIPE_SECRET_KEY is empty, payment sessions will fail")
	}
	paymentSvc := service.NewPaymentService(
		payment.NewStripeProvider(cfg.Stripe.SecretKey, logr),
		students,
		service.DiscountPolicyFromConfig(cfg.Pricing),
		service.PaymentConfigFromStripe(cfg.Stripe),
		metricsSvc,
		logr,
	)

	sender, err := newMailSender(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to init email sender", zap.Error(err))
	}
	smsSender, err := newSMSSender(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to init sms sender", zap.Error(err))
	}
	worker, err := service.NewNotificationWorker(sender, smsSender, service.NotificationWorkerConfig{
		SchoolName: cfg.Email.SchoolName,
		Timeout:    cfg.Email.Timeout,
	}, metricsSvc, logr)
	if err != nil {
		logr.Fatal("failed to init notification worker", zap.Error(err))
	}
	notificationQueue := jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		JobTimeout: 2 * cfg.Email.Timeout,
		Logger:     logr,
	})
	if err := metricsSvc.RegisterQueueDepth(notificationQueue.Name(), notificationQueue.Depth); err != nil {
		logr.Warn("failed to register queue depth gauge", zap.Error(err))
	}
	notificationQueue.Start(context.Background())
	defer notificationQueue.Stop()

	approvals := service.NewApprovalService(service.ApprovalDeps{
		Applications: applications,
		Students:     students,
		Provisioner:  service.NewProvisioner(students, metricsSvc, logr),
		Payments:     paymentSvc,
		Notifier:     service.NewNotificationDispatcher(notificationQueue, metricsSvc, logr),
		Audit:        audits,
		Locker:       locker,
		Metrics:      metricsSvc,
		Tracing:      tracerProvider,
		Logger:       logr,
	})
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Tracing(tracerProvider, otel.GetTextMapPropagator(), "/metrics", "/health", "/ready"))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	checks := map[string]handler.ReadinessCheck{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registrationHandler := handler.NewRegistrationHandler(approvals, validator.New())
	api := r.Group(cfg.APIPrefix)
	registrations := api.Group("/registrations")
	registrations.Use(middleware.JWT(tokens))
	{
		registrations.POST("/applications/approve-group", registrationHandler.ApproveGroup)
		registrations.POST("/applications/:id/approve", registrationHandler.Approve)
		registrations.POST("/applications/:id/reject", registrationHandler.Reject)
		registrations.POST("/students/manual-approve", registrationHandler.ManualApproveGroup)
		registrations.POST("/students/:id/manual-approve", registrationHandler.ManualApprove)
		registrations.POST("/students/:id/cancel", registrationHandler.Cancel)
		registrations.POST("/students/:id/resend-payment-link", registrationHandler.ResendPaymentLink)
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
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newMailSender(ctx context.Context, cfg *config.Config, logr *zap.Logger) (mailer.Sender, error) {
	if !cfg.Email.Enabled {
		logr.Info("email disabled, notifications are logged only")
		return mailer.NewLogSender(logr), nil
	}
	return mailer.NewSESSenderFromRegion(ctx, cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.ReplyTo)
}

func newSMSSender(ctx context.Context, cfg *config.Config, logr *zap.Logger) (sms.Sender, error) {
	if !cfg.SMS.Enabled {
		return nil, nil
	}
	sender, err := sms.NewSNSSenderFromRegion(ctx, cfg.SMS.Region, cfg.SMS.SenderID)
	if err != nil {
		return nil, err
	}
	logr.Info("payment link sms enabled")
	return sender, nil
}
