package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridecore/internal/app"
	"ridecore/internal/config"
	"ridecore/internal/connectivity"
	"ridecore/internal/domain"
	"ridecore/internal/events"
	"ridecore/internal/handler"
	"ridecore/internal/logger"
	"ridecore/internal/processor"
	internalRedis "ridecore/internal/redis"
	"ridecore/internal/repository/postgres"
	"ridecore/internal/resilience"
	"ridecore/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		logrus.WithError(err).Fatal("failed to open log output")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.WithError(err).Warn("failed to initialize New Relic")
		} else {
			log.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	log.Info("connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info("connected to Redis")

	publisher := newPublisher(cfg.RabbitMQ, log)
	defer publisher.Close()

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	monitor := connectivity.NewMonitor(
		connectivity.InterfaceReachability{},
		connectivity.NewStoreProber(db, redisClient),
		connectivity.Config{MinInterval: cfg.Connectivity.ProbeInterval, ProbeTimeout: cfg.Connectivity.ProbeTimeout},
		log.WithField("component", "connectivity"),
	)
	go monitor.Run(runCtx)

	server, scheduler := wireServer(runCtx, db, redisClient, nrApp, publisher, monitor, cfg, log)
	scheduler.Start()

	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	scheduler.Stop(shutdownCtx)
	stopRun()
	if nrApp != nil {
		nrApp.Shutdown(2 * time.Second)
	}

	log.Info("server exited")
}

// newPublisher connects to RabbitMQ, or returns a publisher that only logs
// when no broker is configured or reachable.
func newPublisher(cfg config.RabbitMQConfig, log *logrus.Logger) events.Publisher {
	if cfg.URL == "" {
		log.Info("RabbitMQ not configured, ride events will only be logged")
		return events.NewFallbackProducer(log)
	}
	producer, err := events.NewEventProducer(cfg.URL, cfg.Exchange, log)
	if err != nil {
		log.WithError(err).Warn("failed to connect to RabbitMQ, ride events will only be logged")
		return events.NewFallbackProducer(log)
	}
	return producer
}

// wireServer wires all dependencies and returns the HTTP server and the
// maintenance scheduler.
func wireServer(
	ctx context.Context,
	db *sql.DB,
	redisClient *redis.Client,
	nrApp *newrelic.Application,
	publisher events.Publisher,
	monitor *connectivity.Monitor,
	cfg *config.Config,
	log *logrus.Logger,
) (*http.Server, *app.Scheduler) {
	executor := resilience.NewExecutor(
		resilience.Policy{
			BaseDelay:      cfg.Retry.BaseDelay,
			Multiplier:     cfg.Retry.Multiplier,
			AttemptTimeout: cfg.Retry.AttemptTimeout,
			MaxRetries:     cfg.Retry.MaxRetries,
		},
		resilience.WithReporter(resilience.NewLogReporter(log)),
		resilience.WithOnlineSignal(monitor),
	)

	// Initialize Redis stores.
	lockStore := internalRedis.NewLockStore(redisClient)
	responseCache := internalRedis.NewResponseCache(redisClient)

	// Initialize repositories.
	driverRepo := postgres.NewDriverRepository(db)
	rideRepo := postgres.NewRideRepository(db)
	walletRepo := postgres.NewWalletRepository(db)
	reconciliationRepo := postgres.NewReconciliationRepository(db)
	verificationRepo := postgres.NewVerificationRepository(db)
	settingsRepo := postgres.NewSettingsRepository(db)
	preferenceRepo := postgres.NewPaymentPreferenceRepository(db)

	// Initialize services.
	notificationService := service.NewNotificationService(publisher, log)
	walletService := service.NewWalletService(walletRepo, executor, log)
	auditService := service.NewAuditService(walletRepo, executor, log)
	settlementService := service.NewSettlementService(
		rideRepo, reconciliationRepo, walletService, lockStore, executor, notificationService,
		service.SettlementConfig{
			CommissionRate:    cfg.Settlement.CommissionRate,
			CancellationShare: cfg.Settlement.CancellationShare,
			LockTTL:           cfg.Settlement.SettlementLockTTL,
			RedriveBatchSize:  cfg.Settlement.RedriveBatchSize,
		},
		log,
	)
	feePolicy := service.FixedCancellationFee{Amount: cfg.Settlement.CancellationFee}
	rideService := service.NewRideService(rideRepo, driverRepo, settlementService, feePolicy, executor, notificationService, log)
	driverService := service.NewDriverService(driverRepo, executor)
	stripeProcessor := processor.NewStripeProcessor(processor.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
		SuccessURL:    cfg.Stripe.SuccessURL,
		CancelURL:     cfg.Stripe.CancelURL,
	})
	paymentService := service.NewPaymentService(preferenceRepo, rideRepo, stripeProcessor, settlementService, executor, log)
	verificationService := service.NewVerificationService(verificationRepo, executor, cfg.Settlement.VerificationTTL, log)
	settingsService := service.NewSettingsService(settingsRepo, executor)

	scheduler := app.NewScheduler(settlementService, auditService, log)
	settings, err := settingsService.GetSchedule(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to load maintenance schedule, using defaults")
		settings = domain.DefaultScheduleSettings()
	}
	if err := scheduler.Apply(settings); err != nil {
		log.WithError(err).Error("failed to install maintenance schedule")
	}
	settingsService.OnChange(func(s domain.ScheduleSettings) {
		if err := scheduler.Apply(s); err != nil {
			log.WithError(err).Error("failed to reschedule maintenance")
		}
	})

	// Initialize handlers.
	router := app.NewRouter(app.RouterDeps{
		RideHandler:         handler.NewRideHandler(rideService),
		DriverHandler:       handler.NewDriverHandler(driverService, rideService),
		WalletHandler:       handler.NewWalletHandler(walletService),
		PaymentHandler:      handler.NewPaymentHandler(paymentService),
		VerificationHandler: handler.NewVerificationHandler(verificationService),
		SettingsHandler:     handler.NewSettingsHandler(settingsService),
		ConnectivityHandler: handler.NewConnectivityHandler(monitor),
		AdminHandler:        handler.NewAdminHandler(walletService, auditService, settlementService, reconciliationRepo),
		ResponseCache:       responseCache,
		NewRelicApp:         nrApp,
		AdminToken:          cfg.Server.AdminToken,
		Log:                 log,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, scheduler
}
