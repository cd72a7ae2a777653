package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Raymond9734/drip-campaign-engine/internal/config"
	"github.com/Raymond9734/drip-campaign-engine/internal/db"
	"github.com/Raymond9734/drip-campaign-engine/internal/handler"
	"github.com/Raymond9734/drip-campaign-engine/internal/metrics"
	"github.com/Raymond9734/drip-campaign-engine/internal/notify"
	"github.com/Raymond9734/drip-campaign-engine/internal/queue"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
	"github.com/Raymond9734/drip-campaign-engine/internal/service"
	"github.com/Raymond9734/drip-campaign-engine/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	logger.Info("starting drip campaign API server")

	// Connect to database
	database, err := db.New(cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(context.Background()); err != nil {
			logger.Error("failed to migrate database", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("connected to database")

	// Connect to Redis queue
	redisClient, err := queue.Connect(cfg.Queue.RedisURL)
	if err != nil {
		logger.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	queueClient := queue.NewRedisClient(redisClient, cfg.Queue.QueueName, logger)
	defer queueClient.Close()

	logger.Info("connected to Redis queue")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize repositories
	campaignRepo := repository.NewCampaignRepository(database.DB)
	customerRepo := repository.NewCustomerRepository(database.DB)
	recipientRepo := repository.NewRecipientRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	runRepo := repository.NewRunRepository(database.DB)

	// Initialize services. The API never runs passes itself; the engine
	// is wired for lifecycle and manual enrollment operations.
	templateSvc := service.NewTemplateService(customerRepo, service.StoreIdentity{
		Name:  cfg.Store.Name,
		Phone: cfg.Store.Phone,
	})
	segmentSvc := service.NewSegmentService(customerRepo, logger)
	dispatchSvc := service.NewDispatchService(messageRepo, campaignRepo, transport.NewLogTransport(logger), cfg.Transport.Timeout, m, logger)
	optOutSvc := service.NewOptOutService(customerRepo, cfg.Store.DefaultRegion, m, logger)
	customerSvc := service.NewCustomerService(customerRepo, recipientRepo, logger)

	campaignSvc := service.NewCampaignService(
		campaignRepo,
		customerRepo,
		messageRepo,
		runRepo,
		templateSvc,
		segmentSvc,
		queueClient,
		logger,
	)

	engine := service.NewCampaignEngine(
		campaignRepo,
		customerRepo,
		recipientRepo,
		runRepo,
		segmentSvc,
		templateSvc,
		dispatchSvc,
		queue.NewRedisLocker(redisClient, cfg.Queue.LockPrefix),
		notify.NewLogSink(logger),
		m,
		logger,
		service.EngineConfig{LockTTL: cfg.Queue.LockTTL, NotifyTimeout: cfg.Notify.Timeout},
	)

	// Twilio signs its webhooks only when it is the SMS provider
	var twilioAuthToken string
	if cfg.Transport.SMSDriver == config.DriverTwilio {
		twilioAuthToken = cfg.Transport.TwilioAuthToken
	}

	// Setup router
	router := handler.NewRouter(handler.Routes{
		Campaigns:      handler.NewCampaignHandler(campaignSvc, engine, logger),
		Segments:       handler.NewSegmentHandler(segmentSvc, logger),
		Customers:      handler.NewCustomerHandler(customerSvc, optOutSvc, logger),
		Webhooks:       handler.NewWebhookHandler(optOutSvc, dispatchSvc, logger),
		Health:         handler.NewHealthHandler(database, queueClient, logger),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		RequestTimeout: cfg.API.RequestTimeout,
		Logger:         logger,

		TwilioAuthToken:      twilioAuthToken,
		TwilioWebhookBaseURL: cfg.Transport.TwilioWebhookBaseURL,
	})

	// Create server
	addr := fmt.Sprintf(":%d", cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + cfg.API.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", slog.String("addr", addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)

	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server shutdown failed", slog.String("error", err.Error()))
			os.Exit(1)
		}

		logger.Info("server stopped gracefully")
	}
}
