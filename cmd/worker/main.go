package main

import (
	"context"
	"errors"
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
	"golang.org/x/sync/errgroup"

	"github.com/Raymond9734/drip-campaign-engine/internal/config"
	"github.com/Raymond9734/drip-campaign-engine/internal/db"
	"github.com/Raymond9734/drip-campaign-engine/internal/metrics"
	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/notify"
	"github.com/Raymond9734/drip-campaign-engine/internal/queue"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
	"github.com/Raymond9734/drip-campaign-engine/internal/scheduler"
	"github.com/Raymond9734/drip-campaign-engine/internal/service"
	"github.com/Raymond9734/drip-campaign-engine/internal/transport"
	"github.com/Raymond9734/drip-campaign-engine/internal/worker"
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

	logger.Info("starting drip campaign worker")

	// Connect to database
	database, err := db.New(cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.Close()

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

	// Initialize services
	outbound, err := newTransport(cfg, logger)
	if err != nil {
		logger.Error("failed to configure transport", slog.String("error", err.Error()))
		os.Exit(1)
	}

	templateSvc := service.NewTemplateService(customerRepo, service.StoreIdentity{
		Name:  cfg.Store.Name,
		Phone: cfg.Store.Phone,
	})
	segmentSvc := service.NewSegmentService(customerRepo, logger)
	dispatchSvc := service.NewDispatchService(messageRepo, campaignRepo, outbound, cfg.Transport.Timeout, m, logger)

	sinks := notify.Multi{notify.NewLogSink(logger)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Timeout))
	}

	engine := service.NewCampaignEngine(
		campaignRepo,
		customerRepo,
		recipientRepo,
		runRepo,
		segmentSvc,
		templateSvc,
		dispatchSvc,
		queue.NewRedisLocker(redisClient, cfg.Queue.LockPrefix),
		sinks,
		m,
		logger,
		service.EngineConfig{LockTTL: cfg.Queue.LockTTL, NotifyTimeout: cfg.Notify.Timeout},
	)
	processor := worker.NewPassProcessor(engine, logger)

	sched, err := scheduler.New(cfg.Worker.Schedule, queueClient, logger)
	if err != nil {
		logger.Error("failed to configure scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting campaign job consumer", slog.Int("concurrency", cfg.Worker.Concurrency))
		err := queueClient.Consume(gctx, processor.Process, cfg.Worker.Concurrency)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		sched.Start()
		logger.Info("next scheduled pass", slog.Time("at", sched.Next()))
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	g.Go(func() error {
		logger.Info("metrics listening", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if cfg.Worker.RunOnStart {
		job := &models.CampaignJob{Trigger: models.TriggerManual, RequestedAt: time.Now()}
		if err := queueClient.Publish(ctx, job); err != nil {
			logger.Error("failed to enqueue startup pass", slog.String("error", err.Error()))
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("worker stopped gracefully")
}

// newTransport builds the per-channel transports selected by config and
// rate limits the combined router
func newTransport(cfg *config.Config, logger *slog.Logger) (transport.Transport, error) {
	tc := cfg.Transport

	var sms transport.Transport
	switch tc.SMSDriver {
	case config.DriverTwilio:
		sms = transport.NewTwilioTransport(transport.TwilioConfig{
			AccountSID:    tc.TwilioAccountSID,
			AuthToken:     tc.TwilioAuthToken,
			FromNumber:    tc.TwilioFromNumber,
			DefaultRegion: cfg.Store.DefaultRegion,
		}, logger)
	case config.DriverSimulated:
		sms = transport.NewSimulatedTransport(tc.SimulatedSuccessRate)
	case config.DriverLog:
		sms = transport.NewLogTransport(logger)
	default:
		return nil, fmt.Errorf("unknown SMS driver %q", tc.SMSDriver)
	}

	var email transport.Transport
	switch tc.EmailDriver {
	case config.DriverSendGrid:
		email = transport.NewSendGridTransport(transport.SendGridConfig{
			APIKey:    tc.SendGridAPIKey,
			FromEmail: tc.SendGridFromEmail,
			FromName:  tc.SendGridFromName,
		}, logger)
	case config.DriverSimulated:
		email = transport.NewSimulatedTransport(tc.SimulatedSuccessRate)
	case config.DriverLog:
		email = transport.NewLogTransport(logger)
	default:
		return nil, fmt.Errorf("unknown email driver %q", tc.EmailDriver)
	}

	router := transport.NewRouter(map[models.Channel]transport.Transport{
		models.ChannelSMS:   sms,
		models.ChannelEmail: email,
	})

	if tc.RateLimit <= 0 {
		return router, nil
	}
	return transport.Throttle(router, tc.RateLimit, tc.RateBurst), nil
}
