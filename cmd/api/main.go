package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/myralabs/pura-chat-platform/cmd/mainconfig"
	"github.com/myralabs/pura-chat-platform/internal/api/router"
	"github.com/myralabs/pura-chat-platform/internal/booking"
	"github.com/myralabs/pura-chat-platform/internal/chat"
	"github.com/myralabs/pura-chat-platform/internal/completion"
	appconfig "github.com/myralabs/pura-chat-platform/internal/config"
	"github.com/myralabs/pura-chat-platform/internal/conversation"
	"github.com/myralabs/pura-chat-platform/internal/crm"
	"github.com/myralabs/pura-chat-platform/internal/leads"
	"github.com/myralabs/pura-chat-platform/internal/leadsync"
	"github.com/myralabs/pura-chat-platform/internal/notify"
	"github.com/myralabs/pura-chat-platform/internal/observability/metrics"
	"github.com/myralabs/pura-chat-platform/internal/session"
	"github.com/myralabs/pura-chat-platform/internal/webchat"
	"github.com/myralabs/pura-chat-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pura-chat-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	sessions := session.NewStore(redisClient, cfg.SessionTTL)

	// Completion clients
	streamer := completion.NewClient(
		cfg.CompletionBaseURL,
		cfg.CompletionAPIKey,
		cfg.CompletionModel,
		logger,
		completion.WithTimeout(cfg.CompletionTimeout),
	)

	var extractionCompleter completion.Completer = streamer
	if cfg.GeminiAPIKey != "" {
		gemini, err := completion.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("gemini init failed, extraction will use the primary completer", "error", err)
		} else {
			defer func() { _ = gemini.Close() }()
			extractionCompleter = completion.NewFallbackCompleter(streamer, gemini, logger)
		}
	}

	// CRM and booking
	crmClient := crm.NewClient(crm.Config{
		BaseURL:    cfg.CRMBaseURL,
		APIKey:     cfg.CRMAPIKey,
		LocationID: cfg.CRMLocationID,
		CalendarID: cfg.CRMCalendarID,
		WebhookURL: cfg.CRMWebhookURL,
		Timezone:   cfg.CRMTimezone,
	}, logger)

	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	}

	booker := booking.NewService(crmClient, emailSender, cfg.BookingFallbackURL, logger)

	// Lead archive
	var leadsRepo leads.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		leadsRepo = leads.NewPostgresRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, archiving leads in memory")
		leadsRepo = leads.NewInMemoryRepository()
	}

	// Lead-sync pipeline
	var queue leadsync.Queue
	if cfg.UseMemoryQueue || cfg.LeadSyncQueueURL == "" {
		logger.Info("using in-memory lead sync queue")
		queue = leadsync.NewMemoryQueue(0)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		queue = leadsync.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.LeadSyncQueueURL)
	}

	dispatcher := leadsync.NewDispatcher(queue, sessions, logger)
	extractor := leadsync.NewExtractor(extractionCompleter, logger)
	worker := leadsync.NewWorker(queue, extractor, crmClient, leadsRepo, cfg.WorkerCount, logger)
	worker.Start(ctx)

	// Dialogue engine
	chatMetrics := metrics.NewChatMetrics(prometheus.DefaultRegisterer)
	engine := conversation.NewEngine(
		sessions,
		streamer,
		booker,
		dispatcher,
		chat.NewTiming(),
		cfg.SlotWindowDays,
		chatMetrics,
		logger,
	)

	chatHandler := webchat.NewHandler(engine, booker, cfg.SlotWindowDays, logger)
	leadsHandler := leads.NewHandler(leadsRepo, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		LeadsHandler:       leadsHandler,
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	worker.Wait()
	logger.Info("server stopped")
}
