package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/casavoz/call-platform/cmd/mainconfig"
	"github.com/casavoz/call-platform/internal/analysis"
	"github.com/casavoz/call-platform/internal/api/router"
	appconfig "github.com/casavoz/call-platform/internal/config"
	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/internal/followup"
	"github.com/casavoz/call-platform/internal/livecall"
	"github.com/casavoz/call-platform/internal/notify"
	"github.com/casavoz/call-platform/internal/observability/metrics"
	"github.com/casavoz/call-platform/internal/properties"
	"github.com/casavoz/call-platform/internal/recordings"
	"github.com/casavoz/call-platform/internal/reporting"
	"github.com/casavoz/call-platform/internal/stream"
	"github.com/casavoz/call-platform/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting casavoz call platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres (optional; in-memory stores when not configured)
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	var sqlDB *sql.DB
	if pool != nil {
		defer pool.Close()
		// The admin dashboard reads over database/sql, sharing the pgx pool.
		sqlDB = stdlib.OpenDBFromPool(pool)
		defer sqlDB.Close()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	var (
		convStore        conversations.Store
		analysisStore    analysis.Store
		followupStore    followup.Store
		reportingHandler *reporting.Handler
	)
	if pool != nil {
		convStore = conversations.NewPostgresStore(pool)
		analysisStore = analysis.NewPostgresStore(pool)
		followupStore = followup.NewPostgresStore(pool)
		reportingHandler = reporting.NewHandler(reporting.NewPostgresStore(pool), logger)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		memConvs := conversations.NewInMemoryStore()
		convStore = memConvs
		analysisStore = analysis.NewInMemoryStore(memConvs)
		followupStore = followup.NewInMemoryStore(memConvs)
	}

	liveStore := connectLiveStore(ctx, cfg, logger)

	// Metrics
	callMetrics := metrics.NewCallMetrics(nil)
	analysisMetrics := metrics.NewAnalysisMetrics(nil)

	// Analysis job tracking and queueing
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	jobStore := analysis.NewJobStore(dynamoClient, cfg.AnalysisJobsTable, logger)

	var (
		publisher   *analysis.Publisher
		memoryQueue *analysis.MemoryQueue
	)
	if cfg.UseMemoryQueue {
		memoryQueue = analysis.NewMemoryQueue(64)
		publisher = analysis.NewPublisher(memoryQueue, logger)
	} else {
		sqsClient := sqs.NewFromConfig(awsCfg)
		publisher = analysis.NewPublisher(analysis.NewSQSQueue(sqsClient, cfg.AnalysisQueueURL), logger)
	}
	publisher = publisher.WithMetrics(analysisMetrics)

	// Recording storage
	var recStore *recordings.Store
	var recordingsHandler *recordings.Handler
	if cfg.RecordingsEnabled && cfg.RecordingsBucket != "" {
		recStore = recordings.NewStore(s3.NewFromConfig(awsCfg), cfg.RecordingsBucket, logger)
		recordingsHandler = recordings.NewHandler(recStore, convStore, logger)
	}

	notifySvc := setupNotifications(cfg, awsCfg, logger)

	// Initialize handlers
	conversationsHandler := conversations.NewHandler(convStore, logger)
	analysisHandler := analysis.NewHandler(analysisStore, convStore, jobStore, publisher, logger)
	propertiesHandler := properties.NewHandler(logger)
	streamHandler := stream.NewHandler(convStore, liveStore, jobStore, publisher, recStore, logger).
		WithMetrics(callMetrics)

	// The inline worker drains the memory queue in single-process setups.
	// With SQS the analysis-worker binary consumes jobs instead.
	inlineWorker := setupInlineWorker(ctx, cfg, awsCfg, analysisStore, convStore, followupStore,
		memoryQueue, jobStore, notifySvc, analysisMetrics, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:               logger,
		ConversationsHandler: conversationsHandler,
		AnalysisHandler:      analysisHandler,
		ReportingHandler:     reportingHandler,
		PropertiesHandler:    propertiesHandler,
		StreamHandler:        streamHandler,
		RecordingsHandler:    recordingsHandler,
		AdminAuthSecret:      cfg.AdminJWTSecret,
		MetricsHandler:       promhttp.Handler(),
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		DB:                   sqlDB,
		LiveStore:            liveStore,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	cancel()
	if inlineWorker != nil {
		waitForInlineWorker(inlineWorker, logger)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// connectPostgresPool opens a pgx pool, or returns nil when no URL is set.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Warn("postgres ping failed at startup", "error", err)
	}
	return pool
}

// connectLiveStore wires Redis-backed live call state. Returns nil when Redis
// is unreachable so the rest of the platform keeps running without it.
func connectLiveStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *livecall.Store {
	if cfg.RedisAddr == "" {
		return nil
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, live call state disabled", "error", err, "addr", cfg.RedisAddr)
		_ = client.Close()
		return nil
	}

	return livecall.NewStore(client).WithTTL(cfg.LiveCallTTL)
}

// setupNotifications builds the sales notification service from the
// configured email provider. Without credentials it degrades to a no-op.
func setupNotifications(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.Service {
	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			sender = s
		}
	case "stub":
		sender = notify.NewStubEmailSender(logger)
	default:
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); s != nil {
			sender = s
		}
	}

	var recipients []string
	if cfg.SalesInboxEmail != "" {
		recipients = []string{cfg.SalesInboxEmail}
	}
	return notify.NewService(sender, recipients, logger)
}

// setupLLMClient picks the completion backend for the analyzer.
func setupLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config) (analysis.LLMClient, string, error) {
	switch cfg.AnalysisLLMBackend {
	case "bedrock":
		return analysis.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg)), cfg.BedrockModelID, nil
	case "gemini":
		client, err := analysis.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.GeminiModelID, nil
	default:
		client, err := analysis.NewGroqLLMClient(cfg.GroqAPIKey, cfg.GroqBaseURL)
		if err != nil {
			return nil, "", err
		}
		return client, cfg.GroqModel, nil
	}
}

// setupInlineWorker starts an in-process analysis worker when the memory
// queue is enabled. Returns nil otherwise.
func setupInlineWorker(
	ctx context.Context,
	cfg *appconfig.Config,
	awsCfg aws.Config,
	analysisStore analysis.Store,
	convStore conversations.Store,
	followupStore followup.Store,
	memoryQueue *analysis.MemoryQueue,
	jobStore analysis.JobUpdater,
	notifySvc *notify.Service,
	analysisMetrics *metrics.AnalysisMetrics,
	logger *logging.Logger,
) *analysis.Worker {
	if memoryQueue == nil {
		return nil
	}

	llmClient, model, err := setupLLMClient(ctx, cfg, awsCfg)
	if err != nil {
		logger.Warn("analysis LLM backend unavailable, inline worker disabled", "error", err)
		return nil
	}

	analyzer := analysis.NewAnalyzer(llmClient, model, logger,
		analysis.WithCatalogContext(properties.ContextBlock()))

	opts := []analysis.WorkerOption{
		analysis.WithWorkerCount(cfg.WorkerCount),
		analysis.WithReceiveWaitSeconds(cfg.ReceiveWaitSeconds),
		analysis.WithReceiveBatchSize(cfg.ReceiveBatchSize),
		analysis.WithFollowups(followupStore),
		analysis.WithWorkerMetrics(analysisMetrics),
	}
	if cfg.HotLeadAlertsEnabled {
		opts = append(opts, analysis.WithHotLeadNotifier(notifySvc))
	}

	worker := analysis.NewWorker(analysisStore, convStore, analyzer, memoryQueue, jobStore, logger, opts...)
	worker.Start(ctx)
	logger.Info("inline analysis worker started", "workers", cfg.WorkerCount)
	return worker
}

func waitForInlineWorker(worker *analysis.Worker, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("inline analysis worker stopped")
	case <-time.After(10 * time.Second):
		logger.Error("inline analysis worker shutdown timed out")
	}
}
