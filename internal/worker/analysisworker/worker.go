// Package analysisworker wires the queue-driven conversation analysis
// pipeline for the standalone worker binary.
package analysisworker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casavoz/call-platform/cmd/mainconfig"
	"github.com/casavoz/call-platform/internal/analysis"
	appconfig "github.com/casavoz/call-platform/internal/config"
	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/internal/followup"
	"github.com/casavoz/call-platform/internal/notify"
	"github.com/casavoz/call-platform/internal/properties"
	"github.com/casavoz/call-platform/pkg/logging"
)

// Run starts the analysis worker and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("analysis worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("analysis worker cannot run when USE_MEMORY_QUEUE=true; run the inline worker via the API process instead")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("analysis worker requires DATABASE_URL")
	}
	if cfg.AnalysisQueueURL == "" {
		return fmt.Errorf("analysis worker requires ANALYSIS_QUEUE_URL")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("worker failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	sqsClient := sqs.NewFromConfig(awsCfg)
	queue := analysis.NewSQSQueue(sqsClient, cfg.AnalysisQueueURL)
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	jobStore := analysis.NewJobStore(dynamoClient, cfg.AnalysisJobsTable, logger)

	llmClient, model, err := buildLLMClient(ctx, cfg, awsCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize analysis LLM backend: %w", err)
	}
	analyzer := analysis.NewAnalyzer(llmClient, model, logger,
		analysis.WithCatalogContext(properties.ContextBlock()))

	convStore := conversations.NewPostgresStore(pool)
	analysisStore := analysis.NewPostgresStore(pool)
	followupStore := followup.NewPostgresStore(pool)

	opts := []analysis.WorkerOption{
		analysis.WithWorkerCount(cfg.WorkerCount),
		analysis.WithReceiveWaitSeconds(cfg.ReceiveWaitSeconds),
		analysis.WithReceiveBatchSize(cfg.ReceiveBatchSize),
		analysis.WithFollowups(followupStore),
	}
	if cfg.HotLeadAlertsEnabled {
		opts = append(opts, analysis.WithHotLeadNotifier(buildNotifier(cfg, awsCfg, logger)))
	}

	worker := analysis.NewWorker(analysisStore, convStore, analyzer, queue, jobStore, logger, opts...)
	worker.Start(ctx)
	logger.Info("analysis worker started",
		"workers", cfg.WorkerCount,
		"queue_url", cfg.AnalysisQueueURL,
		"llm_backend", cfg.AnalysisLLMBackend,
	)

	<-ctx.Done()
	worker.Wait()
	return nil
}

func buildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config) (analysis.LLMClient, string, error) {
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

func buildNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.Service {
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
