// Package followupworker wires the follow-up script delivery sweeper for
// the standalone worker binary.
package followupworker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casavoz/call-platform/cmd/mainconfig"
	appconfig "github.com/casavoz/call-platform/internal/config"
	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/internal/followup"
	"github.com/casavoz/call-platform/internal/notify"
	"github.com/casavoz/call-platform/pkg/logging"
)

// Run starts the follow-up sweeper and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("follow-up worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("follow-up worker requires DATABASE_URL")
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
	notifier := notify.NewService(sender, recipients, logger)

	convStore := conversations.NewPostgresStore(pool)
	followupStore := followup.NewPostgresStore(pool)

	sweeper := followup.NewSweeper(followupStore, convStore, notifier, logger).
		WithInterval(cfg.FollowupInterval).
		WithBatchSize(cfg.FollowupBatchSize)

	logger.Info("follow-up sweeper started",
		"interval", cfg.FollowupInterval,
		"batch_size", cfg.FollowupBatchSize,
	)

	sweeper.Run(ctx)
	return nil
}
