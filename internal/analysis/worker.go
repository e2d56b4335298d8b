package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/casavoz/call-platform/internal/conversations"
	"github.com/casavoz/call-platform/internal/followup"
	"github.com/casavoz/call-platform/internal/notify"
	"github.com/casavoz/call-platform/internal/observability/metrics"
	"github.com/casavoz/call-platform/pkg/logging"
)

// ScriptCreator stores generated follow-up scripts for hot leads.
type ScriptCreator interface {
	Create(ctx context.Context, conversationID int64, content string) (*followup.Script, error)
}

// HotLeadNotifier alerts the sales team about conversations graded caliente.
type HotLeadNotifier interface {
	NotifyHotLead(ctx context.Context, alert notify.HotLeadAlert) error
}

// jobQueue is the consuming side of the job queue. Both MemoryQueue and
// SQSQueue satisfy it.
type jobQueue interface {
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Worker consumes analysis jobs from the queue and grades conversations.
type Worker struct {
	store     Store
	convs     conversations.Store
	analyzer  *Analyzer
	queue     jobQueue
	jobs      JobUpdater
	followups ScriptCreator
	notifier  HotLeadNotifier
	metrics   *metrics.AnalysisMetrics
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	followups        ScriptCreator
	notifier         HotLeadNotifier
	metrics          *metrics.AnalysisMetrics
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithFollowups wires a script store so hot leads get a follow-up script.
func WithFollowups(creator ScriptCreator) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.followups = creator
	}
}

// WithHotLeadNotifier wires a notifier to alert sales on hot leads.
func WithHotLeadNotifier(notifier HotLeadNotifier) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.notifier = notifier
	}
}

// WithWorkerMetrics wires analysis pipeline metrics.
func WithWorkerMetrics(m *metrics.AnalysisMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// NewWorker constructs a queue consumer that runs the analysis pipeline.
func NewWorker(store Store, convs conversations.Store, analyzer *Analyzer, queue jobQueue, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if store == nil {
		panic("analysis: store cannot be nil")
	}
	if convs == nil {
		panic("analysis: conversation store cannot be nil")
	}
	if analyzer == nil {
		panic("analysis: analyzer cannot be nil")
	}
	if queue == nil {
		panic("analysis: queue cannot be nil")
	}
	if jobs == nil {
		panic("analysis: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		store:     store,
		convs:     convs,
		analyzer:  analyzer,
		queue:     queue,
		jobs:      jobs,
		followups: cfg.followups,
		notifier:  cfg.notifier,
		metrics:   cfg.metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("analysis worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("analysis worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive analysis jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	payload, err := decodePayload(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode analysis job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	ctx, span := analyzerTracer.Start(ctx, "analysis.job")
	span.SetAttributes(
		attribute.String("job_id", payload.ID),
		attribute.Int64("conversation_id", payload.ConversationID),
	)
	defer span.End()

	w.logger.Info("worker processing analysis job",
		"job_id", payload.ID,
		"conversation_id", payload.ConversationID,
		"call_sid", payload.CallSID,
	)

	start := time.Now()
	record, err := w.process(ctx, payload)
	if err != nil {
		span.RecordError(err)
		w.metrics.ObserveJobProcessed("failed", time.Since(start).Seconds())
		w.logger.Error("analysis job failed", "error", err, "job_id", payload.ID, "conversation_id", payload.ConversationID)
		if payload.TrackStatus {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}
	w.metrics.ObserveJobProcessed("completed", time.Since(start).Seconds())

	w.logger.Info("analysis job completed",
		"job_id", payload.ID,
		"conversation_id", payload.ConversationID,
		"grade", record.CalificacionLead,
		"interest", record.NivelInteres,
	)
	if payload.TrackStatus {
		if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, record.CalificacionLead); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
		}
	}

	if record.IsHot() {
		w.metrics.ObserveHotLead()
		w.handleHotLead(ctx, record)
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) process(ctx context.Context, payload jobPayload) (*Record, error) {
	conv, err := w.convs.GetByID(ctx, payload.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("analysis: load conversation: %w", err)
	}

	messages, err := w.convs.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("analysis: load messages: %w", err)
	}

	req, err := w.analyzer.Analyze(ctx, conv, messages)
	if err != nil {
		return nil, err
	}

	record, err := w.store.Upsert(ctx, conv.ID, req)
	if err != nil {
		return nil, fmt.Errorf("analysis: store result: %w", err)
	}
	return record, nil
}

// handleHotLead generates and stores a follow-up script and alerts sales.
// Both are best-effort: the analysis itself is already persisted.
func (w *Worker) handleHotLead(ctx context.Context, record *Record) {
	conv, err := w.convs.GetByID(ctx, record.ConversationID)
	if err != nil {
		w.logger.Warn("hot lead: failed to reload conversation", "error", err, "conversation_id", record.ConversationID)
		return
	}

	var script string
	if w.followups != nil {
		script, err = w.analyzer.GenerateFollowupScript(ctx, conv, record)
		if err != nil {
			w.logger.Warn("hot lead: failed to generate follow-up script", "error", err, "call_sid", conv.CallSID)
		} else if _, err := w.followups.Create(ctx, conv.ID, script); err != nil {
			w.logger.Warn("hot lead: failed to store follow-up script", "error", err, "call_sid", conv.CallSID)
		} else {
			w.logger.Info("follow-up script stored", "call_sid", conv.CallSID, "conversation_id", conv.ID)
		}
	}

	if w.notifier != nil {
		alert := notify.HotLeadAlert{
			ConversationID: conv.ID,
			CallSID:        conv.CallSID,
			PhoneNumber:    conv.PhoneNumber,
			Resumen:        record.Resumen,
			InteresCliente: record.InteresCliente,
			NivelInteres:   record.NivelInteres,
			ProximosPasos:  record.ProximosPasos,
		}
		if err := w.notifier.NotifyHotLead(ctx, alert); err != nil {
			w.logger.Warn("hot lead: failed to send alert", "error", err, "call_sid", conv.CallSID)
		}
	}
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete analysis job", "error", err)
	}
}
