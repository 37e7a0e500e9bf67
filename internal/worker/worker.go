// Package worker performs asynchronous detection for batches submitted on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/service"
)

// BatchDetector scores a submitted batch. *service.Service implements it.
type BatchDetector interface {
	Detect(ctx context.Context, batchID string, txs []domain.Transaction) (*service.DetectionResult, error)
}

// Worker consumes harrier.batch.submitted and runs detection for each batch.
// Completion events are published by the detector.
type Worker struct {
	bus      domain.EventBus
	detector BatchDetector
	logger   *slog.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, detector BatchDetector, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		detector: detector,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to batch submissions.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicBatchSubmitted, w.handleBatch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicBatchSubmitted, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	w.logger.Info("worker started", "topic", domain.TopicBatchSubmitted)
	return nil
}

func (w *Worker) handleBatch(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.BatchSubmittedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		w.failed.Add(1)
		w.logger.Error("failed to parse batch message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	w.logger.Debug("processing batch",
		"batch_id", event.BatchID,
		"transactions", len(event.Transactions),
	)

	res, err := w.detector.Detect(ctx, event.BatchID, event.Transactions)
	if err != nil {
		w.failed.Add(1)
		w.logger.Error("batch detection failed",
			"batch_id", event.BatchID,
			"error", err,
		)
		return err
	}

	w.processed.Add(1)
	w.logger.Info("batch processed",
		"batch_id", event.BatchID,
		"detection_run_id", res.Run.ID,
		"suspicious_count", res.Run.Summary.SuspiciousCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop cancels the worker context and unsubscribes.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscription_count"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
