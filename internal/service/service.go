// Package service orchestrates training, detection, analysis and graph building
// over a versioned snapshot of the scorer and the loaded transactions.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/alert"
	"github.com/opensource-finance/harrier/internal/anomaly"
	"github.com/opensource-finance/harrier/internal/dataset"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/explain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/scoring"
)

var tracer = otel.Tracer("harrier-service")

// Dependencies are the optional collaborators of the service.
// Nil repository, cache or bus disable persistence, caching and events.
type Dependencies struct {
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Alerts     alert.Producer
	Logger     *slog.Logger
}

// Service is safe for concurrent use. Readers load the current snapshot once
// and never observe a half-updated scorer or dataset.
type Service struct {
	cfg      *domain.Config
	engine   *rules.Engine
	combiner *scoring.Combiner
	builder  *graph.Builder

	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	alerts alert.Producer
	logger *slog.Logger

	// mu serializes writers.
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]
}

// New creates a service with an empty snapshot.
func New(cfg *domain.Config, engine *rules.Engine, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alerts := deps.Alerts
	if alerts == nil {
		alerts = alert.NewNoOpProducer(logger)
	}

	s := &Service{
		cfg:      cfg,
		engine:   engine,
		combiner: scoring.NewCombiner(),
		builder:  graph.NewBuilder(cfg.Graph.EdgeScoring, logger),
		repo:     deps.Repository,
		cache:    deps.Cache,
		bus:      deps.Bus,
		alerts:   alerts,
		logger:   logger,
	}
	s.snapshot.Store(&Snapshot{ID: uuid.New().String(), UpdatedAt: time.Now().UTC()})
	return s
}

// Snapshot returns the current snapshot.
func (s *Service) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Ready reports whether a scorer has been trained.
func (s *Service) Ready() bool {
	return s.snapshot.Load().Trained()
}

// Rules returns the loaded rule definitions in evaluation order.
func (s *Service) Rules() []*domain.RuleConfig {
	return s.engine.GetLoadedRules()
}

// TrainResult describes a completed training.
type TrainResult struct {
	TrainingRunID   string `json:"training_run_id"`
	Version         uint64 `json:"version"`
	TrainingSamples int    `json:"training_samples"`
	FeaturesUsed    int    `json:"features_used"`
	Scorer          string `json:"scorer"`
}

// Train fits a new scorer on txs, scores the training set and swaps the snapshot.
// The previous snapshot stays active if any step fails.
func (s *Service) Train(ctx context.Context, txs []domain.Transaction) (*TrainResult, error) {
	ctx, span := tracer.Start(ctx, "service.Train", trace.WithAttributes(
		attribute.Int("transactions", len(txs)),
	))
	defer span.End()

	if len(txs) == 0 {
		return nil, domain.NewValidationError("no transactions to train on")
	}

	start := time.Now()

	scorer, err := anomaly.New(s.cfg.Anomaly)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("create scorer: %w", err))
	}
	if err := scorer.Fit(ctx, features.Build(txs)); err != nil {
		return nil, recordErr(span, fmt.Errorf("fit scorer: %w", err))
	}

	detector := s.newDetector(scorer)
	rows, err := detector.Detect(ctx, txs)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("score training set: %w", err))
	}
	data, err := graph.NewDataset(txs, scoring.FraudScores(rows))
	if err != nil {
		return nil, recordErr(span, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.snapshot.Load().Version + 1
	run := &domain.TrainingRun{
		ID:              uuid.New().String(),
		Version:         version,
		TrainingSamples: len(txs),
		FeaturesUsed:    features.Count,
		Scorer:          scorer.Name(),
		DurationMs:      time.Since(start).Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}
	if s.repo != nil {
		if err := s.repo.SaveTrainingRun(ctx, run); err != nil {
			return nil, recordErr(span, err)
		}
	}

	s.snapshot.Store(&Snapshot{
		ID:              uuid.New().String(),
		Version:         version,
		Scorer:          scorer,
		Detector:        detector,
		Data:            data,
		Source:          "training",
		TrainingSamples: len(txs),
		UpdatedAt:       run.CreatedAt,
	})

	s.logger.Info("model trained",
		"version", version,
		"training_samples", len(txs),
		"scorer", run.Scorer,
		"duration_ms", run.DurationMs,
	)
	s.publish(ctx, domain.TopicModelTrained, run)

	span.SetAttributes(attribute.Int64("version", int64(version)))
	return &TrainResult{
		TrainingRunID:   run.ID,
		Version:         version,
		TrainingSamples: run.TrainingSamples,
		FeaturesUsed:    run.FeaturesUsed,
		Scorer:          run.Scorer,
	}, nil
}

// LoadDataset replaces the transactions served to graph requests.
// The rows are scored when a scorer is trained, otherwise they stay unscored.
func (s *Service) LoadDataset(ctx context.Context, src dataset.Source) error {
	txs, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load dataset from %s: %w", src.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.snapshot.Load()

	var scores []float64
	if current.Trained() {
		rows, err := current.Detector.Detect(ctx, txs)
		if err != nil {
			return fmt.Errorf("score dataset: %w", err)
		}
		scores = scoring.FraudScores(rows)
	}

	data, err := graph.NewDataset(txs, scores)
	if err != nil {
		return err
	}

	next := *current
	next.ID = uuid.New().String()
	next.Version = current.Version + 1
	next.Data = data
	next.Source = src.Name()
	next.UpdatedAt = time.Now().UTC()
	s.snapshot.Store(&next)

	s.logger.Info("dataset loaded",
		"source", src.Name(),
		"transactions", len(txs),
		"scored", scores != nil,
		"version", next.Version,
	)
	return nil
}

// DetectionResult is a persisted detection run with its scored rows.
type DetectionResult struct {
	Run  *domain.DetectionRun
	Rows []domain.ScoredTransaction
}

// Detect scores a batch with the current scorer, persists the run and
// publishes one alert per suspicious row.
func (s *Service) Detect(ctx context.Context, batchID string, txs []domain.Transaction) (*DetectionResult, error) {
	ctx, span := tracer.Start(ctx, "service.Detect", trace.WithAttributes(
		attribute.Int("transactions", len(txs)),
		attribute.String("batch_id", batchID),
	))
	defer span.End()

	snap := s.snapshot.Load()
	if !snap.Trained() {
		return nil, recordErr(span, domain.ErrScorerUnavailable)
	}
	if len(txs) == 0 {
		return nil, domain.NewValidationError("no transactions to score")
	}

	start := time.Now()
	rows, err := snap.Detector.Detect(ctx, txs)
	if err != nil {
		return nil, recordErr(span, err)
	}

	run := &domain.DetectionRun{
		ID:           uuid.New().String(),
		BatchID:      batchID,
		ModelVersion: snap.Version,
		Summary:      scoring.Summarize(rows),
		DurationMs:   time.Since(start).Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		run.TraceID = sc.TraceID().String()
	}

	if s.repo != nil {
		if err := s.repo.SaveDetectionRun(ctx, run, rows); err != nil {
			return nil, recordErr(span, err)
		}
	}

	s.raiseAlerts(ctx, run.ID, rows)
	s.publish(ctx, domain.TopicDetectionCompleted, domain.DetectionCompletedEvent{
		BatchID:        batchID,
		DetectionRunID: run.ID,
		Summary:        run.Summary,
	})

	s.logger.Info("detection completed",
		"detection_run_id", run.ID,
		"batch_id", batchID,
		"model_version", snap.Version,
		"total_transactions", run.Summary.TotalTransactions,
		"suspicious_count", run.Summary.SuspiciousCount,
		"duration_ms", run.DurationMs,
	)
	span.SetAttributes(attribute.Int("suspicious", run.Summary.SuspiciousCount))

	return &DetectionResult{Run: run, Rows: rows}, nil
}

// SubmitBatch publishes a batch for asynchronous detection and returns its id.
func (s *Service) SubmitBatch(ctx context.Context, txs []domain.Transaction) (string, error) {
	if s.bus == nil {
		return "", fmt.Errorf("asynchronous detection requires an event bus")
	}
	if !s.Ready() {
		return "", domain.ErrScorerUnavailable
	}
	if len(txs) == 0 {
		return "", domain.NewValidationError("no transactions to score")
	}

	batchID := uuid.New().String()
	payload, err := json.Marshal(domain.BatchSubmittedEvent{BatchID: batchID, Transactions: txs})
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}
	if err := s.bus.Publish(ctx, domain.TopicBatchSubmitted, payload); err != nil {
		return "", fmt.Errorf("publish batch: %w", err)
	}

	s.logger.Info("batch submitted", "batch_id", batchID, "transactions", len(txs))
	return batchID, nil
}

// AnalysisResult is a detection run plus chart-ready distributions.
type AnalysisResult struct {
	Run           *domain.DetectionRun
	Rows          []domain.ScoredTransaction
	Distributions domain.Distributions
	Truncated     bool
}

// Analyze runs a detection and adds distributions over the whole batch.
// Only the first AnalyzeLimit rows are returned.
func (s *Service) Analyze(ctx context.Context, txs []domain.Transaction) (*AnalysisResult, error) {
	res, err := s.Detect(ctx, "", txs)
	if err != nil {
		return nil, err
	}

	out := &AnalysisResult{
		Run:           res.Run,
		Rows:          res.Rows,
		Distributions: scoring.Distribute(res.Rows),
	}
	if limit := s.cfg.Scoring.AnalyzeLimit; limit > 0 && len(out.Rows) > limit {
		out.Rows = out.Rows[:limit]
		out.Truncated = true
	}
	return out, nil
}

// Stats describes the current snapshot.
type Stats struct {
	TrainingSamples int    `json:"training_samples"`
	ModelFeatures   int    `json:"model_features"`
	ModelStatus     string `json:"model_status"`
	Version         uint64 `json:"version"`
	Scorer          string `json:"scorer,omitempty"`
	DatasetSource   string `json:"dataset_source,omitempty"`
	DatasetSize     int    `json:"dataset_size"`
}

// Stats returns ErrScorerUnavailable when neither a model nor data is loaded.
func (s *Service) Stats() (*Stats, error) {
	snap := s.snapshot.Load()
	if !snap.Trained() && !snap.HasData() {
		return nil, domain.ErrScorerUnavailable
	}

	st := &Stats{
		TrainingSamples: snap.TrainingSamples,
		ModelFeatures:   features.Count,
		ModelStatus:     "untrained",
		Version:         snap.Version,
		DatasetSource:   snap.Source,
	}
	if snap.Trained() {
		st.ModelStatus = "trained"
		st.Scorer = snap.Scorer.Name()
	}
	if snap.HasData() {
		st.DatasetSize = snap.Data.Len()
	}
	return st, nil
}

// Graph builds the ego graph around req.ClientID over the current snapshot.
// Results are cached per snapshot version and request.
func (s *Service) Graph(ctx context.Context, req domain.GraphRequest) (*domain.GraphResult, error) {
	ctx, span := tracer.Start(ctx, "service.Graph", trace.WithAttributes(
		attribute.String("client_id", req.ClientID),
		attribute.Int("depth", req.Depth),
		attribute.Int("limit", req.Limit),
	))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, recordErr(span, err)
	}

	snap := s.snapshot.Load()
	if !snap.HasData() {
		return nil, recordErr(span, domain.ErrScorerUnavailable)
	}

	key := graphCacheKey(snap.ID, req)
	if s.cache != nil {
		cached, err := s.cache.GetGraph(ctx, key)
		if err != nil {
			s.logger.Warn("graph cache read failed", "key", key, "error", err)
		} else if cached != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	result, err := s.builder.Build(ctx, req, snap.Data)
	if err != nil {
		return nil, recordErr(span, err)
	}

	if s.cache != nil {
		if err := s.cache.SetGraph(ctx, key, result, s.cfg.Graph.CacheTTL); err != nil {
			s.logger.Warn("graph cache write failed", "key", key, "error", err)
		}
	}

	span.SetAttributes(
		attribute.Bool("cache_hit", false),
		attribute.Int("nodes", result.Summary.TotalNodes),
		attribute.Int("edges", result.Summary.TotalEdges),
	)
	return result, nil
}

// DetectionDetail is a persisted run with its suspicious rows.
type DetectionDetail struct {
	Run        *domain.DetectionRun       `json:"run"`
	Suspicious []domain.ScoredTransaction `json:"suspicious_transactions"`
}

// GetDetection loads a persisted detection run.
func (s *Service) GetDetection(ctx context.Context, id string) (*DetectionDetail, error) {
	if s.repo == nil {
		return nil, &domain.NotFoundError{Entity: "Detection run", ID: id}
	}

	run, err := s.repo.GetDetectionRun(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, run)
}

// GetBatchDetection loads the detection run of an asynchronously submitted
// batch. It is not found until the worker has finished the batch.
func (s *Service) GetBatchDetection(ctx context.Context, batchID string) (*DetectionDetail, error) {
	if s.repo == nil {
		return nil, &domain.NotFoundError{Entity: "Batch", ID: batchID}
	}

	run, err := s.repo.GetDetectionRunByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, run)
}

func (s *Service) detail(ctx context.Context, run *domain.DetectionRun) (*DetectionDetail, error) {
	rows, err := s.repo.ListScoredTransactions(ctx, run.ID, true, 0)
	if err != nil {
		return nil, fmt.Errorf("list suspicious transactions: %w", err)
	}
	if rows == nil {
		rows = []domain.ScoredTransaction{}
	}
	return &DetectionDetail{Run: run, Suspicious: rows}, nil
}

// TrainingRuns lists recent training runs, newest first.
func (s *Service) TrainingRuns(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	if s.repo == nil {
		return []*domain.TrainingRun{}, nil
	}
	return s.repo.ListTrainingRuns(ctx, limit)
}

func (s *Service) newDetector(scorer domain.AnomalyScorer) *scoring.Detector {
	attributor, _ := scorer.(domain.FeatureAttributor)
	return scoring.NewDetector(s.engine, scorer, s.combiner, explain.NewGenerator(attributor, s.cfg.Scoring.TopFactors))
}

func (s *Service) raiseAlerts(ctx context.Context, runID string, rows []domain.ScoredTransaction) {
	for i := range rows {
		if !rows[i].IsSuspicious {
			continue
		}
		event := domain.NewSuspiciousTransactionEvent(runID, &rows[i])
		s.publish(ctx, domain.TopicSuspicious, event)
		if err := s.alerts.SendSuspicious(ctx, event); err != nil {
			s.logger.Warn("failed to send alert",
				"detection_run_id", runID,
				"transaction_id", event.TransactionID,
				"error", err,
			)
		}
	}
}

// publish sends an event on the bus. Failures are logged, never returned.
func (s *Service) publish(ctx context.Context, topic string, event any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// graphCacheKey scopes a request to one snapshot. The cache may be shared
// between processes, so the snapshot id is used rather than its version.
func graphCacheKey(snapshotID string, req domain.GraphRequest) string {
	return fmt.Sprintf("%s:%s:%d:%g:%d", snapshotID, req.ClientID, req.Depth, req.MinFraudScore, req.Limit)
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// DetectionRows returns every scored row of a persisted run in batch order.
func (s *Service) DetectionRows(ctx context.Context, id string) ([]domain.ScoredTransaction, error) {
	if s.repo == nil {
		return nil, &domain.NotFoundError{Entity: "Detection run", ID: id}
	}
	if _, err := s.repo.GetDetectionRun(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListScoredTransactions(ctx, id, false, 0)
}
