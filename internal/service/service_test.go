package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/dataset"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
)

type recordingProducer struct {
	mu     sync.Mutex
	events []domain.SuspiciousTransactionEvent
}

func (p *recordingProducer) SendSuspicious(_ context.Context, e domain.SuspiciousTransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type staticSource struct {
	txs []domain.Transaction
}

func (s staticSource) Load(context.Context) ([]domain.Transaction, error) { return s.txs, nil }
func (s staticSource) Name() string                                        { return "static" }

// synthetic returns mostly small payments plus a few draining transfers.
func synthetic(n int) []domain.Transaction {
	txs := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		origin := fmt.Sprintf("C%d", i%40)
		dest := fmt.Sprintf("C%d", (i*7+3)%40)
		amount := 100 + float64(i%17)*25
		before := 5000 + float64(i%11)*300
		tx := domain.Transaction{
			Step:              1 + i/50,
			Type:              domain.TxTypePayment,
			Amount:            amount,
			OriginID:          origin,
			OrigBalanceBefore: before,
			OrigBalanceAfter:  before - amount,
			DestID:            dest,
			DestBalanceBefore: 1000,
			DestBalanceAfter:  1000 + amount,
		}
		if i%37 == 0 {
			tx.Type = domain.TxTypeTransfer
			tx.Amount = 250000
			tx.OrigBalanceBefore = 250000
			tx.OrigBalanceAfter = 0
			tx.DestBalanceBefore = 0
			tx.DestBalanceAfter = 0
		}
		txs = append(txs, tx)
	}
	return txs
}

type fixture struct {
	svc    *Service
	repo   domain.Repository
	cache  *cache.LRUCache
	bus    *bus.ChannelBus
	alerts *recordingProducer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := domain.DefaultConfig()
	cfg.Anomaly.Trees = 20
	cfg.Anomaly.SampleSize = 64
	cfg.Scoring.AnalyzeLimit = 10

	engine, err := rules.NewDefaultEngine(cfg.Scoring.BalanceEpsilon)
	require.NoError(t, err)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "service.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(1000)
	t.Cleanup(func() { eventBus.Close() })

	alerts := &recordingProducer{}
	svc := New(cfg, engine, Dependencies{
		Repository: repo,
		Cache:      lru,
		Bus:        eventBus,
		Alerts:     alerts,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return &fixture{svc: svc, repo: repo, cache: lru, bus: eventBus, alerts: alerts}
}

func TestService_EmptySnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.svc.Ready())

	_, err := f.svc.Detect(ctx, "", synthetic(5))
	assert.ErrorIs(t, err, domain.ErrScorerUnavailable)

	_, err = f.svc.Stats()
	assert.ErrorIs(t, err, domain.ErrScorerUnavailable)

	_, err = f.svc.Graph(ctx, domain.NewGraphRequest("C1"))
	assert.ErrorIs(t, err, domain.ErrScorerUnavailable)

	// Validation runs before the data check.
	_, err = f.svc.Graph(ctx, domain.GraphRequest{ClientID: "C1", Depth: 9, Limit: 10})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.SubmitBatch(ctx, synthetic(5))
	assert.ErrorIs(t, err, domain.ErrScorerUnavailable)
}

func TestService_Train(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trained := make(chan *domain.Message, 1)
	_, err := f.bus.Subscribe(ctx, domain.TopicModelTrained, func(_ context.Context, msg *domain.Message) error {
		trained <- msg
		return nil
	})
	require.NoError(t, err)

	txs := synthetic(300)
	res, err := f.svc.Train(ctx, txs)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Version)
	assert.Equal(t, 300, res.TrainingSamples)
	assert.Equal(t, 14, res.FeaturesUsed)
	assert.Equal(t, "iforest+deviation", res.Scorer)
	assert.True(t, f.svc.Ready())

	snap := f.svc.Snapshot()
	require.True(t, snap.HasData())
	assert.True(t, snap.Data.Scored())
	assert.Equal(t, 300, snap.Data.Len())

	stats, err := f.svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, "trained", stats.ModelStatus)
	assert.Equal(t, 300, stats.TrainingSamples)

	runs, err := f.svc.TrainingRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.TrainingRunID, runs[0].ID)

	select {
	case msg := <-trained:
		var run domain.TrainingRun
		require.NoError(t, json.Unmarshal(msg.Payload, &run))
		assert.Equal(t, uint64(1), run.Version)
	case <-time.After(time.Second):
		t.Fatal("model trained event not published")
	}

	_, err = f.svc.Train(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, uint64(1), f.svc.Snapshot().Version, "failed training must not swap the snapshot")
}

func TestService_TrainPersistFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Train(ctx, synthetic(100))
	require.NoError(t, err)
	before := f.svc.Snapshot()

	require.NoError(t, f.repo.Close())
	_, err = f.svc.Train(ctx, synthetic(200))
	require.Error(t, err)

	after := f.svc.Snapshot()
	assert.Equal(t, before.ID, after.ID, "snapshot swapped without a stored training run")
	assert.Equal(t, 100, after.TrainingSamples)
}

func TestService_DetectAndAnalyze(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Train(ctx, synthetic(300))
	require.NoError(t, err)

	batch := synthetic(60)
	res, err := f.svc.Detect(ctx, "batch-1", batch)
	require.NoError(t, err)
	require.Len(t, res.Rows, 60)
	assert.Equal(t, uint64(1), res.Run.ModelVersion)
	assert.Equal(t, 60, res.Run.Summary.TotalTransactions)

	suspicious := 0
	for i, row := range res.Rows {
		assert.Equal(t, i+1, row.TransactionID)
		assert.GreaterOrEqual(t, row.FraudScore, 0.0)
		assert.LessOrEqual(t, row.FraudScore, 1.0)
		assert.Equal(t, domain.ClassifyRisk(row.FraudScore), row.RiskLevel)
		if row.IsSuspicious {
			suspicious++
			assert.NotEmpty(t, row.Explanation)
		}
	}
	assert.Equal(t, suspicious, res.Run.Summary.SuspiciousCount)
	assert.Equal(t, suspicious, f.alerts.count())

	detail, err := f.svc.GetDetection(ctx, res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Run.Summary, detail.Run.Summary)
	assert.Len(t, detail.Suspicious, suspicious)

	analysis, err := f.svc.Analyze(ctx, batch)
	require.NoError(t, err)
	assert.Len(t, analysis.Rows, 10)
	assert.True(t, analysis.Truncated)
	assert.Equal(t, 60, analysis.Run.Summary.TotalTransactions)

	binned := 0
	for _, bin := range analysis.Distributions.FraudScores {
		binned += bin.Count
	}
	assert.Equal(t, 60, binned, "distributions cover the whole batch")
	assert.Equal(t, 60, analysis.Distributions.TransactionTypes[domain.TxTypePayment]+analysis.Distributions.TransactionTypes[domain.TxTypeTransfer])

	_, err = f.svc.GetDetection(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_SubmitBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Train(ctx, synthetic(200))
	require.NoError(t, err)

	submitted := make(chan *domain.Message, 1)
	_, err = f.bus.Subscribe(ctx, domain.TopicBatchSubmitted, func(_ context.Context, msg *domain.Message) error {
		submitted <- msg
		return nil
	})
	require.NoError(t, err)

	batchID, err := f.svc.SubmitBatch(ctx, synthetic(10))
	require.NoError(t, err)
	assert.NotEmpty(t, batchID)

	select {
	case msg := <-submitted:
		var event domain.BatchSubmittedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, batchID, event.BatchID)
		assert.Len(t, event.Transactions, 10)

		_, err = f.svc.GetBatchDetection(ctx, batchID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		res, err := f.svc.Detect(ctx, event.BatchID, event.Transactions)
		require.NoError(t, err)

		detail, err := f.svc.GetBatchDetection(ctx, batchID)
		require.NoError(t, err)
		assert.Equal(t, res.Run.ID, detail.Run.ID)
		assert.Equal(t, batchID, detail.Run.BatchID)
	case <-time.After(time.Second):
		t.Fatal("batch not published")
	}
}

func TestService_Graph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unscored dataset", func(t *testing.T) {
		require.NoError(t, f.svc.LoadDataset(ctx, staticSource{txs: synthetic(100)}))
		assert.False(t, f.svc.Ready())

		stats, err := f.svc.Stats()
		require.NoError(t, err)
		assert.Equal(t, "untrained", stats.ModelStatus)
		assert.Equal(t, 100, stats.DatasetSize)
		assert.Equal(t, "static", stats.DatasetSource)

		g, err := f.svc.Graph(ctx, domain.NewGraphRequest("C1"))
		require.NoError(t, err)
		assert.Equal(t, "C1", g.Summary.EgoNodeID)
		assert.NotEmpty(t, g.Edges)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := f.svc.Graph(ctx, domain.NewGraphRequest("nobody"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("cached per snapshot", func(t *testing.T) {
		req := domain.NewGraphRequest("C2")
		first, err := f.svc.Graph(ctx, req)
		require.NoError(t, err)

		key := graphCacheKey(f.svc.Snapshot().ID, req)
		cached, err := f.cache.GetGraph(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, cached)

		second, err := f.svc.Graph(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		_, err = f.svc.Train(ctx, synthetic(200))
		require.NoError(t, err)

		trained, err := f.svc.Graph(ctx, req)
		require.NoError(t, err)
		for _, e := range trained.Edges {
			assert.GreaterOrEqual(t, e.EdgeScore, 0.0)
			assert.LessOrEqual(t, e.EdgeScore, 1.0)
		}
		assert.NotEqual(t, key, graphCacheKey(f.svc.Snapshot().ID, req))
	})

	t.Run("load after training scores the dataset", func(t *testing.T) {
		require.NoError(t, f.svc.LoadDataset(ctx, staticSource{txs: synthetic(80)}))
		snap := f.svc.Snapshot()
		assert.True(t, snap.Data.Scored())
		assert.True(t, snap.Trained())
	})

	t.Run("load error keeps snapshot", func(t *testing.T) {
		before := f.svc.Snapshot()
		err := f.svc.LoadDataset(ctx, dataset.FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")})
		require.Error(t, err)
		assert.Same(t, before, f.svc.Snapshot())
	})
}

func TestService_GraphSharedCache(t *testing.T) {
	ctx := context.Background()
	shared := cache.NewLRUCache(100)

	newService := func(t *testing.T) *Service {
		t.Helper()
		cfg := domain.DefaultConfig()
		engine, err := rules.NewDefaultEngine(cfg.Scoring.BalanceEpsilon)
		require.NoError(t, err)
		return New(cfg, engine, Dependencies{
			Cache:  shared,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
	}
	payment := func(origin, dest string) domain.Transaction {
		return domain.Transaction{
			Step: 1, Type: domain.TxTypePayment, Amount: 100,
			OriginID: origin, OrigBalanceBefore: 1000, OrigBalanceAfter: 900,
			DestID: dest, DestBalanceBefore: 0, DestBalanceAfter: 100,
		}
	}

	first := newService(t)
	second := newService(t)
	require.NoError(t, first.LoadDataset(ctx, staticSource{txs: []domain.Transaction{payment("A", "B")}}))
	require.NoError(t, second.LoadDataset(ctx, staticSource{txs: []domain.Transaction{payment("A", "X"), payment("A", "Y")}}))
	require.Equal(t, first.Snapshot().Version, second.Snapshot().Version)

	g1, err := first.Graph(ctx, domain.NewGraphRequest("A"))
	require.NoError(t, err)
	assert.Len(t, g1.Nodes, 2)

	g2, err := second.Graph(ctx, domain.NewGraphRequest("A"))
	require.NoError(t, err)
	require.Len(t, g2.Nodes, 3)
	ids := []string{g2.Nodes[1].ID, g2.Nodes[2].ID}
	assert.ElementsMatch(t, []string{"X", "Y"}, ids)
}

func TestService_Rules(t *testing.T) {
	f := newFixture(t)
	assert.Len(t, f.svc.Rules(), 5)
}
