package scoring

import (
	"context"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/explain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/velocity"
)

// Detector runs the hybrid pipeline over a batch:
// rules, feature matrix, anomaly scorer, combiner, explanations.
type Detector struct {
	engine    *rules.Engine
	scorer    domain.AnomalyScorer
	combiner  *Combiner
	explainer *explain.Generator
}

// NewDetector creates a detector. scorer may be nil, in which case Detect
// returns domain.ErrScorerUnavailable.
func NewDetector(engine *rules.Engine, scorer domain.AnomalyScorer, combiner *Combiner, explainer *explain.Generator) *Detector {
	if combiner == nil {
		combiner = NewCombiner()
	}
	return &Detector{
		engine:    engine,
		scorer:    scorer,
		combiner:  combiner,
		explainer: explainer,
	}
}

// Detect scores every transaction of the batch. Either every row is scored or an error is returned.
func (d *Detector) Detect(ctx context.Context, txs []domain.Transaction) ([]domain.ScoredTransaction, error) {
	if d.scorer == nil {
		return nil, domain.ErrScorerUnavailable
	}
	if len(txs) == 0 {
		return []domain.ScoredTransaction{}, nil
	}

	ix := velocity.Build(txs)

	ruleResults, err := d.engine.EvaluateWithIndex(ctx, txs, ix)
	if err != nil {
		return nil, fmt.Errorf("rule evaluation failed: %w", err)
	}

	X := features.BuildWithIndex(txs, ix)
	mlScores, err := d.scorer.Score(ctx, X)
	if err != nil {
		return nil, fmt.Errorf("anomaly scoring failed: %w", err)
	}
	if len(mlScores) != len(txs) {
		return nil, fmt.Errorf("anomaly scorer returned %d scores for %d transactions", len(mlScores), len(txs))
	}

	rows := make([]domain.ScoredTransaction, len(txs))
	for i := range txs {
		c := d.combiner.Combine(mlScores[i], ruleResults[i].Score)
		rows[i] = domain.ScoredTransaction{
			Transaction:   txs[i],
			TransactionID: i + 1,
			Flags:         ruleResults[i].Flags,
			RuleScore:     ruleResults[i].Score,
			MLScore:       mlScores[i],
			FraudScore:    c.FraudScore,
			IsSuspicious:  c.IsSuspicious,
			RiskLevel:     c.RiskLevel,
		}
		if c.IsSuspicious {
			rows[i].Explanation = d.explainer.Explain(ctx, &rows[i], X[i])
		}
	}

	return rows, nil
}

// FraudScores extracts the fraud score column of scored rows.
func FraudScores(rows []domain.ScoredTransaction) []float64 {
	scores := make([]float64, len(rows))
	for i := range rows {
		scores[i] = rows[i].FraudScore
	}
	return scores
}
