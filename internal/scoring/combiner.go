// Package scoring merges rule and anomaly signals into per-transaction fraud scores.
package scoring

import "github.com/opensource-finance/harrier/internal/domain"

// Combiner merges the ML and rule scores of a transaction.
type Combiner struct {
	MLWeight   float64
	RuleWeight float64

	// SuspiciousThreshold is exclusive: a score equal to it is not suspicious.
	SuspiciousThreshold float64
}

// NewCombiner creates a combiner with the default 60/40 ML/rule weighting.
func NewCombiner() *Combiner {
	return &Combiner{
		MLWeight:            0.6,
		RuleWeight:          0.4,
		SuspiciousThreshold: 0.6,
	}
}

// Combination is the combiner output for one transaction.
type Combination struct {
	FraudScore   float64
	IsSuspicious bool
	RiskLevel    domain.RiskLevel
}

// Combine returns the fraud score, suspicion flag and risk level for a pair of scores in [0,1].
func (c *Combiner) Combine(mlScore, ruleScore float64) Combination {
	score := c.MLWeight*mlScore + c.RuleWeight*ruleScore
	return Combination{
		FraudScore:   score,
		IsSuspicious: score > c.SuspiciousThreshold,
		RiskLevel:    domain.ClassifyRisk(score),
	}
}
