package domain

import "context"

// AnomalyScorer is an unsupervised model producing an anomaly likelihood per row.
// Implementations are read-only after Fit and safe for concurrent Score calls.
type AnomalyScorer interface {
	// Fit trains the scorer on a feature matrix (rows x features).
	Fit(ctx context.Context, X [][]float64) error

	// Score returns one value in [0,1] per row, higher is more anomalous.
	// Returns ErrScorerUnavailable when called before Fit.
	Score(ctx context.Context, X [][]float64) ([]float64, error)

	// Name identifies the scorer in logs and training runs.
	Name() string
}

// FeatureContribution is one feature's share of an anomaly score.
type FeatureContribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// FeatureAttributor is an optional capability of a scorer that can
// attribute a row's score to individual features.
type FeatureAttributor interface {
	Attribute(ctx context.Context, row []float64, top int) ([]FeatureContribution, error)
}
