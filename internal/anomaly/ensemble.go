// Package anomaly provides the unsupervised scorers behind domain.AnomalyScorer.
package anomaly

import (
	"context"
	"fmt"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
)

// Detector names accepted in configuration.
const (
	DetectorIsolationForest = "iforest"
	DetectorDeviation       = "deviation"
)

// Ensemble averages the scores of its members.
type Ensemble struct {
	members []domain.AnomalyScorer
}

// NewEnsemble combines scorers. At least one member is required.
func NewEnsemble(members ...domain.AnomalyScorer) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("ensemble needs at least one scorer")
	}
	return &Ensemble{members: members}, nil
}

// New builds the scorer described by cfg.
func New(cfg domain.AnomalyConfig) (domain.AnomalyScorer, error) {
	var members []domain.AnomalyScorer
	for _, name := range cfg.Detectors {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case DetectorIsolationForest:
			members = append(members, NewIsolationForest(cfg.Trees, cfg.SampleSize, cfg.Seed))
		case DetectorDeviation:
			members = append(members, NewDeviation(cfg.ThresholdQuantile, features.Names))
		default:
			return nil, fmt.Errorf("unknown anomaly detector %q", name)
		}
	}
	if len(members) == 1 {
		return members[0], nil
	}
	return NewEnsemble(members...)
}

// Name implements domain.AnomalyScorer.
func (e *Ensemble) Name() string {
	names := make([]string, len(e.members))
	for i, m := range e.members {
		names[i] = m.Name()
	}
	return strings.Join(names, "+")
}

// Fit fits every member in order.
func (e *Ensemble) Fit(ctx context.Context, X [][]float64) error {
	for _, m := range e.members {
		if err := m.Fit(ctx, X); err != nil {
			return fmt.Errorf("failed to fit %s: %w", m.Name(), err)
		}
	}
	return nil
}

// Score returns the unweighted mean of the member scores.
func (e *Ensemble) Score(ctx context.Context, X [][]float64) ([]float64, error) {
	sum := make([]float64, len(X))
	for _, m := range e.members {
		scores, err := m.Score(ctx, X)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name(), err)
		}
		for i, s := range scores {
			sum[i] += s
		}
	}
	n := float64(len(e.members))
	for i := range sum {
		sum[i] /= n
	}
	return sum, nil
}

// Attribute delegates to the first member that supports attribution.
func (e *Ensemble) Attribute(ctx context.Context, row []float64, top int) ([]domain.FeatureContribution, error) {
	for _, m := range e.members {
		if a, ok := m.(domain.FeatureAttributor); ok {
			return a.Attribute(ctx, row, top)
		}
	}
	return nil, nil
}
