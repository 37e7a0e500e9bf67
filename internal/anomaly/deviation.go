package anomaly

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Deviation scores rows by their mean squared standardised deviation from the
// training distribution. The score is the error relative to twice the training
// error at the configured quantile, clipped to [0,1].
type Deviation struct {
	quantile float64
	names    []string

	mu        sync.RWMutex
	scaler    *StandardScaler
	threshold float64
}

// NewDeviation creates an unfitted deviation scorer. names labels the feature
// columns for attribution and may be nil.
func NewDeviation(quantile float64, names []string) *Deviation {
	return &Deviation{quantile: quantile, names: names}
}

// Name implements domain.AnomalyScorer.
func (d *Deviation) Name() string { return "deviation" }

// Fit learns column statistics and the error threshold.
func (d *Deviation) Fit(ctx context.Context, X [][]float64) error {
	scaler, err := FitScaler(X)
	if err != nil {
		return err
	}
	Xs, err := scaler.Transform(X)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	errs := make([]float64, len(Xs))
	for i, row := range Xs {
		errs[i] = meanSquare(row)
	}
	sort.Float64s(errs)
	threshold := stat.Quantile(d.quantile, stat.LinInterp, errs, nil)

	d.mu.Lock()
	d.scaler = scaler
	d.threshold = threshold
	d.mu.Unlock()
	return nil
}

// Score implements domain.AnomalyScorer.
func (d *Deviation) Score(ctx context.Context, X [][]float64) ([]float64, error) {
	d.mu.RLock()
	scaler, threshold := d.scaler, d.threshold
	d.mu.RUnlock()
	if scaler == nil {
		return nil, domain.ErrScorerUnavailable
	}

	Xs, err := scaler.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("deviation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores := make([]float64, len(Xs))
	for i, row := range Xs {
		scores[i] = relativeError(meanSquare(row), threshold)
	}
	return scores, nil
}

// Attribute implements domain.FeatureAttributor. Each feature's contribution is its
// share of the row's squared deviation, signed by the direction of the deviation.
func (d *Deviation) Attribute(ctx context.Context, row []float64, top int) ([]domain.FeatureContribution, error) {
	d.mu.RLock()
	scaler := d.scaler
	d.mu.RUnlock()
	if scaler == nil {
		return nil, domain.ErrScorerUnavailable
	}

	scaled, err := scaler.Transform([][]float64{row})
	if err != nil {
		return nil, fmt.Errorf("deviation: %w", err)
	}
	z := scaled[0]

	contribs := make([]domain.FeatureContribution, len(z))
	for j, v := range z {
		name := fmt.Sprintf("feature_%d", j)
		if j < len(d.names) {
			name = d.names[j]
		}
		contribs[j] = domain.FeatureContribution{
			Feature: name,
			Value:   math.Copysign(v*v/float64(len(z)), v),
		}
	}
	slices.SortStableFunc(contribs, func(a, b domain.FeatureContribution) int {
		return cmpDesc(math.Abs(a.Value), math.Abs(b.Value))
	})
	if top > 0 && top < len(contribs) {
		contribs = contribs[:top]
	}
	return contribs, nil
}

func meanSquare(row []float64) float64 {
	if len(row) == 0 {
		return 0
	}
	var sum float64
	for _, v := range row {
		sum += v * v
	}
	return sum / float64(len(row))
}

func relativeError(err, threshold float64) float64 {
	if threshold <= 0 {
		if err > 0 {
			return 1
		}
		return 0
	}
	return math.Min(math.Max(err/(2*threshold), 0), 1)
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
