package scoring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ScoreBins is the number of equal-width fraud score bins in a distribution.
const ScoreBins = 10

// Summarize computes batch-level statistics. An empty batch yields zeros.
func Summarize(rows []domain.ScoredTransaction) domain.DetectionSummary {
	s := domain.DetectionSummary{TotalTransactions: len(rows)}
	if len(rows) == 0 {
		return s
	}

	var total float64
	for i := range rows {
		r := &rows[i]
		total += r.FraudScore
		if r.IsSuspicious {
			s.SuspiciousCount++
			s.TotalSuspiciousAmount += r.Amount
		}
		switch {
		case r.FraudScore > domain.CriticalRiskThreshold:
			s.HighRiskCount++
		case r.FraudScore > domain.HighRiskThreshold:
			s.MediumRiskCount++
		}
	}

	s.SuspiciousPercentage = float64(s.SuspiciousCount) / float64(len(rows)) * 100
	s.AverageFraudScore = total / float64(len(rows))
	return s
}

// Distribute computes the chart-ready distributions of a batch.
func Distribute(rows []domain.ScoredTransaction) domain.Distributions {
	d := domain.Distributions{
		FraudScores:      scoreHistogram(FraudScores(rows)),
		TransactionTypes: make(map[string]int),
		RiskLevels:       make(map[string]int),
	}
	for i := range rows {
		d.TransactionTypes[rows[i].Type]++
		d.RiskLevels[string(rows[i].RiskLevel)]++
	}
	return d
}

// scoreHistogram splits [min, max] into ScoreBins equal-width bins. The first
// bin includes its lower edge, every other bin is (lower, upper].
// A batch with a single distinct score is spread over [s-0.001*|s|, s+0.001*|s|].
func scoreHistogram(scores []float64) []domain.ScoreBin {
	if len(scores) == 0 {
		return []domain.ScoreBin{}
	}

	lo, hi := floats.Min(scores), floats.Max(scores)
	if lo == hi {
		pad := 0.001 * math.Abs(lo)
		if pad == 0 {
			pad = 0.001
		}
		lo, hi = lo-pad, hi+pad
	}

	edges := make([]float64, ScoreBins+1)
	floats.Span(edges, lo, hi)

	bins := make([]domain.ScoreBin, ScoreBins)
	for i := range bins {
		bins[i] = domain.ScoreBin{
			Label: fmt.Sprintf("%.2f-%.2f", edges[i], edges[i+1]),
			Lower: edges[i],
			Upper: edges[i+1],
		}
	}

	for _, s := range scores {
		bins[binIndex(edges, s)].Count++
	}
	return bins
}

func binIndex(edges []float64, s float64) int {
	for i := 1; i < len(edges)-1; i++ {
		if s <= edges[i] {
			return i - 1
		}
	}
	return len(edges) - 2
}

