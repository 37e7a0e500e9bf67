// Package velocity provides per-origin peer statistics over a transaction batch.
package velocity

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/opensource-finance/harrier/internal/domain"
)

// OriginStats summarises the amounts sent by one origin account within a batch.
type OriginStats struct {
	Count int
	Mean  float64
	// Std is the sample standard deviation (n-1). Zero for single-transaction origins.
	Std float64
	Max float64
}

type stepKey struct {
	origin string
	step   int
}

// Index holds the statistics of one batch. It is immutable once built.
type Index struct {
	origins map[string]OriginStats
	steps   map[stepKey]int
}

// Build computes peer statistics for every origin in txs.
func Build(txs []domain.Transaction) *Index {
	amounts := make(map[string][]float64)
	steps := make(map[stepKey]int)
	for i := range txs {
		tx := &txs[i]
		amounts[tx.OriginID] = append(amounts[tx.OriginID], tx.Amount)
		steps[stepKey{origin: tx.OriginID, step: tx.Step}]++
	}

	origins := make(map[string]OriginStats, len(amounts))
	for id, xs := range amounts {
		s := OriginStats{Count: len(xs), Max: floats.Max(xs)}
		if len(xs) > 1 {
			s.Mean, s.Std = stat.MeanStdDev(xs, nil)
		} else {
			s.Mean = xs[0]
		}
		origins[id] = s
	}

	return &Index{origins: origins, steps: steps}
}

// Origin returns the statistics of an origin account, or zero stats when unknown.
func (ix *Index) Origin(originID string) OriginStats {
	return ix.origins[originID]
}

// StepCount returns how many transactions originID sent within step.
func (ix *Index) StepCount(originID string, step int) int {
	return ix.steps[stepKey{origin: originID, step: step}]
}

// Origins returns the number of distinct origin accounts.
func (ix *Index) Origins() int {
	return len(ix.origins)
}
