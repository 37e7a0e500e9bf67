package anomaly

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/opensource-finance/harrier/internal/domain"
)

const eulerGamma = 0.5772156649015329

// IsolationForest scores rows by how quickly random axis-aligned splits isolate them.
// Scores are min-max normalised over each scored batch, so the most anomalous
// row of a batch scores 1 and the least anomalous 0.
type IsolationForest struct {
	trees      int
	sampleSize int
	seed       int64

	mu     sync.RWMutex
	scaler *StandardScaler
	forest []*isoNode
	psi    int
}

type isoNode struct {
	feature     int
	split       float64
	left, right *isoNode
	// size is the number of training samples that reached a leaf.
	size int
}

// NewIsolationForest creates an unfitted forest.
func NewIsolationForest(trees, sampleSize int, seed int64) *IsolationForest {
	return &IsolationForest{trees: trees, sampleSize: sampleSize, seed: seed}
}

// Name implements domain.AnomalyScorer.
func (f *IsolationForest) Name() string { return "iforest" }

// Fit builds the forest on standardised X.
func (f *IsolationForest) Fit(ctx context.Context, X [][]float64) error {
	scaler, err := FitScaler(X)
	if err != nil {
		return err
	}
	Xs, err := scaler.Transform(X)
	if err != nil {
		return err
	}

	psi := f.sampleSize
	if psi > len(Xs) {
		psi = len(Xs)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(max(psi, 2)))))
	rng := rand.New(rand.NewPCG(uint64(f.seed), uint64(f.seed)^0x9e3779b97f4a7c15))

	forest := make([]*isoNode, f.trees)
	for t := range forest {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample := sampleRows(rng, Xs, psi)
		forest[t] = buildTree(rng, sample, 0, heightLimit)
	}

	f.mu.Lock()
	f.scaler = scaler
	f.forest = forest
	f.psi = psi
	f.mu.Unlock()
	return nil
}

// Score returns the normalised anomaly score of each row.
func (f *IsolationForest) Score(ctx context.Context, X [][]float64) ([]float64, error) {
	raw, err := f.RawScore(ctx, X)
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}

// RawScore returns 2^(-E[h(x)]/c(psi)) per row without batch normalisation.
func (f *IsolationForest) RawScore(ctx context.Context, X [][]float64) ([]float64, error) {
	f.mu.RLock()
	scaler, forest, psi := f.scaler, f.forest, f.psi
	f.mu.RUnlock()
	if forest == nil {
		return nil, domain.ErrScorerUnavailable
	}

	Xs, err := scaler.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("iforest: %w", err)
	}

	norm := averagePathLength(psi)
	scores := make([]float64, len(Xs))
	for i, row := range Xs {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var total float64
		for _, tree := range forest {
			total += pathLength(tree, row, 0)
		}
		mean := total / float64(len(forest))
		if norm == 0 {
			scores[i] = 0.5
			continue
		}
		scores[i] = math.Pow(2, -mean/norm)
	}
	return scores, nil
}

// Normalize min-max scales scores into [0,1]. A batch whose scores are all
// equal normalises to zeros.
func Normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := floats.Min(scores), floats.Max(scores)
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / span
	}
	return out
}

// sampleRows draws psi distinct rows using a partial Fisher-Yates shuffle over indices.
func sampleRows(rng *rand.Rand, X [][]float64, psi int) [][]float64 {
	n := len(X)
	if psi >= n {
		out := make([][]float64, n)
		copy(out, X)
		return out
	}
	picked := make(map[int]int, psi)
	out := make([][]float64, psi)
	for i := 0; i < psi; i++ {
		j := i + rng.IntN(n-i)
		vi, ok := picked[i]
		if !ok {
			vi = i
		}
		vj, ok := picked[j]
		if !ok {
			vj = j
		}
		picked[i], picked[j] = vj, vi
		out[i] = X[vj]
	}
	return out
}

func buildTree(rng *rand.Rand, rows [][]float64, depth, heightLimit int) *isoNode {
	if depth >= heightLimit || len(rows) <= 1 {
		return &isoNode{size: len(rows)}
	}

	cols := len(rows[0])
	lo := make([]float64, cols)
	hi := make([]float64, cols)
	copy(lo, rows[0])
	copy(hi, rows[0])
	for _, row := range rows[1:] {
		for j, v := range row {
			lo[j] = math.Min(lo[j], v)
			hi[j] = math.Max(hi[j], v)
		}
	}

	candidates := make([]int, 0, cols)
	for j := 0; j < cols; j++ {
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &isoNode{size: len(rows)}
	}

	feature := candidates[rng.IntN(len(candidates))]
	split := lo[feature] + rng.Float64()*(hi[feature]-lo[feature])

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &isoNode{
		feature: feature,
		split:   split,
		left:    buildTree(rng, left, depth+1, heightLimit),
		right:   buildTree(rng, right, depth+1, heightLimit),
	}
}

func pathLength(node *isoNode, row []float64, depth int) float64 {
	for node.left != nil {
		if row[node.feature] < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful search in a BST of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
