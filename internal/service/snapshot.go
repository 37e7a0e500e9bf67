package service

import (
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Snapshot is an immutable view of the fitted scorer and the loaded transactions.
// A new snapshot is built for every change and swapped in atomically.
type Snapshot struct {
	// ID is unique per snapshot across processes. Version only orders
	// snapshots within one process.
	ID      string
	Version uint64

	// Scorer and Detector are nil until a model is trained.
	Scorer   domain.AnomalyScorer
	Detector *scoring.Detector

	// Data is nil until transactions are loaded or trained on.
	Data            *graph.Dataset
	Source          string
	TrainingSamples int
	UpdatedAt       time.Time
}

// Trained reports whether the snapshot carries a fitted scorer.
func (s *Snapshot) Trained() bool {
	return s != nil && s.Detector != nil
}

// HasData reports whether the snapshot carries transactions.
func (s *Snapshot) HasData() bool {
	return s != nil && s.Data != nil
}
