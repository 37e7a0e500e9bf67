package graph

import (
	"fmt"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Dataset is an immutable transaction set with optional fraud scores.
// Per-account adjacency lists are derived on first traversal.
type Dataset struct {
	txs    []domain.Transaction
	scores []float64

	once     sync.Once
	outgoing map[string][]int
	incoming map[string][]int
}

// NewDataset wraps txs. scores must be nil or parallel to txs.
func NewDataset(txs []domain.Transaction, scores []float64) (*Dataset, error) {
	if scores != nil && len(scores) != len(txs) {
		return nil, fmt.Errorf("got %d fraud scores for %d transactions", len(scores), len(txs))
	}
	return &Dataset{txs: txs, scores: scores}, nil
}

// Len returns the number of transactions.
func (d *Dataset) Len() int { return len(d.txs) }

// Scored reports whether fraud scores are attached.
func (d *Dataset) Scored() bool { return d.scores != nil }

// Transactions returns the underlying rows. Callers must not modify them.
func (d *Dataset) Transactions() []domain.Transaction { return d.txs }

// FraudScores returns the attached scores, nil when unscored.
func (d *Dataset) FraudScores() []float64 { return d.scores }

// HasAccount reports whether id appears as an origin or destination.
func (d *Dataset) HasAccount(id string) bool {
	d.index()
	return len(d.outgoing[id]) > 0 || len(d.incoming[id]) > 0
}

// Outgoing returns the row indexes where id is the origin, in natural order.
func (d *Dataset) Outgoing(id string) []int {
	d.index()
	return d.outgoing[id]
}

// Incoming returns the row indexes where id is the destination, in natural order.
func (d *Dataset) Incoming(id string) []int {
	d.index()
	return d.incoming[id]
}

func (d *Dataset) index() {
	d.once.Do(func() {
		d.outgoing = make(map[string][]int)
		d.incoming = make(map[string][]int)
		for i := range d.txs {
			d.outgoing[d.txs[i].OriginID] = append(d.outgoing[d.txs[i].OriginID], i)
			d.incoming[d.txs[i].DestID] = append(d.incoming[d.txs[i].DestID], i)
		}
	})
}
