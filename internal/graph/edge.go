// Package graph scores transactions as edges and builds ego-centric account graphs.
package graph

import (
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/explain"
)

// ConfirmedFraudFloor is the minimum edge score of a transaction labelled as fraud.
const ConfirmedFraudFloor = 0.85

// NormalTransaction is the single reason given when no risk signal applies.
const NormalTransaction = "Normal transaction"

// ConfirmedFraud is the reason attached when the confirmed-fraud floor raised the score.
const ConfirmedFraud = "Confirmed fraud"

// Components are the individual risk signals of an edge, each in [0,1].
type Components struct {
	Amount  float64 `json:"amount"`
	Type    float64 `json:"type"`
	Balance float64 `json:"balance"`
	// Fraud is the precomputed fraud score, nil when the row is unscored.
	Fraud *float64 `json:"fraud,omitempty"`
}

// Mean is the unweighted mean of the present components.
func (c Components) Mean() float64 {
	sum, n := c.Amount+c.Type+c.Balance, 3.0
	if c.Fraud != nil {
		sum += *c.Fraud
		n++
	}
	return sum / n
}

// EdgeRisk is the evaluator output for one transaction.
type EdgeRisk struct {
	Score      float64
	Components Components
	Reasons    []string
}

// EvaluateEdge scores a single transaction independently of any trained model.
// fraudScore may be nil.
func EvaluateEdge(tx *domain.Transaction, fraudScore *float64) EdgeRisk {
	var c Components
	var reasons []string

	switch amount := tx.Amount; {
	case amount > 100000:
		c.Amount = 0.8
		reasons = append(reasons, "Very high amount: "+explain.FormatAmount(amount))
	case amount > 50000:
		c.Amount = 0.6
		reasons = append(reasons, "High amount: "+explain.FormatAmount(amount))
	case amount > 10000:
		c.Amount = 0.4
		reasons = append(reasons, "Elevated amount: "+explain.FormatAmount(amount))
	default:
		c.Amount = 0.1
	}

	switch {
	case tx.IsRiskyType():
		c.Type = 0.7
		reasons = append(reasons, "Risky transaction type: "+tx.Type)
	case tx.Type == domain.TxTypePayment:
		c.Type = 0.4
	default:
		c.Type = 0.2
	}

	switch {
	case tx.OrigBalanceAfter == 0 && tx.Amount > 10000:
		c.Balance = 0.9
		reasons = append(reasons, "Account drained to zero")
	case tx.OrigBalanceBefore > 0:
		ratio := tx.Amount / tx.OrigBalanceBefore
		if ratio > 0.9 {
			c.Balance = 0.7
			reasons = append(reasons, fmt.Sprintf("Large portion of balance: %.1f%%", ratio*100))
		} else {
			c.Balance = 0.2
		}
	default:
		c.Balance = 0.3
	}

	if fraudScore != nil {
		fs := *fraudScore
		c.Fraud = &fs
		if fs > domain.CriticalRiskThreshold {
			reasons = append(reasons, fmt.Sprintf("ML fraud score: %.2f", fs))
		}
	}

	score := c.Mean()
	if tx.Fraudulent() {
		score = max(score, ConfirmedFraudFloor)
		reasons = append(reasons, ConfirmedFraud)
	}

	if len(reasons) == 0 {
		reasons = []string{NormalTransaction}
	}

	return EdgeRisk{Score: score, Components: c, Reasons: reasons}
}

// withoutFloor returns the reasons that still hold when the edge score is
// taken from the fraud score instead of the evaluator, where the
// confirmed-fraud floor does not apply.
func (r EdgeRisk) withoutFloor() []string {
	reasons := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		if reason != ConfirmedFraud && reason != NormalTransaction {
			reasons = append(reasons, reason)
		}
	}
	if len(reasons) == 0 {
		reasons = []string{NormalTransaction}
	}
	return reasons
}
