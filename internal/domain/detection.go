package domain

import (
	"time"
)

// RuleFlags is the deterministic flag set produced by the rule engine for one row.
type RuleFlags struct {
	AmountAnomaly bool `json:"rule_amount_anomaly"`
	BalanceError  bool `json:"rule_balance_error"`
	ZeroBalance   bool `json:"rule_zero_balance"`
	HighFrequency bool `json:"rule_high_frequency"`
	RiskyType     bool `json:"rule_risky_type"`

	// Frequency is the number of transactions from the same origin in the same step.
	Frequency int `json:"freq"`
}

// Count returns how many flags fired.
func (f RuleFlags) Count() int {
	n := 0
	for _, v := range []bool{f.AmountAnomaly, f.BalanceError, f.ZeroBalance, f.HighFrequency, f.RiskyType} {
		if v {
			n++
		}
	}
	return n
}

// ScoredTransaction is a transaction augmented with the hybrid pipeline output.
type ScoredTransaction struct {
	Transaction

	// TransactionID is the 1-based position of the row in its batch.
	TransactionID int `json:"transaction_id"`

	Flags        RuleFlags `json:"flags"`
	RuleScore    float64   `json:"rule_score"`
	MLScore      float64   `json:"ml_score"`
	FraudScore   float64   `json:"fraud_score"`
	IsSuspicious bool      `json:"is_suspicious"`
	RiskLevel    RiskLevel `json:"risk_level"`
	Explanation  string    `json:"explanation,omitempty"`
}

// DetectionSummary holds batch-level statistics for a detection run.
type DetectionSummary struct {
	TotalTransactions     int     `json:"total_transactions"`
	SuspiciousCount       int     `json:"suspicious_count"`
	SuspiciousPercentage  float64 `json:"suspicious_percentage"`
	AverageFraudScore     float64 `json:"average_fraud_score"`
	HighRiskCount         int     `json:"high_risk_count"`
	MediumRiskCount       int     `json:"medium_risk_count"`
	TotalSuspiciousAmount float64 `json:"total_suspicious_amount"`
}

// Distributions are the chart-ready histograms of an analysis.
type Distributions struct {
	FraudScores      []ScoreBin     `json:"fraud_scores"`
	TransactionTypes map[string]int `json:"transaction_types"`
	RiskLevels       map[string]int `json:"risk_levels"`
}

// ScoreBin is one equal-width fraud score bin.
type ScoreBin struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// TrainingRun records metadata about a fitted scorer.
// The fitted model itself is never persisted.
type TrainingRun struct {
	ID              string    `json:"id"`
	Version         uint64    `json:"version"`
	TrainingSamples int       `json:"training_samples"`
	FeaturesUsed    int       `json:"features_used"`
	Scorer          string    `json:"scorer"`
	DurationMs      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// DetectionRun records one detection batch and its summary.
type DetectionRun struct {
	ID           string           `json:"id"`
	BatchID      string           `json:"batch_id,omitempty"`
	ModelVersion uint64           `json:"model_version"`
	Summary      DetectionSummary `json:"summary"`
	TraceID      string           `json:"trace_id,omitempty"`
	DurationMs   int64            `json:"duration_ms"`
	CreatedAt    time.Time        `json:"created_at"`
}

// SuspiciousTransactionEvent is published for every suspicious row of a detection run.
type SuspiciousTransactionEvent struct {
	DetectionRunID string    `json:"detection_run_id"`
	TransactionID  int       `json:"transaction_id"`
	OriginID       string    `json:"origin_id"`
	DestID         string    `json:"dest_id"`
	Type           string    `json:"type"`
	Amount         float64   `json:"amount"`
	Step           int       `json:"step"`
	FraudScore     float64   `json:"fraud_score"`
	RiskLevel      RiskLevel `json:"risk_level"`
	Explanation    string    `json:"explanation"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewSuspiciousTransactionEvent builds the alert payload for a scored row.
func NewSuspiciousTransactionEvent(runID string, row *ScoredTransaction) SuspiciousTransactionEvent {
	return SuspiciousTransactionEvent{
		DetectionRunID: runID,
		TransactionID:  row.TransactionID,
		OriginID:       row.OriginID,
		DestID:         row.DestID,
		Type:           row.Type,
		Amount:         row.Amount,
		Step:           row.Step,
		FraudScore:     row.FraudScore,
		RiskLevel:      row.RiskLevel,
		Explanation:    row.Explanation,
		Timestamp:      time.Now().UTC(),
	}
}
