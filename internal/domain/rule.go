package domain

// RuleConfig defines one deterministic fraud rule.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate. Must yield a bool.
	Expression string `json:"expression"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// Builtin rule ids, in evaluation order.
const (
	RuleAmountAnomaly        = "amount-anomaly"
	RuleBalanceInconsistency = "balance-inconsistency"
	RuleZeroBalanceDrain     = "zero-balance-drain"
	RuleHighFrequency        = "high-frequency"
	RuleRiskyType            = "risky-type"
)
