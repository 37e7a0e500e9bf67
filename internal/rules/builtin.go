package rules

import "github.com/opensource-finance/harrier/internal/domain"

// BuiltinRules returns the five deterministic fraud rules in evaluation order.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          domain.RuleAmountAnomaly,
			Name:        "Amount anomaly",
			Description: "Amount more than three standard deviations above the origin's mean, or above 100,000",
			Version:     "1.0.0",
			Expression:  "amount > origin_mean + 3.0 * origin_std || amount > 100000.0",
			Enabled:     true,
		},
		{
			ID:          domain.RuleBalanceInconsistency,
			Name:        "Balance inconsistency",
			Description: "Origin balance after the transaction does not equal balance before minus amount",
			Version:     "1.0.0",
			Expression: "orig_balance_before - amount - orig_balance_after > balance_epsilon || " +
				"orig_balance_before - amount - orig_balance_after < -balance_epsilon",
			Enabled: true,
		},
		{
			ID:          domain.RuleZeroBalanceDrain,
			Name:        "Zero balance drain",
			Description: "A transaction above 50,000 leaves a funded origin account at zero",
			Version:     "1.0.0",
			Expression:  "orig_balance_before > 0.0 && orig_balance_after == 0.0 && amount > 50000.0",
			Enabled:     true,
		},
		{
			ID:          domain.RuleHighFrequency,
			Name:        "High frequency",
			Description: "More than five transactions from the same origin within one step",
			Version:     "1.0.0",
			Expression:  "origin_step_count > 5",
			Enabled:     true,
		},
		{
			ID:          domain.RuleRiskyType,
			Name:        "Risky type",
			Description: "TRANSFER and CASH_OUT transactions",
			Version:     "1.0.0",
			Expression:  "tx_type in ['TRANSFER', 'CASH_OUT']",
			Enabled:     true,
		},
	}
}
