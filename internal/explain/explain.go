// Package explain renders human-readable reasons for suspicious transactions.
package explain

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Separator joins the individual reasons of an explanation.
const Separator = " | "

// HighMLScore is the ml score above which the model signal is reported.
const HighMLScore = 0.7

// FormatAmount renders an amount with thousands separators and two decimals, prefixed with $.
func FormatAmount(amount float64) string {
	if amount < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -amount)
	}
	return "$" + humanize.FormatFloat("#,###.##", amount)
}

// Generator builds explanations. It holds configuration only.
type Generator struct {
	attributor domain.FeatureAttributor
	topFactors int
}

// NewGenerator creates a generator. attributor may be nil.
func NewGenerator(attributor domain.FeatureAttributor, topFactors int) *Generator {
	return &Generator{attributor: attributor, topFactors: topFactors}
}

// Reasons returns the applicable reasons for a scored transaction, in fixed order.
func Reasons(row *domain.ScoredTransaction) []string {
	var reasons []string

	if row.MLScore > HighMLScore {
		reasons = append(reasons, fmt.Sprintf("ML models detected highly anomalous pattern (score: %.2f)", row.MLScore))
	}
	if row.Flags.AmountAnomaly {
		reasons = append(reasons, fmt.Sprintf("Transaction amount %s is unusually high for this user", FormatAmount(row.Amount)))
	}
	if row.Flags.BalanceError {
		reasons = append(reasons, "Balance calculations don't match (possible data manipulation)")
	}
	if row.Flags.ZeroBalance {
		reasons = append(reasons, "Large transaction leaving zero balance (possible account draining)")
	}
	if row.Flags.HighFrequency {
		reasons = append(reasons, fmt.Sprintf("High-frequency transactions detected (%d in same time period)", row.Flags.Frequency))
	}
	if row.Flags.RiskyType && row.FraudScore > domain.HighRiskThreshold {
		reasons = append(reasons, fmt.Sprintf("Risky transaction type: %s", row.Type))
	}
	if row.Amount > 100000 {
		reasons = append(reasons, fmt.Sprintf("Very large transaction amount: %s", FormatAmount(row.Amount)))
	}
	if row.OrigBalanceAfter == 0 && row.OrigBalanceBefore > 0 {
		reasons = append(reasons, "Account completely emptied after transaction")
	}

	return reasons
}

// Explain renders the explanation of one scored transaction. features is the
// row's feature vector and is only used for attribution; it may be nil.
func (g *Generator) Explain(ctx context.Context, row *domain.ScoredTransaction, features []float64) string {
	reasons := Reasons(row)
	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("Moderately suspicious based on behavioral patterns (fraud score: %.2f)", row.FraudScore))
	}

	if g != nil && g.attributor != nil && g.topFactors > 0 && features != nil {
		contribs, err := g.attributor.Attribute(ctx, features, g.topFactors)
		if err == nil && len(contribs) > 0 {
			reasons = append(reasons, TopFactors(contribs))
		}
	}

	return strings.Join(reasons, Separator)
}

// TopFactors renders feature contributions as "Top factors: name (+v), ...".
func TopFactors(contribs []domain.FeatureContribution) string {
	parts := make([]string, len(contribs))
	for i, c := range contribs {
		parts[i] = fmt.Sprintf("%s (%+.2f)", c.Feature, c.Value)
	}
	return "Top factors: " + strings.Join(parts, ", ")
}
