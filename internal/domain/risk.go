package domain

// RiskLevel is the discrete bucket derived from a score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Risk band lower bounds. CRITICAL and MEDIUM are exclusive, HIGH is inclusive.
const (
	CriticalRiskThreshold = 0.8
	HighRiskThreshold     = 0.6
	MediumRiskThreshold   = 0.4
)

// ClassifyRisk maps a score to its risk level.
// A score of exactly 0.6 is HIGH even though it is not suspicious.
func ClassifyRisk(score float64) RiskLevel {
	switch {
	case score > CriticalRiskThreshold:
		return RiskCritical
	case score >= HighRiskThreshold:
		return RiskHigh
	case score > MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskLevels returns all levels from lowest to highest.
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}
}
