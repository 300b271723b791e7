package agents

import (
	"fmt"
	"math"
)

// Risk level buckets
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskVeryHigh = "very-high"
)

// RiskLevel maps a 1-25 risk score onto its bucket: 1-5 low, 6-9 medium,
// 10-14 high, 15-25 very-high. Scores below 1 are treated as low.
func RiskLevel(score int) string {
	switch {
	case score >= 15:
		return RiskVeryHigh
	case score >= 10:
		return RiskHigh
	case score >= 6:
		return RiskMedium
	default:
		return RiskLow
	}
}

// DefaultResidualRisk is used when the model gives no residual risk
func DefaultResidualRisk(score int) int {
	r := int(math.Floor(float64(score) * 0.3))
	if r < 1 {
		return 1
	}
	return r
}

// NormalizeHazards fills missing ids and scores and re-derives both risk
// levels. A model supplied riskScore is kept; a missing one becomes
// likelihood x severity. It is idempotent.
func NormalizeHazards(hazards []Hazard) []Hazard {
	out := make([]Hazard, len(hazards))
	for i, h := range hazards {
		if h.ID == "" {
			h.ID = fmt.Sprintf("hazard-%d", i+1)
		}
		if h.RiskScore <= 0 {
			h.RiskScore = h.Likelihood * h.Severity
		}
		if h.ResidualRisk <= 0 {
			h.ResidualRisk = DefaultResidualRisk(h.RiskScore)
		}
		h.RiskLevel = RiskLevel(h.RiskScore)
		h.ResidualRiskLevel = RiskLevel(h.ResidualRisk)
		out[i] = h
	}
	return out
}

func toInt(f float64) int {
	return int(math.Round(f))
}
