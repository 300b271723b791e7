package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskLevel(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{score: 0, want: RiskLow},
		{score: 1, want: RiskLow},
		{score: 5, want: RiskLow},
		{score: 6, want: RiskMedium},
		{score: 9, want: RiskMedium},
		{score: 10, want: RiskHigh},
		{score: 14, want: RiskHigh},
		{score: 15, want: RiskVeryHigh},
		{score: 25, want: RiskVeryHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RiskLevel(tt.score), "score %d", tt.score)
	}
}

func TestDefaultResidualRisk(t *testing.T) {
	assert.Equal(t, 1, DefaultResidualRisk(1))
	assert.Equal(t, 1, DefaultResidualRisk(4))
	assert.Equal(t, 3, DefaultResidualRisk(12))
	assert.Equal(t, 7, DefaultResidualRisk(25))
}

func TestNormalizeHazards(t *testing.T) {
	in := []Hazard{
		// model score kept, wrong level corrected
		{ID: "h-a", Likelihood: 2, Severity: 2, RiskScore: 6, RiskLevel: RiskVeryHigh, ResidualRisk: 2, ResidualRiskLevel: RiskHigh},
		// missing score and residual are derived
		{Likelihood: 4, Severity: 5},
	}

	out := NormalizeHazards(in)

	assert.Equal(t, "h-a", out[0].ID)
	assert.Equal(t, 6, out[0].RiskScore)
	assert.Equal(t, RiskMedium, out[0].RiskLevel)
	assert.Equal(t, RiskLow, out[0].ResidualRiskLevel)

	assert.Equal(t, "hazard-2", out[1].ID)
	assert.Equal(t, 20, out[1].RiskScore)
	assert.Equal(t, RiskVeryHigh, out[1].RiskLevel)
	assert.Equal(t, 6, out[1].ResidualRisk)
	assert.Equal(t, RiskMedium, out[1].ResidualRiskLevel)
	assert.Equal(t, 0, out[1].LinkedToStep)

	assert.Equal(t, out, NormalizeHazards(out))
	// input is not modified
	assert.Equal(t, RiskVeryHigh, in[0].RiskLevel)
}
