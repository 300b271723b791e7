package agents

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHealthSafety(t *testing.T) {
	result, err := parseHealthSafety(mustJSON(healthSafetyFixture(MinHazards, MinPPEItems, MinEmergencyProcedures)))
	require.NoError(t, err)

	assert.Len(t, result.Hazards, MinHazards)
	assert.Len(t, result.PPE, MinPPEItems)
	assert.Len(t, result.EmergencyProcedures, MinEmergencyProcedures)
	for _, h := range result.Hazards {
		assert.Equal(t, RiskLevel(h.RiskScore), h.RiskLevel)
		assert.Equal(t, RiskLevel(h.ResidualRisk), h.ResidualRiskLevel)
	}
}

func TestParseHealthSafetyMinimums(t *testing.T) {
	tests := []struct {
		name    string
		fixture map[string]interface{}
	}{
		{name: "too few hazards", fixture: healthSafetyFixture(MinHazards-1, MinPPEItems, MinEmergencyProcedures)},
		{name: "too few ppe items", fixture: healthSafetyFixture(MinHazards, MinPPEItems-1, MinEmergencyProcedures)},
		{name: "too few emergency procedures", fixture: healthSafetyFixture(MinHazards, MinPPEItems, MinEmergencyProcedures-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseHealthSafety(mustJSON(tt.fixture))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaViolation))
		})
	}
}

func TestParseHealthSafetyRejectsOutOfRangeScores(t *testing.T) {
	fixture := healthSafetyFixture(MinHazards, MinPPEItems, MinEmergencyProcedures)
	fixture["hazards"].([]interface{})[0].(map[string]interface{})["likelihood"] = 6
	_, err := parseHealthSafety(mustJSON(fixture))
	assert.True(t, errors.Is(err, ErrSchemaViolation))

	fixture = healthSafetyFixture(MinHazards, MinPPEItems, MinEmergencyProcedures)
	fixture["hazards"].([]interface{})[0].(map[string]interface{})["residualRisk"] = 30
	_, err = parseHealthSafety(mustJSON(fixture))
	assert.True(t, errors.Is(err, ErrSchemaViolation))
}

func TestParseHealthSafetyDerivesMissingFields(t *testing.T) {
	fixture := healthSafetyFixture(MinHazards, MinPPEItems, MinEmergencyProcedures)
	first := fixture["hazards"].([]interface{})[0].(map[string]interface{})
	delete(first, "id")
	delete(first, "riskScore")
	delete(first, "residualRisk")
	delete(first, "linkedToStep")
	first["riskLevel"] = RiskLow

	result, err := parseHealthSafety(mustJSON(fixture))
	require.NoError(t, err)

	h := result.Hazards[0]
	assert.Equal(t, "hazard-1", h.ID)
	assert.Equal(t, 12, h.RiskScore)
	assert.Equal(t, RiskHigh, h.RiskLevel)
	assert.Equal(t, 3, h.ResidualRisk)
	assert.Equal(t, RiskLow, h.ResidualRiskLevel)
	assert.Equal(t, 0, h.LinkedToStep)
}

func TestParseHealthSafetyAcceptsIntegralFloats(t *testing.T) {
	raw := json.RawMessage(`{
		"summary": "ok",
		"hazards": [
			{"hazard": "a", "likelihood": 3.0, "severity": 5.0, "controlMeasure": "c"},
			{"hazard": "b", "likelihood": 1, "severity": 1, "controlMeasure": "c"},
			{"hazard": "c", "likelihood": 1, "severity": 1, "controlMeasure": "c"},
			{"hazard": "d", "likelihood": 1, "severity": 1, "controlMeasure": "c"},
			{"hazard": "e", "likelihood": 1, "severity": 1, "controlMeasure": "c"}
		],
		"ppe": [
			{"ppeType": "Gloves", "standard": "BS EN 60903", "mandatory": true, "purpose": "shock"},
			{"ppeType": "Boots", "standard": "BS EN ISO 20345", "mandatory": true, "purpose": "crush"},
			{"ppeType": "Glasses", "standard": "BS EN 166", "mandatory": false, "purpose": "debris"}
		],
		"emergencyProcedures": ["a", "b", "c"]
	}`)

	result, err := parseHealthSafety(raw)
	require.NoError(t, err)
	assert.Equal(t, 15, result.Hazards[0].RiskScore)
	assert.Equal(t, RiskVeryHigh, result.Hazards[0].RiskLevel)
	assert.Equal(t, 3, result.PPE[2].ItemNumber)
	assert.Equal(t, []string{}, result.ComplianceRegulations)
}

func TestParseInstaller(t *testing.T) {
	result, err := parseInstaller(mustJSON(installerFixture(MinSteps+2, MinTestingProcedures)))
	require.NoError(t, err)

	require.Len(t, result.Steps, MinSteps+2)
	for i, s := range result.Steps {
		assert.Equal(t, i+1, s.StepNumber)
	}
	assert.Len(t, result.TestingProcedures, MinTestingProcedures)
	assert.Equal(t, []string{}, result.MaterialsRequired)
}

func TestParseInstallerMinimums(t *testing.T) {
	_, err := parseInstaller(mustJSON(installerFixture(MinSteps-1, MinTestingProcedures)))
	assert.True(t, errors.Is(err, ErrSchemaViolation))

	_, err = parseInstaller(mustJSON(installerFixture(MinSteps, MinTestingProcedures-1)))
	assert.True(t, errors.Is(err, ErrSchemaViolation))

	_, err = parseInstaller(json.RawMessage(`{"summary": 3}`))
	assert.True(t, errors.Is(err, ErrSchemaViolation))

	_, err = parseInstaller(nil)
	assert.True(t, errors.Is(err, ErrSchemaViolation))
}

func TestDecodeResultRoundTripsPayload(t *testing.T) {
	hs, err := parseHealthSafety(mustJSON(healthSafetyFixture(6, 4, 3)))
	require.NoError(t, err)
	hs.RAGStats = RAGStats{HealthSafetyDocs: 4, RegulationDocs: 2}

	payload, err := (&Result{Agent: "health_safety", HealthSafety: hs}).Payload()
	require.NoError(t, err)

	decoded, err := DecodeResult("health_safety", payload)
	require.NoError(t, err)
	assert.Equal(t, hs, decoded.HealthSafety)
	assert.Equal(t, 6, decoded.Stats().Total())

	_, err = DecodeResult("unknown", payload)
	assert.Error(t, err)
}
