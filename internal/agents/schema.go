package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Minimum item counts the model output must satisfy
const (
	MinHazards             = 5
	MinPPEItems            = 3
	MinEmergencyProcedures = 3
	MinSteps               = 10
	MinTestingProcedures   = 5
)

// Tool names the model is forced to call
const (
	healthSafetyToolName = "provide_safety_assessment"
	installerToolName    = "provide_method_statement"
)

var riskLevels = []interface{}{RiskLow, RiskMedium, RiskHigh, RiskVeryHigh}

func stringArray(description string, minItems int) map[string]interface{} {
	s := map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
	if minItems > 0 {
		s["minItems"] = minItems
	}
	return s
}

func scoreProperty(description string, max int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
		"minimum":     1,
		"maximum":     max,
	}
}

// healthSafetySchema is sent as the tool parameters and used to validate the
// returned arguments
var healthSafetySchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"summary": map[string]interface{}{
			"type":        "string",
			"description": "Summary of the risk assessment in UK English",
		},
		"hazards": map[string]interface{}{
			"type":        "array",
			"description": "Identified hazards with risk scoring",
			"minItems":    MinHazards,
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id":                map[string]interface{}{"type": "string", "description": "Unique hazard id, e.g. hazard-1"},
					"hazard":            map[string]interface{}{"type": "string", "minLength": 1},
					"linkedToStep":      map[string]interface{}{"type": "integer", "minimum": 0, "description": "0 for general, otherwise the method statement step number"},
					"likelihood":        scoreProperty("Likelihood score 1-5", 5),
					"severity":          scoreProperty("Severity score 1-5", 5),
					"riskScore":         scoreProperty("likelihood x severity", 25),
					"riskLevel":         map[string]interface{}{"type": "string", "enum": riskLevels},
					"controlMeasure":    map[string]interface{}{"type": "string", "minLength": 1},
					"residualRisk":      scoreProperty("Risk score after controls 1-25", 25),
					"residualRiskLevel": map[string]interface{}{"type": "string", "enum": riskLevels},
					"regulation":        map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"hazard", "likelihood", "severity", "controlMeasure"},
			},
		},
		"ppe": map[string]interface{}{
			"type":        "array",
			"description": "Required PPE with UK standards",
			"minItems":    MinPPEItems,
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"itemNumber": map[string]interface{}{"type": "integer", "minimum": 1},
					"ppeType":    map[string]interface{}{"type": "string", "minLength": 1},
					"standard":   map[string]interface{}{"type": "string"},
					"mandatory":  map[string]interface{}{"type": "boolean"},
					"purpose":    map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"ppeType", "standard", "mandatory", "purpose"},
			},
		},
		"emergencyProcedures":   stringArray("Emergency procedures in UK English", MinEmergencyProcedures),
		"complianceRegulations": stringArray("Applicable UK regulations", 0),
	},
	"required": []interface{}{"summary", "hazards", "ppe", "emergencyProcedures"},
}

var installerSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"summary": map[string]interface{}{
			"type":        "string",
			"description": "Summary of the method statement in UK English",
		},
		"steps": map[string]interface{}{
			"type":        "array",
			"description": "Sequential installation steps",
			"minItems":    MinSteps,
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"stepNumber":        map[string]interface{}{"type": "integer", "minimum": 1},
					"title":             map[string]interface{}{"type": "string", "minLength": 1},
					"description":       map[string]interface{}{"type": "string", "minLength": 1},
					"tools":             stringArray("Tools used in this step", 0),
					"materials":         stringArray("Materials used in this step", 0),
					"safetyNotes":       stringArray("Safety notes for this step", 0),
					"linkedHazards":     stringArray("Hazard ids this step relates to", 0),
					"estimatedDuration": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"title", "description", "safetyNotes"},
			},
		},
		"testingProcedures": map[string]interface{}{
			"type":        "array",
			"description": "Inspection and testing procedures",
			"minItems":    MinTestingProcedures,
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name":           map[string]interface{}{"type": "string", "minLength": 1},
					"standard":       map[string]interface{}{"type": "string"},
					"expectedResult": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"name", "expectedResult"},
			},
		},
		"toolsRequired":     stringArray("All tools required for the job", 0),
		"materialsRequired": stringArray("All materials required for the job", 0),
	},
	"required": []interface{}{"summary", "steps", "testingProcedures"},
}

var (
	compiledHealthSafety = mustCompile(healthSafetySchema)
	compiledInstaller    = mustCompile(installerSchema)
)

func mustCompile(schema map[string]interface{}) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid agent schema: %v", err))
	}
	return compiled
}

// validate checks raw against the compiled schema and wraps every failure in
// ErrSchemaViolation
func validate(schema *gojsonschema.Schema, raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty output", ErrSchemaViolation)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	msgs := make([]string, 0, 3)
	for i, e := range errs {
		if i == 3 {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(errs)-3))
			break
		}
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
}
