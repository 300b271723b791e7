package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/logger"
	"github.com/elecmate/rams/internal/rag"
)

// Regulation chapter prefixes relevant to health and safety
var hsRegulationPrefixes = []string{"41", "54", "70", "531"}

// minFilteredRegulations is the number of chapter matches needed before the
// shared regulations are narrowed to those chapters
const minFilteredRegulations = 3

// Hazard is one risk assessment entry
type Hazard struct {
	ID                string `json:"id"`
	Hazard            string `json:"hazard"`
	Likelihood        int    `json:"likelihood"`
	Severity          int    `json:"severity"`
	RiskScore         int    `json:"riskScore"`
	RiskLevel         string `json:"riskLevel"`
	ControlMeasure    string `json:"controlMeasure"`
	ResidualRisk      int    `json:"residualRisk"`
	ResidualRiskLevel string `json:"residualRiskLevel"`
	LinkedToStep      int    `json:"linkedToStep"`
	Regulation        string `json:"regulation,omitempty"`
}

// PPEItem is one required item of personal protective equipment
type PPEItem struct {
	ItemNumber int    `json:"itemNumber"`
	PPEType    string `json:"ppeType"`
	Standard   string `json:"standard"`
	Mandatory  bool   `json:"mandatory"`
	Purpose    string `json:"purpose"`
}

// HealthSafetyResult is the validated output of the Health & Safety agent
type HealthSafetyResult struct {
	Summary               string    `json:"summary"`
	Hazards               []Hazard  `json:"hazards"`
	PPE                   []PPEItem `json:"ppe"`
	EmergencyProcedures   []string  `json:"emergencyProcedures"`
	ComplianceRegulations []string  `json:"complianceRegulations"`
	RAGStats              RAGStats  `json:"ragStats"`
}

// hazardWire mirrors the schema. Numbers are decoded as floats because the
// schema accepts integral values such as 3.0; zero means the field was omitted.
type hazardWire struct {
	ID             string  `json:"id"`
	Hazard         string  `json:"hazard"`
	LinkedToStep   float64 `json:"linkedToStep"`
	Likelihood     float64 `json:"likelihood"`
	Severity       float64 `json:"severity"`
	RiskScore      float64 `json:"riskScore"`
	ControlMeasure string  `json:"controlMeasure"`
	ResidualRisk   float64 `json:"residualRisk"`
	Regulation     string  `json:"regulation"`
}

type ppeWire struct {
	ItemNumber float64 `json:"itemNumber"`
	PPEType    string  `json:"ppeType"`
	Standard   string  `json:"standard"`
	Mandatory  bool    `json:"mandatory"`
	Purpose    string  `json:"purpose"`
}

type healthSafetyWire struct {
	Summary               string       `json:"summary"`
	Hazards               []hazardWire `json:"hazards"`
	PPE                   []ppeWire    `json:"ppe"`
	EmergencyProcedures   []string     `json:"emergencyProcedures"`
	ComplianceRegulations []string     `json:"complianceRegulations"`
	RAGStats              RAGStats     `json:"ragStats"`
}

// parseHealthSafety validates raw against the schema before decoding it
func parseHealthSafety(raw json.RawMessage) (*HealthSafetyResult, error) {
	if err := validate(compiledHealthSafety, raw); err != nil {
		return nil, err
	}
	var w healthSafetyWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	hazards := make([]Hazard, 0, len(w.Hazards))
	for _, hw := range w.Hazards {
		hazards = append(hazards, Hazard{
			ID:             hw.ID,
			Hazard:         hw.Hazard,
			Likelihood:     toInt(hw.Likelihood),
			Severity:       toInt(hw.Severity),
			RiskScore:      toInt(hw.RiskScore),
			ControlMeasure: hw.ControlMeasure,
			ResidualRisk:   toInt(hw.ResidualRisk),
			LinkedToStep:   toInt(hw.LinkedToStep),
			Regulation:     hw.Regulation,
		})
	}

	ppe := make([]PPEItem, 0, len(w.PPE))
	for i, pw := range w.PPE {
		n := toInt(pw.ItemNumber)
		if n <= 0 {
			n = i + 1
		}
		ppe = append(ppe, PPEItem{
			ItemNumber: n,
			PPEType:    pw.PPEType,
			Standard:   pw.Standard,
			Mandatory:  pw.Mandatory,
			Purpose:    pw.Purpose,
		})
	}

	compliance := w.ComplianceRegulations
	if compliance == nil {
		compliance = []string{}
	}

	return &HealthSafetyResult{
		Summary:               w.Summary,
		Hazards:               NormalizeHazards(hazards),
		PPE:                   ppe,
		EmergencyProcedures:   w.EmergencyProcedures,
		ComplianceRegulations: compliance,
		RAGStats:              w.RAGStats,
	}, nil
}

// HealthSafetyAgent produces the risk assessment half of a RAMS document
type HealthSafetyAgent struct {
	searchers rag.Searchers
	embedder  rag.Embedder
	invoker   rag.ModelInvoker
	maxTokens int
}

var _ Agent = (*HealthSafetyAgent)(nil)

// NewHealthSafetyAgent creates the agent. Searchers are wrapped so a failed
// search never aborts generation. The embedder feeds the hybrid health and
// safety search; its failure does abort generation. A nil embedder leaves the
// searcher to embed on its own.
func NewHealthSafetyAgent(searchers rag.Searchers, embedder rag.Embedder, invoker rag.ModelInvoker, maxTokens int) *HealthSafetyAgent {
	return &HealthSafetyAgent{
		searchers: searchers.Resilient(),
		embedder:  embedder,
		invoker:   invoker,
		maxTokens: maxTokens,
	}
}

// Type returns models.AgentTypeHealthSafety
func (a *HealthSafetyAgent) Type() models.AgentType {
	return models.AgentTypeHealthSafety
}

// Generate runs retrieval, the model call and validation
func (a *HealthSafetyAgent) Generate(ctx context.Context, in Input, progress ProgressFunc) (*Result, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if err := reportProgress(ctx, progress, ProgressStarted, "Retrieving health and safety knowledge"); err != nil {
		return nil, err
	}

	var embedding []float32
	if a.embedder != nil {
		var err error
		if embedding, err = a.embedder.Embed(ctx, in.Query); err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
	}
	hsSearch := rag.WithEmbedding(a.searchers.HealthSafety, embedding)

	var stats RAGStats
	var hsDocs, regulations []rag.Document
	if len(in.SharedRegulations) > 0 {
		stats.SharedReused = true
		regulations = FilterHSRegulations(in.SharedRegulations)
		hsDocs = searchConcurrently(ctx, in.Query, hsSearch)[0]
	} else {
		results := searchConcurrently(ctx, in.Query, hsSearch, a.searchers.Regulations)
		hsDocs, regulations = results[0], results[1]
	}
	stats.HealthSafetyDocs = len(hsDocs)
	stats.RegulationDocs = len(regulations)

	if stats.Total() == 0 {
		logger.WarnWithFields("health and safety agent has no knowledge context", map[string]interface{}{
			"work_type": in.WorkType,
			"job_scale": in.JobScale,
		})
	}

	if err := reportProgress(ctx, progress, ProgressContextReady, "Generating risk assessment"); err != nil {
		return nil, err
	}

	raw, err := a.invoker.Invoke(ctx, rag.ModelRequest{
		Messages: []rag.Message{
			{Role: rag.RoleSystem, Content: healthSafetySystemPrompt},
			{Role: rag.RoleUser, Content: healthSafetyUserPrompt(in, hsDocs, regulations)},
		},
		Tool: rag.Tool{
			Name:        healthSafetyToolName,
			Description: "Provide a health and safety risk assessment for electrical installation work",
			Schema:      healthSafetySchema,
		},
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("health and safety model call: %w", err)
	}

	result, err := parseHealthSafety(raw)
	if err != nil {
		return nil, err
	}
	result.RAGStats = stats

	if err := reportProgress(ctx, progress, ProgressComplete, "Risk assessment complete"); err != nil {
		return nil, err
	}
	return &Result{Agent: models.AgentTypeHealthSafety, HealthSafety: result}, nil
}

// FilterHSRegulations narrows shared regulations to the health and safety
// chapters when enough of them match, otherwise returns them unchanged.
func FilterHSRegulations(docs []rag.Document) []rag.Document {
	filtered := make([]rag.Document, 0, len(docs))
	for _, d := range docs {
		for _, prefix := range hsRegulationPrefixes {
			if strings.HasPrefix(d.RegulationNumber, prefix) {
				filtered = append(filtered, d)
				break
			}
		}
	}
	if len(filtered) >= minFilteredRegulations {
		return filtered
	}
	return docs
}
