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

// Step is one method statement step
type Step struct {
	StepNumber        int      `json:"stepNumber"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Tools             []string `json:"tools"`
	Materials         []string `json:"materials"`
	SafetyNotes       []string `json:"safetyNotes"`
	LinkedHazards     []string `json:"linkedHazards"`
	EstimatedDuration string   `json:"estimatedDuration,omitempty"`
}

// TestingProcedure is one inspection or test carried out after installation
type TestingProcedure struct {
	Name           string `json:"name"`
	Standard       string `json:"standard,omitempty"`
	ExpectedResult string `json:"expectedResult"`
}

// InstallerResult is the validated output of the Installer agent
type InstallerResult struct {
	Summary           string             `json:"summary"`
	Steps             []Step             `json:"steps"`
	TestingProcedures []TestingProcedure `json:"testingProcedures"`
	ToolsRequired     []string           `json:"toolsRequired"`
	MaterialsRequired []string           `json:"materialsRequired"`
	RAGStats          RAGStats           `json:"ragStats"`
}

// stepWire accepts integral floats such as 3.0 for the step number
type stepWire struct {
	Step
	StepNumber float64 `json:"stepNumber"`
}

type installerWire struct {
	InstallerResult
	Steps []stepWire `json:"steps"`
}

// parseInstaller validates raw against the schema, decodes it and renumbers
// the steps 1..N in the order given
func parseInstaller(raw json.RawMessage) (*InstallerResult, error) {
	if err := validate(compiledInstaller, raw); err != nil {
		return nil, err
	}
	var w installerWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	r := w.InstallerResult
	r.Steps = make([]Step, 0, len(w.Steps))
	for i, sw := range w.Steps {
		s := sw.Step
		s.StepNumber = i + 1
		s.Tools = nonNil(s.Tools)
		s.Materials = nonNil(s.Materials)
		s.SafetyNotes = nonNil(s.SafetyNotes)
		s.LinkedHazards = nonNil(s.LinkedHazards)
		r.Steps = append(r.Steps, s)
	}
	r.ToolsRequired = nonNil(r.ToolsRequired)
	r.MaterialsRequired = nonNil(r.MaterialsRequired)
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// InstallerAgent produces the method statement half of a RAMS document
type InstallerAgent struct {
	searchers rag.Searchers
	invoker   rag.ModelInvoker
	maxTokens int
}

var _ Agent = (*InstallerAgent)(nil)

// NewInstallerAgent creates the agent. Searchers are wrapped so a failed
// search never aborts generation.
func NewInstallerAgent(searchers rag.Searchers, invoker rag.ModelInvoker, maxTokens int) *InstallerAgent {
	return &InstallerAgent{
		searchers: searchers.Resilient(),
		invoker:   invoker,
		maxTokens: maxTokens,
	}
}

// Type returns models.AgentTypeInstaller
func (a *InstallerAgent) Type() models.AgentType {
	return models.AgentTypeInstaller
}

// Generate runs retrieval, the model call and validation
func (a *InstallerAgent) Generate(ctx context.Context, in Input, progress ProgressFunc) (*Result, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if err := reportProgress(ctx, progress, ProgressStarted, "Retrieving installation knowledge"); err != nil {
		return nil, err
	}

	results := searchConcurrently(ctx, in.Query, a.searchers.PracticalWork, a.searchers.CodeIntelligence)
	practical, code := results[0], results[1]

	stats := RAGStats{
		PracticalDocs:  len(practical),
		CodeDocs:       len(code),
		RegulationDocs: len(in.SharedRegulations),
		SharedReused:   len(in.SharedRegulations) > 0,
	}
	if stats.Total() == 0 {
		logger.WarnWithFields("installer agent has no knowledge context", map[string]interface{}{
			"work_type": in.WorkType,
			"job_scale": in.JobScale,
		})
	}

	if err := reportProgress(ctx, progress, ProgressContextReady, "Generating method statement"); err != nil {
		return nil, err
	}

	raw, err := a.invoker.Invoke(ctx, rag.ModelRequest{
		Messages: []rag.Message{
			{Role: rag.RoleSystem, Content: installerSystemPrompt},
			{Role: rag.RoleUser, Content: installerUserPrompt(in, practical, code)},
		},
		Tool: rag.Tool{
			Name:        installerToolName,
			Description: "Provide a step by step method statement for electrical installation work",
			Schema:      installerSchema,
		},
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("installer model call: %w", err)
	}

	result, err := parseInstaller(raw)
	if err != nil {
		return nil, err
	}
	result.RAGStats = stats

	if err := reportProgress(ctx, progress, ProgressComplete, "Method statement complete"); err != nil {
		return nil, err
	}
	return &Result{Agent: models.AgentTypeInstaller, Installer: result}, nil
}
