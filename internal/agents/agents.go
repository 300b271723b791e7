// Package agents implements the Health & Safety and Installer generation
// agents. Each agent gathers knowledge base context, invokes the model with a
// strict schema and returns a typed, validated result.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/rag"
)

// Agent progress checkpoints
const (
	ProgressStarted      = 10
	ProgressContextReady = 40
	ProgressComplete     = 100
)

// ErrSchemaViolation is returned when the model output does not satisfy the agent schema
var ErrSchemaViolation = errors.New("model output violates schema")

// ProgressFunc reports agent-local progress. A non-nil error aborts the agent.
type ProgressFunc func(ctx context.Context, percent int, step string) error

// Input is the job context passed to an agent
type Input struct {
	Query    string
	WorkType string
	JobScale string
	Project  models.ProjectInfo
	// SharedRegulations is the regulations context fetched once for both agents
	SharedRegulations []rag.Document
}

// RAGStats records how much context an agent retrieved
type RAGStats struct {
	HealthSafetyDocs int  `json:"healthSafetyDocs"`
	RegulationDocs   int  `json:"regulationDocs"`
	PracticalDocs    int  `json:"practicalDocs"`
	CodeDocs         int  `json:"codeDocs"`
	SharedReused     bool `json:"sharedReused"`
}

// Total returns the number of documents across every source
func (s RAGStats) Total() int {
	return s.HealthSafetyDocs + s.RegulationDocs + s.PracticalDocs + s.CodeDocs
}

// Agent produces one structured result for a job
type Agent interface {
	Type() models.AgentType
	Generate(ctx context.Context, in Input, progress ProgressFunc) (*Result, error)
}

// Result is the output of one agent. Exactly one of HealthSafety and
// Installer is set, matching Agent.
type Result struct {
	Agent        models.AgentType
	HealthSafety *HealthSafetyResult
	Installer    *InstallerResult
	FromCache    bool
}

// Stats returns the retrieval statistics of whichever result is set
func (r *Result) Stats() RAGStats {
	switch {
	case r == nil:
		return RAGStats{}
	case r.HealthSafety != nil:
		return r.HealthSafety.RAGStats
	case r.Installer != nil:
		return r.Installer.RAGStats
	default:
		return RAGStats{}
	}
}

// Payload returns the JSON form of the typed result
func (r *Result) Payload() (json.RawMessage, error) {
	switch r.Agent {
	case models.AgentTypeHealthSafety:
		if r.HealthSafety == nil {
			return nil, fmt.Errorf("health and safety result is empty")
		}
		return json.Marshal(r.HealthSafety)
	case models.AgentTypeInstaller:
		if r.Installer == nil {
			return nil, fmt.Errorf("installer result is empty")
		}
		return json.Marshal(r.Installer)
	default:
		return nil, fmt.Errorf("unknown agent type %q", r.Agent)
	}
}

// DecodeResult validates a stored payload against the agent schema and
// returns the typed result
func DecodeResult(agent models.AgentType, raw json.RawMessage) (*Result, error) {
	switch agent {
	case models.AgentTypeHealthSafety:
		hs, err := parseHealthSafety(raw)
		if err != nil {
			return nil, err
		}
		return &Result{Agent: agent, HealthSafety: hs}, nil
	case models.AgentTypeInstaller:
		inst, err := parseInstaller(raw)
		if err != nil {
			return nil, err
		}
		return &Result{Agent: agent, Installer: inst}, nil
	default:
		return nil, fmt.Errorf("unknown agent type %q", agent)
	}
}

func reportProgress(ctx context.Context, progress ProgressFunc, percent int, step string) error {
	if progress == nil {
		return nil
	}
	return progress(ctx, percent, step)
}
