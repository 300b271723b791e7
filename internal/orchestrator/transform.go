package orchestrator

import (
	"sort"
	"time"

	"github.com/elecmate/rams/internal/agents"
	"github.com/elecmate/rams/internal/db/models"
)

const headerDateLayout = "2006-01-02"

// ProjectHeader is the document header shared by the RAMS and method statement outputs
type ProjectHeader struct {
	ProjectName    string `json:"projectName"`
	Location       string `json:"location"`
	Contractor     string `json:"contractor"`
	Supervisor     string `json:"supervisor"`
	Assessor       string `json:"assessor"`
	Date           string `json:"date"`
	JobDescription string `json:"jobDescription"`
	WorkType       string `json:"workType"`
	JobScale       string `json:"jobScale"`
}

// NewProjectHeader builds the header from a job row
func NewProjectHeader(job *models.GenerationJob) ProjectHeader {
	created := job.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return ProjectHeader{
		ProjectName:    job.ProjectInfo.ProjectName,
		Location:       job.ProjectInfo.Location,
		Contractor:     job.ProjectInfo.Contractor,
		Supervisor:     job.ProjectInfo.Supervisor,
		Assessor:       job.ProjectInfo.Assessor,
		Date:           created.UTC().Format(headerDateLayout),
		JobDescription: job.JobDescription,
		WorkType:       job.WorkType,
		JobScale:       job.JobScale,
	}
}

// Risk is one row of the persisted risk assessment
type Risk struct {
	ID                string `json:"id"`
	Hazard            string `json:"hazard"`
	Likelihood        int    `json:"likelihood"`
	Severity          int    `json:"severity"`
	RiskScore         int    `json:"riskScore"`
	RiskLevel         string `json:"riskLevel"`
	Controls          string `json:"controls"`
	ResidualRisk      int    `json:"residualRisk"`
	ResidualRiskLevel string `json:"residualRiskLevel"`
	LinkedToStep      int    `json:"linkedToStep"`
	Regulation        string `json:"regulation,omitempty"`
}

// RAMSData is the persisted risk assessment document
type RAMSData struct {
	ProjectHeader
	Summary               string           `json:"summary"`
	Risks                 []Risk           `json:"risks"`
	RequiredPPE           []string         `json:"requiredPPE"`
	PPEDetails            []agents.PPEItem `json:"ppeDetails"`
	EmergencyProcedures   []string         `json:"emergencyProcedures"`
	ComplianceRegulations []string         `json:"complianceRegulations"`
}

// MethodStep is one step of the persisted method statement
type MethodStep struct {
	StepNumber        int      `json:"stepNumber"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Tools             []string `json:"tools"`
	Materials         []string `json:"materials"`
	SafetyNotes       []string `json:"safetyNotes"`
	LinkedHazards     []string `json:"linkedHazards"`
	EstimatedDuration string   `json:"estimatedDuration,omitempty"`
}

// MethodData is the persisted method statement document
type MethodData struct {
	ProjectHeader
	Summary           string                    `json:"summary"`
	TotalSteps        int                       `json:"totalSteps"`
	Steps             []MethodStep              `json:"steps"`
	TestingProcedures []agents.TestingProcedure `json:"testingProcedures"`
	ToolsRequired     []string                  `json:"toolsRequired"`
	MaterialsRequired []string                  `json:"materialsRequired"`
}

// GenerationMetadata summarises a finished run
type GenerationMetadata struct {
	DurationMs     int64 `json:"durationMs"`
	HSDocs         int   `json:"hsDocs"`
	RegulationDocs int   `json:"regulationDocs"`
	InstallerDocs  int   `json:"installerDocs"`
	TotalDocs      int   `json:"totalDocs"`
	CacheHits      int   `json:"cacheHits"`
}

// ToRAMSData converts the Health & Safety result into the persisted shape.
// Risks are ordered by descending risk score.
func ToRAMSData(header ProjectHeader, hs *agents.HealthSafetyResult) RAMSData {
	risks := make([]Risk, 0, len(hs.Hazards))
	for _, h := range agents.NormalizeHazards(hs.Hazards) {
		risks = append(risks, Risk{
			ID:                h.ID,
			Hazard:            h.Hazard,
			Likelihood:        h.Likelihood,
			Severity:          h.Severity,
			RiskScore:         h.RiskScore,
			RiskLevel:         h.RiskLevel,
			Controls:          h.ControlMeasure,
			ResidualRisk:      h.ResidualRisk,
			ResidualRiskLevel: h.ResidualRiskLevel,
			LinkedToStep:      h.LinkedToStep,
			Regulation:        h.Regulation,
		})
	}
	sort.SliceStable(risks, func(i, j int) bool {
		return risks[i].RiskScore > risks[j].RiskScore
	})

	ppe := make([]string, 0, len(hs.PPE))
	for _, item := range hs.PPE {
		ppe = append(ppe, item.PPEType)
	}

	return RAMSData{
		ProjectHeader:         header,
		Summary:               hs.Summary,
		Risks:                 risks,
		RequiredPPE:           ppe,
		PPEDetails:            append([]agents.PPEItem{}, hs.PPE...),
		EmergencyProcedures:   nonNil(hs.EmergencyProcedures),
		ComplianceRegulations: nonNil(hs.ComplianceRegulations),
	}
}

// ToMethodData converts the Installer result into the persisted shape
func ToMethodData(header ProjectHeader, inst *agents.InstallerResult) MethodData {
	steps := make([]MethodStep, 0, len(inst.Steps))
	for _, s := range inst.Steps {
		steps = append(steps, MethodStep{
			StepNumber:        s.StepNumber,
			Title:             s.Title,
			Description:       s.Description,
			Tools:             nonNil(s.Tools),
			Materials:         nonNil(s.Materials),
			SafetyNotes:       nonNil(s.SafetyNotes),
			LinkedHazards:     nonNil(s.LinkedHazards),
			EstimatedDuration: s.EstimatedDuration,
		})
	}

	return MethodData{
		ProjectHeader:     header,
		Summary:           inst.Summary,
		TotalSteps:        len(steps),
		Steps:             steps,
		TestingProcedures: append([]agents.TestingProcedure{}, inst.TestingProcedures...),
		ToolsRequired:     nonNil(inst.ToolsRequired),
		MaterialsRequired: nonNil(inst.MaterialsRequired),
	}
}

// newGenerationMetadata derives the run summary from whichever agents succeeded
func newGenerationMetadata(duration time.Duration, hs, installer *agents.Result) GenerationMetadata {
	hsStats := hs.Stats()
	instStats := installer.Stats()

	md := GenerationMetadata{
		DurationMs:     duration.Milliseconds(),
		HSDocs:         hsStats.HealthSafetyDocs,
		RegulationDocs: max(hsStats.RegulationDocs, instStats.RegulationDocs),
		InstallerDocs:  instStats.PracticalDocs + instStats.CodeDocs,
	}
	md.TotalDocs = md.HSDocs + md.RegulationDocs + md.InstallerDocs
	for _, r := range []*agents.Result{hs, installer} {
		if r != nil && r.FromCache {
			md.CacheHits++
		}
	}
	return md
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
