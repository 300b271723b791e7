package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/elecmate/rams/internal/agents"
	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/db/repos"
)

type generateFunc func(ctx context.Context, in agents.Input, progress agents.ProgressFunc) (*agents.Result, error)

// fakeAgent runs generate and counts calls
type fakeAgent struct {
	agent    models.AgentType
	generate generateFunc
	count    atomic.Int32

	mu    sync.Mutex
	input agents.Input
}

func (f *fakeAgent) Type() models.AgentType {
	return f.agent
}

func (f *fakeAgent) Generate(ctx context.Context, in agents.Input, progress agents.ProgressFunc) (*agents.Result, error) {
	f.count.Add(1)
	f.mu.Lock()
	f.input = in
	f.mu.Unlock()
	return f.generate(ctx, in, progress)
}

func (f *fakeAgent) calls() int {
	return int(f.count.Load())
}

func (f *fakeAgent) lastInput() agents.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// succeed reports the usual checkpoints and returns result
func succeed(result *agents.Result) generateFunc {
	return func(ctx context.Context, _ agents.Input, progress agents.ProgressFunc) (*agents.Result, error) {
		for _, p := range []int{agents.ProgressStarted, agents.ProgressContextReady, agents.ProgressComplete} {
			if err := progress(ctx, p, fmt.Sprintf("step %d", p)); err != nil {
				return nil, err
			}
		}
		return result, nil
	}
}

func failWith(err error) generateFunc {
	return func(ctx context.Context, _ agents.Input, progress agents.ProgressFunc) (*agents.Result, error) {
		if perr := progress(ctx, agents.ProgressStarted, "start"); perr != nil {
			return nil, perr
		}
		return nil, err
	}
}

func hsResult() *agents.Result {
	hazards := []agents.Hazard{
		{ID: "hazard-1", Hazard: "Slips", Likelihood: 2, Severity: 2, RiskScore: 4, ControlMeasure: "Housekeeping", ResidualRisk: 2},
		{ID: "hazard-2", Hazard: "Electric shock", Likelihood: 4, Severity: 5, RiskScore: 20, ControlMeasure: "Safe isolation", ResidualRisk: 5},
		{ID: "hazard-3", Hazard: "Dust", Likelihood: 3, Severity: 3, RiskScore: 9, ControlMeasure: "Masks", ResidualRisk: 3},
		{ID: "hazard-4", Hazard: "Manual handling", Likelihood: 3, Severity: 4, RiskScore: 12, ControlMeasure: "Team lift", ResidualRisk: 4},
		{ID: "hazard-5", Hazard: "Sharp edges", Likelihood: 2, Severity: 3, RiskScore: 6, ControlMeasure: "Gloves", ResidualRisk: 2},
	}
	return &agents.Result{
		Agent: models.AgentTypeHealthSafety,
		HealthSafety: &agents.HealthSafetyResult{
			Summary: "Risk assessment",
			Hazards: agents.NormalizeHazards(hazards),
			PPE: []agents.PPEItem{
				{ItemNumber: 1, PPEType: "Insulated gloves", Standard: "BS EN 60903", Mandatory: true, Purpose: "Shock"},
				{ItemNumber: 2, PPEType: "Safety boots", Standard: "BS EN ISO 20345", Mandatory: true, Purpose: "Crush"},
				{ItemNumber: 3, PPEType: "Safety glasses", Standard: "BS EN 166", Mandatory: false, Purpose: "Debris"},
			},
			EmergencyProcedures:   []string{"Isolate supply", "Call 999", "First aid"},
			ComplianceRegulations: []string{"EAWR 1989"},
			RAGStats:              agents.RAGStats{HealthSafetyDocs: 4, RegulationDocs: 3, SharedReused: true},
		},
	}
}

func installerResult() *agents.Result {
	steps := make([]agents.Step, 10)
	for i := range steps {
		steps[i] = agents.Step{StepNumber: i + 1, Title: fmt.Sprintf("Step %d", i+1), Description: "Do it", SafetyNotes: []string{"Prove dead"}}
	}
	tests := make([]agents.TestingProcedure, 5)
	for i := range tests {
		tests[i] = agents.TestingProcedure{Name: fmt.Sprintf("Test %d", i+1), ExpectedResult: "Pass"}
	}
	return &agents.Result{
		Agent: models.AgentTypeInstaller,
		Installer: &agents.InstallerResult{
			Summary:           "Method statement",
			Steps:             steps,
			TestingProcedures: tests,
			RAGStats:          agents.RAGStats{PracticalDocs: 5, CodeDocs: 2, RegulationDocs: 3, SharedReused: true},
		},
	}
}

// recordingStore wraps the job repository and records every overall
// progress value written. A non-nil progressErr fails every progress write.
type recordingStore struct {
	*repos.JobRepository
	mu          sync.Mutex
	progress    []int
	finishes    int
	panicAt     int
	progressErr error
}

func (r *recordingStore) UpdateProgress(ctx context.Context, id string, progress int, fields map[string]interface{}) error {
	r.mu.Lock()
	r.progress = append(r.progress, progress)
	err := r.progressErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.JobRepository.UpdateProgress(ctx, id, progress, fields)
}

func (r *recordingStore) Finish(ctx context.Context, id string, status models.JobStatus, fields map[string]interface{}) error {
	r.mu.Lock()
	r.finishes++
	n := r.finishes
	r.mu.Unlock()
	if r.panicAt > 0 && n == r.panicAt {
		panic("store exploded")
	}
	return r.JobRepository.Finish(ctx, id, status, fields)
}

func (r *recordingStore) progressWrites() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int{}, r.progress...)
}

// OrchestratorTestSuite runs the orchestrator against an in-memory job store
type OrchestratorTestSuite struct {
	suite.Suite
	db        *gorm.DB
	ctx       context.Context
	repo      *repos.JobRepository
	store     *recordingStore
	hs        *fakeAgent
	installer *fakeAgent

	mu       sync.Mutex
	finished map[string][]models.JobStatus
}

func (s *OrchestratorTestSuite) SetupTest() {
	name := strings.ReplaceAll(s.T().Name(), "/", "_")
	dsn := fmt.Sprintf("file:orch_%s?mode=memory&cache=shared&_json=1", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)
	require.NoError(s.T(), db.AutoMigrate(&models.GenerationJob{}))

	// a single connection serialises the concurrent agent writes
	sqlDB, err := db.DB()
	require.NoError(s.T(), err)
	sqlDB.SetMaxOpenConns(1)

	s.db = db
	s.ctx = context.Background()
	s.repo = repos.NewJobRepository(db)
	s.store = &recordingStore{JobRepository: s.repo}
	s.hs = &fakeAgent{agent: models.AgentTypeHealthSafety, generate: succeed(hsResult())}
	s.installer = &fakeAgent{agent: models.AgentTypeInstaller, generate: succeed(installerResult())}
	s.finished = map[string][]models.JobStatus{}
}

func (s *OrchestratorTestSuite) TearDownTest() {
	sqlDB, err := s.db.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

func (s *OrchestratorTestSuite) orchestrator(timeout time.Duration) *Orchestrator {
	return New(s.store, s.hs, s.installer, nil, Options{
		AgentTimeout: timeout,
		OnFinish: func(jobID string, status models.JobStatus) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.finished[jobID] = append(s.finished[jobID], status)
		},
	})
}

func (s *OrchestratorTestSuite) finishedStatuses(jobID string) []models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished[jobID]
}

func (s *OrchestratorTestSuite) createJob() *models.GenerationJob {
	job := &models.GenerationJob{
		JobDescription: "install an EV charger on a domestic property",
		WorkType:       models.WorkTypeDomestic,
		JobScale:       models.JobScaleSmall,
		ProjectInfo:    models.ProjectInfo{ProjectName: "EV install", Location: "York", Assessor: "J. Smith"},
	}
	s.Require().NoError(s.repo.Create(s.ctx, job))
	return job
}

func (s *OrchestratorTestSuite) reload(id string) *models.GenerationJob {
	job, err := s.repo.GetByID(s.ctx, id)
	s.Require().NoError(err)
	return job
}
