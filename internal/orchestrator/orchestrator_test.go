package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/elecmate/rams/internal/agents"
	"github.com/elecmate/rams/internal/db/models"
)

func TestOrchestrator(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (s *OrchestratorTestSuite) TestRunComplete() {
	job := s.createJob()

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.Equal(RunResponse{Success: true, JobID: job.ID}, resp)

	stored := s.reload(job.ID)
	s.Equal(models.JobStatusComplete, stored.Status)
	s.Equal(100, stored.Progress)
	s.Equal(models.AgentStatusComplete, stored.HSAgentStatus)
	s.Equal(models.AgentStatusComplete, stored.InstallerAgentStatus)
	s.Equal(100, stored.HSAgentProgress)
	s.Equal(100, stored.InstallerAgentProgress)
	s.Empty(stored.ErrorMessage)
	s.False(stored.CacheHit)
	s.NotNil(stored.StartedAt)
	s.NotNil(stored.CompletedAt)

	var rams RAMSData
	s.Require().NoError(json.Unmarshal(stored.RAMSData, &rams))
	s.Equal("EV install", rams.ProjectName)
	s.Equal("J. Smith", rams.Assessor)
	s.Require().Len(rams.Risks, 5)
	s.True(sort.SliceIsSorted(rams.Risks, func(i, j int) bool {
		return rams.Risks[i].RiskScore > rams.Risks[j].RiskScore
	}))
	s.Equal("Electric shock", rams.Risks[0].Hazard)

	var method MethodData
	s.Require().NoError(json.Unmarshal(stored.MethodData, &method))
	s.Equal(10, method.TotalSteps)
	s.Len(method.TestingProcedures, 5)

	var md GenerationMetadata
	s.Require().NoError(json.Unmarshal(stored.GenerationMetadata, &md))
	s.Equal(4, md.HSDocs)
	s.Equal(3, md.RegulationDocs)
	s.Equal(7, md.InstallerDocs)
	s.Equal(14, md.TotalDocs)
	s.Zero(md.CacheHits)

	s.Equal([]models.JobStatus{models.JobStatusComplete}, s.finishedStatuses(job.ID))
}

func (s *OrchestratorTestSuite) TestRunPassesJobContextToAgents() {
	job := s.createJob()

	s.orchestrator(time.Second).Run(s.ctx, job.ID)

	for _, a := range []*fakeAgent{s.hs, s.installer} {
		in := a.lastInput()
		s.Equal(job.JobDescription, in.Query)
		s.Equal(models.WorkTypeDomestic, in.WorkType)
		s.Equal(models.JobScaleSmall, in.JobScale)
		s.Equal("York", in.Project.Location)
		s.NotNil(in.SharedRegulations)
	}
}

func (s *OrchestratorTestSuite) TestRunProgressNeverDecreases() {
	job := s.createJob()

	s.orchestrator(time.Second).Run(s.ctx, job.ID)

	writes := s.store.progressWrites()
	s.Require().NotEmpty(writes)
	s.True(sort.IntsAreSorted(writes), "progress writes %v", writes)
	s.Equal(90, writes[len(writes)-1])
	s.Equal(100, s.reload(job.ID).Progress)
}

func (s *OrchestratorTestSuite) TestRunPartialWhenInstallerFails() {
	job := s.createJob()
	s.installer.generate = failWith(errors.New("model unavailable"))

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.True(resp.Success)
	s.True(resp.Partial)
	s.Contains(resp.Error, "Installer agent failed: model unavailable")

	stored := s.reload(job.ID)
	s.Equal(models.JobStatusPartial, stored.Status)
	s.Equal(100, stored.Progress)
	s.NotEmpty(stored.RAMSData)
	s.Empty(stored.MethodData)
	s.Equal(models.AgentStatusComplete, stored.HSAgentStatus)
	s.Equal(models.AgentStatusFailed, stored.InstallerAgentStatus)
	s.Contains(stored.ErrorMessage, "Installer agent failed")
	s.Empty(stored.GenerationMetadata)
	s.Equal([]models.JobStatus{models.JobStatusPartial}, s.finishedStatuses(job.ID))
}

func (s *OrchestratorTestSuite) TestRunPartialWhenHealthSafetyFails() {
	job := s.createJob()
	s.hs.generate = failWith(agents.ErrSchemaViolation)

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.True(resp.Partial)
	s.Contains(resp.Error, "Health & Safety agent failed")

	stored := s.reload(job.ID)
	s.Equal(models.JobStatusPartial, stored.Status)
	s.Empty(stored.RAMSData)
	s.NotEmpty(stored.MethodData)
}

func (s *OrchestratorTestSuite) TestRunFailedWhenBothFail() {
	job := s.createJob()
	s.hs.generate = failWith(errors.New("hs boom"))
	s.installer.generate = failWith(errors.New("installer boom"))

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.False(resp.Success)
	s.False(resp.Partial)
	s.Contains(resp.Error, "hs boom")
	s.Contains(resp.Error, "installer boom")

	stored := s.reload(job.ID)
	s.Equal(models.JobStatusFailed, stored.Status)
	s.Contains(stored.ErrorMessage, "hs boom")
	s.Contains(stored.ErrorMessage, "installer boom")
	s.Less(stored.Progress, 100)
	s.Empty(stored.RAMSData)
	s.Empty(stored.MethodData)
	s.Empty(stored.GenerationMetadata)
	s.Equal([]models.JobStatus{models.JobStatusFailed}, s.finishedStatuses(job.ID))
}

func (s *OrchestratorTestSuite) TestRunProgressPersistenceFailureIsSwallowed() {
	job := s.createJob()
	s.store.progressErr = errors.New("database unavailable")

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.True(resp.Success)
	s.False(resp.Partial)
	s.Empty(resp.Error)
	s.NotEmpty(s.store.progressWrites())

	stored := s.reload(job.ID)
	s.Equal(models.JobStatusComplete, stored.Status)
	s.Equal(100, stored.Progress)
	s.NotEmpty(stored.RAMSData)
	s.NotEmpty(stored.MethodData)
	s.NotEmpty(stored.GenerationMetadata)
}

func (s *OrchestratorTestSuite) TestRunAgentTimeoutIsIndependent() {
	job := s.createJob()
	release := make(chan struct{})
	defer close(release)
	s.installer.generate = func(ctx context.Context, _ agents.Input, _ agents.ProgressFunc) (*agents.Result, error) {
		// ignores its context until the test ends
		<-release
		return installerResult(), nil
	}

	started := time.Now()
	resp := s.orchestrator(100 * time.Millisecond).Run(s.ctx, job.ID)
	s.Less(time.Since(started), 5*time.Second)

	s.True(resp.Partial)
	s.Contains(resp.Error, "timed out")

	stored := s.reload(job.ID)
	s.Equal(models.JobStatusPartial, stored.Status)
	s.Equal(models.AgentStatusComplete, stored.HSAgentStatus)
	s.Equal(models.AgentStatusFailed, stored.InstallerAgentStatus)
}

func (s *OrchestratorTestSuite) TestRunAlreadyCancelled() {
	job := s.createJob()
	s.Require().NoError(s.repo.Cancel(s.ctx, job.ID))
	before := s.reload(job.ID)

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.Equal(RunResponse{JobID: job.ID, Cancelled: true, Error: "job was cancelled"}, resp)

	after := s.reload(job.ID)
	s.Equal(before.UpdatedAt, after.UpdatedAt)
	s.Zero(after.Progress)
	s.Zero(s.hs.calls())
	s.Zero(s.installer.calls())
	s.Empty(s.finishedStatuses(job.ID))
}

func (s *OrchestratorTestSuite) TestRunCancelledMidway() {
	job := s.createJob()
	s.hs.generate = func(ctx context.Context, _ agents.Input, progress agents.ProgressFunc) (*agents.Result, error) {
		if err := progress(ctx, agents.ProgressStarted, "start"); err != nil {
			return nil, err
		}
		if err := s.repo.Cancel(ctx, job.ID); err != nil {
			return nil, err
		}
		if err := progress(ctx, agents.ProgressContextReady, "context"); err != nil {
			return nil, err
		}
		return hsResult(), nil
	}

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.True(resp.Cancelled)
	s.False(resp.Success)

	stored := s.reload(job.ID)
	s.Equal(models.JobStatusCancelled, stored.Status)
	s.Empty(stored.RAMSData)
	s.Empty(stored.MethodData)
	s.Empty(s.finishedStatuses(job.ID))
}

func (s *OrchestratorTestSuite) TestRunIsIdempotent() {
	job := s.createJob()
	orch := s.orchestrator(time.Second)

	first := orch.Run(s.ctx, job.ID)
	second := orch.Run(s.ctx, job.ID)

	s.True(first.Success)
	s.Equal(first, second)
	s.Equal(1, s.hs.calls())
	s.Equal(1, s.installer.calls())
	s.Equal([]models.JobStatus{models.JobStatusComplete}, s.finishedStatuses(job.ID))
}

func (s *OrchestratorTestSuite) TestRunMissingJob() {
	resp := s.orchestrator(time.Second).Run(s.ctx, "missing")
	s.False(resp.Success)
	s.Contains(resp.Error, "job not found")
}

func (s *OrchestratorTestSuite) TestRunAgentPanicFailsOnlyThatAgent() {
	job := s.createJob()
	s.hs.generate = func(context.Context, agents.Input, agents.ProgressFunc) (*agents.Result, error) {
		panic("nil map")
	}

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.True(resp.Partial)
	s.Contains(resp.Error, "panic: nil map")
	s.Equal(models.JobStatusPartial, s.reload(job.ID).Status)
}

func (s *OrchestratorTestSuite) TestRunRecoversControllerPanic() {
	job := s.createJob()
	s.store.panicAt = 1

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.False(resp.Success)
	s.Contains(resp.Error, "store exploded")

	stored := s.reload(job.ID)
	s.Equal(models.JobStatusFailed, stored.Status)
	s.Contains(stored.ErrorMessage, "store exploded")
}

func (s *OrchestratorTestSuite) TestRunRecordsCacheHits() {
	job := s.createJob()
	cached := installerResult()
	cached.FromCache = true
	s.installer.generate = func(ctx context.Context, _ agents.Input, progress agents.ProgressFunc) (*agents.Result, error) {
		return cached, progress(ctx, agents.ProgressComplete, "Loaded from cache")
	}

	resp := s.orchestrator(time.Second).Run(s.ctx, job.ID)
	s.True(resp.Success)

	stored := s.reload(job.ID)
	s.True(stored.CacheHit)
	s.Equal(models.AgentStatusCached, stored.InstallerAgentStatus)

	var md GenerationMetadata
	s.Require().NoError(json.Unmarshal(stored.GenerationMetadata, &md))
	s.Equal(1, md.CacheHits)
}
