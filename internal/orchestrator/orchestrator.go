// Package orchestrator runs a generation job: it fetches the shared context,
// drives both agents concurrently under independent timeouts, reports
// progress and writes exactly one terminal outcome.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elecmate/rams/internal/agents"
	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/db/repos"
	"github.com/elecmate/rams/internal/logger"
	"github.com/elecmate/rams/internal/metrics"
	"github.com/elecmate/rams/internal/rag"
)

// Defaults applied when Options leaves a value unset
const (
	DefaultAgentTimeout    = 150 * time.Second
	DefaultInitialProgress = 5
)

// Job step labels
const (
	stepInitialising = "Initialising RAMS generation"
	stepComplete     = "RAMS generation complete"
	stepPartial      = "RAMS generation partially complete"
	stepFailed       = "RAMS generation failed"
)

// JobStore is the subset of the job repository the orchestrator writes through
type JobStore interface {
	JobReader
	Claim(ctx context.Context, id string, progress int, step string) (*models.GenerationJob, bool, error)
	UpdateProgress(ctx context.Context, id string, progress int, fields map[string]interface{}) error
	Finish(ctx context.Context, id string, status models.JobStatus, fields map[string]interface{}) error
}

var _ JobStore = (*repos.JobRepository)(nil)

// Options tunes a run
type Options struct {
	AgentTimeout    time.Duration
	InitialProgress int
	// OnFinish is called once per terminal status written by the orchestrator
	OnFinish func(jobID string, status models.JobStatus)
}

// RunResponse is the caller-facing outcome of Run
type RunResponse struct {
	Success   bool   `json:"success"`
	JobID     string `json:"jobId"`
	Partial   bool   `json:"partial,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Orchestrator drives generation jobs
type Orchestrator struct {
	jobs        JobStore
	hs          agents.Agent
	installer   agents.Agent
	regulations rag.Searcher
	opts        Options
}

// New creates an orchestrator. regulations is the shared regulations search
// run once per job and handed to both agents.
func New(jobs JobStore, hs, installer agents.Agent, regulations rag.Searcher, opts Options) *Orchestrator {
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = DefaultAgentTimeout
	}
	if opts.InitialProgress <= 0 {
		opts.InitialProgress = DefaultInitialProgress
	}
	return &Orchestrator{
		jobs:        jobs,
		hs:          hs,
		installer:   installer,
		regulations: rag.Resilient(rag.DomainRegulations, regulations),
		opts:        opts,
	}
}

type agentOutcome struct {
	agent  models.AgentType
	result *agents.Result
	err    error
}

// Run executes the job once. A job that is not pending is never run again;
// its current outcome is returned instead.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (resp RunResponse) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return RunResponse{JobID: jobID, Error: err.Error()}
	}
	if job.Status != models.JobStatusPending {
		return settledResponse(job)
	}

	job, claimed, err := o.jobs.Claim(ctx, jobID, o.opts.InitialProgress, stepInitialising)
	if err != nil {
		return RunResponse{JobID: jobID, Error: err.Error()}
	}
	if !claimed {
		return settledResponse(job)
	}

	log := logger.WithJob(jobID)
	log.Info("generation started")

	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("generation panicked")
			resp = o.fail(ctx, jobID, fmt.Sprintf("generation failed: %v", p))
		}
	}()

	return o.execute(ctx, job, NewStoreToken(o.jobs, jobID))
}

func (o *Orchestrator) execute(ctx context.Context, job *models.GenerationJob, token CancellationToken) RunResponse {
	started := time.Now()

	shared, _ := o.regulations.Search(ctx, job.JobDescription)
	if err := token.Check(ctx); err != nil {
		return o.interrupted(ctx, job.ID, err)
	}

	in := agents.Input{
		Query:             job.JobDescription,
		WorkType:          job.WorkType,
		JobScale:          job.JobScale,
		Project:           job.ProjectInfo,
		SharedRegulations: shared,
	}

	t := &tracker{}
	runners := []agents.Agent{o.hs, o.installer}
	outcomes := make([]agentOutcome, len(runners))
	var wg sync.WaitGroup
	for i, a := range runners {
		wg.Add(1)
		go func(i int, a agents.Agent) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					outcomes[i] = agentOutcome{agent: a.Type(), err: &AgentError{Agent: a.Type(), Err: fmt.Errorf("panic: %v", p)}}
				}
			}()
			outcomes[i] = o.runAgent(ctx, job.ID, a, in, t, token)
		}(i, a)
	}
	wg.Wait()

	if err := token.Check(ctx); err != nil {
		return o.interrupted(ctx, job.ID, err)
	}

	return o.settle(ctx, job, outcomes[0], outcomes[1], time.Since(started))
}

// runAgent runs one agent under its own timeout and records its sub-state.
// It never returns an error; failures are carried in the outcome.
func (o *Orchestrator) runAgent(ctx context.Context, jobID string, a agents.Agent, in agents.Input, t *tracker, token CancellationToken) (out agentOutcome) {
	agent := a.Type()
	out.agent = agent
	log := logger.WithAgent(jobID, agent.String())
	progressField, statusField := agentFields(agent)

	report := func(ctx context.Context, percent int, step string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := token.Check(ctx); err != nil {
			return err
		}
		err := t.advance(agent, percent, func(overall int) error {
			return o.jobs.UpdateProgress(ctx, jobID, overall, map[string]interface{}{
				progressField:              percent,
				statusField:                models.AgentStatusRunning,
				models.JobCurrentStepField: fmt.Sprintf("%s: %s", agentLabel(agent), step),
			})
		})
		if err != nil {
			log.WithError(err).Warn("failed to persist agent progress")
		}
		return nil
	}

	start := time.Now()
	res, err := withTimeout(ctx, o.opts.AgentTimeout, func(ctx context.Context) (*agents.Result, error) {
		return a.Generate(ctx, in, report)
	})
	if err == nil && !hasResult(agent, res) {
		err = errors.New("agent returned no result")
	}

	outcome, status := metrics.AgentResultOK, models.AgentStatusComplete
	switch {
	case errors.Is(err, ErrAgentTimeout):
		outcome, status = metrics.AgentResultTimedOut, models.AgentStatusFailed
	case err != nil:
		outcome, status = metrics.AgentResultFailed, models.AgentStatusFailed
	case res.FromCache:
		outcome, status = metrics.AgentResultCached, models.AgentStatusCached
	}
	metrics.ObserveAgentRun(agent.String(), outcome, time.Since(start))

	fields := map[string]interface{}{statusField: status}
	settled := 0
	if err == nil {
		fields[progressField] = agents.ProgressComplete
		settled = agents.ProgressComplete
	}
	perr := t.advance(agent, settled, func(overall int) error {
		return o.jobs.UpdateProgress(ctx, jobID, overall, fields)
	})
	if perr != nil {
		log.WithError(perr).Warn("failed to persist agent status")
	}

	if err != nil {
		log.WithError(err).Warn("agent failed")
		out.err = &AgentError{Agent: agent, Err: err}
		return out
	}
	log.WithFields(logrus.Fields{"cached": res.FromCache, "docs": res.Stats().Total()}).Info("agent finished")
	out.result = res
	return out
}

func hasResult(agent models.AgentType, res *agents.Result) bool {
	if res == nil {
		return false
	}
	if agent == models.AgentTypeHealthSafety {
		return res.HealthSafety != nil
	}
	return res.Installer != nil
}

// settle classifies the two outcomes and writes the terminal status
func (o *Orchestrator) settle(ctx context.Context, job *models.GenerationJob, hs, inst agentOutcome, elapsed time.Duration) RunResponse {
	header := NewProjectHeader(job)
	md := newGenerationMetadata(elapsed, hs.result, inst.result)

	fields := map[string]interface{}{
		models.JobCacheHitField: md.CacheHits > 0,
	}
	if hs.err == nil {
		if err := setJSON(fields, models.JobRAMSDataField, ToRAMSData(header, hs.result.HealthSafety)); err != nil {
			return o.fail(ctx, job.ID, err.Error())
		}
	}
	if inst.err == nil {
		if err := setJSON(fields, models.JobMethodDataField, ToMethodData(header, inst.result.Installer)); err != nil {
			return o.fail(ctx, job.ID, err.Error())
		}
	}

	var failures []string
	for _, out := range []agentOutcome{hs, inst} {
		if out.err != nil {
			failures = append(failures, out.err.Error())
		}
	}
	message := strings.Join(failures, "; ")

	resp := RunResponse{JobID: job.ID, Error: message}
	var status models.JobStatus
	switch len(failures) {
	case 0:
		// metadata is only attached to fully successful jobs
		if err := setJSON(fields, models.JobGenerationMetadataField, md); err != nil {
			return o.fail(ctx, job.ID, err.Error())
		}
		status = models.JobStatusComplete
		fields[models.JobProgressField] = 100
		fields[models.JobCurrentStepField] = stepComplete
		resp.Success = true
	case 1:
		status = models.JobStatusPartial
		fields[models.JobProgressField] = 100
		fields[models.JobCurrentStepField] = stepPartial
		fields[models.JobErrorMessageField] = message
		resp.Success, resp.Partial = true, true
	default:
		status = models.JobStatusFailed
		fields[models.JobCurrentStepField] = stepFailed
		fields[models.JobErrorMessageField] = message
	}

	if err := o.jobs.Finish(context.WithoutCancel(ctx), job.ID, status, fields); err != nil {
		if errors.Is(err, repos.ErrJobTerminal) {
			return o.current(ctx, job.ID)
		}
		logger.WithJob(job.ID).WithError(err).Error("failed to save generation results")
		return o.fail(ctx, job.ID, fmt.Sprintf("failed to save generation results: %v", err))
	}

	logger.WithJob(job.ID).WithFields(logrus.Fields{
		"status":      status,
		"duration_ms": md.DurationMs,
		"total_docs":  md.TotalDocs,
		"cache_hits":  md.CacheHits,
	}).Info("generation finished")
	o.finished(job.ID, status)
	return resp
}

// interrupted handles a failed checkpoint: a cancelled job is left as is,
// anything else fails the job
func (o *Orchestrator) interrupted(ctx context.Context, jobID string, err error) RunResponse {
	if errors.Is(err, ErrCancelled) {
		logger.WithJob(jobID).Info("generation cancelled")
		return cancelledResponse(jobID)
	}
	return o.fail(ctx, jobID, fmt.Sprintf("generation interrupted: %v", err))
}

// fail writes the failed status. The write ignores cancellation of ctx so the
// job is never left processing.
func (o *Orchestrator) fail(ctx context.Context, jobID, message string) RunResponse {
	err := o.jobs.Finish(context.WithoutCancel(ctx), jobID, models.JobStatusFailed, map[string]interface{}{
		models.JobErrorMessageField: message,
		models.JobCurrentStepField:  stepFailed,
	})
	if errors.Is(err, repos.ErrJobTerminal) {
		return o.current(ctx, jobID)
	}
	if err != nil {
		logger.WithJob(jobID).WithError(err).Error("failed to mark job as failed")
	} else {
		o.finished(jobID, models.JobStatusFailed)
	}
	return RunResponse{JobID: jobID, Error: message}
}

// current returns the outcome already stored for a job that reached a
// terminal status elsewhere, typically a cancel
func (o *Orchestrator) current(ctx context.Context, jobID string) RunResponse {
	job, err := o.jobs.GetByID(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return RunResponse{JobID: jobID, Error: err.Error()}
	}
	return settledResponse(job)
}

func (o *Orchestrator) finished(jobID string, status models.JobStatus) {
	if o.opts.OnFinish != nil {
		o.opts.OnFinish(jobID, status)
	}
}

// settledResponse describes a job that this call did not run
func settledResponse(job *models.GenerationJob) RunResponse {
	switch job.Status {
	case models.JobStatusCancelled:
		return cancelledResponse(job.ID)
	case models.JobStatusComplete:
		return RunResponse{Success: true, JobID: job.ID}
	case models.JobStatusPartial:
		return RunResponse{Success: true, JobID: job.ID, Partial: true, Error: job.ErrorMessage}
	case models.JobStatusFailed:
		return RunResponse{JobID: job.ID, Error: job.ErrorMessage}
	default:
		return RunResponse{JobID: job.ID, Error: fmt.Sprintf("job is already %s", job.Status)}
	}
}

func cancelledResponse(jobID string) RunResponse {
	return RunResponse{JobID: jobID, Cancelled: true, Error: ErrCancelled.Error()}
}

func setJSON(fields map[string]interface{}, column string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", column, err)
	}
	fields[column] = json.RawMessage(data)
	return nil
}
