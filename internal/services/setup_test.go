package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/elecmate/rams/internal/db/models"
	"github.com/elecmate/rams/internal/db/repos"
	"github.com/elecmate/rams/internal/events"
	"github.com/elecmate/rams/internal/orchestrator"
)

// fakeRunner records runs and completes each job it is given
type fakeRunner struct {
	repo *repos.JobRepository
	mu   sync.Mutex
	ran  []string
}

func (r *fakeRunner) Run(ctx context.Context, jobID string) orchestrator.RunResponse {
	r.mu.Lock()
	r.ran = append(r.ran, jobID)
	r.mu.Unlock()

	if _, claimed, err := r.repo.Claim(ctx, jobID, 5, "running"); err != nil || !claimed {
		return orchestrator.RunResponse{JobID: jobID, Error: "not claimed"}
	}
	if err := r.repo.Finish(ctx, jobID, models.JobStatusComplete, map[string]interface{}{models.JobProgressField: 100}); err != nil {
		return orchestrator.RunResponse{JobID: jobID, Error: err.Error()}
	}
	return orchestrator.RunResponse{Success: true, JobID: jobID}
}

func (r *fakeRunner) runs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.ran...)
}

// fakePublisher collects published events
type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *fakePublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event{}, p.events...)
}

// TestSetup sets up an in-memory database and the job service for testing
type TestSetup struct {
	DB         *gorm.DB
	JobRepo    *repos.JobRepository
	CacheRepo  *repos.PartialCacheRepository
	JobService *Job
	Runner     *fakeRunner
	Publisher  *fakePublisher
	ctx        context.Context
}

// NewTestSetup creates a new test setup with an in-memory database
func NewTestSetup(t *testing.T) *TestSetup {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_json=1", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Failed to create in-memory database")

	err = db.AutoMigrate(&models.GenerationJob{}, &models.PartialCacheEntry{})
	require.NoError(t, err, "Failed to run migrations")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	jobRepo := repos.NewJobRepository(db)
	runner := &fakeRunner{repo: jobRepo}
	publisher := &fakePublisher{}

	return &TestSetup{
		DB:         db,
		JobRepo:    jobRepo,
		CacheRepo:  repos.NewPartialCacheRepository(db),
		JobService: NewJobService(jobRepo, runner, publisher),
		Runner:     runner,
		Publisher:  publisher,
		ctx:        context.Background(),
	}
}

// CleanUp cleans up resources after test
func (ts *TestSetup) CleanUp() {
	sqlDB, err := ts.DB.DB()
	if err == nil && sqlDB != nil {
		_ = sqlDB.Close()
	}
}

func (ts *TestSetup) submit(t *testing.T, description string) *models.GenerationJob {
	job, err := ts.JobService.Submit(ts.ctx, SubmitRequest{JobDescription: description})
	require.NoError(t, err)
	return job
}
