package orchestrator

import (
	"sync"

	"github.com/elecmate/rams/internal/db/models"
)

// Overall progress bounds while the agents run
const (
	agentsBaseProgress = 10
	agentsSpanProgress = 80
)

// OverallProgress maps the two agent progress values onto the job progress:
// 10 + 0.8 * average, clamped to 0..100 and rounded down
func OverallProgress(hs, installer int) int {
	hs = clamp(hs, 0, 100)
	installer = clamp(installer, 0, 100)
	return clamp(agentsBaseProgress+(agentsSpanProgress*(hs+installer))/200, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// tracker holds the latest progress of each agent of one run. Values only
// increase and writes are serialised, so persisted overall progress never
// decreases.
type tracker struct {
	mu        sync.Mutex
	hs        int
	installer int
}

// advance raises the agent progress and calls write with the new overall
// progress while holding the lock
func (t *tracker) advance(agent models.AgentType, percent int, write func(overall int) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch agent {
	case models.AgentTypeHealthSafety:
		t.hs = max(t.hs, percent)
	case models.AgentTypeInstaller:
		t.installer = max(t.installer, percent)
	}
	return write(OverallProgress(t.hs, t.installer))
}

// agentFields returns the progress and status column names of an agent
func agentFields(agent models.AgentType) (progress, status string) {
	if agent == models.AgentTypeHealthSafety {
		return models.JobHSAgentProgressField, models.JobHSAgentStatusField
	}
	return models.JobInstallerAgentProgressField, models.JobInstallerAgentStatusField
}

// agentLabel is the human readable agent name used in job error messages
func agentLabel(agent models.AgentType) string {
	if agent == models.AgentTypeHealthSafety {
		return "Health & Safety"
	}
	return "Installer"
}
