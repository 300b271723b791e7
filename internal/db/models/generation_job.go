package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Column names for partial updates of generation jobs
const (
	JobStatusField                 = "status"
	JobProgressField               = "progress"
	JobCurrentStepField            = "current_step"
	JobHSAgentProgressField        = "hs_agent_progress"
	JobHSAgentStatusField          = "hs_agent_status"
	JobInstallerAgentProgressField = "installer_agent_progress"
	JobInstallerAgentStatusField   = "installer_agent_status"
	JobRAMSDataField               = "rams_data"
	JobMethodDataField             = "method_data"
	JobErrorMessageField           = "error_message"
	JobGenerationMetadataField     = "generation_metadata"
	JobCacheHitField               = "cache_hit"
	JobStartedAtField              = "started_at"
	JobCompletedAtField            = "completed_at"
	JobCreatedAtField              = "created_at"
)

// MaxJobDescriptionLength bounds the free-text job description
const MaxJobDescriptionLength = 1000

// JobStatus represents the lifecycle state of a generation job
type JobStatus string

// Job status constants
const (
	// JobStatusPending indicates the job was created and has not been picked up
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates the orchestrator is running the agents
	JobStatusProcessing JobStatus = "processing"
	// JobStatusPartial indicates exactly one agent succeeded
	JobStatusPartial JobStatus = "partial"
	// JobStatusComplete indicates both agents succeeded
	JobStatusComplete JobStatus = "complete"
	// JobStatusFailed indicates both agents failed or the controller itself failed
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled by the caller
	JobStatusCancelled JobStatus = "cancelled"
)

// TerminalJobStatuses lists every status after which the job row is frozen
var TerminalJobStatuses = []JobStatus{
	JobStatusPartial,
	JobStatusComplete,
	JobStatusFailed,
	JobStatusCancelled,
}

// String returns the string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further mutation of the job is permitted
func (s JobStatus) IsTerminal() bool {
	for _, t := range TerminalJobStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// ParseJobStatus converts a string to a JobStatus
func ParseJobStatus(str string) (JobStatus, error) {
	switch JobStatus(strings.ToLower(str)) {
	case JobStatusPending:
		return JobStatusPending, nil
	case JobStatusProcessing:
		return JobStatusProcessing, nil
	case JobStatusPartial:
		return JobStatusPartial, nil
	case JobStatusComplete:
		return JobStatusComplete, nil
	case JobStatusFailed:
		return JobStatusFailed, nil
	case JobStatusCancelled:
		return JobStatusCancelled, nil
	default:
		return "", fmt.Errorf("invalid job status: %s", str)
	}
}

// AgentStatus represents the sub-state of one agent inside a job
type AgentStatus string

// Agent status constants
const (
	AgentStatusPending  AgentStatus = "pending"
	AgentStatusRunning  AgentStatus = "running"
	AgentStatusComplete AgentStatus = "complete"
	AgentStatusCached   AgentStatus = "cached"
	AgentStatusFailed   AgentStatus = "failed"
)

// WorkType constants used as cache filters and prompt context
const (
	WorkTypeDomestic   = "domestic"
	WorkTypeCommercial = "commercial"
	WorkTypeIndustrial = "industrial"
)

// JobScale constants used as cache filters and prompt context
const (
	JobScaleSmall  = "small"
	JobScaleMedium = "medium"
	JobScaleLarge  = "large"
)

// ProjectInfo is the structured project context passed through to prompts and outputs
type ProjectInfo struct {
	ProjectName string `json:"projectName"`
	Location    string `json:"location"`
	Contractor  string `json:"contractor"`
	Supervisor  string `json:"supervisor"`
	Assessor    string `json:"assessor"`
}

// Value implements the driver.Valuer interface
func (p ProjectInfo) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface
func (p *ProjectInfo) Scan(value interface{}) error {
	if value == nil {
		*p = ProjectInfo{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal project info: %v", value)
	}
	return json.Unmarshal(data, p)
}

// GenerationJob is the persisted unit of work for one RAMS generation request
type GenerationJob struct {
	ID                     string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID                 string          `json:"user_id,omitempty" gorm:"index"`
	Status                 JobStatus       `json:"status" gorm:"not null;index"`
	JobDescription         string          `json:"job_description" gorm:"type:text;not null"`
	WorkType               string          `json:"work_type" gorm:"not null;default:domestic"`
	JobScale               string          `json:"job_scale" gorm:"not null;default:small"`
	ProjectInfo            ProjectInfo     `json:"project_info" gorm:"type:jsonb"`
	Progress               int             `json:"progress" gorm:"not null;default:0"`
	CurrentStep            string          `json:"current_step,omitempty" gorm:"type:text"`
	HSAgentProgress        int             `json:"hs_agent_progress" gorm:"not null;default:0"`
	HSAgentStatus          AgentStatus     `json:"hs_agent_status,omitempty"`
	InstallerAgentProgress int             `json:"installer_agent_progress" gorm:"not null;default:0"`
	InstallerAgentStatus   AgentStatus     `json:"installer_agent_status,omitempty"`
	RAMSData               json.RawMessage `json:"rams_data,omitempty" gorm:"column:rams_data;type:jsonb"`
	MethodData             json.RawMessage `json:"method_data,omitempty" gorm:"type:jsonb"`
	ErrorMessage           string          `json:"error_message,omitempty" gorm:"type:text"`
	GenerationMetadata     json.RawMessage `json:"generation_metadata,omitempty" gorm:"type:jsonb"`
	CacheHit               bool            `json:"cache_hit" gorm:"not null;default:false"`
	StartedAt              *time.Time      `json:"started_at,omitempty"`
	CompletedAt            *time.Time      `json:"completed_at,omitempty"`
	CreatedAt              time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// TableName keeps the table name stable regardless of the struct name
func (GenerationJob) TableName() string {
	return "rams_generation_jobs"
}

// Validate ensures that the job data is valid
func (j *GenerationJob) Validate() error {
	if strings.TrimSpace(j.JobDescription) == "" {
		return fmt.Errorf("job description cannot be empty")
	}
	if len(j.JobDescription) > MaxJobDescriptionLength {
		return fmt.Errorf("job description must be less than %d characters", MaxJobDescriptionLength)
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new job
func (j *GenerationJob) BeforeCreate(_ *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	if j.WorkType == "" {
		j.WorkType = WorkTypeDomestic
	}
	if j.JobScale == "" {
		j.JobScale = JobScaleSmall
	}
	if j.HSAgentStatus == "" {
		j.HSAgentStatus = AgentStatusPending
	}
	if j.InstallerAgentStatus == "" {
		j.InstallerAgentStatus = AgentStatusPending
	}
	return j.Validate()
}
