package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Column names for partial cache updates
const (
	CacheHitCountField   = "hit_count"
	CacheLastUsedAtField = "last_used_at"
	CacheExpiresAtField  = "expires_at"
)

// AgentType identifies which agent produced a cached output
type AgentType string

// Agent type constants
const (
	AgentTypeHealthSafety AgentType = "health_safety"
	AgentTypeInstaller    AgentType = "installer"
)

// String returns the string representation of the agent type
func (a AgentType) String() string {
	return string(a)
}

// Vector is an embedding stored as a JSON array
type Vector []float32

// Value implements the driver.Valuer interface
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements the sql.Scanner interface
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	var data []byte
	switch val := value.(type) {
	case []byte:
		data = val
	case string:
		data = []byte(val)
	default:
		return fmt.Errorf("failed to unmarshal vector: %v", value)
	}
	return json.Unmarshal(data, v)
}

// PartialCacheEntry is one agent output cached for reuse by later similar jobs
type PartialCacheEntry struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	AgentType      AgentType       `json:"agent_type" gorm:"not null;index:idx_partial_cache_filter"`
	WorkType       string          `json:"work_type" gorm:"not null;index:idx_partial_cache_filter"`
	JobScale       string          `json:"job_scale" gorm:"not null;index:idx_partial_cache_filter"`
	JobDescription string          `json:"job_description" gorm:"type:text"`
	Embedding      Vector          `json:"-" gorm:"type:jsonb;not null"`
	Output         json.RawMessage `json:"output" gorm:"type:jsonb;not null"`
	HitCount       int             `json:"hit_count" gorm:"not null;default:0"`
	CreatedAt      time.Time       `json:"created_at"`
	LastUsedAt     *time.Time      `json:"last_used_at,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at" gorm:"not null;index"`
}

// TableName keeps the table name stable regardless of the struct name
func (PartialCacheEntry) TableName() string {
	return "rams_partial_cache"
}

// Expired reports whether the entry can no longer be served at the given time
func (e *PartialCacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
