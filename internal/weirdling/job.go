package weirdling

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// Job is one generation attempt. It is created running and moves exactly
// once to complete or failed.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	OwnerID string `gorm:"type:varchar(64);not null;index:idx_weirdling_job_owner_key,priority:1" json:"owner_id"`

	// nil means no dedup was requested. Not unique: a failed attempt keeps its
	// key and the retry gets a row of its own.
	IdempotencyKey *string `gorm:"type:varchar(128);index:idx_weirdling_job_owner_key,priority:2" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when complete
	RawResult datatypes.JSON `json:"raw_result,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	PromptVersion string `gorm:"type:varchar(64);not null" json:"prompt_version"`
	ModelVersion  string `gorm:"type:varchar(128);not null" json:"model_version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "weirdling_jobs" }

func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed
}
