package model

import (
	"time"

	"gorm.io/datatypes"
)

// SyncJobType represents the kind of provider operation a job performs
type SyncJobType string

const (
	SyncJobTypeUpsert SyncJobType = "UPSERT_RECORD"
	SyncJobTypeDelete SyncJobType = "DELETE_RECORD"
)

// SyncJobStatus represents sync job status
type SyncJobStatus string

const (
	SyncJobStatusQueued   SyncJobStatus = "queued"
	SyncJobStatusRunning  SyncJobStatus = "running"
	SyncJobStatusRetrying SyncJobStatus = "retrying"
	SyncJobStatusSuccess  SyncJobStatus = "success"
	SyncJobStatusFailed   SyncJobStatus = "failed"
)

// Terminal reports whether no further transition is possible
func (s SyncJobStatus) Terminal() bool {
	return s == SyncJobStatusSuccess || s == SyncJobStatusFailed
}

// SyncJob is one durable unit of reconciliation work for a single record
type SyncJob struct {
	BaseModel
	DomainID       int            `gorm:"index;not null" json:"domain_id"`
	RecordID       int            `gorm:"index:idx_sync_jobs_record;not null" json:"record_id"`
	JobType        SyncJobType    `gorm:"type:varchar(16);index:idx_sync_jobs_record;not null" json:"job_type"`
	Status         SyncJobStatus  `gorm:"type:varchar(16);index:idx_sync_jobs_status;not null;default:'queued'" json:"status"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	NextRunAt      *time.Time     `gorm:"index:idx_sync_jobs_status" json:"next_run_at,omitempty"`
	Error          string         `gorm:"type:varchar(255)" json:"error,omitempty"`
	ProviderErrors datatypes.JSON `json:"provider_errors,omitempty"`
	IdempotencyKey string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"idempotency_key"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// TableName specifies the table name for SyncJob model
func (SyncJob) TableName() string {
	return "sync_jobs"
}
