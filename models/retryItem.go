package models

import "time"

// Retry item lifecycle. FAILED is terminal: once retry_count reaches
// max_retries the item stays failed and is retained for inspection.
const (
	RetryStatusPending    = "PENDING"
	RetryStatusProcessing = "PROCESSING"
	RetryStatusCompleted  = "COMPLETED"
	RetryStatusFailed     = "FAILED"
)

// ExportRetryItem is one queued re-attempt of a failed export. State is
// owned exclusively by the retry queue; locked_at/locked_by let a worker
// reclaim rows whose owner died mid-attempt.
type ExportRetryItem struct {
	ID                int        `gorm:"primary_key" json:"id"`
	ScheduleId        *int       `gorm:"index;default:null" json:"schedule_id"`
	RequestJSON       []byte     `gorm:"type:json;not null" json:"request"`
	LastError         *string    `gorm:"type:text" json:"last_error"`
	RetryCount        int        `gorm:"not null;default:0" json:"retry_count"`
	MaxRetries        int        `gorm:"not null;default:3" json:"max_retries"`
	BaseDelaySeconds  int        `gorm:"not null;default:60" json:"base_delay_seconds"`
	BackoffMultiplier float64    `gorm:"not null;default:2" json:"backoff_multiplier"`
	Status            string     `gorm:"size:12;index;not null;default:'PENDING'" json:"status"`
	NextAttemptAt     *time.Time `gorm:"index;default:null" json:"next_attempt_at"`
	LastRetryAt       *time.Time `gorm:"default:null" json:"last_retry_at"`
	LockedAt          *time.Time `gorm:"default:null" json:"-"`
	LockedBy          *string    `gorm:"size:64;default:null" json:"-"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
