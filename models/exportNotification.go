package models

import "time"

type NotificationType string

const (
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeError   NotificationType = "error"
)

// ExportNotification is an append-only log of schedule outcomes. The read
// flag is the only allowed mutation after creation.
type ExportNotification struct {
	ID           int              `gorm:"primary_key" json:"id"`
	ScheduleId   *int             `gorm:"index;default:null" json:"schedule_id"`
	ScheduleName string           `gorm:"size:100" json:"schedule_name"`
	Type         NotificationType `gorm:"size:10;not null" json:"type"`
	Title        string           `gorm:"size:200;not null" json:"title"`
	Message      string           `gorm:"type:text" json:"message"`
	Payload      []byte           `gorm:"type:json" json:"payload"`
	IsRead       *bool            `gorm:"not null;default:false" json:"is_read"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

// NotificationConfig is stored per schedule and decides which channels a
// firing outcome is delivered through. Channels fail independently.
type NotificationConfig struct {
	Enabled   bool `json:"enabled"`
	OnSuccess bool `json:"on_success"`
	OnFailure bool `json:"on_failure"`
	Email     struct {
		Enabled    bool     `json:"enabled"`
		Recipients []string `json:"recipients,omitempty"`
	} `json:"email"`
	Push struct {
		Enabled bool     `json:"enabled"`
		Targets []string `json:"targets,omitempty"`
	} `json:"push"`
	Webhook struct {
		Enabled bool              `json:"enabled"`
		URL     string            `json:"url,omitempty"`
		Headers map[string]string `json:"headers,omitempty"`
	} `json:"webhook"`
}
