package models

import (
	"encoding/json"
	"time"
)

type RecurrenceFrequency string

const (
	FrequencyOnce    RecurrenceFrequency = "once"
	FrequencyDaily   RecurrenceFrequency = "daily"
	FrequencyWeekly  RecurrenceFrequency = "weekly"
	FrequencyMonthly RecurrenceFrequency = "monthly"
	FrequencyCron    RecurrenceFrequency = "cron"
)

// Recurrence is a schedule's repetition policy. Only the fields relevant
// to Frequency are meaningful; the rest stay zero.
type Recurrence struct {
	Frequency  RecurrenceFrequency `json:"frequency"`
	ExecuteAt  *time.Time          `json:"execute_at,omitempty"`   // once
	TimeOfDay  string              `json:"time_of_day,omitempty"`  // daily/weekly/monthly, "15:04"
	DayOfWeek  int                 `json:"day_of_week,omitempty"`  // weekly, 0 = Sunday
	DayOfMonth int                 `json:"day_of_month,omitempty"` // monthly, 1..31
	CronExpr   string              `json:"cron_expr,omitempty"`    // cron, five fields
}

// ScheduledExport is a persistent recurring export definition. Counters,
// timestamps and next_run are mutated on every firing; everything else
// only changes through explicit update requests.
type ScheduledExport struct {
	ID           int                 `gorm:"primary_key" json:"id"`
	Name         string              `gorm:"size:100;not null" json:"name"`
	DataType     string              `gorm:"size:50;index;not null" json:"data_type"`
	ExportFormat ExportFormat        `gorm:"size:10;not null" json:"export_format"`
	Frequency    RecurrenceFrequency `gorm:"size:10;not null" json:"frequency"`
	ExecuteAt    *time.Time          `gorm:"default:null" json:"execute_at"`
	TimeOfDay    string              `gorm:"size:5" json:"time_of_day"`
	DayOfWeek    int                 `gorm:"default:0" json:"day_of_week"`
	DayOfMonth   int                 `gorm:"default:0" json:"day_of_month"`
	CronExpr     string              `gorm:"size:50" json:"cron_expr"`
	ExportConfig []byte              `gorm:"type:json" json:"export_config"`
	NotifyConfig []byte              `gorm:"type:json" json:"notify_config"`
	IsActive     *bool               `gorm:"not null;default:true" json:"is_active"`
	RunCount     int                 `gorm:"not null;default:0" json:"run_count"`
	SuccessCount int                 `gorm:"not null;default:0" json:"success_count"`
	FailureCount int                 `gorm:"not null;default:0" json:"failure_count"`
	LastRun      *time.Time          `gorm:"default:null" json:"last_run"`
	NextRun      *time.Time          `gorm:"index;default:null" json:"next_run"`
	LastResult   *string             `gorm:"type:text" json:"last_result"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s ScheduledExport) Recurrence() Recurrence {
	return Recurrence{
		Frequency:  s.Frequency,
		ExecuteAt:  s.ExecuteAt,
		TimeOfDay:  s.TimeOfDay,
		DayOfWeek:  s.DayOfWeek,
		DayOfMonth: s.DayOfMonth,
		CronExpr:   s.CronExpr,
	}
}

// ExportConfigPayload is the decoded shape of ScheduledExport.ExportConfig.
type ExportConfigPayload struct {
	Columns []ColumnSpec      `json:"columns"`
	Filters map[string]string `json:"filters,omitempty"`
	Options ExportOptions     `json:"options"`
}

// DecodeExportConfig decodes the stored export configuration. An empty
// column stores as an empty payload, not an error.
func (s ScheduledExport) DecodeExportConfig() (ExportConfigPayload, error) {
	var payload ExportConfigPayload
	if len(s.ExportConfig) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(s.ExportConfig, &payload)
	return payload, err
}

func (s ScheduledExport) DecodeNotifyConfig() (NotificationConfig, error) {
	var cfg NotificationConfig
	if len(s.NotifyConfig) == 0 {
		return cfg, nil
	}
	err := json.Unmarshal(s.NotifyConfig, &cfg)
	return cfg, err
}

// ExportRequestFromSchedule builds the fully resolved export instruction
// a firing operates on.
func (s ScheduledExport) ExportRequest() (ExportRequest, error) {
	payload, err := s.DecodeExportConfig()
	if err != nil {
		return ExportRequest{}, err
	}
	return ExportRequest{
		DataType: s.DataType,
		Format:   s.ExportFormat,
		Columns:  payload.Columns,
		Filters:  payload.Filters,
		Options:  payload.Options,
	}, nil
}

// NewScheduledExport is the create-schedule request body.
type NewScheduledExport struct {
	Name         string              `json:"name" binding:"required"`
	DataType     string              `json:"data_type" binding:"required"`
	ExportFormat ExportFormat        `json:"export_format" binding:"required"`
	Frequency    RecurrenceFrequency `json:"frequency" binding:"required"`
	ExecuteAt    *time.Time          `json:"execute_at"`
	TimeOfDay    string              `json:"time_of_day"`
	DayOfWeek    *int                `json:"day_of_week"`
	DayOfMonth   *int                `json:"day_of_month"`
	CronExpr     string              `json:"cron_expr"`
	ExportConfig ExportConfigPayload `json:"export_config"`
	NotifyConfig NotificationConfig  `json:"notify_config"`
}

// UpdateScheduledExport carries only the fields the caller wants changed.
type UpdateScheduledExport struct {
	Name         *string              `json:"name"`
	DataType     *string              `json:"data_type"`
	ExportFormat *ExportFormat        `json:"export_format"`
	Frequency    *RecurrenceFrequency `json:"frequency"`
	ExecuteAt    *time.Time           `json:"execute_at"`
	TimeOfDay    *string              `json:"time_of_day"`
	DayOfWeek    *int                 `json:"day_of_week"`
	DayOfMonth   *int                 `json:"day_of_month"`
	CronExpr     *string              `json:"cron_expr"`
	ExportConfig *ExportConfigPayload `json:"export_config"`
	NotifyConfig *NotificationConfig  `json:"notify_config"`
}

// LastResultSummary is what gets serialized into ScheduledExport.LastResult.
type LastResultSummary struct {
	Success      bool      `json:"success"`
	ArtifactName string    `json:"artifact_name,omitempty"`
	RecordCount  int       `json:"record_count"`
	Size         int64     `json:"size,omitempty"`
	QualityScore float64   `json:"quality_score,omitempty"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}
