package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/nicolaschoi7042/itNswinventory-sub002/config"
	"github.com/nicolaschoi7042/itNswinventory-sub002/export"
	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/nicolaschoi7042/itNswinventory-sub002/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RetryOptions override the queue defaults for a single enqueued item.
type RetryOptions struct {
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
}

// RetryQueue owns every ExportRetryItem: it is the only component that
// mutates their state. Items are claimed in batches with SKIP LOCKED so
// concurrent ProcessQueue calls (timer tick + manual trigger) never run
// the same item twice.
type RetryQueue struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Exporter *export.Exporter
	Source   DataSource

	WorkerID    string
	BatchSize   int
	LockTimeout time.Duration
	MaxBackoff  time.Duration

	DefaultMaxRetries int
	DefaultBaseDelay  time.Duration
	DefaultMultiplier float64
}

// NewRetryQueue applies env overrides the way the rest of config works:
// RETRY_MAX_RETRIES, RETRY_BASE_DELAY_SECONDS, RETRY_BACKOFF_MULTIPLIER
// (integer), RETRY_MAX_BACKOFF_SECONDS.
func NewRetryQueue(db *gorm.DB, logger *logrus.Logger, exporter *export.Exporter, source DataSource) *RetryQueue {
	return &RetryQueue{
		DB:                db,
		Logger:            logger,
		Exporter:          exporter,
		Source:            source,
		WorkerID:          uuid.NewString(),
		BatchSize:         20,
		LockTimeout:       5 * time.Minute,
		MaxBackoff:        time.Duration(config.IntFromEnv("RETRY_MAX_BACKOFF_SECONDS", 3600)) * time.Second,
		DefaultMaxRetries: config.IntFromEnv("RETRY_MAX_RETRIES", 3),
		DefaultBaseDelay:  time.Duration(config.IntFromEnv("RETRY_BASE_DELAY_SECONDS", 60)) * time.Second,
		DefaultMultiplier: float64(config.IntFromEnv("RETRY_BACKOFF_MULTIPLIER", 2)),
	}
}

// Enqueue records a failed export request for re-execution and returns the
// retry item id. The first attempt is scheduled one base delay from now.
func (q *RetryQueue) Enqueue(ctx context.Context, scheduleId *int, req models.ExportRequest, cause error, opts *RetryOptions) (int, error) {
	maxRetries := q.DefaultMaxRetries
	baseDelay := q.DefaultBaseDelay
	multiplier := q.DefaultMultiplier
	if opts != nil {
		if opts.MaxRetries > 0 {
			maxRetries = opts.MaxRetries
		}
		if opts.BaseDelay > 0 {
			baseDelay = opts.BaseDelay
		}
		if opts.BackoffMultiplier > 0 {
			multiplier = opts.BackoffMultiplier
		}
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to encode export request: %w", err)
	}

	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	next := time.Now().UTC().Add(baseDelay)

	item := models.ExportRetryItem{
		ScheduleId:        scheduleId,
		RequestJSON:       raw,
		LastError:         &errMsg,
		RetryCount:        0,
		MaxRetries:        maxRetries,
		BaseDelaySeconds:  int(baseDelay / time.Second),
		BackoffMultiplier: multiplier,
		Status:            models.RetryStatusPending,
		NextAttemptAt:     &next,
	}
	if err := q.DB.WithContext(ctx).Create(&item).Error; err != nil {
		return 0, err
	}

	if q.Logger != nil {
		fields := logrus.Fields{
			"field":           "RetryQueue",
			"retry_id":        item.ID,
			"data_type":       req.DataType,
			"format":          req.Format,
			"next_attempt_at": next.Format(time.RFC3339),
		}
		if sid, ok := utils.GetScheduleIdFromContext(ctx); ok {
			fields["schedule_id"] = sid
		}
		if trigger, ok := utils.GetTriggeredByFromContext(ctx); ok {
			fields["triggered_by"] = trigger
		}
		q.Logger.WithFields(fields).Info("export enqueued for retry: " + errMsg)
	}
	return item.ID, nil
}

// ProcessQueue runs every due retry item to completion. Idempotent and
// safe to invoke concurrently: items are claimed under SKIP LOCKED and an
// item already PROCESSING (with a fresh lock) is skipped by other callers.
func (q *RetryQueue) ProcessQueue(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-q.LockTimeout)

	var claimed []models.ExportRetryItem
	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Where(`
				(
					status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, models.RetryStatusPending, now, models.RetryStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(q.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := query.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].Status = models.RetryStatusProcessing
			if err := tx.Model(&models.ExportRetryItem{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":    models.RetryStatusProcessing,
				"locked_at": &now,
				"locked_by": q.WorkerID,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	for _, item := range claimed {
		q.attempt(ctx, item)
	}
}

// attempt re-executes one claimed item's export request.
func (q *RetryQueue) attempt(ctx context.Context, item models.ExportRetryItem) {
	var req models.ExportRequest
	if err := utils.UnmarshalFromJSON(item.RequestJSON, &req); err != nil {
		// Poison item: an undecodable request can never succeed.
		q.markFailure(ctx, item, fmt.Errorf("undecodable export request: %v", err), true)
		return
	}

	records, err := q.Source.Fetch(ctx, req.DataType, req.Filters)
	if err != nil {
		q.markFailure(ctx, item, err, false)
		return
	}

	result := q.Exporter.Export(records, req)
	if !result.Success {
		q.markFailure(ctx, item, fmt.Errorf("%s", result.Error), !result.Retryable)
		return
	}
	q.markSuccess(ctx, item, result)
}

// nextRetryState is the pure state-transition function applied after a
// failed attempt. retryCount never exceeds maxRetries; once it reaches it
// the item is terminally FAILED.
func nextRetryState(retryCount, maxRetries int, baseDelay time.Duration, multiplier float64, maxBackoff time.Duration, now time.Time) (string, int, *time.Time) {
	newCount := retryCount + 1
	if newCount >= maxRetries {
		return models.RetryStatusFailed, maxRetries, nil
	}
	delay := time.Duration(float64(baseDelay) * math.Pow(multiplier, float64(newCount)))
	if maxBackoff > 0 && delay > maxBackoff {
		delay = maxBackoff
	}
	next := now.Add(delay)
	return models.RetryStatusPending, newCount, &next
}

func (q *RetryQueue) markFailure(ctx context.Context, item models.ExportRetryItem, cause error, terminal bool) {
	now := time.Now().UTC()
	errMsg := cause.Error()

	status, newCount, next := nextRetryState(item.RetryCount, item.MaxRetries,
		time.Duration(item.BaseDelaySeconds)*time.Second, item.BackoffMultiplier, q.MaxBackoff, now)
	if terminal {
		status, next = models.RetryStatusFailed, nil
	}

	_ = q.DB.WithContext(ctx).Model(&models.ExportRetryItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":          status,
			"retry_count":     newCount,
			"last_error":      &errMsg,
			"next_attempt_at": next,
			"last_retry_at":   &now,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error

	if q.Logger != nil {
		entry := q.Logger.WithFields(logrus.Fields{
			"field":       "RetryQueue",
			"retry_id":    item.ID,
			"retry_count": newCount,
			"max_retries": item.MaxRetries,
			"status":      status,
		})
		if status == models.RetryStatusFailed {
			entry.Error("retry exhausted: " + errMsg)
		} else {
			entry.Warn("retry attempt failed: " + errMsg)
		}
	}
}

func (q *RetryQueue) markSuccess(ctx context.Context, item models.ExportRetryItem, result export.Result) {
	now := time.Now().UTC()
	_ = q.DB.WithContext(ctx).Model(&models.ExportRetryItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"status":          models.RetryStatusCompleted,
			"last_error":      nil,
			"next_attempt_at": nil,
			"last_retry_at":   &now,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error

	if q.Logger != nil {
		q.Logger.WithFields(logrus.Fields{
			"field":    "RetryQueue",
			"retry_id": item.ID,
			"artifact": result.ArtifactName,
			"records":  result.RecordCount,
		}).Info("retry succeeded")
	}
}

// Status returns item counts by state.
func (q *RetryQueue) Status(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := q.DB.WithContext(ctx).Model(&models.ExportRetryItem{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := map[string]int64{
		models.RetryStatusPending:    0,
		models.RetryStatusProcessing: 0,
		models.RetryStatusCompleted:  0,
		models.RetryStatusFailed:     0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// Requeue flips a terminally failed item back to pending with a fresh
// retry budget. This is an explicit operator action, not part of the
// normal state machine.
func (q *RetryQueue) Requeue(ctx context.Context, id int) error {
	now := time.Now().UTC()
	res := q.DB.WithContext(ctx).Model(&models.ExportRetryItem{}).
		Where("id = ? AND status = ?", id, models.RetryStatusFailed).
		Updates(map[string]interface{}{
			"status":          models.RetryStatusPending,
			"retry_count":     0,
			"next_attempt_at": &now,
			"locked_at":       nil,
			"locked_by":       nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("retry item %d not found or not in FAILED state", id)
	}
	return nil
}
