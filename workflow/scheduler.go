package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/nicolaschoi7042/itNswinventory-sub002/config"
	"github.com/nicolaschoi7042/itNswinventory-sub002/export"
	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/nicolaschoi7042/itNswinventory-sub002/utils"
	"github.com/nicolaschoi7042/itNswinventory-sub002/validation"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
	TriggerResume = "resume"
)

// CreateResult is returned by schedule create/update. On validation
// failure nothing is persisted and Errors itemizes every problem.
type CreateResult struct {
	Success    bool       `json:"success"`
	ScheduleId int        `json:"schedule_id,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	Errors     []string   `json:"errors,omitempty"`
}

// Scheduler owns the timer pool: one time.Timer per active non-cron
// schedule plus a single shared minute ticker that drives cron matching
// and the retry queue. Firing callbacks for different schedules run
// concurrently; per-schedule mutexes keep a single schedule's callbacks
// serialized (timer fire, executeNow, resume).
type Scheduler struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Exporter *export.Exporter
	Queue    *RetryQueue
	Notifier *Notifier
	Source   DataSource

	validate *validator.Validate

	mu     sync.Mutex
	timers map[int]*time.Timer
	firing map[int]*sync.Mutex
}

func NewScheduler(db *gorm.DB, logger *logrus.Logger, exporter *export.Exporter, queue *RetryQueue, notifier *Notifier, source DataSource) *Scheduler {
	v := validator.New()
	// Reuse the same struct tags gin binding checks.
	v.SetTagName("binding")
	return &Scheduler{
		DB:       db,
		Logger:   logger,
		Exporter: exporter,
		Queue:    queue,
		Notifier: notifier,
		Source:   source,
		validate: v,
		timers:   map[int]*time.Timer{},
		firing:   map[int]*sync.Mutex{},
	}
}

// Run loads persisted schedules, arms their timers and drives the shared
// minute tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.loadAndArmAll(ctx)

	tickSeconds := config.IntFromEnv("SCHEDULER_TICK_SECONDS", 60)
	ticker := time.NewTicker(time.Duration(tickSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.disarmAll()
			return
		case now := <-ticker.C:
			s.tickCron(ctx, now)
			s.Queue.ProcessQueue(ctx)
		}
	}
}

// loadAndArmAll re-arms every active schedule after a restart. Expired
// one-offs get a null next_run and no timer. A schedule whose stored
// next_run elapsed while the process was down fires once as catch-up.
func (s *Scheduler) loadAndArmAll(ctx context.Context) {
	var schedules []models.ScheduledExport
	if err := s.DB.WithContext(ctx).Where("is_active = ?", true).Find(&schedules).Error; err != nil {
		config.LogError(s.Logger, "workflow/scheduler.go", "loadAndArmAll", "load schedules", nil, err)
		return
	}
	now := time.Now()
	for _, sched := range schedules {
		if sched.NextRun != nil && !sched.NextRun.After(now) {
			id := sched.ID
			go func() {
				if err := s.fire(context.Background(), id, TriggerResume); err != nil {
					config.LogError(s.Logger, "workflow/scheduler.go", "loadAndArmAll", "catch-up firing", id, err)
				}
			}()
		}
		next := ComputeNextRun(sched.Recurrence(), now)
		_ = s.DB.WithContext(ctx).Model(&models.ScheduledExport{}).
			Where("id = ?", sched.ID).
			Update("next_run", next).Error
		if next != nil && sched.Frequency != models.FrequencyCron {
			s.armTimer(sched.ID, *next)
		}
	}
	s.Logger.WithFields(logrus.Fields{
		"field": "Scheduler",
		"count": len(schedules),
	}).Info("schedules re-armed")
}

// tickCron fires every active cron schedule whose expression matches the
// current minute.
func (s *Scheduler) tickCron(ctx context.Context, now time.Time) {
	var schedules []models.ScheduledExport
	err := s.DB.WithContext(ctx).
		Where("is_active = ? AND frequency = ?", true, models.FrequencyCron).
		Find(&schedules).Error
	if err != nil {
		config.LogError(s.Logger, "workflow/scheduler.go", "tickCron", "load cron schedules", nil, err)
		return
	}
	for _, sched := range schedules {
		spec, perr := ParseCron(sched.CronExpr)
		if perr != nil {
			continue
		}
		if spec.Matches(now) {
			id := sched.ID
			go func() {
				if err := s.fire(context.Background(), id, TriggerTimer); err != nil {
					config.LogError(s.Logger, "workflow/scheduler.go", "tickCron", "cron firing", id, err)
				}
			}()
		}
	}
}

// CreateSchedule validates the request, computes the first run and
// persists the schedule. Fails closed: any validation error means nothing
// is created.
func (s *Scheduler) CreateSchedule(ctx context.Context, input models.NewScheduledExport) CreateResult {
	now := time.Now()
	if errs := s.validateInput(input, now); len(errs) > 0 {
		return CreateResult{Errors: errs}
	}

	exportCfg, err := json.Marshal(input.ExportConfig)
	if err != nil {
		return CreateResult{Errors: []string{fmt.Sprintf("invalid export config: %v", err)}}
	}
	notifyCfg, err := json.Marshal(input.NotifyConfig)
	if err != nil {
		return CreateResult{Errors: []string{fmt.Sprintf("invalid notification config: %v", err)}}
	}

	sched := models.ScheduledExport{
		Name:         input.Name,
		DataType:     input.DataType,
		ExportFormat: input.ExportFormat,
		Frequency:    input.Frequency,
		ExecuteAt:    input.ExecuteAt,
		TimeOfDay:    input.TimeOfDay,
		DayOfWeek:    utils.DereferencePtr(input.DayOfWeek),
		DayOfMonth:   utils.DereferencePtr(input.DayOfMonth),
		CronExpr:     input.CronExpr,
		ExportConfig: exportCfg,
		NotifyConfig: notifyCfg,
		IsActive:     utils.Ptr(true),
	}
	sched.NextRun = ComputeNextRun(sched.Recurrence(), now)

	if err := s.DB.WithContext(ctx).Create(&sched).Error; err != nil {
		return CreateResult{Errors: []string{err.Error()}}
	}

	if sched.NextRun != nil && sched.Frequency != models.FrequencyCron {
		s.armTimer(sched.ID, *sched.NextRun)
	}

	s.Logger.WithFields(logrus.Fields{
		"field":       "Scheduler",
		"schedule_id": sched.ID,
		"name":        sched.Name,
		"frequency":   sched.Frequency,
	}).Info("schedule created")

	return CreateResult{Success: true, ScheduleId: sched.ID, NextRun: sched.NextRun}
}

// UpdateSchedule merges the provided fields into the stored schedule,
// re-validates the merged result and re-arms the timer. Like create, it
// fails closed without persisting anything.
func (s *Scheduler) UpdateSchedule(ctx context.Context, id int, input models.UpdateScheduledExport) CreateResult {
	var sched models.ScheduledExport
	if err := s.DB.WithContext(ctx).First(&sched, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CreateResult{Errors: []string{utils.ErrorRecordNotFound.Error()}}
		}
		return CreateResult{Errors: []string{err.Error()}}
	}

	merged := models.NewScheduledExport{
		Name:         utils.DereferencePtr(input.Name, sched.Name),
		DataType:     utils.DereferencePtr(input.DataType, sched.DataType),
		ExportFormat: utils.DereferencePtr(input.ExportFormat, sched.ExportFormat),
		Frequency:    utils.DereferencePtr(input.Frequency, sched.Frequency),
		ExecuteAt:    sched.ExecuteAt,
		TimeOfDay:    utils.DereferencePtr(input.TimeOfDay, sched.TimeOfDay),
		DayOfWeek:    utils.Ptr(utils.DereferencePtr(input.DayOfWeek, sched.DayOfWeek)),
		DayOfMonth:   utils.Ptr(utils.DereferencePtr(input.DayOfMonth, sched.DayOfMonth)),
		CronExpr:     utils.DereferencePtr(input.CronExpr, sched.CronExpr),
	}
	if input.ExecuteAt != nil {
		merged.ExecuteAt = input.ExecuteAt
	}

	now := time.Now()
	if errs := s.validateInput(merged, now); len(errs) > 0 {
		return CreateResult{Errors: errs}
	}

	updates := map[string]interface{}{
		"name":          merged.Name,
		"data_type":     merged.DataType,
		"export_format": merged.ExportFormat,
		"frequency":     merged.Frequency,
		"execute_at":    merged.ExecuteAt,
		"time_of_day":   merged.TimeOfDay,
		"day_of_week":   utils.DereferencePtr(merged.DayOfWeek),
		"day_of_month":  utils.DereferencePtr(merged.DayOfMonth),
		"cron_expr":     merged.CronExpr,
	}
	if input.ExportConfig != nil {
		raw, err := json.Marshal(input.ExportConfig)
		if err != nil {
			return CreateResult{Errors: []string{fmt.Sprintf("invalid export config: %v", err)}}
		}
		updates["export_config"] = raw
	}
	if input.NotifyConfig != nil {
		raw, err := json.Marshal(input.NotifyConfig)
		if err != nil {
			return CreateResult{Errors: []string{fmt.Sprintf("invalid notification config: %v", err)}}
		}
		updates["notify_config"] = raw
	}

	recurrence := models.Recurrence{
		Frequency:  merged.Frequency,
		ExecuteAt:  merged.ExecuteAt,
		TimeOfDay:  merged.TimeOfDay,
		DayOfWeek:  utils.DereferencePtr(merged.DayOfWeek),
		DayOfMonth: utils.DereferencePtr(merged.DayOfMonth),
		CronExpr:   merged.CronExpr,
	}
	next := ComputeNextRun(recurrence, now)
	updates["next_run"] = next

	if err := s.DB.WithContext(ctx).Model(&models.ScheduledExport{}).
		Where("id = ?", id).Updates(updates).Error; err != nil {
		return CreateResult{Errors: []string{err.Error()}}
	}

	s.disarm(id)
	if next != nil && recurrence.Frequency != models.FrequencyCron && utils.DereferencePtr(sched.IsActive) {
		s.armTimer(id, *next)
	}

	return CreateResult{Success: true, ScheduleId: id, NextRun: next}
}

// DeleteSchedule removes the schedule from the active set and cancels its
// timer. History rows (notifications, retry items) are kept.
func (s *Scheduler) DeleteSchedule(ctx context.Context, id int) error {
	s.disarm(id)
	res := s.DB.WithContext(ctx).Delete(&models.ScheduledExport{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// PauseSchedule cancels the timer and deactivates without losing history.
func (s *Scheduler) PauseSchedule(ctx context.Context, id int) error {
	s.disarm(id)
	res := s.DB.WithContext(ctx).Model(&models.ScheduledExport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "next_run": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

// ResumeSchedule reactivates, recomputes the next run from now and
// re-arms the timer.
func (s *Scheduler) ResumeSchedule(ctx context.Context, id int) (*time.Time, error) {
	var sched models.ScheduledExport
	if err := s.DB.WithContext(ctx).First(&sched, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}

	next := ComputeNextRun(sched.Recurrence(), time.Now())
	err := s.DB.WithContext(ctx).Model(&models.ScheduledExport{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": true, "next_run": next}).Error
	if err != nil {
		return nil, err
	}

	if next != nil && sched.Frequency != models.FrequencyCron {
		s.armTimer(id, *next)
	}
	return next, nil
}

// ExecuteNow runs the firing path immediately, independent of the timer.
// It does not alter next_run.
func (s *Scheduler) ExecuteNow(ctx context.Context, id int) error {
	return s.fire(ctx, id, TriggerManual)
}

func (s *Scheduler) GetSchedule(ctx context.Context, id int) (*models.ScheduledExport, error) {
	var sched models.ScheduledExport
	if err := s.DB.WithContext(ctx).First(&sched, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &sched, nil
}

func (s *Scheduler) GetAllSchedules(ctx context.Context) ([]models.ScheduledExport, error) {
	var schedules []models.ScheduledExport
	err := s.DB.WithContext(ctx).Order("id ASC").Find(&schedules).Error
	return schedules, err
}

// validateInput is the fail-closed create/update validation: every
// problem is itemized, nothing partial is ever persisted.
func (s *Scheduler) validateInput(input models.NewScheduledExport, now time.Time) []string {
	var errs []string

	if err := s.validate.Struct(input); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			for _, fe := range invalid {
				errs = append(errs, fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if input.DataType != "" && !validation.IsKnownDataType(input.DataType) {
		errs = append(errs, fmt.Sprintf("unknown data type: %s", input.DataType))
	}
	if input.ExportFormat != "" && !input.ExportFormat.Valid() {
		errs = append(errs, fmt.Sprintf("unknown export format: %s", input.ExportFormat))
	}

	switch input.Frequency {
	case models.FrequencyOnce:
		if input.ExecuteAt == nil {
			errs = append(errs, "one-off schedule requires execute_at")
		} else if !input.ExecuteAt.After(now) {
			errs = append(errs, "execute_at must be in the future")
		}
	case models.FrequencyDaily:
		if _, _, err := parseTimeOfDay(input.TimeOfDay); err != nil {
			errs = append(errs, "daily schedule requires time_of_day (HH:MM)")
		}
	case models.FrequencyWeekly:
		if _, _, err := parseTimeOfDay(input.TimeOfDay); err != nil {
			errs = append(errs, "weekly schedule requires time_of_day (HH:MM)")
		}
		if input.DayOfWeek == nil || *input.DayOfWeek < 0 || *input.DayOfWeek > 6 {
			errs = append(errs, "weekly schedule requires day_of_week in 0..6")
		}
	case models.FrequencyMonthly:
		if _, _, err := parseTimeOfDay(input.TimeOfDay); err != nil {
			errs = append(errs, "monthly schedule requires time_of_day (HH:MM)")
		}
		if input.DayOfMonth == nil || *input.DayOfMonth < 1 || *input.DayOfMonth > 31 {
			errs = append(errs, "monthly schedule requires day_of_month in 1..31")
		}
	case models.FrequencyCron:
		if _, err := ParseCron(input.CronExpr); err != nil {
			errs = append(errs, fmt.Sprintf("invalid cron expression: %v", err))
		}
	case "":
		// covered by the required-tag check
	default:
		errs = append(errs, fmt.Sprintf("unknown frequency: %s", input.Frequency))
	}

	return errs
}

// firingLock returns the per-schedule mutex. Exactly one firing callback
// (timer, manual, cron tick) mutates a schedule at a time.
func (s *Scheduler) firingLock(id int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.firing[id]
	if m == nil {
		m = &sync.Mutex{}
		s.firing[id] = m
	}
	return m
}

func (s *Scheduler) armTimer(id int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.timers[id]; existing != nil {
		existing.Stop()
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		if err := s.fire(context.Background(), id, TriggerTimer); err != nil {
			config.LogError(s.Logger, "workflow/scheduler.go", "armTimer", "timer firing", id, err)
		}
	})
}

func (s *Scheduler) disarm(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.timers[id]; t != nil {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) disarmAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// fire runs the execution path for one schedule: mark the run, export,
// record the outcome, re-arm and notify. A failure in this schedule never
// affects other schedules or the queue processor.
func (s *Scheduler) fire(ctx context.Context, id int, trigger string) error {
	lock := s.firingLock(id)
	lock.Lock()
	defer lock.Unlock()

	// Stamp the context so collaborators without trigger parameters
	// (retry queue, notifier) can attribute their log lines.
	ctx = utils.SetScheduleIdInContext(ctx, id)
	ctx = utils.SetTriggeredByInContext(ctx, trigger)

	// Best-effort cross-instance lock; in-process serialization above is
	// authoritative within this instance (teacher-style degraded mode).
	if redisLocker := config.GetRedisLock(); redisLocker != nil {
		rlock, err := redisLocker.Obtain(ctx, fmt.Sprintf("lock:schedule:%d", id), 2*time.Minute, nil)
		if err == nil {
			defer func() {
				if releaseErr := rlock.Release(ctx); releaseErr != nil {
					s.Logger.WithFields(logrus.Fields{
						"field":       "Scheduler",
						"schedule_id": id,
					}).Warn("failed to release redis lock: " + releaseErr.Error())
				}
			}()
		} else if err != redislock.ErrNotObtained {
			s.Logger.WithFields(logrus.Fields{
				"field":       "Scheduler",
				"schedule_id": id,
			}).Warn("error obtaining redis lock; proceeding: " + err.Error())
		}
	}

	var sched models.ScheduledExport
	if err := s.DB.WithContext(ctx).First(&sched, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		return err
	}
	if trigger != TriggerManual && !utils.DereferencePtr(sched.IsActive) {
		// Paused between arming and firing (or before catch-up ran).
		return nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"last_run":  &now,
		"run_count": gorm.Expr("run_count + 1"),
	}
	if trigger != TriggerManual {
		updates["next_run"] = ComputeNextRun(sched.Recurrence(), now)
	}

	summary := s.execute(ctx, &sched)
	summary.FinishedAt = time.Now().UTC()

	if summary.Success {
		updates["success_count"] = gorm.Expr("success_count + 1")
	} else {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
	}
	if raw, err := utils.MarshalToJSON(summary); err == nil {
		updates["last_result"] = &raw
	}

	if err := s.DB.WithContext(ctx).Model(&models.ScheduledExport{}).
		Where("id = ?", id).Updates(updates).Error; err != nil {
		config.LogError(s.Logger, "workflow/scheduler.go", "fire", "persist outcome", id, err)
	}

	if trigger != TriggerManual && sched.Frequency != models.FrequencyCron {
		if next, ok := updates["next_run"].(*time.Time); ok && next != nil {
			s.armTimer(id, *next)
		}
	}

	s.notifyOutcome(ctx, &sched, summary)

	if !summary.Success {
		return fmt.Errorf("%s", summary.Error)
	}
	return nil
}

// execute performs fetch -> validate -> export -> integrity-verify and
// never lets a collaborator failure escape: every outcome becomes a
// result summary. Export failures worth re-attempting are enqueued.
func (s *Scheduler) execute(ctx context.Context, sched *models.ScheduledExport) (summary models.LastResultSummary) {
	defer func() {
		if r := recover(); r != nil {
			summary = models.LastResultSummary{Error: fmt.Sprintf("panic during export: %v", r)}
		}
	}()

	req, err := sched.ExportRequest()
	if err != nil {
		return models.LastResultSummary{Error: fmt.Sprintf("invalid export config: %v", err)}
	}

	records, err := s.Source.Fetch(ctx, req.DataType, req.Filters)
	if err != nil {
		// Transient read failure: re-attempt through the queue.
		if _, qerr := s.Queue.Enqueue(ctx, &sched.ID, req, err, nil); qerr != nil {
			config.LogError(s.Logger, "workflow/scheduler.go", "execute", "enqueue retry", sched.ID, qerr)
		}
		return models.LastResultSummary{Error: fmt.Sprintf("data source failure: %v", err)}
	}

	valResult := validation.Validate(records, sched.DataType, req)

	result := s.Exporter.Export(records, req)
	if !result.Success {
		if result.Retryable {
			if _, qerr := s.Queue.Enqueue(ctx, &sched.ID, req, errors.New(result.Error), nil); qerr != nil {
				config.LogError(s.Logger, "workflow/scheduler.go", "execute", "enqueue retry", sched.ID, qerr)
			}
		}
		return models.LastResultSummary{
			Error:        result.Error,
			RecordCount:  len(records),
			QualityScore: valResult.Quality.Overall,
		}
	}

	integrity := validation.VerifyArtifact(result.ArtifactPath, validation.ExpectedArtifact{
		RecordCount: result.RecordCount,
		Columns:     req.Columns,
	}, req.Format, req.Options)
	if !integrity.IsValid {
		return models.LastResultSummary{
			ArtifactName: result.ArtifactName,
			RecordCount:  result.RecordCount,
			Size:         result.Size,
			QualityScore: valResult.Quality.Overall,
			Error:        fmt.Sprintf("integrity verification failed: %v", integrity.Errors),
		}
	}

	return models.LastResultSummary{
		Success:      true,
		ArtifactName: result.ArtifactName,
		RecordCount:  result.RecordCount,
		Size:         result.Size,
		QualityScore: valResult.Quality.Overall,
	}
}

func (s *Scheduler) notifyOutcome(ctx context.Context, sched *models.ScheduledExport, summary models.LastResultSummary) {
	cfg, err := sched.DecodeNotifyConfig()
	if err != nil {
		config.LogError(s.Logger, "workflow/scheduler.go", "notifyOutcome", "decode notify config", sched.ID, err)
		return
	}

	notifType := models.NotificationTypeSuccess
	title := fmt.Sprintf("Export %q completed", sched.Name)
	message := fmt.Sprintf("%d records exported to %s", summary.RecordCount, summary.ArtifactName)
	if !summary.Success {
		notifType = models.NotificationTypeError
		title = fmt.Sprintf("Export %q failed", sched.Name)
		message = summary.Error
	}

	payload, _ := json.Marshal(summary)
	s.Notifier.Deliver(ctx, &models.ExportNotification{
		ScheduleId:   &sched.ID,
		ScheduleName: sched.Name,
		Type:         notifType,
		Title:        title,
		Message:      message,
		Payload:      payload,
		IsRead:       utils.Ptr(false),
	}, cfg)
}
