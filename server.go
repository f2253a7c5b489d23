package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nicolaschoi7042/itNswinventory-sub002/config"
	"github.com/nicolaschoi7042/itNswinventory-sub002/export"
	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/nicolaschoi7042/itNswinventory-sub002/utils"
	"github.com/nicolaschoi7042/itNswinventory-sub002/validation"
	"github.com/nicolaschoi7042/itNswinventory-sub002/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("inventory-export-scheduler")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func idParam(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %s", c.Param("id"))
	}
	return id, nil
}

func createScheduleHandler(scheduler *workflow.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewScheduledExport
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []string{err.Error()}})
			return
		}
		res := scheduler.CreateSchedule(c.Request.Context(), req)
		if !res.Success {
			c.JSON(http.StatusBadRequest, res)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

func listSchedulesHandler(scheduler *workflow.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		schedules, err := scheduler.GetAllSchedules(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"schedules": schedules})
	}
}

func getScheduleHandler(scheduler *workflow.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sched, err := scheduler.GetSchedule(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sched)
	}
}

func updateScheduleHandler(scheduler *workflow.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var req models.UpdateScheduledExport
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []string{err.Error()}})
			return
		}
		res := scheduler.UpdateSchedule(c.Request.Context(), id, req)
		if !res.Success {
			status := http.StatusBadRequest
			for _, e := range res.Errors {
				if e == utils.ErrorRecordNotFound.Error() {
					status = http.StatusNotFound
				}
			}
			c.JSON(status, res)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func deleteScheduleHandler(scheduler *workflow.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := scheduler.DeleteSchedule(c.Request.Context(), id); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	}
}

func pauseScheduleHandler(scheduler *workflow.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := scheduler.PauseSchedule(c.Request.Context(), id); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"schedule_id": id, "is_active": false})
	}
}

func resumeScheduleHandler(scheduler *workflow.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		next, err := scheduler.ResumeSchedule(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"schedule_id": id, "is_active": true, "next_run": next})
	}
}

func executeNowHandler(scheduler *workflow.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetScheduleIdInContext(c.Request.Context(), id)
		ctx = utils.SetTriggeredByInContext(ctx, workflow.TriggerManual)
		if err := scheduler.ExecuteNow(ctx, id); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{
			"schedule_id":    id,
			"triggered_by":   workflow.TriggerManual,
			"correlation_id": cid,
		})
	}
}

// adhocExportHandler runs the full pipeline once, outside any schedule:
// fetch, validate, export, verify the artifact. A retryable failure is
// enqueued just like a scheduled firing.
func adhocExportHandler(source workflow.DataSource, exporter *export.Exporter, queue *workflow.RetryQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !req.Format.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown export format: %s", req.Format)})
			return
		}
		if !validation.IsKnownDataType(req.DataType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown data type: %s", req.DataType)})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "adhoc-export")
		defer span.End()

		records, err := source.Fetch(ctx, req.DataType, req.Filters)
		if err != nil {
			retryId, _ := queue.Enqueue(ctx, nil, req, err, nil)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "retry_id": retryId})
			return
		}

		valResult := validation.Validate(records, req.DataType, req)
		result := exporter.Export(records, req)
		if !result.Success {
			resp := gin.H{"error": result.Error, "validation": valResult}
			if result.Retryable {
				retryId, _ := queue.Enqueue(ctx, nil, req, errors.New(result.Error), nil)
				resp["retry_id"] = retryId
			}
			c.JSON(http.StatusBadRequest, resp)
			return
		}

		integrity := validation.VerifyArtifact(result.ArtifactPath, validation.ExpectedArtifact{
			RecordCount: result.RecordCount,
			Columns:     req.Columns,
		}, req.Format, req.Options)

		c.JSON(http.StatusOK, gin.H{
			"artifact_name": result.ArtifactName,
			"record_count":  result.RecordCount,
			"size":          result.Size,
			"validation":    valResult,
			"integrity":     integrity,
		})
	}
}

// validateExportHandler is the dry run: validation only, no artifact.
func validateExportHandler(source workflow.DataSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !validation.IsKnownDataType(req.DataType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown data type: %s", req.DataType)})
			return
		}
		records, err := source.Fetch(c.Request.Context(), req.DataType, req.Filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, validation.Validate(records, req.DataType, req))
	}
}

// retryQueueStatusCacheKey holds the per-state item counts for a short
// window so dashboard polling does not hammer the database.
const retryQueueStatusCacheKey = "cache:retry-queue:status"

func retryQueueStatusHandler(queue *workflow.RetryQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cached map[string]int64
		if hit, err := config.GetRedisObject(retryQueueStatusCacheKey, &cached); err == nil && hit {
			c.JSON(http.StatusOK, cached)
			return
		}
		counts, err := queue.Status(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = config.SetRedisObject(retryQueueStatusCacheKey, counts, 15*time.Second)
		c.JSON(http.StatusOK, counts)
	}
}

type retryReplayRequest struct {
	RetryId int `json:"retry_id"`
}

// Ops tooling: flip a terminally FAILED retry item back to PENDING.
func retryReplayHandler(queue *workflow.RetryQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req retryReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.RetryId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "retry_id is required"})
			return
		}
		if err := queue.Requeue(c.Request.Context(), req.RetryId); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// The operator expects the status endpoint to reflect the replay
		// immediately.
		_ = config.DeleteRedisKey(retryQueueStatusCacheKey)
		c.JSON(http.StatusOK, gin.H{
			"retry_id": req.RetryId,
			"status":   models.RetryStatusPending,
		})
	}
}

func listNotificationsHandler(notifier *workflow.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		unreadOnly := strings.EqualFold(c.Query("unread"), "true")
		notifications, err := notifier.List(c.Request.Context(), limit, unreadOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": notifications})
	}
}

func markNotificationReadHandler(notifier *workflow.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := notifier.MarkRead(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notification_id": id, "is_read": true})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the DB is ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	// Gate app endpoints until every handler dependency is wired. A DB
	// connection alone is not enough: migrations and component wiring run
	// after it, and a request in that window would hit nil collaborators.
	var appReady atomic.Bool
	r.Use(readinessGate(&appReady))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		limit := int64(config.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", 600))
		windowSec := config.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
		rateLimiter := NewRateLimiter(nil, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	// Handlers run behind the readiness gate; the gate opens only after
	// these pointers are populated below.
	exportDir := os.Getenv("EXPORT_DIR")
	if exportDir == "" {
		exportDir = "exports"
	}
	exporter := export.NewExporter(exportDir, logger)
	var source workflow.DataSource
	var queue *workflow.RetryQueue
	var notifier *workflow.Notifier
	var scheduler *workflow.Scheduler

	r.POST("/schedules", func(c *gin.Context) { createScheduleHandler(scheduler)(c) })
	r.GET("/schedules", func(c *gin.Context) { listSchedulesHandler(scheduler)(c) })
	r.GET("/schedules/:id", func(c *gin.Context) { getScheduleHandler(scheduler)(c) })
	r.PUT("/schedules/:id", func(c *gin.Context) { updateScheduleHandler(scheduler)(c) })
	r.DELETE("/schedules/:id", func(c *gin.Context) { deleteScheduleHandler(scheduler)(c) })
	r.POST("/schedules/:id/pause", func(c *gin.Context) { pauseScheduleHandler(scheduler)(c) })
	r.POST("/schedules/:id/resume", func(c *gin.Context) { resumeScheduleHandler(scheduler)(c) })
	r.POST("/schedules/:id/execute", func(c *gin.Context) { executeNowHandler(scheduler)(c) })
	r.POST("/exports", func(c *gin.Context) { adhocExportHandler(source, exporter, queue)(c) })
	r.POST("/exports/validate", func(c *gin.Context) { validateExportHandler(source)(c) })
	r.GET("/retry-queue/status", func(c *gin.Context) { retryQueueStatusHandler(queue)(c) })
	// Ops tooling: replay retry items that exhausted their budget.
	r.POST("/internal/ops/retry/replay", func(c *gin.Context) { retryReplayHandler(queue)(c) })
	r.GET("/notifications", func(c *gin.Context) { listNotificationsHandler(notifier)(c) })
	r.POST("/notifications/:id/read", func(c *gin.Context) { markNotificationReadHandler(notifier)(c) })
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(5)

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	source = &workflow.DBDataSource{DB: db}
	queue = workflow.NewRetryQueue(db, logger, exporter, source)
	notifier = workflow.NewNotifier(db, logger)
	scheduler = workflow.NewScheduler(db, logger, exporter, queue, notifier, source)

	// Everything the handlers touch is wired; open the gate.
	appReady.Store(true)

	// Start the scheduler loop (timers + cron tick + retry queue drain).
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	go scheduler.Run(schedulerCtx)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("export scheduler listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelScheduler()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// readinessGate returns 503 for app endpoints until the flag flips.
// Redis is optional and never gates readiness: locks and rate limiting
// degrade gracefully without it.
func readinessGate(ready *atomic.Bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits. Fails open when Redis is
// unavailable so an optional dependency never takes the API down.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := rl.client
	if client == nil {
		client = config.GetRedisDB()
	}
	if client == nil {
		c.Next()
		return
	}

	// IP-based rate limiting.
	key := "ratelimit:" + c.ClientIP()

	exists, err := client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.Next()
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		if err := client.Set(c.Request.Context(), key, 1, rl.window).Err(); err != nil {
			c.Next()
			return
		}
		c.Next()
		return
	}

	count, err := client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.Next()
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}
