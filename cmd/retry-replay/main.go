package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nicolaschoi7042/itNswinventory-sub002/config"
	"github.com/nicolaschoi7042/itNswinventory-sub002/export"
	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/nicolaschoi7042/itNswinventory-sub002/workflow"
	"gorm.io/gorm"
)

func main() {
	retryID := flag.Int("retry-id", 0, "Required: export_retry_items.id to replay")
	dryRun := flag.Bool("dry-run", true, "Show record only (no writes)")
	confirm := flag.String("confirm", "", "Type REPLAY to proceed when dry-run=false")
	process := flag.Bool("process", false, "Drain the queue immediately after requeueing")
	flag.Parse()

	if *retryID <= 0 {
		fmt.Fprintln(os.Stderr, "--retry-id is required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "REPLAY" {
		fmt.Fprintln(os.Stderr, "set --confirm=REPLAY to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if *dryRun {
		printRecord(db, *retryID)
		return
	}

	logger := config.GetLogger()
	exportDir := os.Getenv("EXPORT_DIR")
	if exportDir == "" {
		exportDir = "exports"
	}
	exporter := export.NewExporter(exportDir, logger)
	source := &workflow.DBDataSource{DB: db}
	queue := workflow.NewRetryQueue(db, logger, exporter, source)

	ctx := context.Background()
	if err := queue.Requeue(ctx, *retryID); err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("retry item requeued")

	if *process {
		queue.ProcessQueue(ctx)
		printRecord(db, *retryID)
	}
}

func printRecord(db *gorm.DB, retryID int) {
	var item models.ExportRetryItem
	if err := db.First(&item, retryID).Error; err != nil {
		fmt.Fprintf(os.Stderr, "not found: %v\n", err)
		os.Exit(1)
	}
	lastErr := ""
	if item.LastError != nil {
		lastErr = *item.LastError
	}
	nextAt := "-"
	if item.NextAttemptAt != nil {
		nextAt = item.NextAttemptAt.Format("2006-01-02 15:04:05")
	}
	fmt.Printf("id=%d schedule_id=%v status=%s retry_count=%d max_retries=%d next_attempt_at=%s last_error=%q\n",
		item.ID, item.ScheduleId, item.Status, item.RetryCount, item.MaxRetries, nextAt, lastErr)
}
