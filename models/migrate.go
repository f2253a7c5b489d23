package models

import (
	"github.com/nicolaschoi7042/itNswinventory-sub002/config"
)

func MigrateTable() {
	db := config.GetDB()
	logger := config.GetLogger()
	err := db.AutoMigrate(
		&ScheduledExport{},
		&ExportRetryItem{},
		&ExportNotification{},
	)
	if err != nil {
		config.LogError(logger, "models/migrate.go", "MigrateTable", "AutoMigrate", nil, err)
	}
}
