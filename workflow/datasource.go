package workflow

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"gorm.io/gorm"
)

// DataSource supplies the records an export operates on. The scheduler
// treats it as a pure read.
type DataSource interface {
	Fetch(ctx context.Context, dataType string, filters map[string]string) ([]models.Record, error)
}

// dataTypeTables maps export data types to their inventory tables.
var dataTypeTables = map[string]string{
	"hardware":    "hardware_assets",
	"software":    "software_licenses",
	"employees":   "employees",
	"assignments": "assignments",
	"activity":    "activity_logs",
}

var filterColumnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// DBDataSource reads inventory records straight out of MySQL.
type DBDataSource struct {
	DB *gorm.DB
}

func (s *DBDataSource) Fetch(ctx context.Context, dataType string, filters map[string]string) ([]models.Record, error) {
	table, ok := dataTypeTables[dataType]
	if !ok {
		return nil, fmt.Errorf("unknown data type: %s", dataType)
	}

	query := s.DB.WithContext(ctx).Table(table)
	for column, value := range filters {
		if !filterColumnPattern.MatchString(column) {
			return nil, fmt.Errorf("invalid filter column: %s", column)
		}
		query = query.Where(fmt.Sprintf("%s = ?", column), value)
	}

	var rows []map[string]interface{}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]models.Record, len(rows))
	for i, row := range rows {
		for k, v := range row {
			// MySQL text columns scan as []byte; normalize to string so
			// validation and formatting see plain values.
			if b, isBytes := v.([]byte); isBytes {
				row[k] = string(b)
			}
		}
		records[i] = models.Record(row)
	}
	return records, nil
}
