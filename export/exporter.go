package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MetadataBannerRows is the number of rows the optional metadata banner
// occupies before the header row (title, generated-at, record count, blank).
const MetadataBannerRows = 4

// Result is the sole source of truth for an export attempt. Either
// serialization completed and Success is true, or nothing was emitted.
type Result struct {
	Success      bool   `json:"success"`
	ArtifactName string `json:"artifact_name,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	Size         int64  `json:"size,omitempty"`
	RecordCount  int    `json:"record_count"`
	Error        string `json:"error,omitempty"`

	// Retryable marks serializer/IO failures worth re-attempting. Config
	// problems (no data, unregistered format) are not retryable.
	Retryable bool `json:"-"`
}

// Exporter dispatches a record set to the serializer registered for the
// requested format. Stateless across calls; safe for concurrent use.
type Exporter struct {
	Dir    string
	Logger *logrus.Logger

	mu          sync.RWMutex
	serializers map[models.ExportFormat]Serializer
}

// NewExporter registers the bundled serializers. Paginated-document (pdf)
// output is an external capability and must be registered by the caller.
func NewExporter(dir string, logger *logrus.Logger) *Exporter {
	return &Exporter{
		Dir:    dir,
		Logger: logger,
		serializers: map[models.ExportFormat]Serializer{
			models.ExportFormatXLSX: SpreadsheetSerializer{},
			models.ExportFormatCSV:  DelimitedSerializer{},
			models.ExportFormatJSON: StructuredSerializer{},
		},
	}
}

func (e *Exporter) Register(format models.ExportFormat, s Serializer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.serializers[format] = s
}

func (e *Exporter) serializerFor(format models.ExportFormat) (Serializer, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.serializers[format]
	return s, ok
}

// Export projects records through the column layout and hands the rows to
// the format's serializer. All-or-nothing: the artifact is written to a
// scratch path and only renamed into place after the serializer succeeds.
func (e *Exporter) Export(records []models.Record, req models.ExportRequest) Result {
	if len(records) == 0 {
		return Result{Error: "no data to export"}
	}

	serializer, ok := e.serializerFor(req.Format)
	if !ok {
		return Result{Error: fmt.Sprintf("export format not available: %s", req.Format)}
	}

	columns := req.Columns
	if len(columns) == 0 {
		return Result{Error: "no columns configured for export"}
	}

	rows := e.buildRows(records, req)
	name := artifactName(req)
	finalPath := filepath.Join(e.Dir, name)
	scratchPath := finalPath + ".partial"

	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return Result{Error: fmt.Sprintf("export directory unavailable: %v", err), Retryable: true}
	}

	if err := e.serializeSafely(serializer, scratchPath, columns, rows, req.Options); err != nil {
		os.Remove(scratchPath)
		return Result{Error: err.Error(), Retryable: true}
	}
	if err := os.Rename(scratchPath, finalPath); err != nil {
		os.Remove(scratchPath)
		return Result{Error: fmt.Sprintf("failed to finalize artifact: %v", err), Retryable: true}
	}

	var size int64
	if info, err := os.Stat(finalPath); err == nil {
		size = info.Size()
	}

	if e.Logger != nil {
		e.Logger.WithFields(logrus.Fields{
			"field":     "Exporter",
			"data_type": req.DataType,
			"format":    req.Format,
			"artifact":  name,
			"records":   len(records),
			"size":      size,
		}).Info("export completed")
	}

	return Result{
		Success:      true,
		ArtifactName: name,
		ArtifactPath: finalPath,
		Size:         size,
		RecordCount:  len(records),
	}
}

// serializeSafely converts serializer panics into errors so a misbehaving
// capability cannot take down a scheduler callback.
func (e *Exporter) serializeSafely(s Serializer, path string, columns []models.ColumnSpec, rows [][]string, opts models.ExportOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serializer panic: %v", r)
		}
	}()
	return s.Serialize(path, columns, rows, opts)
}

func (e *Exporter) buildRows(records []models.Record, req models.ExportRequest) [][]string {
	rows := make([][]string, 0, len(records)+1+MetadataBannerRows)

	if req.Options.IncludeMetadata {
		title := req.Options.Title
		if title == "" {
			title = fmt.Sprintf("%s export", req.DataType)
		}
		rows = append(rows,
			[]string{title},
			[]string{fmt.Sprintf("Generated at %s", time.Now().UTC().Format(time.RFC3339))},
			[]string{fmt.Sprintf("Record count: %d", len(records))},
			[]string{},
		)
	}

	header := make([]string, len(req.Columns))
	for i, col := range req.Columns {
		header[i] = col.HeaderLabel()
	}
	rows = append(rows, header)

	for _, rec := range records {
		row := make([]string, len(req.Columns))
		for i, col := range req.Columns {
			row[i] = formatCell(rec, col)
		}
		rows = append(rows, row)
	}
	return rows
}

// formatCell applies the per-column formatter, or default formatting by
// semantic type.
func formatCell(rec models.Record, col models.ColumnSpec) string {
	value, ok := rec.Get(col.Key)
	if !ok || value == nil {
		return ""
	}

	switch col.Type {
	case models.ColumnTypeDate:
		layout := col.Format
		if layout == "" {
			layout = "2006-01-02"
		}
		if t, err := parseTime(value); err == nil {
			return t.Format(layout)
		}
		return strings.TrimSpace(fmt.Sprint(value))
	case models.ColumnTypeCurrency:
		if d, err := toDecimal(value); err == nil {
			return d.StringFixed(2)
		}
		return strings.TrimSpace(fmt.Sprint(value))
	case models.ColumnTypeNumber:
		if d, err := toDecimal(value); err == nil {
			if col.Format != "" && strings.Contains(col.Format, "%") {
				return fmt.Sprintf(col.Format, d.InexactFloat64())
			}
			return d.String()
		}
		return strings.TrimSpace(fmt.Sprint(value))
	case models.ColumnTypeBoolean:
		if b, isBool := value.(bool); isBool {
			if b {
				return "true"
			}
			return "false"
		}
		return strings.ToLower(strings.TrimSpace(fmt.Sprint(value)))
	default:
		if col.Format != "" && strings.Contains(col.Format, "%") {
			return fmt.Sprintf(col.Format, value)
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func parseTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *v, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date: %q", s)
	default:
		return time.Time{}, fmt.Errorf("not a date: %T", value)
	}
}

func toDecimal(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	default:
		return decimal.Zero, fmt.Errorf("not a number: %T", value)
	}
}

// artifactName builds the deterministic filename <prefix>_<ISO-date>.<ext>.
func artifactName(req models.ExportRequest) string {
	prefix := req.Options.FilenamePrefix
	if prefix == "" {
		prefix = req.DataType
	}
	return fmt.Sprintf("%s_%s.%s", prefix, time.Now().UTC().Format("2006-01-02"), req.Format.Extension())
}
