package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/nicolaschoi7042/itNswinventory-sub002/validation"
	"github.com/xuri/excelize/v2"
)

func csvRequest() models.ExportRequest {
	return models.ExportRequest{
		DataType: "hardware",
		Format:   models.ExportFormatCSV,
		Columns: []models.ColumnSpec{
			{Key: "asset_id", Label: "Asset ID"},
			{Key: "price", Label: "Price", Type: models.ColumnTypeCurrency},
			{Key: "purchased", Label: "Purchased", Type: models.ColumnTypeDate},
		},
	}
}

func TestExport_EmptyRecordSet_FailsWithoutArtifact(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, nil)

	result := e.Export(nil, csvRequest())

	if result.Success {
		t.Fatal("expected export of empty set to fail")
	}
	if result.Error != "no data to export" {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if result.Retryable {
		t.Fatal("missing data is a configuration problem, not retryable")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("no artifact should exist, found %d entries", len(entries))
	}
}

func TestExport_UnregisteredFormat_FailsNotRetryable(t *testing.T) {
	e := NewExporter(t.TempDir(), nil)
	req := csvRequest()
	req.Format = models.ExportFormatPDF // not bundled

	result := e.Export([]models.Record{{"asset_id": "HW000001"}}, req)

	if result.Success || result.Retryable {
		t.Fatalf("expected non-retryable failure, got %+v", result)
	}
	if !strings.Contains(result.Error, "export format not available") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
}

func TestExport_Csv_WritesFormattedRows(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, nil)
	records := []models.Record{
		{"asset_id": "HW000001", "price": 1234.5, "purchased": "2026-01-15 09:30:00"},
		{"asset_id": "HW000002", "price": "99", "purchased": time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	result := e.Export(records, csvRequest())

	if !result.Success {
		t.Fatalf("export failed: %s", result.Error)
	}
	wantName := fmt.Sprintf("hardware_%s.csv", time.Now().UTC().Format("2006-01-02"))
	if result.ArtifactName != wantName {
		t.Fatalf("expected artifact name %q, got %q", wantName, result.ArtifactName)
	}
	if result.RecordCount != 2 {
		t.Fatalf("expected record count 2, got %d", result.RecordCount)
	}

	f, err := os.Open(result.ArtifactPath)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Asset ID" || rows[0][1] != "Price" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][1] != "1234.50" {
		t.Fatalf("currency must render with 2 decimals, got %q", rows[1][1])
	}
	if rows[1][2] != "2026-01-15" {
		t.Fatalf("date must render with default layout, got %q", rows[1][2])
	}
	if rows[2][1] != "99.00" {
		t.Fatalf("string-typed currency must normalize, got %q", rows[2][1])
	}
}

func TestExport_Spreadsheet_WritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, nil)
	req := csvRequest()
	req.Format = models.ExportFormatXLSX
	req.Options.SheetName = "Assets"

	result := e.Export([]models.Record{
		{"asset_id": "HW000001", "price": 1234.5, "purchased": "2026-01-15 09:30:00"},
	}, req)
	if !result.Success {
		t.Fatalf("export failed: %s", result.Error)
	}
	if !strings.HasSuffix(result.ArtifactName, ".xlsx") {
		t.Fatalf("unexpected artifact name %q", result.ArtifactName)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the finalized artifact, found %d entries", len(entries))
	}

	f, err := excelize.OpenFile(result.ArtifactPath)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Assets")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}
	if rows[0][0] != "Asset ID" || rows[1][0] != "HW000001" {
		t.Fatalf("unexpected sheet content: %v", rows)
	}
	if rows[1][1] != "1234.50" {
		t.Fatalf("currency must render with 2 decimals, got %q", rows[1][1])
	}
}

func TestExport_Spreadsheet_MetadataBannerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, nil)
	req := csvRequest()
	req.Format = models.ExportFormatXLSX
	req.Options.IncludeMetadata = true

	result := e.Export([]models.Record{
		{"asset_id": "HW000001", "price": 10},
		{"asset_id": "HW000002", "price": 20},
	}, req)
	if !result.Success {
		t.Fatalf("export failed: %s", result.Error)
	}

	verdict := validation.VerifyArtifact(result.ArtifactPath, validation.ExpectedArtifact{
		RecordCount: result.RecordCount,
		Columns:     req.Columns,
	}, req.Format, req.Options)
	if !verdict.IsValid {
		t.Fatalf("integrity verification failed: %v", verdict.Errors)
	}
	for _, check := range verdict.Checks {
		if !check.Passed {
			t.Fatalf("check %s failed: %s", check.Name, check.Message)
		}
	}
}

func TestExport_MultibyteDelimiter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, nil)
	req := csvRequest()
	req.Options.Delimiter = "；"

	result := e.Export([]models.Record{
		{"asset_id": "HW000001", "price": 10},
		{"asset_id": "HW000002", "price": 20},
	}, req)
	if !result.Success {
		t.Fatalf("export failed: %s", result.Error)
	}

	raw, err := os.ReadFile(result.ArtifactPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(raw), "Asset ID；Price") {
		t.Fatalf("delimiter not written as a full rune: %q", strings.SplitN(string(raw), "\n", 2)[0])
	}

	verdict := validation.VerifyArtifact(result.ArtifactPath, validation.ExpectedArtifact{
		RecordCount: result.RecordCount,
		Columns:     req.Columns,
	}, req.Format, req.Options)
	if !verdict.IsValid {
		t.Fatalf("integrity verification failed: %v", verdict.Errors)
	}
}

func TestExport_MetadataBanner_PrecedesHeader(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, nil)
	req := csvRequest()
	req.Options.IncludeMetadata = true
	req.Options.Title = "Hardware inventory"

	result := e.Export([]models.Record{{"asset_id": "HW000001"}}, req)
	if !result.Success {
		t.Fatalf("export failed: %s", result.Error)
	}

	raw, err := os.ReadFile(result.ArtifactPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if lines[0] != "Hardware inventory" {
		t.Fatalf("expected title line first, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "Generated at ") {
		t.Fatalf("expected generated-at line, got %q", lines[1])
	}
	if lines[2] != "Record count: 1" {
		t.Fatalf("expected record count line, got %q", lines[2])
	}
}

func TestExport_FilenamePrefixOverride(t *testing.T) {
	e := NewExporter(t.TempDir(), nil)
	req := csvRequest()
	req.Options.FilenamePrefix = "weekly_assets"

	result := e.Export([]models.Record{{"asset_id": "HW000001"}}, req)
	if !result.Success {
		t.Fatalf("export failed: %s", result.Error)
	}
	if !strings.HasPrefix(result.ArtifactName, "weekly_assets_") {
		t.Fatalf("expected prefix override, got %q", result.ArtifactName)
	}
}

func TestExport_SerializerPanic_BecomesRetryableError(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, nil)
	e.Register(models.ExportFormatPDF, SerializerFunc(func(path string, columns []models.ColumnSpec, rows [][]string, opts models.ExportOptions) error {
		panic("document engine crashed")
	}))
	req := csvRequest()
	req.Format = models.ExportFormatPDF

	result := e.Export([]models.Record{{"asset_id": "HW000001"}}, req)

	if result.Success {
		t.Fatal("expected panic to fail the export")
	}
	if !result.Retryable {
		t.Fatal("serializer failures must be retryable")
	}
	if !strings.Contains(result.Error, "serializer panic") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("no partial artifact may remain, found %d entries", len(entries))
	}
}

func TestExport_FailedSerialization_LeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, nil)
	e.Register(models.ExportFormatPDF, SerializerFunc(func(path string, columns []models.ColumnSpec, rows [][]string, opts models.ExportOptions) error {
		// Simulate a serializer that wrote partial output before failing.
		_ = os.WriteFile(path, []byte("partial"), 0o644)
		return fmt.Errorf("disk full")
	}))
	req := csvRequest()
	req.Format = models.ExportFormatPDF

	result := e.Export([]models.Record{{"asset_id": "HW000001"}}, req)

	if result.Success {
		t.Fatal("expected failure")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("scratch file must be cleaned up, found %d entries", len(entries))
	}
}

func TestFormatCell_BooleanAndNumber(t *testing.T) {
	rec := models.Record{"active": true, "count": 3, "ratio": 0.5}

	if got := formatCell(rec, models.ColumnSpec{Key: "active", Type: models.ColumnTypeBoolean}); got != "true" {
		t.Fatalf("boolean: got %q", got)
	}
	if got := formatCell(rec, models.ColumnSpec{Key: "count", Type: models.ColumnTypeNumber}); got != "3" {
		t.Fatalf("number: got %q", got)
	}
	if got := formatCell(rec, models.ColumnSpec{Key: "ratio", Type: models.ColumnTypeNumber, Format: "%.1f"}); got != "0.5" {
		t.Fatalf("formatted number: got %q", got)
	}
	if got := formatCell(rec, models.ColumnSpec{Key: "missing"}); got != "" {
		t.Fatalf("missing field must render empty, got %q", got)
	}
}
