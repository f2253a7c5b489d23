package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellValue("Sheet1", cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "hardware_2026-08-23.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func writeArtifact(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestVerifyArtifact_CleanCsv_AllChecksPass(t *testing.T) {
	path := writeArtifact(t, "hardware_2026-08-23.csv",
		"Asset ID,Status\nHW000001,in_use\nHW000002,in_stock\n")
	expected := ExpectedArtifact{
		RecordCount: 2,
		Columns: []models.ColumnSpec{
			{Key: "asset_id", Label: "Asset ID"},
			{Key: "status", Label: "Status"},
		},
	}

	result := VerifyArtifact(path, expected, models.ExportFormatCSV, models.ExportOptions{})

	if !result.IsValid {
		t.Fatalf("expected valid artifact, errors: %v", result.Errors)
	}
	for _, check := range result.Checks {
		if !check.Passed {
			t.Fatalf("check %s failed: %s", check.Name, check.Message)
		}
	}
}

func TestVerifyArtifact_RecordCountMismatch_Fails(t *testing.T) {
	path := writeArtifact(t, "hardware_2026-08-23.csv",
		"Asset ID\nHW000001\n")
	expected := ExpectedArtifact{
		RecordCount: 3,
		Columns:     []models.ColumnSpec{{Key: "asset_id", Label: "Asset ID"}},
	}

	result := VerifyArtifact(path, expected, models.ExportFormatCSV, models.ExportOptions{})

	if result.IsValid {
		t.Fatal("expected record-count mismatch to invalidate")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "expected 3 records, artifact has 1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected record-count error, got: %v", result.Errors)
	}
}

func TestVerifyArtifact_MissingFile_ReportsSkippedChecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never_written.csv")

	result := VerifyArtifact(path, ExpectedArtifact{RecordCount: 1}, models.ExportFormatCSV, models.ExportOptions{})

	if result.IsValid {
		t.Fatal("expected missing artifact to be invalid")
	}
	// All three base checks must still be reported.
	if len(result.Checks) != 3 {
		t.Fatalf("expected 3 reported checks, got %d", len(result.Checks))
	}
	for _, check := range result.Checks {
		if check.Passed {
			t.Fatalf("check %s should not pass on missing file", check.Name)
		}
	}
}

func TestVerifyArtifact_HeaderLabelMismatch_IsWarning(t *testing.T) {
	path := writeArtifact(t, "hardware_2026-08-23.csv",
		"WRONG,Status\nHW000001,in_use\n")
	expected := ExpectedArtifact{
		RecordCount: 1,
		Columns: []models.ColumnSpec{
			{Key: "asset_id", Label: "Asset ID"},
			{Key: "status", Label: "Status"},
		},
	}

	result := VerifyArtifact(path, expected, models.ExportFormatCSV, models.ExportOptions{})

	if !result.IsValid {
		t.Fatalf("label mismatches are warnings, errors: %v", result.Errors)
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, `header is "WRONG"`) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected header mismatch warning, got: %v", result.Warnings)
	}
}

func TestVerifyArtifact_ColumnCountMismatch_IsError(t *testing.T) {
	path := writeArtifact(t, "hardware_2026-08-23.csv",
		"Asset ID\nHW000001\n")
	expected := ExpectedArtifact{
		RecordCount: 1,
		Columns: []models.ColumnSpec{
			{Key: "asset_id", Label: "Asset ID"},
			{Key: "status", Label: "Status"},
		},
	}

	result := VerifyArtifact(path, expected, models.ExportFormatCSV, models.ExportOptions{})

	if result.IsValid {
		t.Fatal("expected column count mismatch to invalidate")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "artifact has 1 columns, layout has 2") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected content-comparison error, got: %v", result.Errors)
	}
}

func TestVerifyArtifact_CsvWithMetadataBanner_CountsOnlyDataRows(t *testing.T) {
	// The blank banner separator line is skipped by the CSV reader.
	content := "hardware export\nGenerated at 2026-08-23T00:00:00Z\nRecord count: 2\n\nAsset ID\nHW000001\nHW000002\n"
	path := writeArtifact(t, "hardware_2026-08-23.csv", content)
	expected := ExpectedArtifact{
		RecordCount: 2,
		Columns:     []models.ColumnSpec{{Key: "asset_id", Label: "Asset ID"}},
	}

	result := VerifyArtifact(path, expected, models.ExportFormatCSV, models.ExportOptions{IncludeMetadata: true})

	if !result.IsValid {
		t.Fatalf("expected valid artifact with metadata banner, errors: %v", result.Errors)
	}
}

func TestVerifyArtifact_XlsxCountsDataRows(t *testing.T) {
	path := writeWorkbook(t, [][]string{
		{"Asset ID", "Status"},
		{"HW000001", "in_use"},
		{"HW000002", "in_stock"},
	})
	expected := ExpectedArtifact{
		RecordCount: 2,
		Columns: []models.ColumnSpec{
			{Key: "asset_id", Label: "Asset ID"},
			{Key: "status", Label: "Status"},
		},
	}

	result := VerifyArtifact(path, expected, models.ExportFormatXLSX, models.ExportOptions{})

	if !result.IsValid {
		t.Fatalf("expected valid workbook, errors: %v", result.Errors)
	}
}

func TestVerifyArtifact_XlsxRecordCountMismatch_Fails(t *testing.T) {
	path := writeWorkbook(t, [][]string{
		{"Asset ID"},
		{"HW000001"},
	})
	expected := ExpectedArtifact{
		RecordCount: 2,
		Columns:     []models.ColumnSpec{{Key: "asset_id", Label: "Asset ID"}},
	}

	result := VerifyArtifact(path, expected, models.ExportFormatXLSX, models.ExportOptions{})

	if result.IsValid {
		t.Fatal("expected record-count mismatch to invalidate")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "expected 2 records, artifact has 1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected record-count error, got: %v", result.Errors)
	}
}

func TestVerifyArtifact_ChecksumMismatch_IsError(t *testing.T) {
	path := writeArtifact(t, "hardware_2026-08-23.csv",
		"Asset ID\nHW000001\n")
	expected := ExpectedArtifact{
		RecordCount: 1,
		Columns:     []models.ColumnSpec{{Key: "asset_id", Label: "Asset ID"}},
		Checksum:    "deadbeef",
	}

	result := VerifyArtifact(path, expected, models.ExportFormatCSV, models.ExportOptions{})

	if result.IsValid {
		t.Fatal("expected checksum mismatch to invalidate")
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "sha256 mismatch") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected checksum error, got: %v", result.Errors)
	}
}

func TestVerifyArtifact_JsonArray_CountsObjects(t *testing.T) {
	path := writeArtifact(t, "hardware_2026-08-23.json",
		`[{"Asset ID":"HW000001"},{"Asset ID":"HW000002"}]`)
	expected := ExpectedArtifact{RecordCount: 2}

	result := VerifyArtifact(path, expected, models.ExportFormatJSON, models.ExportOptions{})

	if !result.IsValid {
		t.Fatalf("expected valid json artifact, errors: %v", result.Errors)
	}
}
