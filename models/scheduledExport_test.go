package models

import (
	"testing"
	"time"
)

func TestScheduledExport_ExportRequestFromConfig(t *testing.T) {
	sched := ScheduledExport{
		DataType:     "hardware",
		ExportFormat: ExportFormatXLSX,
		ExportConfig: []byte(`{
			"columns": [{"key": "asset_id", "label": "Asset ID"}],
			"filters": {"status": "in_use"},
			"options": {"include_metadata": true, "filename_prefix": "assets"}
		}`),
	}

	req, err := sched.ExportRequest()
	if err != nil {
		t.Fatalf("decode export request: %v", err)
	}
	if req.DataType != "hardware" || req.Format != ExportFormatXLSX {
		t.Fatalf("unexpected request identity: %+v", req)
	}
	if len(req.Columns) != 1 || req.Columns[0].HeaderLabel() != "Asset ID" {
		t.Fatalf("unexpected columns: %+v", req.Columns)
	}
	if req.Filters["status"] != "in_use" {
		t.Fatalf("unexpected filters: %+v", req.Filters)
	}
	if !req.Options.IncludeMetadata || req.Options.FilenamePrefix != "assets" {
		t.Fatalf("unexpected options: %+v", req.Options)
	}
}

func TestScheduledExport_EmptyConfigsDecode(t *testing.T) {
	var sched ScheduledExport

	if _, err := sched.ExportRequest(); err != nil {
		t.Fatalf("empty export config must decode: %v", err)
	}
	cfg, err := sched.DecodeNotifyConfig()
	if err != nil {
		t.Fatalf("empty notify config must decode: %v", err)
	}
	if cfg.Enabled {
		t.Fatal("zero-value notify config must be disabled")
	}
}

func TestScheduledExport_ExportRequest_BadJson(t *testing.T) {
	sched := ScheduledExport{ExportConfig: []byte(`{"columns": [`)}
	if _, err := sched.ExportRequest(); err == nil {
		t.Fatal("expected decode error for malformed config")
	}
}

func TestExportFormat_ValidAndExtension(t *testing.T) {
	for _, f := range []ExportFormat{ExportFormatXLSX, ExportFormatCSV, ExportFormatJSON, ExportFormatPDF} {
		if !f.Valid() {
			t.Fatalf("%s must be valid", f)
		}
		if f.Extension() != string(f) {
			t.Fatalf("extension for %s must be %s", f, f)
		}
	}
	if ExportFormat("docx").Valid() {
		t.Fatal("docx must not be valid")
	}
}

func TestRecurrence_OnceCarriesExecuteAt(t *testing.T) {
	when := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)
	sched := ScheduledExport{Frequency: FrequencyOnce, ExecuteAt: &when}
	rec := sched.Recurrence()
	if rec.ExecuteAt == nil || !rec.ExecuteAt.Equal(when) {
		t.Fatalf("unexpected recurrence: %+v", rec)
	}
}
