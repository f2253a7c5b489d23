package models

import "strings"

// Record is one exportable domain entity (asset, license, employee,
// assignment, activity entry) as an opaque field -> value mapping.
// Fields are addressed by dotted path for nested access.
type Record map[string]interface{}

// Get resolves a dotted field path ("assigned_to.username") against the
// record. A nil map anywhere along the path resolves to (nil, false).
func (r Record) Get(path string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(r)
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			if rec, isRec := current.(Record); isRec {
				m = map[string]interface{}(rec)
			} else {
				return nil, false
			}
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ColumnType is the semantic type of an export column.
type ColumnType string

const (
	ColumnTypeString   ColumnType = "string"
	ColumnTypeNumber   ColumnType = "number"
	ColumnTypeDate     ColumnType = "date"
	ColumnTypeBoolean  ColumnType = "boolean"
	ColumnTypeCurrency ColumnType = "currency"
)

// ColumnSpec defines how one Record field is projected into an export
// column. Created per export request, immutable afterwards.
type ColumnSpec struct {
	Key    string     `json:"key" binding:"required"`
	Label  string     `json:"label"`
	Type   ColumnType `json:"type"`
	Format string     `json:"format,omitempty"` // date layout or printf pattern
	Align  string     `json:"align,omitempty"`  // left|right|center
}

// HeaderLabel returns the column header text (falls back to the key).
func (c ColumnSpec) HeaderLabel() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Key
}

// ExportFormat identifies an output artifact format.
type ExportFormat string

const (
	ExportFormatXLSX ExportFormat = "xlsx" // spreadsheet
	ExportFormatCSV  ExportFormat = "csv"  // delimited text
	ExportFormatJSON ExportFormat = "json" // structured text
	ExportFormatPDF  ExportFormat = "pdf"  // paginated document
)

func (f ExportFormat) Valid() bool {
	switch f {
	case ExportFormatXLSX, ExportFormatCSV, ExportFormatJSON, ExportFormatPDF:
		return true
	}
	return false
}

// Extension returns the artifact filename extension for the format.
func (f ExportFormat) Extension() string {
	return string(f)
}

// ExportOptions tunes serialization and metadata injection.
type ExportOptions struct {
	Title           string `json:"title,omitempty"`
	IncludeMetadata bool   `json:"include_metadata,omitempty"`
	FilenamePrefix  string `json:"filename_prefix,omitempty"`
	Delimiter       string `json:"delimiter,omitempty"` // delimited text only, default ","
	SheetName       string `json:"sheet_name,omitempty"`
}

// ExportRequest is a fully resolved export instruction: which records to
// pull, how to project them and which serializer to hand them to.
type ExportRequest struct {
	DataType string            `json:"data_type" binding:"required"`
	Format   ExportFormat      `json:"format" binding:"required"`
	Columns  []ColumnSpec      `json:"columns" binding:"required"`
	Filters  map[string]string `json:"filters,omitempty"`
	Options  ExportOptions     `json:"options"`
}
