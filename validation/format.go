package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
)

// Spreadsheet hard limits (xlsx worksheet dimensions).
const (
	maxSheetRows    = 1048576
	maxSheetColumns = 16384
	maxCellChars    = 32767
)

// pdfSizeWarnRecords is the record count above which a paginated-document
// export gets a size warning.
const pdfSizeWarnRecords = 10000

// checkFormatConstraints runs the format-specific battery. It may only
// append errors/warnings; statistics and quality are already final.
func checkFormatConstraints(result *Result, records []models.Record, req models.ExportRequest) {
	switch req.Format {
	case models.ExportFormatXLSX:
		headerRows := 1
		if req.Options.IncludeMetadata {
			headerRows += 4
		}
		if len(records)+headerRows > maxSheetRows {
			result.Errors = append(result.Errors,
				fmt.Sprintf("spreadsheet row limit exceeded: %d records do not fit in %d rows", len(records), maxSheetRows))
		}
		if len(req.Columns) > maxSheetColumns {
			result.Errors = append(result.Errors,
				fmt.Sprintf("spreadsheet column limit exceeded: %d columns (max %d)", len(req.Columns), maxSheetColumns))
		}
		for i, rec := range records {
			for _, col := range req.Columns {
				if v, ok := rec.Get(col.Key); ok {
					if s, isStr := v.(string); isStr && len(s) > maxCellChars {
						result.Warnings = append(result.Warnings,
							fmt.Sprintf("row %d: field %q exceeds %d characters and will be truncated by the spreadsheet serializer", i, col.Key, maxCellChars))
					}
				}
			}
		}
	case models.ExportFormatCSV:
		delimiter := req.Options.Delimiter
		if delimiter == "" {
			delimiter = ","
		}
		for i, rec := range records {
			for _, col := range req.Columns {
				if v, ok := rec.Get(col.Key); ok {
					if s, isStr := v.(string); isStr && strings.Contains(s, delimiter) {
						result.Warnings = append(result.Warnings,
							fmt.Sprintf("row %d: field %q contains the delimiter %q and will be quoted", i, col.Key, delimiter))
					}
				}
			}
		}
	case models.ExportFormatPDF:
		if len(records) > pdfSizeWarnRecords {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("document export of %d records may be very large; consider filtering", len(records)))
		}
	case models.ExportFormatJSON:
		for i, rec := range records {
			if _, err := json.Marshal(rec); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("row %d: record is not serializable: %v", i, err))
			}
		}
	}
}
