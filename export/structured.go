package export

import (
	"encoding/json"
	"os"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
)

// StructuredSerializer writes structured-text (JSON) artifacts: an array
// of objects keyed by column label. Banner and header rows are skipped;
// JSON carries its own structure.
type StructuredSerializer struct{}

func (StructuredSerializer) Serialize(path string, columns []models.ColumnSpec, rows [][]string, opts models.ExportOptions) error {
	dataRows := rows
	skip := 1 // header
	if opts.IncludeMetadata {
		skip += MetadataBannerRows
	}
	if len(dataRows) >= skip {
		dataRows = dataRows[skip:]
	}

	objects := make([]map[string]string, 0, len(dataRows))
	for _, row := range dataRows {
		obj := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(row) {
				obj[col.HeaderLabel()] = row[i]
			}
		}
		objects = append(objects, obj)
	}

	raw, err := json.MarshalIndent(objects, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
