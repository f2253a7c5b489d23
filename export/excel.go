package export

import (
	"os"

	"github.com/nicolaschoi7042/itNswinventory-sub002/models"
	"github.com/xuri/excelize/v2"
)

// SpreadsheetSerializer writes xlsx artifacts.
type SpreadsheetSerializer struct{}

func (SpreadsheetSerializer) Serialize(path string, columns []models.ColumnSpec, rows [][]string, opts models.ExportOptions) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := opts.SheetName
	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if sheetName != "Sheet1" {
		if _, err := f.NewSheet(sheetName); err != nil {
			return err
		}
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return err
		}
	}

	for r, row := range rows {
		if len(row) == 0 {
			// Materialize blank banner rows so readers see stable offsets.
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, ""); err != nil {
				return err
			}
			continue
		}
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	// The exporter hands us a scratch path without a workbook extension,
	// which SaveAs rejects. Stream the workbook into the file instead.
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Write(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
