package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"edusphere/internal/report"
)

const sheetName = "Report"

// XLSX writes t as a single-sheet workbook. Numeric grade cells are stored as
// numbers so spreadsheet formulas work on them.
func XLSX(w io.Writer, h Header, t report.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"28916C"}},
	})
	if err != nil {
		return fmt.Errorf("xlsx: style: %w", err)
	}

	row := 1
	if h.Institution != "" || h.Title != "" {
		title := h.Institution
		if h.Title != "" {
			if title != "" {
				title += " - "
			}
			title += h.Title
		}
		if h.ClassLabel != "" {
			title += " (" + h.ClassLabel + ")"
		}
		if err := f.SetCellValue(sheetName, "A1", title); err != nil {
			return fmt.Errorf("xlsx: title: %w", err)
		}
		row = 3
	}

	gradeCol := -1
	for i, header := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("xlsx: header: %w", err)
		}
		if header == report.HeaderGrade {
			gradeCol = i
		}
	}
	if len(t.Headers) > 0 {
		first, _ := excelize.CoordinatesToCellName(1, row)
		last, _ := excelize.CoordinatesToCellName(len(t.Headers), row)
		if err := f.SetCellStyle(sheetName, first, last, bold); err != nil {
			return fmt.Errorf("xlsx: header style: %w", err)
		}
	}

	for r, cells := range t.Rows {
		for c, v := range cells {
			cell, _ := excelize.CoordinatesToCellName(c+1, row+1+r)
			var value interface{} = v
			if c == gradeCol {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					value = n
				}
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("xlsx: cell %s: %w", cell, err)
			}
		}
	}

	for i, header := range t.Headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		width := 14.0
		if header == report.HeaderName {
			width = 28
		}
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("xlsx: column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx: write: %w", err)
	}
	return nil
}
