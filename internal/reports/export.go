package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// FileName is <TYPE>_<Branch_Name>_<YYYY-MM-DD_HHMM>.<ext>.
func FileName(t Type, branchName string, now time.Time, ext string) string {
	name := strings.Join(strings.Fields(branchName), "_")
	return fmt.Sprintf("%s_%s_%s.%s", t, name, now.Format("2006-01-02_1504"), ext)
}

func CSV(tbl Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(tbl.Headers); err != nil {
		return nil, err
	}
	if err := w.WriteAll(tbl.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func XLSX(tbl Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Report"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	// Başlık bloğu
	meta := [][]any{
		{tbl.Title},
		{"Branch", tbl.Branch},
		{"Period", tbl.From + " to " + tbl.To},
		{"Generated", tbl.Generated.Format("2006-01-02 15:04")},
	}
	row := 1
	for _, m := range meta {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &m); err != nil {
			return nil, err
		}
		row++
	}
	row++

	headerRow := row
	headers := make([]any, len(tbl.Headers))
	for i, h := range tbl.Headers {
		headers[i] = h
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(sheet, cell, &headers); err != nil {
		return nil, err
	}
	row++

	for _, r := range tbl.Rows {
		vals := make([]any, len(r))
		for i, v := range r {
			vals[i] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return nil, err
		}
		row++
	}

	if len(tbl.Headers) > 0 {
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err == nil {
			first, _ := excelize.CoordinatesToCellName(1, headerRow)
			last, _ := excelize.CoordinatesToCellName(len(tbl.Headers), headerRow)
			_ = f.SetCellStyle(sheet, first, last, bold)
			_ = f.SetCellStyle(sheet, "A1", "A1", bold)
		}
		lastCol, _ := excelize.ColumnNumberToName(len(tbl.Headers))
		_ = f.SetColWidth(sheet, "A", lastCol, 18)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
