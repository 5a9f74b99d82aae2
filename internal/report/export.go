package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const rule = "=================================================="

// Filename is the download name of a report: waypoint-analysis-<jobID>.<ext>.
func Filename(jobID, ext string) string {
	return fmt.Sprintf("waypoint-analysis-%s.%s", jobID, strings.TrimPrefix(ext, "."))
}

// Text renders the plain-text report.
func Text(productIdea string, analysis json.RawMessage) ([]byte, error) {
	sections, err := Sections(analysis)
	if err != nil {
		return nil, err
	}

	blocks := make([]string, len(sections))
	for i, s := range sections {
		blocks[i] = s.Title() + "\n" + rule + "\n" + s.Body + "\n\n"
	}

	var b bytes.Buffer
	b.WriteString("WAYPOINT MARKET ANALYSIS\n")
	b.WriteString("Product: " + productIdea + "\n\n")
	b.WriteString(strings.Join(blocks, "\n"))
	return b.Bytes(), nil
}

const sheet = "Analysis"

// XLSX renders the report as a workbook with one row per section.
func XLSX(jobID, productIdea string, analysis json.RawMessage) ([]byte, error) {
	sections, err := Sections(analysis)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	_ = f.SetCellValue(sheet, "A1", "WAYPOINT MARKET ANALYSIS")
	_ = f.SetCellValue(sheet, "A2", "Product")
	_ = f.SetCellValue(sheet, "B2", productIdea)
	_ = f.SetCellValue(sheet, "A3", "Job")
	_ = f.SetCellValue(sheet, "B3", jobID)

	_ = f.SetCellValue(sheet, "A5", "Section")
	_ = f.SetCellValue(sheet, "B5", "Content")

	row := 6
	for _, s := range sections {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, s.Title())
		write(2, s.Body)
		row++
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(sheet, "A1", "A1", bold)
		_ = f.SetCellStyle(sheet, "A5", "B5", bold)
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err == nil && row > 6 {
		_ = f.SetCellStyle(sheet, "A6", fmt.Sprintf("B%d", row-1), wrap)
	}
	_ = f.SetColWidth(sheet, "A", "A", 30)
	_ = f.SetColWidth(sheet, "B", "B", 100)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
