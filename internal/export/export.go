// Package export renders a filtered result grid to CSV, XLSX, or PDF.
// Only the currently visible columns are exported, in grid order.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat converts a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	return string(f)
}

// Write renders rows for the given columns in the requested format.
func Write(w io.Writer, format Format, cols []records.Column, rows []query.Row) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, cols, rows)
	case FormatXLSX:
		return writeXLSX(w, cols, rows)
	case FormatPDF:
		return writePDF(w, cols, rows)
	}
	return fmt.Errorf("unknown export format %q", format)
}

// cellValue renders one field the way the grid shows it. Values are
// JSON-encoded, so strings come out quoted and numbers bare; a missing
// value renders empty rather than "null".
func cellValue(row query.Row, field string) string {
	v, ok := row[field]
	if !ok || v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// writeCSV emits a header of column titles, then one line per row with
// JSON-encoded cells joined by commas.
func writeCSV(w io.Writer, cols []records.Column, rows []query.Row) error {
	var sb strings.Builder
	for i, c := range cols {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(c.Title)
	}
	sb.WriteByte('\n')

	for _, row := range rows {
		for i, c := range cols {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(cellValue(row, c.Field))
		}
		sb.WriteByte('\n')
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// plainValue renders a field without JSON quoting, for the binary
// formats that carry their own typing.
func plainValue(row query.Row, field string) string {
	v, ok := row[field]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func writeXLSX(w io.Writer, cols []records.Column, rows []query.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	for i, c := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, c.Title); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for i, c := range cols {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, plainValue(row, c.Field)); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writePDF(w io.Writer, cols []records.Column, rows []query.Row) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.AddPage()

	// With every column hidden there is no table to lay out; emit an
	// empty page rather than dividing the width by zero.
	if len(cols) == 0 {
		if err := pdf.Output(w); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
		return nil
	}

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageW - left - right
	colW := usable / float64(len(cols))

	pdf.SetFont("Helvetica", "B", 9)
	for _, c := range cols {
		pdf.CellFormat(colW, 7, c.Title, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		for _, c := range cols {
			pdf.CellFormat(colW, 6, plainValue(row, c.Field), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
