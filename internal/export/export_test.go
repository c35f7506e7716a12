package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

func TestParseFormat(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Format
		ok   bool
	}{
		{"csv", FormatCSV, true},
		{"XLSX", FormatXLSX, true},
		{"pdf", FormatPDF, true},
		{"doc", "", false},
	} {
		got, err := ParseFormat(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestCSVQuotesStringsLikeTheGrid(t *testing.T) {
	cols := []records.Column{{Field: "name", Title: "Name"}}
	rows := []query.Row{{"name": "A"}, {"name": "B"}}

	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, cols, rows); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := buf.String(); got != "Name\n\"A\"\n\"B\"\n" {
		t.Errorf("csv = %q, want %q", got, "Name\n\"A\"\n\"B\"\n")
	}
}

func TestCSVMixedTypesAndMissingValues(t *testing.T) {
	cols := []records.Column{
		{Field: "name", Title: "Name"},
		{Field: "birth_year", Title: "Birth Year"},
	}
	rows := []query.Row{
		{"name": "Walsh", "birth_year": float64(1960)},
		{"name": "Keane"}, // missing year renders empty, not null
	}

	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, cols, rows); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if lines[0] != "Name,Birth Year" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != `"Walsh",1960` {
		t.Errorf("row 1 = %q", lines[1])
	}
	if lines[2] != `"Keane",` {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	cols := []records.Column{
		{Field: "name", Title: "Name"},
		{Field: "city", Title: "City"},
	}
	rows := []query.Row{{"name": "St. Mary", "city": "Columbus"}}

	var buf bytes.Buffer
	if err := Write(&buf, FormatXLSX, cols, rows); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open generated xlsx: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows("Results")
	if err != nil {
		t.Fatalf("read Results sheet: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(got))
	}
	if got[0][0] != "Name" || got[1][1] != "Columbus" {
		t.Errorf("sheet = %v", got)
	}
}

func TestPDFProducesDocument(t *testing.T) {
	cols := []records.Column{{Field: "name", Title: "Name"}}
	rows := []query.Row{{"name": "St. Mary"}}

	var buf bytes.Buffer
	if err := Write(&buf, FormatPDF, cols, rows); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Error("output is not a PDF document")
	}
}

func TestPDFWithNoVisibleColumns(t *testing.T) {
	rows := []query.Row{{"name": "St. Mary"}}

	var buf bytes.Buffer
	if err := Write(&buf, FormatPDF, nil, rows); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Error("output is not a PDF document")
	}
}
