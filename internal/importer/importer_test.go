package importer

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cryptadb/crypta/internal/testutil/dbtest"
)

func newImporter(t *testing.T) *Importer {
	t.Helper()
	s := dbtest.Open(t)
	return New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestImportLocations(t *testing.T) {
	imp := newImporter(t)
	csv := strings.Join([]string{
		"Name,Location_Type,City,State,Seating_Capacity,Is_Mission",
		"St. Mary,Church,Columbus,OH,400,0",
		",Church,Dayton,OH,100,0", // no name, skipped
		"St. Jude School,School,Newark,OH,150,yes",
	}, "\n")

	var stats Stats
	if err := imp.ImportLocations(strings.NewReader(csv), &stats); err != nil {
		t.Fatalf("ImportLocations() error = %v", err)
	}
	if stats.Locations != 2 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}

	id, err := imp.store.FindLocationByName("St. Jude School")
	if err != nil {
		t.Fatalf("imported location missing: %v", err)
	}
	if id == 0 {
		t.Error("zero id")
	}
}

func TestImportPersonsAndAssignments(t *testing.T) {
	imp := newImporter(t)

	locCSV := "name,location_type\nSt. Mary,Church\n"
	var stats Stats
	if err := imp.ImportLocations(strings.NewReader(locCSV), &stats); err != nil {
		t.Fatal(err)
	}

	personCSV := strings.Join([]string{
		"first_name,last_name,person_type,status,birth_year,safe_env_training",
		"John,Walsh,Priest,Active,1960,true",
		"NoLast,,Priest,Active,1970,false",
	}, "\n")
	if err := imp.ImportPersons(strings.NewReader(personCSV), &stats); err != nil {
		t.Fatalf("ImportPersons() error = %v", err)
	}
	if stats.Persons != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}

	assignCSV := strings.Join([]string{
		"person_id,location,assignment_type,date_assigned",
		"1,St. Mary,Pastor,2015-07-01",
		"1,Unknown Parish,Pastor,2015-07-01", // unknown location, skipped
	}, "\n")
	if err := imp.ImportAssignments(strings.NewReader(assignCSV), &stats); err != nil {
		t.Fatalf("ImportAssignments() error = %v", err)
	}
	if stats.Assignments != 1 || stats.Skipped != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestImportRejectsMissingHeader(t *testing.T) {
	imp := newImporter(t)
	var stats Stats
	if err := imp.ImportLocations(strings.NewReader(""), &stats); err == nil {
		t.Error("empty input accepted")
	}
}
