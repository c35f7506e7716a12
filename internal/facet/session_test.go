package facet

import (
	"testing"

	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
	"github.com/cryptadb/crypta/internal/testutil"
)

func personResultSet() *query.ResultSet {
	return &query.ResultSet{
		Grid: query.Grid{
			Data:    []query.Row{{"first_name": "John"}},
			Columns: records.Columns(records.BasePerson),
		},
		Stats: []query.StatsInfo{
			{Field: "birth_year", Display: "Birth Year", Type: "number", Min: 1950, Max: 1985},
			{Field: "years_of_service", Display: "Years of Service", Type: "number", Min: 5, Max: 40},
			{Field: "safe_env_training", Display: "Safe Environment Training", Type: "boolean"},
		},
	}
}

func visibleFields(s *Session) []string {
	var out []string
	for _, c := range s.Columns.Visible() {
		out = append(out, c.Field)
	}
	return out
}

func TestToggleFilterIdempotent(t *testing.T) {
	s := NewSession()

	s.ToggleFilter("status:Active")
	s.ToggleFilter("person_type:Priest")
	testutil.AssertStrings(t, s.Applied, "status:Active", "person_type:Priest")

	s.ToggleFilter("status:Active")
	testutil.AssertStrings(t, s.Applied, "person_type:Priest")

	s.ToggleFilter("status:Active")
	testutil.AssertStrings(t, s.Applied, "person_type:Priest", "status:Active")
}

func TestFirstLoadSeedsDefaultColumns(t *testing.T) {
	s := NewSession()
	s.apply(nil, personResultSet())
	testutil.AssertStrings(t, visibleFields(s), "first_name", "middle_name", "last_name")
}

func TestVisibilityCarriesAcrossRefresh(t *testing.T) {
	s := NewSession()
	s.apply(nil, personResultSet())

	s.Columns.Toggle("status")
	s.Columns.Toggle("middle_name")
	s.apply(nil, personResultSet())

	testutil.AssertStrings(t, visibleFields(s), "first_name", "last_name", "status")
}

func TestBaseSwitchClearsAndReseeds(t *testing.T) {
	s := NewSession()
	s.apply(nil, personResultSet())
	s.ToggleFilter("status:Active")
	s.Columns.Toggle("phone")
	s.Stats.SetMin("birth_year", 1960)

	if !s.SetBase(records.BaseLocation) {
		t.Fatal("SetBase should report a change")
	}
	if len(s.Applied) != 0 {
		t.Errorf("applied filters survived base switch: %v", s.Applied)
	}
	if _, ok := s.Stats.Range("birth_year"); ok {
		t.Error("stats selections survived base switch")
	}

	locRS := &query.ResultSet{Grid: query.Grid{
		Columns: records.Columns(records.BaseLocation),
	}}
	s.apply(nil, locRS)
	testutil.AssertStrings(t, visibleFields(s), "name", "location_type")

	if s.SetBase(records.BaseLocation) {
		t.Error("SetBase to the same base should be a no-op")
	}
}

func TestChooserExcludesInternalID(t *testing.T) {
	s := NewSession()
	s.apply(nil, personResultSet())
	for _, c := range s.Columns.Choosable() {
		if c.Field == "id" {
			t.Error("id offered in column chooser")
		}
	}
	// Row data still carries id even though it is not choosable.
	if s.Columns.IsVisible("id") {
		t.Error("id should not default to visible")
	}
}

func TestNumericAllowlistOverridesSorter(t *testing.T) {
	s := NewSession()
	if !s.Columns.Numeric(records.Column{Field: "offertory_income", Sorter: "string"}) {
		t.Error("allowlisted field should render numeric regardless of sorter hint")
	}
	if s.Columns.Numeric(records.Column{Field: "phone", Sorter: "string"}) {
		t.Error("phone is not numeric")
	}
}
