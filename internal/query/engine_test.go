package query

import (
	"context"
	"testing"

	"github.com/cryptadb/crypta/internal/records"
	"github.com/cryptadb/crypta/internal/testutil/dbtest"
)

func seededEngine(t *testing.T) *Engine {
	t.Helper()
	s := dbtest.Open(t)
	dbtest.Seed(t, s)
	return NewEngine(s.DB())
}

func findGroup(tree []FilterGroup, field string) *FilterGroup {
	for i := range tree {
		if tree[i].Field == field {
			return &tree[i]
		}
	}
	return nil
}

func TestFilterTreeUnfiltered(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	tree, err := e.FilterTree(ctx, records.BasePerson, nil, nil)
	if err != nil {
		t.Fatalf("FilterTree() error = %v", err)
	}

	pt := findGroup(tree, "person_type")
	if pt == nil {
		t.Fatal("person_type group missing")
	}
	if pt.Display != "Person Type" {
		t.Errorf("display = %q, want Person Type", pt.Display)
	}
	want := map[string]int64{"Priest": 1, "Deacon": 1, "Lay Person": 1}
	for _, opt := range pt.Options {
		if want[opt.Value] != opt.Count {
			t.Errorf("option %s count = %d, want %d", opt.Value, opt.Count, want[opt.Value])
		}
	}

	// Joined dimension: assignment locations.
	al := findGroup(tree, "assignment_location")
	if al == nil {
		t.Fatal("assignment_location group missing")
	}
	counts := map[string]int64{}
	for _, opt := range al.Options {
		counts[opt.Value] = opt.Count
	}
	if counts["St. Mary"] != 2 || counts["St. Jude School"] != 1 {
		t.Errorf("assignment_location counts = %v", counts)
	}
}

func TestFilterTreeNarrowsWithApplied(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	tree, err := e.FilterTree(ctx, records.BasePerson, []string{"residence_city:Columbus"}, nil)
	if err != nil {
		t.Fatalf("FilterTree() error = %v", err)
	}

	pt := findGroup(tree, "person_type")
	if pt == nil {
		t.Fatal("person_type group missing")
	}
	counts := map[string]int64{}
	for _, opt := range pt.Options {
		counts[opt.Value] = opt.Count
	}
	// Mary lives in Newark, so Lay Person drops out entirely.
	if _, ok := counts["Lay Person"]; ok {
		t.Error("Lay Person should not appear for Columbus residents")
	}
	if counts["Priest"] != 1 || counts["Deacon"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestFilterResultsMultiValueSameFieldORs(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	rs, err := e.FilterResults(ctx, records.BasePerson,
		[]string{"person_type:Priest", "person_type:Deacon"}, StatsSelection{}, nil)
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}
	if len(rs.Grid.Data) != 2 {
		t.Fatalf("rows = %d, want 2 (Priest OR Deacon)", len(rs.Grid.Data))
	}
}

func TestFilterResultsDistinctFieldsAND(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	rs, err := e.FilterResults(ctx, records.BasePerson,
		[]string{"person_type:Priest", "residence_city:Newark"}, StatsSelection{}, nil)
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}
	if len(rs.Grid.Data) != 0 {
		t.Fatalf("rows = %d, want 0 (no Newark priest)", len(rs.Grid.Data))
	}
}

func TestFilterResultsUnknownFieldRejected(t *testing.T) {
	e := seededEngine(t)
	_, err := e.FilterResults(context.Background(), records.BasePerson,
		[]string{"password_hash:x"}, StatsSelection{}, nil)
	if err == nil {
		t.Fatal("expected error for unregistered filter field")
	}
}

func TestStatsBoundsAndConstraints(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	rs, err := e.FilterResults(ctx, records.BasePerson, nil, StatsSelection{}, nil)
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}

	var years *StatsInfo
	for i := range rs.Stats {
		if rs.Stats[i].Field == "years_of_service" {
			years = &rs.Stats[i]
		}
	}
	if years == nil {
		t.Fatal("years_of_service stats missing")
	}
	if years.Min != 5 || years.Max != 40 {
		t.Errorf("bounds = [%v, %v], want [5, 40]", years.Min, years.Max)
	}

	// Narrow the range; bounds stay declared over the discrete-filtered set.
	narrowed, err := e.FilterResults(ctx, records.BasePerson, nil, StatsSelection{
		Ranges: map[string][2]float64{"years_of_service": {25, 45}},
	}, nil)
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}
	if len(narrowed.Grid.Data) != 2 {
		t.Errorf("rows = %d, want 2 (John 30, Peter 40)", len(narrowed.Grid.Data))
	}
	for _, si := range narrowed.Stats {
		if si.Field == "years_of_service" && (si.Min != 5 || si.Max != 40) {
			t.Errorf("bounds narrowed to [%v, %v]; should stay [5, 40]", si.Min, si.Max)
		}
	}
}

func TestStatsBooleanConstraint(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	rs, err := e.FilterResults(ctx, records.BasePerson, nil, StatsSelection{
		Bools: map[string]bool{"safe_env_training": false},
	}, nil)
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}
	if len(rs.Grid.Data) != 1 {
		t.Fatalf("rows = %d, want 1 (only Mary untrained)", len(rs.Grid.Data))
	}
	if rs.Grid.Data[0]["first_name"] != "Mary" {
		t.Errorf("row = %v", rs.Grid.Data[0])
	}
}

func TestScopeNoPermissionSeesNothing(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	scope := &Scope{Permissions: []Permission{{Resource: "location"}}}
	rs, err := e.FilterResults(ctx, records.BasePerson, nil, StatsSelection{}, scope)
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}
	if len(rs.Grid.Data) != 0 {
		t.Errorf("rows = %d, want 0 without a person permission", len(rs.Grid.Data))
	}
}

func TestScopeConditionsRestrictRows(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	scope := &Scope{Permissions: []Permission{{
		Resource:   "person",
		Conditions: map[string][]string{"residence_city": {"Columbus"}},
	}}}
	rs, err := e.FilterResults(ctx, records.BasePerson, nil, StatsSelection{}, scope)
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}
	if len(rs.Grid.Data) != 2 {
		t.Errorf("rows = %d, want 2 Columbus residents", len(rs.Grid.Data))
	}

	// Two permissions OR together.
	scope.Permissions = append(scope.Permissions, Permission{
		Resource:   "person",
		Conditions: map[string][]string{"residence_city": {"Newark"}},
	})
	rs, err = e.FilterResults(ctx, records.BasePerson, nil, StatsSelection{}, scope)
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}
	if len(rs.Grid.Data) != 3 {
		t.Errorf("rows = %d, want 3 with both city permissions", len(rs.Grid.Data))
	}
}

func TestSuperuserScopeBypasses(t *testing.T) {
	e := seededEngine(t)
	rs, err := e.FilterResults(context.Background(), records.BasePerson, nil,
		StatsSelection{}, &Scope{Superuser: true})
	if err != nil {
		t.Fatalf("FilterResults() error = %v", err)
	}
	if len(rs.Grid.Data) != 3 {
		t.Errorf("rows = %d, want 3", len(rs.Grid.Data))
	}
}

func TestSearch(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	res, err := e.Search(ctx, "wal", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Persons) != 1 || res.Persons[0].Label != "John Walsh" {
		t.Errorf("persons = %v", res.Persons)
	}

	res, err = e.Search(ctx, "st.", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Locations) != 2 {
		t.Errorf("locations = %v", res.Locations)
	}

	res, err = e.Search(ctx, "  ", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Persons) != 0 || len(res.Locations) != 0 {
		t.Error("blank query should return nothing")
	}
}

func TestDetails(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	d, err := e.Details(ctx, records.BasePerson, 1, nil)
	if err != nil {
		t.Fatalf("Details() error = %v", err)
	}
	if d.Record["first_name"] != "John" {
		t.Errorf("record = %v", d.Record)
	}
	if len(d.Assignments) != 1 || d.Assignments[0]["ref_name"] != "St. Mary" {
		t.Errorf("assignments = %v", d.Assignments)
	}

	if _, err := e.Details(ctx, records.BasePerson, 9999, nil); err != ErrNotFound {
		t.Errorf("Details(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRecipients(t *testing.T) {
	e := seededEngine(t)
	ctx := context.Background()

	// Personal only: John and Mary have personal addresses, Peter none.
	got, err := e.Recipients(ctx, records.BasePerson, nil,
		RecipientClasses{Personal: true}, nil)
	if err != nil {
		t.Fatalf("Recipients() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("recipients = %v, want 2", got)
	}

	// All classes: adds Mary's parish and John's diocesan address.
	n, err := e.RecipientCount(ctx, records.BasePerson, nil,
		RecipientClasses{Personal: true, Parish: true, Diocesan: true}, nil)
	if err != nil {
		t.Fatalf("RecipientCount() error = %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}

	// No class selected sends to nobody.
	n, err = e.RecipientCount(ctx, records.BasePerson, nil, RecipientClasses{}, nil)
	if err != nil {
		t.Fatalf("RecipientCount() error = %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}

	// Location base only honors the parish class.
	n, err = e.RecipientCount(ctx, records.BaseLocation, nil,
		RecipientClasses{Parish: true}, nil)
	if err != nil {
		t.Fatalf("RecipientCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("location count = %d, want 1 (only St. Mary has an address)", n)
	}
}
