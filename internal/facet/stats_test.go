package facet

import (
	"testing"

	"github.com/cryptadb/crypta/internal/query"
)

func newPanel() *StatsPanel {
	p := &StatsPanel{}
	p.SetInfos([]query.StatsInfo{
		{Field: "birth_year", Display: "Birth Year", Type: "number", Min: 1950, Max: 1985},
		{Field: "safe_env_training", Display: "Safe Environment Training", Type: "boolean"},
	})
	return p
}

func TestRangeClampKeepsMinBelowMax(t *testing.T) {
	p := newPanel()

	p.SetMax("birth_year", 1970)
	p.SetMin("birth_year", 1980) // above the upper handle; must clamp down
	r, _ := p.Range("birth_year")
	if r.Min != 1970 || r.Max != 1970 {
		t.Errorf("range = [%v, %v], want [1970, 1970]", r.Min, r.Max)
	}

	p.SetMin("birth_year", 1900) // below the declared bound
	r, _ = p.Range("birth_year")
	if r.Min != 1950 {
		t.Errorf("min = %v, want clamped to 1950", r.Min)
	}

	p.SetMax("birth_year", 2000) // above the declared bound
	r, _ = p.Range("birth_year")
	if r.Max != 1985 {
		t.Errorf("max = %v, want clamped to 1985", r.Max)
	}
	if r.Min > r.Max {
		t.Errorf("invariant broken: min %v > max %v", r.Min, r.Max)
	}
}

func TestParamsOnlyWhenNonDefault(t *testing.T) {
	p := newPanel()

	if got := p.Params(nil); len(got) != 0 {
		t.Errorf("untouched panel emitted params: %v", got)
	}

	p.SetMin("birth_year", 1960)
	got := p.Params(nil)
	if got["birth_year_min"] != "1960" {
		t.Errorf("params = %v, want birth_year_min=1960", got)
	}
	if _, ok := got["birth_year_max"]; ok {
		t.Error("untouched max handle emitted a param")
	}

	yes := true
	p.SetBool("safe_env_training", &yes)
	got = p.Params(nil)
	if got["safe_env_training"] != "true" {
		t.Errorf("params = %v, want safe_env_training=true", got)
	}

	p.SetBool("safe_env_training", nil) // back to "all"
	if _, ok := p.Params(nil)["safe_env_training"]; ok {
		t.Error(`"all" boolean emitted a param`)
	}
}

func TestParamsSkipHiddenFields(t *testing.T) {
	p := newPanel()
	p.SetMin("birth_year", 1960)

	got := p.Params(func(field string) bool { return field != "birth_year" })
	if len(got) != 0 {
		t.Errorf("hidden field still constrained: %v", got)
	}
}

func TestSetInfosPreservesNarrowedSelection(t *testing.T) {
	p := newPanel()
	p.SetMin("birth_year", 1960)

	// New bounds arrive; the narrowed handle survives, clamped.
	p.SetInfos([]query.StatsInfo{
		{Field: "birth_year", Display: "Birth Year", Type: "number", Min: 1955, Max: 1980},
	})
	r, ok := p.Range("birth_year")
	if !ok {
		t.Fatal("range lost on SetInfos")
	}
	if r.Min != 1960 || r.Max != 1980 {
		t.Errorf("range = [%v, %v], want [1960, 1980]", r.Min, r.Max)
	}
}

func TestSummarize(t *testing.T) {
	rows := []query.Row{{"x": int64(1)}, {"x": int64(2)}, {"x": int64(3)}}
	s, ok := Summarize(rows, "x")
	if !ok {
		t.Fatal("Summarize() reported no values")
	}
	if s.Min != 1 || s.Median != 2 || s.Max != 3 {
		t.Errorf("summary = %+v", s)
	}
	if s.Avg != "2.00" || s.Total != "6.00" {
		t.Errorf("avg = %q total = %q, want 2.00 and 6.00", s.Avg, s.Total)
	}

	// Even count: median is the mean of the middle pair.
	rows = append(rows, query.Row{"x": int64(4)})
	s, _ = Summarize(rows, "x")
	if s.Median != 2.5 {
		t.Errorf("median = %v, want 2.5", s.Median)
	}

	// Non-numeric and missing values are skipped.
	rows = append(rows, query.Row{"x": "n/a"}, query.Row{})
	s, _ = Summarize(rows, "x")
	if s.Count != 4 {
		t.Errorf("count = %d, want 4", s.Count)
	}

	if _, ok := Summarize([]query.Row{{"x": "words"}}, "x"); ok {
		t.Error("all-unparsable field should report no values")
	}
}
