package facet

import (
	"testing"

	"github.com/cryptadb/crypta/internal/query"
)

func sampleTree() []query.FilterGroup {
	return []query.FilterGroup{
		{Field: "status", Display: "Status", Options: []query.FilterOption{
			{Value: "active", Label: "Active", Count: 2},
			{Value: "retired", Label: "Retired", Count: 1},
		}},
		{Field: "person_type", Display: "Person Type", Options: []query.FilterOption{
			{Value: "Priest", Label: "Priest", Count: 1},
			{Value: "Deacon", Label: "Deacon", Count: 1},
		}},
	}
}

func TestBuildTreeNoSearchAllCollapsed(t *testing.T) {
	out := BuildTree(sampleTree(), []string{"status:active"}, "")
	if len(out) != 2 {
		t.Fatalf("groups = %d, want 2", len(out))
	}
	for _, g := range out {
		if g.Expanded {
			t.Errorf("group %s expanded without search", g.Field)
		}
	}
	if len(out[0].Options) != 2 {
		t.Errorf("options = %d, want full list", len(out[0].Options))
	}
	if !out[0].Options[0].Selected || out[0].Options[1].Selected {
		t.Error("selection flags wrong")
	}
}

func TestBuildTreeHeadingMatchExpandsWithAllOptions(t *testing.T) {
	out := BuildTree(sampleTree(), nil, "STATUS")
	if !out[0].Expanded {
		t.Error("heading match should expand the group")
	}
	if len(out[0].Options) != 2 {
		t.Errorf("heading match should keep all options, got %d", len(out[0].Options))
	}
}

func TestBuildTreeOptionMatchFiltersOptions(t *testing.T) {
	out := BuildTree(sampleTree(), nil, "ret")
	if !out[0].Expanded {
		t.Error("option match should expand the group")
	}
	if len(out[0].Options) != 1 || out[0].Options[0].Value != "retired" {
		t.Errorf("options = %v, want only retired", out[0].Options)
	}
	if out[1].Expanded || len(out[1].Options) != 0 {
		t.Error("non-matching group should stay collapsed and empty")
	}
}

func TestBadgesResolveFromTree(t *testing.T) {
	badges := Badges([]string{"status:active"}, sampleTree())
	if len(badges) != 1 {
		t.Fatalf("badges = %d, want 1", len(badges))
	}
	if badges[0].Label != "Status: Active" {
		t.Errorf("label = %q, want Status: Active", badges[0].Label)
	}
	if badges[0].Filter != "status:active" {
		t.Errorf("filter = %q", badges[0].Filter)
	}
}

func TestBadgesUnresolvableFallsBackToRaw(t *testing.T) {
	// A filter the current tree no longer carries still renders.
	badges := Badges([]string{"residence_city:Columbus"}, sampleTree())
	if len(badges) != 1 {
		t.Fatalf("badges = %d, want 1", len(badges))
	}
	if badges[0].Label != "Residence City: Columbus" {
		t.Errorf("label = %q", badges[0].Label)
	}
	if badges[0].Filter != "residence_city:Columbus" {
		t.Error("removal affordance lost")
	}
}
