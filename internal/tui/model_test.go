package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cryptadb/crypta/internal/client"
	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	api, err := client.New(client.Config{URL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatal(err)
	}
	return New(api)
}

func sampleTree() []query.FilterGroup {
	return []query.FilterGroup{
		{Field: "status", Display: "Status", Options: []query.FilterOption{
			{Value: "Active", Label: "Active", Count: 2},
			{Value: "Retired", Label: "Retired", Count: 1},
		}},
		{Field: "person_type", Display: "Person Type", Options: []query.FilterOption{
			{Value: "Priest", Label: "Priest", Count: 3},
		}},
	}
}

func TestStartsAtLoginWithoutTokens(t *testing.T) {
	m := newTestModel(t)
	if m.mode != modeLogin {
		t.Errorf("mode = %d, want modeLogin", m.mode)
	}
	if m.Init() == nil {
		t.Error("Init() returned no command")
	}
}

func TestTreeFlattening(t *testing.T) {
	m := newTestModel(t)
	m.session.Tree = sampleTree()
	m.rebuildTree()

	// Collapsed by default: only the two group headings.
	if len(m.lines) != 2 {
		t.Fatalf("lines = %d, want 2 headings", len(m.lines))
	}
	for _, l := range m.lines {
		if l.option != -1 {
			t.Errorf("collapsed tree rendered option line %+v", l)
		}
	}

	m.expanded["status"] = true
	m.rebuildTree()
	if len(m.lines) != 4 {
		t.Fatalf("lines after expand = %d, want 4", len(m.lines))
	}
	if m.lines[1].group != 0 || m.lines[1].option != 0 {
		t.Errorf("first option line = %+v", m.lines[1])
	}
}

func TestSidebarSearchForcesExpansion(t *testing.T) {
	m := newTestModel(t)
	m.session.Tree = sampleTree()
	m.sideSearch.SetValue("ret")
	m.rebuildTree()

	// "Retired" matches one option of Status; Person Type stays collapsed.
	var optionLines int
	for _, l := range m.lines {
		if l.option >= 0 {
			optionLines++
		}
	}
	if optionLines != 1 {
		t.Errorf("option lines = %d, want 1", optionLines)
	}
}

func TestDebounceDropsStaleTicks(t *testing.T) {
	m := newTestModel(t)
	m.mode = modeBrowse

	// Two quick changes issue two ticks with increasing sequence numbers.
	m.scheduleRefresh()
	m.scheduleRefresh()

	next, cmd := m.Update(debounceMsg{seq: 1})
	m = next.(Model)
	if cmd != nil {
		t.Error("stale debounce tick triggered a refresh")
	}
	if m.fetching {
		t.Error("stale tick marked the model fetching")
	}

	next, cmd = m.Update(debounceMsg{seq: 2})
	m = next.(Model)
	if cmd == nil {
		t.Error("current debounce tick did not trigger a refresh")
	}
	if !m.fetching {
		t.Error("refresh did not mark the model fetching")
	}
}

func TestFilterToggleSchedulesRefresh(t *testing.T) {
	m := newTestModel(t)
	m.mode = modeBrowse
	m.session.Tree = sampleTree()
	m.expanded["status"] = true
	m.rebuildTree()

	m.treeCursor = 1 // first Status option
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(" ")})
	m = next.(Model)
	if cmd == nil {
		t.Error("toggle did not schedule a refresh")
	}
	if !m.session.HasFilter("status:Active") {
		t.Errorf("applied = %v, want status:Active", m.session.Applied)
	}
}

func TestBaseSwitchResetsCursors(t *testing.T) {
	m := newTestModel(t)
	m.mode = modeBrowse
	m.session.ToggleFilter("status:Active")
	m.treeCursor, m.gridCursor = 3, 5

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("b")})
	m = next.(Model)
	if cmd == nil {
		t.Error("base switch did not schedule a refresh")
	}
	if m.session.Base != records.BaseLocation {
		t.Errorf("base = %v, want location", m.session.Base)
	}
	if len(m.session.Applied) != 0 {
		t.Errorf("applied filters survived base switch: %v", m.session.Applied)
	}
	if m.treeCursor != 0 || m.gridCursor != 0 {
		t.Error("cursors not reset on base switch")
	}
}

func TestSyncFromSessionClampsGridCursor(t *testing.T) {
	m := newTestModel(t)
	m.gridCursor = 10
	m.session.Rows = []query.Row{{"id": int64(1)}, {"id": int64(2)}}
	m.session.ResultCount = 2
	m.syncFromSession()
	if m.gridCursor != 1 {
		t.Errorf("gridCursor = %d, want 1", m.gridCursor)
	}
}

func TestRowID(t *testing.T) {
	rows := []query.Row{
		{"id": int64(7)},
		{"id": float64(9)}, // JSON-decoded rows carry float64
		{"last_name": "Walsh"},
	}
	if id, ok := rowID(rows, 0); !ok || id != 7 {
		t.Errorf("rowID(0) = %d, %v", id, ok)
	}
	if id, ok := rowID(rows, 1); !ok || id != 9 {
		t.Errorf("rowID(1) = %d, %v", id, ok)
	}
	if _, ok := rowID(rows, 2); ok {
		t.Error("row without id resolved")
	}
	if _, ok := rowID(rows, 99); ok {
		t.Error("out of range index resolved")
	}
}

func TestSearchSelectionSpansBases(t *testing.T) {
	m := newTestModel(t)
	m.searchHits = &query.SearchResults{
		Persons:   []query.SearchHit{{ID: 1, Label: "John Walsh"}},
		Locations: []query.SearchHit{{ID: 4, Label: "St. Mary"}},
	}

	m.searchCursor = 0
	base, id, ok := m.searchSelection()
	if !ok || base != records.BasePerson || id != 1 {
		t.Errorf("selection 0 = %v %d %v", base, id, ok)
	}

	m.searchCursor = 1
	base, id, ok = m.searchSelection()
	if !ok || base != records.BaseLocation || id != 4 {
		t.Errorf("selection 1 = %v %d %v", base, id, ok)
	}

	m.searchCursor = 2
	if _, _, ok := m.searchSelection(); ok {
		t.Error("out of range selection resolved")
	}
}

func TestComposeRecipientClasses(t *testing.T) {
	c := newCompose()
	c.classes = []string{"personal", "diocesan"}
	rc := c.recipientClasses()
	if !rc.Personal || rc.Parish || !rc.Diocesan {
		t.Errorf("classes = %+v", rc)
	}
	if !rc.Any() {
		t.Error("Any() = false")
	}
}

func TestBoolCycle(t *testing.T) {
	m := newTestModel(t)
	m.session.Stats.SetInfos([]query.StatsInfo{
		{Field: "safe_env_training", Display: "Safe Env Training", Type: "boolean"},
	})

	if m.session.Stats.Bool("safe_env_training") != nil {
		t.Fatal("initial state not all")
	}
	m.cycleBool("safe_env_training")
	if v := m.session.Stats.Bool("safe_env_training"); v == nil || !*v {
		t.Error("first cycle != yes")
	}
	m.cycleBool("safe_env_training")
	if v := m.session.Stats.Bool("safe_env_training"); v == nil || *v {
		t.Error("second cycle != no")
	}
	m.cycleBool("safe_env_training")
	if m.session.Stats.Bool("safe_env_training") != nil {
		t.Error("third cycle != all")
	}
}

func TestStatsControlsFollowColumnVisibility(t *testing.T) {
	m := newTestModel(t)
	m.mode = modeBrowse
	catalog := []records.Column{
		{Field: "first_name", Title: "First Name"},
		{Field: "last_name", Title: "Last Name"},
		{Field: "birth_year", Title: "Birth Year", Sorter: "number"},
		{Field: "safe_env_training", Title: "Safe Env Training"},
	}
	m.session.Columns.Reconcile(records.BasePerson, catalog, true)
	m.session.Stats.SetInfos([]query.StatsInfo{
		{Field: "birth_year", Display: "Birth Year", Type: "number", Min: 1900, Max: 2000},
		{Field: "safe_env_training", Display: "Safe Env Training", Type: "boolean"},
	})

	// Neither stats column is in the default visible set, so no controls.
	if got := m.visibleStats(); len(got) != 0 {
		t.Fatalf("visibleStats() = %+v, want none", got)
	}
	if view := m.statsLines(); view != "" {
		t.Errorf("hidden stats fields rendered: %q", view)
	}

	// Handle keys must not move a hidden field's selection.
	m.focus = paneStats
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	m = next.(Model)
	if r, ok := m.session.Stats.Range("birth_year"); !ok || !r.Default() {
		t.Errorf("hidden field selection moved: %+v", r)
	}

	// Showing the column brings its control back.
	m.session.Columns.Toggle("birth_year")
	if got := m.visibleStats(); len(got) != 1 || got[0].Field != "birth_year" {
		t.Fatalf("visibleStats() after toggle = %+v", got)
	}
	if view := m.statsLines(); !strings.Contains(view, "Birth Year") {
		t.Errorf("visible stats field not rendered: %q", view)
	}
}
