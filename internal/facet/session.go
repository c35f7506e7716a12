package facet

import (
	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

// Session is the full client-side browsing state: the active base, the
// insertion-ordered applied filter set, column visibility, statistics
// selections, and the last successfully loaded tree and result set.
type Session struct {
	Base    records.Base
	Applied []string

	Columns ColumnSet
	Stats   StatsPanel

	Tree        []query.FilterGroup
	Rows        []query.Row
	ResultCount int
	LastErr     error

	baseChanged bool
	loaded      bool
}

// NewSession starts a session on the person base with nothing applied.
func NewSession() *Session {
	return &Session{Base: records.BasePerson, baseChanged: true}
}

// ToggleFilter adds the "field:value" filter if absent and removes it if
// present. Toggling twice restores the original set.
func (s *Session) ToggleFilter(fv string) {
	for i, f := range s.Applied {
		if f == fv {
			s.Applied = append(s.Applied[:i], s.Applied[i+1:]...)
			return
		}
	}
	s.Applied = append(s.Applied, fv)
}

// HasFilter reports whether the filter is currently applied.
func (s *Session) HasFilter(fv string) bool {
	for _, f := range s.Applied {
		if f == fv {
			return true
		}
	}
	return false
}

// ClearFilters removes every applied filter.
func (s *Session) ClearFilters() {
	s.Applied = nil
}

// SetBase switches between the person and location bases. Applied filters
// and stats selections do not carry across bases and are cleared; column
// visibility is reseeded from defaults on the next refresh. Returns false
// when the base is unchanged.
func (s *Session) SetBase(b records.Base) bool {
	if b == s.Base {
		return false
	}
	s.Base = b
	s.Applied = nil
	s.Stats = StatsPanel{}
	s.baseChanged = true
	return true
}

// StatsParams emits the stats constraints for the next results request,
// honoring column visibility.
func (s *Session) StatsParams() map[string]string {
	return s.Stats.Params(s.Columns.IsVisible)
}

// apply installs a successful refresh: the new tree, rows, catalog, and
// stats declarations. Column visibility reconciles against the fresh
// catalog, consuming the pending base-change flag.
func (s *Session) apply(tree []query.FilterGroup, rs *query.ResultSet) {
	s.Tree = tree
	s.Rows = rs.Grid.Data
	s.ResultCount = len(rs.Grid.Data)
	s.Columns.Reconcile(s.Base, rs.Grid.Columns, s.baseChanged || !s.loaded)
	s.Stats.SetInfos(rs.Stats)
	s.baseChanged = false
	s.loaded = true
	s.LastErr = nil
}
