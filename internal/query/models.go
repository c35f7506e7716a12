// Package query provides the facet and record query layer for crypta.
// It computes the dynamic filter tree (per-field option counts over the
// currently filtered set), filtered result grids with their column catalog
// and statistics bounds, global search, and record details.
package query

import "github.com/cryptadb/crypta/internal/records"

// FilterOption is one selectable value of a filter group, with the number of
// rows that match it under the currently applied filters.
type FilterOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// FilterGroup is a filterable field and its discrete options.
type FilterGroup struct {
	Field   string         `json:"field"`
	Display string         `json:"display"`
	Options []FilterOption `json:"options"`
}

// StatsInfo declares the legal domain of a statistics facet. Min and Max are
// bounds computed over the current discrete-filtered set; they are zero for
// boolean fields.
type StatsInfo struct {
	Field   string  `json:"field"`
	Display string  `json:"display"`
	Type    string  `json:"type"` // "number" or "boolean"
	Min     float64 `json:"min,omitempty"`
	Max     float64 `json:"max,omitempty"`
}

// Row is a schema-less record keyed by column field.
type Row map[string]interface{}

// Grid is the filtered row set with its column catalog.
type Grid struct {
	Data    []Row            `json:"data"`
	Columns []records.Column `json:"columns"`
}

// ResultSet is the full filter_results payload.
type ResultSet struct {
	Grid  Grid        `json:"grid"`
	Stats []StatsInfo `json:"stats_info"`
}

// StatsSelection carries the stats constraints of one request. Number
// constraints are only present when the user narrowed the declared bounds;
// boolean constraints are only present when not "all".
type StatsSelection struct {
	Ranges map[string][2]float64 // field -> {min, max}
	Bools  map[string]bool       // field -> required value
}

// SearchHit is one row of the global search results.
type SearchHit struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// SearchResults groups search hits by base.
type SearchResults struct {
	Persons   []SearchHit `json:"persons"`
	Locations []SearchHit `json:"locations"`
}

// RecipientClasses selects which email columns contribute recipients.
type RecipientClasses struct {
	Personal bool `json:"personalEmail"`
	Parish   bool `json:"parishEmail"`
	Diocesan bool `json:"diocesanEmail"`
}

// Any reports whether at least one class is selected.
func (c RecipientClasses) Any() bool {
	return c.Personal || c.Parish || c.Diocesan
}
