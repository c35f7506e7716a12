// Package facet holds the client-side state machine behind the faceted
// browser: the applied-filter set, column visibility, statistics
// selections, the rendered tree and badge views, and the refresh
// coordinator that keeps them synchronized with the server.
package facet

import (
	"github.com/cryptadb/crypta/internal/records"
)

// ColumnSet tracks which catalog columns are visible in the grid. The
// catalog itself is server-owned and arrives with every result set.
type ColumnSet struct {
	catalog []records.Column
	visible map[string]bool
}

// Reconcile installs a fresh catalog. On first load or after a base switch
// visibility is seeded from the base defaults intersected with the catalog;
// otherwise the previous visible set carries forward intersected with the
// catalog, so a column that survived the refresh stays visible.
func (c *ColumnSet) Reconcile(base records.Base, catalog []records.Column, baseChanged bool) {
	inCatalog := make(map[string]bool, len(catalog))
	for _, col := range catalog {
		inCatalog[col.Field] = true
	}

	next := make(map[string]bool)
	if c.visible == nil || baseChanged {
		for _, f := range base.DefaultColumns() {
			if inCatalog[f] {
				next[f] = true
			}
		}
	} else {
		for f, on := range c.visible {
			if on && inCatalog[f] {
				next[f] = true
			}
		}
	}

	c.catalog = catalog
	c.visible = next
}

// Toggle flips visibility of one column field.
func (c *ColumnSet) Toggle(field string) {
	if c.visible == nil {
		c.visible = make(map[string]bool)
	}
	if c.visible[field] {
		delete(c.visible, field)
	} else {
		c.visible[field] = true
	}
}

// IsVisible reports whether the field is currently shown.
func (c *ColumnSet) IsVisible(field string) bool {
	return c.visible[field]
}

// Visible returns the visible columns in catalog order.
func (c *ColumnSet) Visible() []records.Column {
	var out []records.Column
	for _, col := range c.catalog {
		if c.visible[col.Field] {
			out = append(out, col)
		}
	}
	return out
}

// Choosable returns the catalog entries offered in the column chooser.
// The internal id column is row data only and never offered.
func (c *ColumnSet) Choosable() []records.Column {
	var out []records.Column
	for _, col := range c.catalog {
		if col.Field == "id" {
			continue
		}
		out = append(out, col)
	}
	return out
}

// Numeric reports whether a field renders with numeric sorting and right
// alignment. The fixed allowlist wins over server sorter hints.
func (c *ColumnSet) Numeric(col records.Column) bool {
	return records.NumericFields[col.Field] || col.Sorter == "number"
}
