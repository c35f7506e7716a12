package facet

import (
	"strings"

	"github.com/cryptadb/crypta/internal/query"
	"github.com/cryptadb/crypta/internal/records"
)

// TreeOption is one renderable option line.
type TreeOption struct {
	query.FilterOption
	Selected bool
}

// TreeGroup is one renderable filter group with its expansion state and
// the options that survive the sidebar search.
type TreeGroup struct {
	Field    string
	Display  string
	Expanded bool
	Options  []TreeOption
}

// BuildTree projects the server's filter tree into its rendered form.
// With no search text every group is collapsed and carries its full option
// list. With search text, a group whose heading (display or field) matches
// is force-expanded with all options; a group where only some option
// labels match is expanded with just those options; everything else stays
// collapsed.
func BuildTree(groups []query.FilterGroup, applied []string, search string) []TreeGroup {
	isApplied := make(map[string]bool, len(applied))
	for _, f := range applied {
		isApplied[f] = true
	}
	needle := strings.ToLower(strings.TrimSpace(search))

	out := make([]TreeGroup, 0, len(groups))
	for _, g := range groups {
		tg := TreeGroup{Field: g.Field, Display: g.Display}

		headingMatch := needle != "" &&
			(strings.Contains(strings.ToLower(g.Display), needle) ||
				strings.Contains(strings.ToLower(g.Field), needle))

		for _, opt := range g.Options {
			if needle != "" && !headingMatch &&
				!strings.Contains(strings.ToLower(opt.Label), needle) {
				continue
			}
			tg.Options = append(tg.Options, TreeOption{
				FilterOption: opt,
				Selected:     isApplied[g.Field+":"+opt.Value],
			})
		}

		if needle != "" && (headingMatch || len(tg.Options) > 0) {
			tg.Expanded = true
		}
		out = append(out, tg)
	}
	return out
}

// Badge is one removable chip in the active-filter bar.
type Badge struct {
	Filter string // the raw "field:value" to toggle off
	Label  string // e.g. "Status: Active"
}

// Badges renders the applied filter set against the last loaded tree.
// Filters the tree can no longer resolve (for example after the counts
// narrowed them away) still render, with a label derived from the raw
// field and value, and keep their removal affordance.
func Badges(applied []string, tree []query.FilterGroup) []Badge {
	out := make([]Badge, 0, len(applied))
	for _, fv := range applied {
		field, value, _ := strings.Cut(fv, ":")
		label := records.DeriveDisplay(field) + ": " + value
		for _, g := range tree {
			if g.Field != field {
				continue
			}
			for _, opt := range g.Options {
				if opt.Value == value {
					label = g.Display + ": " + opt.Label
				}
			}
		}
		out = append(out, Badge{Filter: fv, Label: label})
	}
	return out
}
