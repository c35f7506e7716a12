package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/cryptadb/crypta/internal/records"
)

// Engine answers facet and record queries over the crypta database.
type Engine struct {
	db *sql.DB
}

// NewEngine creates a query engine over an open database connection. The
// engine does not own the connection.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func baseAlias(b records.Base) string {
	if b == records.BaseLocation {
		return "l"
	}
	return "p"
}

// queryParts accumulates the variable pieces of a facet query: deduplicated
// joins, WHERE conjuncts, and their arguments.
type queryParts struct {
	joins []string
	seen  map[string]bool
	where []string
	args  []interface{}
}

func newQueryParts() *queryParts {
	return &queryParts{seen: make(map[string]bool)}
}

func (q *queryParts) addJoin(join string) {
	if join == "" || q.seen[join] {
		return
	}
	q.seen[join] = true
	q.joins = append(q.joins, join)
}

func (q *queryParts) addWhere(cond string, args ...interface{}) {
	q.where = append(q.where, cond)
	q.args = append(q.args, args...)
}

func (q *queryParts) clauses() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *queryParts) from(b records.Base) string {
	s := b.Table() + " " + baseAlias(b)
	if len(q.joins) > 0 {
		s += " " + strings.Join(q.joins, " ")
	}
	return s
}

// parseApplied groups "field:value" selections by field. Repeated values on
// the same field OR together; distinct fields AND together. Entries without
// a colon are ignored.
func parseApplied(filters []string) map[string][]string {
	applied := make(map[string][]string)
	for _, f := range filters {
		field, value, ok := strings.Cut(f, ":")
		if !ok {
			continue
		}
		applied[field] = append(applied[field], value)
	}
	return applied
}

// buildFiltered assembles the joins and WHERE clauses for a base narrowed by
// the applied filters and the caller's scope. Unknown filter fields are
// rejected rather than interpolated.
func (e *Engine) buildFiltered(base records.Base, filters []string, scope *Scope) (*queryParts, error) {
	parts := newQueryParts()

	applied := parseApplied(filters)
	fields := make([]string, 0, len(applied))
	for f := range applied {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, key := range fields {
		field, ok := records.FilterFieldByKey(base, key)
		if !ok {
			return nil, fmt.Errorf("unknown filter field %q for base %s", key, base)
		}
		parts.addJoin(field.Join)
		vals := applied[key]
		cond := field.Expr + " IN (" + placeholders(len(vals)) + ")"
		args := make([]interface{}, len(vals))
		for i, v := range vals {
			args[i] = v
		}
		parts.addWhere(cond, args...)
	}

	clause, joins, args, err := scopeClause(scope, base)
	if err != nil {
		return nil, err
	}
	for _, j := range joins {
		parts.addJoin(j)
	}
	if clause != "" {
		parts.addWhere(clause, args...)
	}

	return parts, nil
}

// FilterTree computes the dynamic filter tree: for every registered filter
// field of the base, the distinct values and their counts over the set
// narrowed by the applied filters. Fields with no options are omitted; NULL
// values never become options.
func (e *Engine) FilterTree(ctx context.Context, base records.Base, filters []string, scope *Scope) ([]FilterGroup, error) {
	var tree []FilterGroup

	for _, field := range records.FilterFields(base) {
		parts, err := e.buildFiltered(base, filters, scope)
		if err != nil {
			return nil, err
		}
		parts.addJoin(field.Join)
		parts.addWhere(field.Expr + " IS NOT NULL")

		alias := baseAlias(base)
		query := "SELECT " + field.Expr + " AS v, COUNT(DISTINCT " + alias + ".id) AS c FROM " +
			parts.from(base) + parts.clauses() + " GROUP BY v ORDER BY v"

		rows, err := e.db.QueryContext(ctx, query, parts.args...)
		if err != nil {
			return nil, fmt.Errorf("filter tree %s: %w", field.Key, err)
		}

		var opts []FilterOption
		for rows.Next() {
			var v interface{}
			var c int64
			if err := rows.Scan(&v, &c); err != nil {
				rows.Close()
				return nil, err
			}
			val := formatValue(v)
			if val == "" {
				continue
			}
			opts = append(opts, FilterOption{Value: val, Label: val, Count: c})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		if len(opts) > 0 {
			tree = append(tree, FilterGroup{
				Field:   field.Key,
				Display: field.Display,
				Options: opts,
			})
		}
	}

	return tree, nil
}

// FilterResults returns the filtered rows, the column catalog, and the
// statistics declarations for a base. Stats range/boolean constraints narrow
// the rows but not the declared bounds, so sliders don't collapse onto their
// own selection.
func (e *Engine) FilterResults(ctx context.Context, base records.Base, filters []string, stats StatsSelection, scope *Scope) (*ResultSet, error) {
	columns := records.Columns(base)
	alias := baseAlias(base)

	parts, err := e.buildFiltered(base, filters, scope)
	if err != nil {
		return nil, err
	}
	bounds, err := e.statsBounds(ctx, base, filters, scope)
	if err != nil {
		return nil, err
	}
	if err := addStatsConstraints(parts, base, alias, stats); err != nil {
		return nil, err
	}

	sel := make([]string, len(columns))
	for i, c := range columns {
		sel[i] = alias + "." + c.Field
	}
	query := "SELECT DISTINCT " + strings.Join(sel, ", ") + " FROM " +
		parts.from(base) + parts.clauses() + " ORDER BY " + alias + ".id"

	rows, err := e.db.QueryContext(ctx, query, parts.args...)
	if err != nil {
		return nil, fmt.Errorf("filter results: %w", err)
	}
	defer rows.Close()

	var data []Row
	for rows.Next() {
		dest := make([]interface{}, len(columns))
		for i := range dest {
			dest[i] = new(interface{})
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			row[c.Field] = normalizeValue(*dest[i].(*interface{}))
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ResultSet{
		Grid:  Grid{Data: data, Columns: columns},
		Stats: bounds,
	}, nil
}

// statsBounds computes the declared domain of each statistics facet over the
// discrete-filtered set.
func (e *Engine) statsBounds(ctx context.Context, base records.Base, filters []string, scope *Scope) ([]StatsInfo, error) {
	alias := baseAlias(base)
	var infos []StatsInfo

	for _, sf := range records.StatFields(base) {
		info := StatsInfo{Field: sf.Field, Display: sf.Display, Type: string(sf.Type)}
		if sf.Type == records.StatNumber {
			parts, err := e.buildFiltered(base, filters, scope)
			if err != nil {
				return nil, err
			}
			col := alias + "." + sf.Field
			query := "SELECT COALESCE(MIN(" + col + "), 0), COALESCE(MAX(" + col + "), 0) FROM " +
				parts.from(base) + parts.clauses()
			if err := e.db.QueryRowContext(ctx, query, parts.args...).Scan(&info.Min, &info.Max); err != nil {
				return nil, fmt.Errorf("stats bounds %s: %w", sf.Field, err)
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// addStatsConstraints narrows the query by range and boolean selections.
// Only registered statistics fields are accepted.
func addStatsConstraints(parts *queryParts, base records.Base, alias string, stats StatsSelection) error {
	statFields := make(map[string]records.StatType)
	for _, sf := range records.StatFields(base) {
		statFields[sf.Field] = sf.Type
	}

	rangeFields := make([]string, 0, len(stats.Ranges))
	for f := range stats.Ranges {
		rangeFields = append(rangeFields, f)
	}
	sort.Strings(rangeFields)
	for _, f := range rangeFields {
		if statFields[f] != records.StatNumber {
			return fmt.Errorf("unknown numeric stats field %q", f)
		}
		bounds := stats.Ranges[f]
		col := alias + "." + f
		parts.addWhere(col+" >= ? AND "+col+" <= ?", bounds[0], bounds[1])
	}

	boolFields := make([]string, 0, len(stats.Bools))
	for f := range stats.Bools {
		boolFields = append(boolFields, f)
	}
	sort.Strings(boolFields)
	for _, f := range boolFields {
		if statFields[f] != records.StatBoolean {
			return fmt.Errorf("unknown boolean stats field %q", f)
		}
		parts.addWhere(alias+"."+f+" = ?", stats.Bools[f])
	}

	return nil
}

// formatValue renders a scanned option value as its wire string.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(val)
	}
}

// normalizeValue converts driver values to JSON-friendly types.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
