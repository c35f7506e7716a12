package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cryptadb/crypta/internal/records"
)

// ErrNotFound is returned when a record id does not exist or the caller's
// scope does not allow seeing it.
var ErrNotFound = errors.New("record not found")

// Detail is the full payload for a details page: every catalog field of the
// record plus its assignment history.
type Detail struct {
	Base        string `json:"base"`
	Record      Row    `json:"record"`
	Assignments []Row  `json:"assignments,omitempty"`
}

// Details fetches a single record by id, subject to scope.
func (e *Engine) Details(ctx context.Context, base records.Base, id int64, scope *Scope) (*Detail, error) {
	columns := records.Columns(base)
	alias := baseAlias(base)

	parts, err := e.buildFiltered(base, nil, scope)
	if err != nil {
		return nil, err
	}
	parts.addWhere(alias+".id = ?", id)

	sel := make([]string, len(columns))
	for i, c := range columns {
		sel[i] = alias + "." + c.Field
	}
	query := "SELECT DISTINCT " + strings.Join(sel, ", ") + " FROM " +
		parts.from(base) + parts.clauses()

	dest := make([]interface{}, len(columns))
	for i := range dest {
		dest[i] = new(interface{})
	}
	row := e.db.QueryRowContext(ctx, query, parts.args...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("details: %w", err)
	}

	record := make(Row, len(columns))
	for i, c := range columns {
		record[c.Field] = normalizeValue(*dest[i].(*interface{}))
	}

	detail := &Detail{Base: base.String(), Record: record}

	assignments, err := e.assignments(ctx, base, id)
	if err != nil {
		return nil, err
	}
	detail.Assignments = assignments

	return detail, nil
}

// assignments returns the assignment history joined against the other base,
// so a person shows its locations and a location shows its people.
func (e *Engine) assignments(ctx context.Context, base records.Base, id int64) ([]Row, error) {
	var query string
	if base == records.BasePerson {
		query = `
			SELECT a.assignment_type, COALESCE(a.date_assigned, ''), COALESCE(a.date_released, ''),
				loc.id, loc.name
			FROM assignment a
			JOIN location loc ON loc.id = a.location_id
			WHERE a.person_id = ?
			ORDER BY a.date_assigned DESC, a.id DESC`
	} else {
		query = `
			SELECT a.assignment_type, COALESCE(a.date_assigned, ''), COALESCE(a.date_released, ''),
				per.id, per.first_name || ' ' || per.last_name
			FROM assignment a
			JOIN person per ON per.id = a.person_id
			WHERE a.location_id = ?
			ORDER BY a.date_assigned DESC, a.id DESC`
	}

	rows, err := e.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("assignments: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var atype, assigned, released, name string
		var otherID int64
		if err := rows.Scan(&atype, &assigned, &released, &otherID, &name); err != nil {
			return nil, err
		}
		out = append(out, Row{
			"assignment_type": atype,
			"date_assigned":   assigned,
			"date_released":   released,
			"ref_id":          otherID,
			"ref_name":        name,
		})
	}
	return out, rows.Err()
}
