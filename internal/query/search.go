package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/cryptadb/crypta/internal/records"
)

// searchLimit caps hits per base for the global search box.
const searchLimit = 50

// Search performs a case-insensitive substring search over person names and
// location names, honoring the caller's scope for each base.
func (e *Engine) Search(ctx context.Context, q string, scope *Scope) (*SearchResults, error) {
	results := &SearchResults{}
	q = strings.TrimSpace(q)
	if q == "" {
		return results, nil
	}
	needle := "%" + escapeLike(q) + "%"

	{
		parts, err := e.buildFiltered(records.BasePerson, nil, scope)
		if err != nil {
			return nil, err
		}
		parts.addWhere(
			`(p.first_name LIKE ? ESCAPE '\' OR p.middle_name LIKE ? ESCAPE '\' OR p.last_name LIKE ? ESCAPE '\')`,
			needle, needle, needle)

		query := "SELECT DISTINCT p.id, p.first_name, COALESCE(p.middle_name, ''), p.last_name FROM " +
			parts.from(records.BasePerson) + parts.clauses() + " ORDER BY p.last_name, p.first_name LIMIT ?"
		parts.args = append(parts.args, searchLimit)

		rows, err := e.db.QueryContext(ctx, query, parts.args...)
		if err != nil {
			return nil, fmt.Errorf("search persons: %w", err)
		}
		for rows.Next() {
			var id int64
			var first, middle, last string
			if err := rows.Scan(&id, &first, &middle, &last); err != nil {
				rows.Close()
				return nil, err
			}
			label := first
			if middle != "" {
				label += " " + middle
			}
			label += " " + last
			results.Persons = append(results.Persons, SearchHit{ID: id, Label: label})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	{
		parts, err := e.buildFiltered(records.BaseLocation, nil, scope)
		if err != nil {
			return nil, err
		}
		parts.addWhere(`l.name LIKE ? ESCAPE '\'`, needle)

		query := "SELECT DISTINCT l.id, l.name FROM " +
			parts.from(records.BaseLocation) + parts.clauses() + " ORDER BY l.name LIMIT ?"
		parts.args = append(parts.args, searchLimit)

		rows, err := e.db.QueryContext(ctx, query, parts.args...)
		if err != nil {
			return nil, fmt.Errorf("search locations: %w", err)
		}
		for rows.Next() {
			var hit SearchHit
			if err := rows.Scan(&hit.ID, &hit.Label); err != nil {
				rows.Close()
				return nil, err
			}
			results.Locations = append(results.Locations, hit)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
