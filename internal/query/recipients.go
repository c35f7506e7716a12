package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cryptadb/crypta/internal/records"
)

// Recipients resolves the distinct email addresses of the filtered set for
// the selected recipient classes. For the person base each checked class
// contributes its email column; for the location base only the parish class
// applies (locations carry a single parish address).
func (e *Engine) Recipients(ctx context.Context, base records.Base, filters []string, classes RecipientClasses, scope *Scope) ([]string, error) {
	if !classes.Any() {
		return nil, nil
	}

	var cols []string
	alias := baseAlias(base)
	if base == records.BasePerson {
		if classes.Personal {
			cols = append(cols, "personal_email")
		}
		if classes.Parish {
			cols = append(cols, "parish_email")
		}
		if classes.Diocesan {
			cols = append(cols, "diocesan_email")
		}
	} else if classes.Parish {
		cols = append(cols, "parish_email")
	}
	if len(cols) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []string

	for _, col := range cols {
		parts, err := e.buildFiltered(base, filters, scope)
		if err != nil {
			return nil, err
		}
		expr := alias + "." + col
		parts.addWhere(expr + " IS NOT NULL AND " + expr + " != ''")

		query := "SELECT DISTINCT " + expr + " FROM " + parts.from(base) + parts.clauses()
		rows, err := e.db.QueryContext(ctx, query, parts.args...)
		if err != nil {
			return nil, fmt.Errorf("recipients %s: %w", col, err)
		}
		for rows.Next() {
			var email string
			if err := rows.Scan(&email); err != nil {
				rows.Close()
				return nil, err
			}
			email = strings.TrimSpace(email)
			if email == "" || seen[email] {
				continue
			}
			seen[email] = true
			out = append(out, email)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	sort.Strings(out)
	return out, nil
}

// RecipientCount returns how many distinct addresses a send would reach.
func (e *Engine) RecipientCount(ctx context.Context, base records.Base, filters []string, classes RecipientClasses, scope *Scope) (int, error) {
	recipients, err := e.Recipients(ctx, base, filters, classes, scope)
	if err != nil {
		return 0, err
	}
	return len(recipients), nil
}
