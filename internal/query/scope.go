package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cryptadb/crypta/internal/records"
	"github.com/cryptadb/crypta/internal/store"
)

// Permission restricts visible rows for one resource. Conditions maps
// registered filter keys to the values a holder may see; a permission with
// no conditions grants the whole resource.
type Permission struct {
	Resource   string              `json:"resource"`
	Conditions map[string][]string `json:"conditions,omitempty"`
}

// Scope is the row-level visibility attached to a request, decoded from the
// access token. A nil Scope or Superuser scope sees everything.
type Scope struct {
	Superuser   bool
	Permissions []Permission
}

// ScopeFromPermissions converts stored query permissions into a Scope.
// Single-value conditions and value lists are both accepted in the stored
// JSON, mirroring the shapes the admin panel writes.
func ScopeFromPermissions(perms []store.QueryPermission, superuser bool) (*Scope, error) {
	scope := &Scope{Superuser: superuser}
	for _, p := range perms {
		conds, err := ParseConditions(p.FieldConditions)
		if err != nil {
			return nil, fmt.Errorf("permission %d: %w", p.ID, err)
		}
		scope.Permissions = append(scope.Permissions, Permission{
			Resource:   p.Resource,
			Conditions: conds,
		})
	}
	return scope, nil
}

// ParseConditions decodes a stored field_conditions JSON object into the
// normalized map form.
func ParseConditions(conditions string) (map[string][]string, error) {
	if conditions == "" {
		return nil, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(conditions), &raw); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	conds := make(map[string][]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case []interface{}:
			for _, item := range val {
				conds[k] = append(conds[k], fmt.Sprint(item))
			}
		default:
			conds[k] = []string{fmt.Sprint(val)}
		}
	}
	return conds, nil
}

// scopeClause builds the WHERE fragment enforcing the scope for a base.
// Permissions for the resource OR together; conditions inside a permission
// AND together; no permission for the resource means no rows. The returned
// joins cover any condition fields that live behind a join.
func scopeClause(scope *Scope, base records.Base) (clause string, joins []string, args []interface{}, err error) {
	if scope == nil || scope.Superuser {
		return "", nil, nil, nil
	}

	var relevant []Permission
	for _, p := range scope.Permissions {
		if p.Resource == base.String() {
			relevant = append(relevant, p)
		}
	}
	if len(relevant) == 0 {
		return "0 = 1", nil, nil, nil
	}

	var perms []string
	for _, p := range relevant {
		if len(p.Conditions) == 0 {
			perms = append(perms, "1 = 1")
			continue
		}
		keys := make([]string, 0, len(p.Conditions))
		for k := range p.Conditions {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var conds []string
		for _, key := range keys {
			field, ok := records.FilterFieldByKey(base, key)
			if !ok {
				return "", nil, nil, fmt.Errorf("permission references unknown field %q", key)
			}
			if field.Join != "" {
				joins = append(joins, field.Join)
			}
			vals := p.Conditions[key]
			conds = append(conds, field.Expr+" IN ("+placeholders(len(vals))+")")
			for _, v := range vals {
				args = append(args, v)
			}
		}
		perms = append(perms, "("+strings.Join(conds, " AND ")+")")
	}

	return "(" + strings.Join(perms, " OR ") + ")", joins, args, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
