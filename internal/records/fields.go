package records

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FilterField describes one filterable dimension of a base: the wire key the
// client toggles, the display label for the group heading, and how the query
// engine reaches the value (a column expression plus an optional join).
type FilterField struct {
	Key     string // unique wire key, e.g. "residence_city"
	Display string // group heading, e.g. "Residence City"
	Expr    string // SQL expression yielding the option value
	Join    string // JOIN clause required by Expr, empty for direct columns
}

// Column describes one entry of the column catalog the server returns with
// every result set.
type Column struct {
	Field    string `json:"field"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Sorter   string `json:"sorter,omitempty"`
}

// StatType distinguishes range-filterable numbers from tri-state booleans.
type StatType string

const (
	StatNumber  StatType = "number"
	StatBoolean StatType = "boolean"
)

// StatField declares a statistics facet: a numeric or boolean column whose
// bounds (for numbers) are computed over the current filtered set.
type StatField struct {
	Field   string
	Display string
	Type    StatType
}

var titleCaser = cases.Title(language.English)

// DeriveDisplay builds a display label from a field key when no explicit
// label is registered ("residence_city" becomes "Residence City").
func DeriveDisplay(key string) string {
	return titleCaser.String(strings.ReplaceAll(key, "_", " "))
}

var personFilters = []FilterField{
	{Key: "person_type", Display: "Person Type", Expr: "p.person_type"},
	{Key: "prefix", Display: "Prefix", Expr: "p.prefix"},
	{Key: "residency_type", Display: "Residency Type", Expr: "p.residency_type"},
	{Key: "legal_status", Display: "Legal Status", Expr: "p.legal_status"},
	{Key: "active_outside", Display: "Active Outside Diocese", Expr: "p.active_outside"},
	{Key: "status", Display: "Status", Expr: "p.status"},
	{Key: "residence_city", Display: "Residence City", Expr: "p.residence_city"},
	{Key: "residence_state", Display: "Residence State", Expr: "p.residence_state"},
	{Key: "mailing_city", Display: "Mailing City", Expr: "p.mailing_city"},
	{Key: "mailing_state", Display: "Mailing State", Expr: "p.mailing_state"},
	{
		Key:     "assignment_type",
		Display: "Assignment Type",
		Expr:    "a.assignment_type",
		Join:    "JOIN assignment a ON a.person_id = p.id",
	},
	{
		Key:     "assignment_location",
		Display: "Assignment Location",
		Expr:    "al.name",
		Join:    "JOIN assignment a ON a.person_id = p.id JOIN location al ON al.id = a.location_id",
	},
}

var locationFilters = []FilterField{
	{Key: "location_type", Display: "Type", Expr: "l.location_type"},
	{Key: "county", Display: "County", Expr: "l.county"},
	{Key: "vicariate", Display: "Vicariate", Expr: "l.vicariate"},
	{Key: "city", Display: "City", Expr: "l.city"},
	{Key: "state", Display: "State", Expr: "l.state"},
	{Key: "city_served", Display: "City Served", Expr: "l.city_served"},
	{Key: "is_mission", Display: "Mission", Expr: "l.is_mission"},
	{Key: "is_diocesan", Display: "Diocesan Entity", Expr: "l.is_diocesan"},
}

// FilterFields returns the ordered filter registry for a base.
func FilterFields(b Base) []FilterField {
	if b == BaseLocation {
		return locationFilters
	}
	return personFilters
}

// FilterFieldByKey resolves a registered filter field, reporting whether the
// key is known for the base. Unknown keys are rejected rather than
// interpolated into SQL.
func FilterFieldByKey(b Base, key string) (FilterField, bool) {
	for _, f := range FilterFields(b) {
		if f.Key == key {
			return f, true
		}
	}
	return FilterField{}, false
}

var personColumns = []Column{
	{Field: "first_name", Title: "First Name", Category: "Name", Sorter: "string"},
	{Field: "middle_name", Title: "Middle Name", Category: "Name", Sorter: "string"},
	{Field: "last_name", Title: "Last Name", Category: "Name", Sorter: "string"},
	{Field: "prefix", Title: "Prefix", Category: "Name", Sorter: "string"},
	{Field: "person_type", Title: "Person Type", Category: "Status", Sorter: "string"},
	{Field: "status", Title: "Status", Category: "Status", Sorter: "string"},
	{Field: "legal_status", Title: "Legal Status", Category: "Status", Sorter: "string"},
	{Field: "residency_type", Title: "Residency Type", Category: "Status", Sorter: "string"},
	{Field: "personal_email", Title: "Personal Email", Category: "Contact", Sorter: "string"},
	{Field: "parish_email", Title: "Parish Email", Category: "Contact", Sorter: "string"},
	{Field: "diocesan_email", Title: "Diocesan Email", Category: "Contact", Sorter: "string"},
	{Field: "phone", Title: "Phone", Category: "Contact", Sorter: "string"},
	{Field: "residence_city", Title: "Residence City", Category: "Address", Sorter: "string"},
	{Field: "residence_state", Title: "Residence State", Category: "Address", Sorter: "string"},
	{Field: "mailing_city", Title: "Mailing City", Category: "Address", Sorter: "string"},
	{Field: "mailing_state", Title: "Mailing State", Category: "Address", Sorter: "string"},
	{Field: "birth_year", Title: "Birth Year", Category: "Statistics", Sorter: "number"},
	{Field: "years_of_service", Title: "Years of Service", Category: "Statistics", Sorter: "number"},
	{Field: "safe_env_training", Title: "Safe Environment Training", Category: "Statistics", Sorter: "string"},
	{Field: "id", Title: "ID", Category: "Internal", Sorter: "number"},
}

var locationColumns = []Column{
	{Field: "name", Title: "Name", Category: "Name", Sorter: "string"},
	{Field: "location_type", Title: "Type", Category: "Status", Sorter: "string"},
	{Field: "county", Title: "County", Category: "Address", Sorter: "string"},
	{Field: "vicariate", Title: "Vicariate", Category: "Status", Sorter: "string"},
	{Field: "city", Title: "City", Category: "Address", Sorter: "string"},
	{Field: "state", Title: "State", Category: "Address", Sorter: "string"},
	{Field: "city_served", Title: "City Served", Category: "Address", Sorter: "string"},
	{Field: "parish_email", Title: "Parish Email", Category: "Contact", Sorter: "string"},
	{Field: "phone", Title: "Phone", Category: "Contact", Sorter: "string"},
	{Field: "seating_capacity", Title: "Seating Capacity", Category: "Statistics", Sorter: "number"},
	{Field: "offertory_income", Title: "Offertory Income", Category: "Statistics", Sorter: "number"},
	{Field: "is_mission", Title: "Mission", Category: "Statistics", Sorter: "string"},
	{Field: "id", Title: "ID", Category: "Internal", Sorter: "number"},
}

// Columns returns the full column catalog for a base. The catalog is owned
// by the server; clients never invent columns.
func Columns(b Base) []Column {
	if b == BaseLocation {
		return locationColumns
	}
	return personColumns
}

var personStats = []StatField{
	{Field: "birth_year", Display: "Birth Year", Type: StatNumber},
	{Field: "years_of_service", Display: "Years of Service", Type: StatNumber},
	{Field: "safe_env_training", Display: "Safe Environment Training", Type: StatBoolean},
}

var locationStats = []StatField{
	{Field: "seating_capacity", Display: "Seating Capacity", Type: StatNumber},
	{Field: "offertory_income", Display: "Offertory Income", Type: StatNumber},
	{Field: "is_mission", Display: "Mission", Type: StatBoolean},
}

// StatFields returns the statistics facet declarations for a base.
func StatFields(b Base) []StatField {
	if b == BaseLocation {
		return locationStats
	}
	return personStats
}

// NumericFields is the fixed allowlist of fields rendered with numeric sort
// and right alignment regardless of server-declared sorter hints.
var NumericFields = map[string]bool{
	"birth_year":       true,
	"years_of_service": true,
	"seating_capacity": true,
	"offertory_income": true,
}
