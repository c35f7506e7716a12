// Package records defines the diocesan record domain: the two browsable
// bases (person and location), the registry of filterable fields per base,
// and the statistics fields with their declared types.
package records

import "fmt"

// Base identifies the record type being browsed and filtered.
type Base int

const (
	BasePerson Base = iota
	BaseLocation
)

// ParseBase converts the wire form ("person" or "location") to a Base.
func ParseBase(s string) (Base, error) {
	switch s {
	case "person":
		return BasePerson, nil
	case "location":
		return BaseLocation, nil
	}
	return BasePerson, fmt.Errorf("unknown base %q", s)
}

func (b Base) String() string {
	if b == BaseLocation {
		return "location"
	}
	return "person"
}

// Display returns the human-readable name used in base toggles.
func (b Base) Display() string {
	if b == BaseLocation {
		return "Locations"
	}
	return "People"
}

// Table returns the backing table name for the base.
func (b Base) Table() string {
	if b == BaseLocation {
		return "location"
	}
	return "person"
}

// DefaultColumns returns the column fields shown on first load and after a
// base switch, before the user customizes visibility.
func (b Base) DefaultColumns() []string {
	if b == BaseLocation {
		return []string{"name", "location_type"}
	}
	return []string{"first_name", "middle_name", "last_name"}
}
