// Package importer loads seed data from CSV exports into the store.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cryptadb/crypta/internal/store"
)

// Stats summarizes one import run.
type Stats struct {
	Persons     int
	Locations   int
	Assignments int
	Skipped     int
}

// Importer reads CSV seed files.
type Importer struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates an importer.
func New(s *store.Store, logger *slog.Logger) *Importer {
	return &Importer{store: s, logger: logger}
}

// header maps column names to indices, case-insensitively.
type header map[string]int

func readHeader(rec []string) header {
	h := make(header, len(rec))
	for i, name := range rec {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return h
}

func (h header) get(rec []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (h header) getInt(rec []string, name string) int {
	n, _ := strconv.Atoi(h.get(rec, name))
	return n
}

func (h header) getFloat(rec []string, name string) float64 {
	f, _ := strconv.ParseFloat(h.get(rec, name), 64)
	return f
}

func (h header) getBool(rec []string, name string) bool {
	switch strings.ToLower(h.get(rec, name)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// ImportLocations reads a location CSV. Rows without a name are skipped.
func (imp *Importer) ImportLocations(r io.Reader, stats *Stats) error {
	return imp.eachRow(r, func(h header, rec []string) error {
		name := h.get(rec, "name")
		if name == "" {
			stats.Skipped++
			return nil
		}
		_, err := imp.store.InsertLocation(&store.Location{
			Name:            name,
			LocationType:    h.get(rec, "location_type"),
			County:          h.get(rec, "county"),
			Vicariate:       h.get(rec, "vicariate"),
			City:            h.get(rec, "city"),
			State:           h.get(rec, "state"),
			CityServed:      h.get(rec, "city_served"),
			ParishEmail:     h.get(rec, "parish_email"),
			Phone:           h.get(rec, "phone"),
			SeatingCapacity: h.getInt(rec, "seating_capacity"),
			OffertoryIncome: h.getFloat(rec, "offertory_income"),
			IsMission:       h.getBool(rec, "is_mission"),
			IsDiocesan:      h.getBool(rec, "is_diocesan"),
		})
		if err != nil {
			return fmt.Errorf("insert location %q: %w", name, err)
		}
		stats.Locations++
		return nil
	})
}

// ImportPersons reads a person CSV. Rows without a last name are skipped.
func (imp *Importer) ImportPersons(r io.Reader, stats *Stats) error {
	return imp.eachRow(r, func(h header, rec []string) error {
		last := h.get(rec, "last_name")
		if last == "" {
			stats.Skipped++
			return nil
		}
		_, err := imp.store.InsertPerson(&store.Person{
			FirstName:       h.get(rec, "first_name"),
			MiddleName:      h.get(rec, "middle_name"),
			LastName:        last,
			Prefix:          h.get(rec, "prefix"),
			PersonType:      h.get(rec, "person_type"),
			Status:          h.get(rec, "status"),
			LegalStatus:     h.get(rec, "legal_status"),
			ResidencyType:   h.get(rec, "residency_type"),
			ActiveOutside:   h.get(rec, "active_outside"),
			PersonalEmail:   h.get(rec, "personal_email"),
			ParishEmail:     h.get(rec, "parish_email"),
			DiocesanEmail:   h.get(rec, "diocesan_email"),
			Phone:           h.get(rec, "phone"),
			ResidenceCity:   h.get(rec, "residence_city"),
			ResidenceState:  h.get(rec, "residence_state"),
			MailingCity:     h.get(rec, "mailing_city"),
			MailingState:    h.get(rec, "mailing_state"),
			BirthYear:       h.getInt(rec, "birth_year"),
			YearsOfService:  h.getInt(rec, "years_of_service"),
			SafeEnvTraining: h.getBool(rec, "safe_env_training"),
		})
		if err != nil {
			return fmt.Errorf("insert person %q: %w", last, err)
		}
		stats.Persons++
		return nil
	})
}

// ImportAssignments reads an assignment CSV linking person ids to
// locations by name. Unknown locations skip the row.
func (imp *Importer) ImportAssignments(r io.Reader, stats *Stats) error {
	return imp.eachRow(r, func(h header, rec []string) error {
		personID, err := strconv.ParseInt(h.get(rec, "person_id"), 10, 64)
		if err != nil {
			stats.Skipped++
			return nil
		}
		locName := h.get(rec, "location")
		locID, err := imp.store.FindLocationByName(locName)
		if err != nil {
			imp.logger.Warn("assignment references unknown location",
				"location", locName, "person_id", personID)
			stats.Skipped++
			return nil
		}
		_, err = imp.store.InsertAssignment(&store.Assignment{
			PersonID:       personID,
			LocationID:     locID,
			AssignmentType: h.get(rec, "assignment_type"),
			DateAssigned:   h.get(rec, "date_assigned"),
			DateReleased:   h.get(rec, "date_released"),
		})
		if err != nil {
			return fmt.Errorf("insert assignment for person %d: %w", personID, err)
		}
		stats.Assignments++
		return nil
	})
}

func (imp *Importer) eachRow(r io.Reader, fn func(header, []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	h := readHeader(first)

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read row: %w", err)
		}
		if err := fn(h, rec); err != nil {
			return err
		}
	}
}
