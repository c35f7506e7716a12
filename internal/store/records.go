package store

import "fmt"

// Person is the insertable form of a person record. Optional fields are
// empty strings / zero values and stored as NULL where the column allows it.
type Person struct {
	ID              int64
	FirstName       string
	MiddleName      string
	LastName        string
	Prefix          string
	PersonType      string
	Status          string
	LegalStatus     string
	ResidencyType   string
	ActiveOutside   string
	PersonalEmail   string
	ParishEmail     string
	DiocesanEmail   string
	Phone           string
	ResidenceCity   string
	ResidenceState  string
	MailingCity     string
	MailingState    string
	BirthYear       int
	YearsOfService  int
	SafeEnvTraining bool
	DateBaptism     string
	DateRetired     string
	DateDeceased    string
}

// Location is the insertable form of a location record.
type Location struct {
	ID              int64
	Name            string
	LocationType    string
	County          string
	Vicariate       string
	City            string
	State           string
	CityServed      string
	ParishEmail     string
	Phone           string
	SeatingCapacity int
	OffertoryIncome float64
	IsMission       bool
	IsDiocesan      bool
}

// Assignment links a person to a location with a role.
type Assignment struct {
	ID             int64
	PersonID       int64
	LocationID     int64
	AssignmentType string
	DateAssigned   string
	DateReleased   string
}

// nullStr converts "" to NULL so empty CSV cells don't become empty-string
// filter options.
func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

// InsertPerson inserts a person and returns its id.
func (s *Store) InsertPerson(p *Person) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO person (
			first_name, middle_name, last_name, prefix, person_type, status,
			legal_status, residency_type, active_outside,
			personal_email, parish_email, diocesan_email, phone,
			residence_city, residence_state, mailing_city, mailing_state,
			birth_year, years_of_service, safe_env_training,
			date_baptism, date_retired, date_deceased
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.FirstName, nullStr(p.MiddleName), p.LastName, nullStr(p.Prefix),
		nullStr(p.PersonType), nullStr(p.Status), nullStr(p.LegalStatus),
		nullStr(p.ResidencyType), nullStr(p.ActiveOutside),
		nullStr(p.PersonalEmail), nullStr(p.ParishEmail), nullStr(p.DiocesanEmail),
		nullStr(p.Phone), nullStr(p.ResidenceCity), nullStr(p.ResidenceState),
		nullStr(p.MailingCity), nullStr(p.MailingState),
		nullInt(p.BirthYear), nullInt(p.YearsOfService), p.SafeEnvTraining,
		nullStr(p.DateBaptism), nullStr(p.DateRetired), nullStr(p.DateDeceased),
	)
	if err != nil {
		return 0, fmt.Errorf("insert person: %w", err)
	}
	return res.LastInsertId()
}

// InsertLocation inserts a location and returns its id.
func (s *Store) InsertLocation(l *Location) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO location (
			name, location_type, county, vicariate, city, state, city_served,
			parish_email, phone, seating_capacity, offertory_income,
			is_mission, is_diocesan
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Name, nullStr(l.LocationType), nullStr(l.County), nullStr(l.Vicariate),
		nullStr(l.City), nullStr(l.State), nullStr(l.CityServed),
		nullStr(l.ParishEmail), nullStr(l.Phone),
		nullInt(l.SeatingCapacity), l.OffertoryIncome, l.IsMission, l.IsDiocesan,
	)
	if err != nil {
		return 0, fmt.Errorf("insert location: %w", err)
	}
	return res.LastInsertId()
}

// InsertAssignment links a person to a location.
func (s *Store) InsertAssignment(a *Assignment) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO assignment (person_id, location_id, assignment_type, date_assigned, date_released)
		VALUES (?, ?, ?, ?, ?)`,
		a.PersonID, a.LocationID, a.AssignmentType,
		nullStr(a.DateAssigned), nullStr(a.DateReleased),
	)
	if err != nil {
		return 0, fmt.Errorf("insert assignment: %w", err)
	}
	return res.LastInsertId()
}

// FindLocationByName returns the id of the location with the given name, or
// sql.ErrNoRows. Importers use it to resolve assignment references.
func (s *Store) FindLocationByName(name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM location WHERE name = ?`, name).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}
