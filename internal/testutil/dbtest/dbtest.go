// Package dbtest provides a seeded in-memory database for query tests.
package dbtest

import (
	"testing"

	"github.com/cryptadb/crypta/internal/store"
)

// Open creates an in-memory store with the schema applied. The store is
// closed automatically when the test ends.
func Open(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

// Seed populates the store with a small diocese: three people, two
// locations, and assignments linking them. Tests depend on these exact
// values.
func Seed(t *testing.T, s *store.Store) {
	t.Helper()

	stMary, err := s.InsertLocation(&store.Location{
		Name: "St. Mary", LocationType: "Church", County: "Franklin",
		City: "Columbus", State: "OH", ParishEmail: "office@stmary.test",
		SeatingCapacity: 400, OffertoryIncome: 120000, IsDiocesan: true,
	})
	if err != nil {
		t.Fatalf("seed location: %v", err)
	}
	stJude, err := s.InsertLocation(&store.Location{
		Name: "St. Jude School", LocationType: "School", County: "Licking",
		City: "Newark", State: "OH", SeatingCapacity: 150, IsMission: true,
	})
	if err != nil {
		t.Fatalf("seed location: %v", err)
	}

	john, err := s.InsertPerson(&store.Person{
		FirstName: "John", LastName: "Walsh", Prefix: "Reverend",
		PersonType: "Priest", Status: "Active", ResidenceCity: "Columbus",
		PersonalEmail: "jwalsh@personal.test", DiocesanEmail: "jwalsh@diocese.test",
		BirthYear: 1960, YearsOfService: 30, SafeEnvTraining: true,
	})
	if err != nil {
		t.Fatalf("seed person: %v", err)
	}
	mary, err := s.InsertPerson(&store.Person{
		FirstName: "Mary", MiddleName: "Ann", LastName: "Keane",
		PersonType: "Lay Person", Status: "Active", ResidenceCity: "Newark",
		PersonalEmail: "mkeane@personal.test", ParishEmail: "mkeane@stjude.test",
		BirthYear: 1985, YearsOfService: 5,
	})
	if err != nil {
		t.Fatalf("seed person: %v", err)
	}
	peter, err := s.InsertPerson(&store.Person{
		FirstName: "Peter", LastName: "Okafor", PersonType: "Deacon",
		Status: "Retired", ResidenceCity: "Columbus",
		BirthYear: 1950, YearsOfService: 40, SafeEnvTraining: true,
	})
	if err != nil {
		t.Fatalf("seed person: %v", err)
	}

	assignments := []store.Assignment{
		{PersonID: john, LocationID: stMary, AssignmentType: "Pastor", DateAssigned: "2015-07-01"},
		{PersonID: mary, LocationID: stJude, AssignmentType: "Principal", DateAssigned: "2019-08-15"},
		{PersonID: peter, LocationID: stMary, AssignmentType: "Deacon", DateAssigned: "2010-01-10"},
	}
	for i := range assignments {
		if _, err := s.InsertAssignment(&assignments[i]); err != nil {
			t.Fatalf("seed assignment: %v", err)
		}
	}
}
