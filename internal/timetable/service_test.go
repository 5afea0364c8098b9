package timetable

import (
	"context"
	"errors"
	"testing"
)

type key struct {
	department     string
	year, semester int
}

type fakeStore struct {
	tables map[key]Timetable
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[key]Timetable)}
}

func (f *fakeStore) Find(_ context.Context, department string, year, semester int) (Timetable, error) {
	for k, t := range f.tables {
		if k.department != department {
			continue
		}
		if year != 0 && k.year != year {
			continue
		}
		if semester != 0 && k.semester != semester {
			continue
		}
		return t, nil
	}
	return Timetable{}, ErrNotFound
}

func (f *fakeStore) ListAll(_ context.Context) ([]Timetable, error) {
	var res []Timetable
	for _, t := range f.tables {
		res = append(res, t)
	}
	return res, nil
}

func (f *fakeStore) Upsert(_ context.Context, t Timetable) (Timetable, error) {
	if t.ID == "" {
		t.ID = "tt-1"
	}
	f.tables[key{t.Department, t.Year, t.Semester}] = t
	return t, nil
}

func TestForStudentExactMatch(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.tables[key{"CSE", 2, 3}] = Timetable{ID: "a", Department: "CSE", Year: 2, Semester: 3}
	svc := NewService(store)

	got, err := svc.ForStudent(context.Background(), "CSE", 2, 3)
	if err != nil {
		t.Fatalf("ForStudent: %v", err)
	}
	if got.ID != "a" {
		t.Errorf("got timetable %q, want %q", got.ID, "a")
	}
}

func TestForStudentFallsBackToDepartment(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.tables[key{"CSE", 1, 1}] = Timetable{ID: "first", Department: "CSE", Year: 1, Semester: 1}
	svc := NewService(store)

	got, err := svc.ForStudent(context.Background(), "CSE", 4, 8)
	if err != nil {
		t.Fatalf("ForStudent: %v", err)
	}
	if got.ID != "first" {
		t.Errorf("fallback returned %q, want the department's timetable", got.ID)
	}
}

func TestForStudentNoTimetable(t *testing.T) {
	t.Parallel()
	svc := NewService(newFakeStore())

	_, err := svc.ForStudent(context.Background(), "ECE", 2, 3)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSaveRejectsUnknownDay(t *testing.T) {
	t.Parallel()
	svc := NewService(newFakeStore())

	_, err := svc.Save(context.Background(), Timetable{
		Department: "CSE", Year: 2, Semester: 3,
		Schedule: map[string][]string{"Sunday": {"Maths"}},
	})
	if !errors.Is(err, ErrBadSchedule) {
		t.Errorf("got %v, want ErrBadSchedule", err)
	}
}

func TestSaveUpsertsByCohort(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := NewService(store)

	if _, err := svc.Save(context.Background(), Timetable{
		Department: "CSE", Year: 2, Semester: 3,
		Schedule: map[string][]string{"Monday": {"Maths", "Physics"}},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err := svc.Save(context.Background(), Timetable{
		Department: "CSE", Year: 2, Semester: 3,
		Schedule: map[string][]string{"Monday": {"DBMS"}},
	})
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := svc.ForStudent(context.Background(), "CSE", 2, 3)
	if err != nil {
		t.Fatalf("ForStudent: %v", err)
	}
	if len(got.Schedule["Monday"]) != 1 || got.Schedule["Monday"][0] != "DBMS" {
		t.Errorf("second save did not replace the schedule: %v", got.Schedule)
	}
	if len(store.tables) != 1 {
		t.Errorf("expected one timetable per cohort, have %d", len(store.tables))
	}
}
