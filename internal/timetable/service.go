package timetable

import (
	"context"
	"errors"
	"fmt"
)

// Store is the persistence surface the service needs.
type Store interface {
	Find(ctx context.Context, department string, year, semester int) (Timetable, error)
	ListAll(ctx context.Context) ([]Timetable, error)
	Upsert(ctx context.Context, t Timetable) (Timetable, error)
}

// Service serves timetable reads and faculty edits.
type Service struct {
	store Store
}

// NewService creates a timetable service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ForStudent returns the department's timetable. Year and semester
// narrow the lookup when given; when the narrowed lookup misses, the
// department's first timetable is returned instead so a student whose
// cohort has no dedicated schedule still sees one.
func (s *Service) ForStudent(ctx context.Context, department string, year, semester int) (Timetable, error) {
	t, err := s.store.Find(ctx, department, year, semester)
	if errors.Is(err, ErrNotFound) && (year != 0 || semester != 0) {
		return s.store.Find(ctx, department, 0, 0)
	}
	return t, err
}

// ForFaculty returns every timetable so teaching staff can see their
// cross-department load in one view.
func (s *Service) ForFaculty(ctx context.Context) ([]Timetable, error) {
	return s.store.ListAll(ctx)
}

// Save validates the schedule's day names and upserts the cohort's timetable.
func (s *Service) Save(ctx context.Context, t Timetable) (Timetable, error) {
	for day := range t.Schedule {
		if !validDays[day] {
			return Timetable{}, fmt.Errorf("%w: %q", ErrBadSchedule, day)
		}
	}
	return s.store.Upsert(ctx, t)
}
