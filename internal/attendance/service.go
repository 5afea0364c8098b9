package attendance

import (
	"context"
	"math"
)

// Stats summarizes a student's class attendance within their department.
type Stats struct {
	TotalSessions    int     `json:"totalSessions"`
	AttendedSessions int     `json:"attendedSessions"`
	Percentage       float64 `json:"percentage"`
}

// Counter is the slice of the repository the stats service reads.
type Counter interface {
	CountSessions(ctx context.Context, department string) (int, error)
	CountAttended(ctx context.Context, department, studentID string) (int, error)
}

// Service computes attendance statistics.
type Service struct {
	counts Counter
}

// NewService creates a stats service backed by a repository.
func NewService(counts Counter) *Service {
	return &Service{counts: counts}
}

// Stats returns the student's attendance percentage over their
// department's sessions, rounded to two decimals. Zero sessions yields
// zero percent rather than a division error.
func (s *Service) Stats(ctx context.Context, department, studentID string) (Stats, error) {
	total, err := s.counts.CountSessions(ctx, department)
	if err != nil {
		return Stats{}, err
	}
	attended, err := s.counts.CountAttended(ctx, department, studentID)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalSessions: total, AttendedSessions: attended}
	if total > 0 {
		st.Percentage = math.Round(float64(attended)/float64(total)*100*100) / 100
	}
	return st, nil
}
