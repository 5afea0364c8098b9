package timetable

import (
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("timetable not found")
	ErrBadSchedule = errors.New("schedule has an unknown day")
)

// The college runs a six-day week, Monday through Saturday.
var validDays = map[string]bool{
	"Monday":    true,
	"Tuesday":   true,
	"Wednesday": true,
	"Thursday":  true,
	"Friday":    true,
	"Saturday":  true,
}

// Timetable is the weekly class schedule for one department cohort,
// unique per (department, year, semester). Schedule maps a day name
// to its ordered period entries.
type Timetable struct {
	ID         string              `json:"id"`
	Department string              `json:"department"`
	Year       int                 `json:"year"`
	Semester   int                 `json:"semester"`
	Schedule   map[string][]string `json:"schedule"`
	UpdatedAt  time.Time           `json:"updated_at"`
}
