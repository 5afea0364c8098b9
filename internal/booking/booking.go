package booking

import (
	"errors"
	"time"
)

// Attendance states carried on a booking. Absent is a display default
// only; nothing in the portal ever writes it.
const (
	StatusPending = "Pending"
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

// Slot is a bookable lab time window with finite seat capacity.
type Slot struct {
	ID           string    `json:"id"`
	FacultyID    string    `json:"faculty_id"`
	Date         time.Time `json:"date"`
	StartTime    string    `json:"start_time"` // "HH:MM"
	EndTime      string    `json:"end_time"`   // "HH:MM"
	LabName      string    `json:"lab_name"`
	SeatCapacity int       `json:"seat_capacity"`
	Department   string    `json:"department"`
	BookedCount  int       `json:"booked_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Booking is a student's claim on one seat of a slot. At most one
// booking exists per (slot, student) pair.
type Booking struct {
	ID               string    `json:"id"`
	SlotID           string    `json:"slot_id"`
	StudentID        string    `json:"student_id"`
	AttendanceStatus string    `json:"attendance_status"`
	Marks            *float64  `json:"marks,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// BookingDetail is a booking joined with the slot it claims, for the
// student's "my bookings" listing.
type BookingDetail struct {
	Booking
	Slot Slot `json:"slot"`
}

var (
	ErrSlotNotFound     = errors.New("slot not found")
	ErrSlotFull         = errors.New("slot is full")
	ErrDuplicateBooking = errors.New("slot already booked by this student")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrNotOwner         = errors.New("not the slot owner")
)
