package booking

import (
	"context"
	"encoding/json"
	"log"

	"labslot/internal/notify"
	"labslot/internal/queue"
)

// Store is the persistence surface the service needs. *Repository
// satisfies it; tests substitute an in-memory ledger.
type Store interface {
	CreateSlot(ctx context.Context, slot Slot) (Slot, error)
	GetSlot(ctx context.Context, id string) (Slot, error)
	SlotOwner(ctx context.Context, id string) (string, error)
	ListSlotsByDepartment(ctx context.Context, department string) ([]Slot, error)
	ListSlotsByOwner(ctx context.Context, facultyID string) ([]Slot, error)
	DeleteSlotCascade(ctx context.Context, slotID string) error
	InsertBooking(ctx context.Context, slotID, studentID string) (Booking, error)
	HasBooking(ctx context.Context, slotID, studentID string) (bool, error)
	ListBookingsByStudent(ctx context.Context, studentID string) ([]BookingDetail, error)
	ListBookingsBySlot(ctx context.Context, slotID string) ([]Booking, error)
}

// Directory resolves a student's email for the confirmation mail.
type Directory interface {
	EmailOf(ctx context.Context, userID string) (string, error)
}

// Service owns slot lifecycle and seat booking.
type Service struct {
	store Store
	users Directory
	queue queue.Queue
}

// NewService creates a booking service. queue and users may be nil in
// tests; the confirmation mail is best-effort either way.
func NewService(store Store, users Directory, q queue.Queue) *Service {
	return &Service{store: store, users: users, queue: q}
}

// CreateSlot registers a new lab slot owned by the calling faculty.
func (s *Service) CreateSlot(ctx context.Context, slot Slot) (Slot, error) {
	slot.BookedCount = 0
	return s.store.CreateSlot(ctx, slot)
}

// Get returns one slot.
func (s *Service) Get(ctx context.Context, slotID string) (Slot, error) {
	return s.store.GetSlot(ctx, slotID)
}

// ListForDepartment returns a department's slots, soonest first.
func (s *Service) ListForDepartment(ctx context.Context, department string) ([]Slot, error) {
	return s.store.ListSlotsByDepartment(ctx, department)
}

// ListMine returns the slots the faculty member created.
func (s *Service) ListMine(ctx context.Context, facultyID string) ([]Slot, error) {
	return s.store.ListSlotsByOwner(ctx, facultyID)
}

// Delete removes a slot and cascades to its bookings. Only the owner may
// delete; the seat count needs no reconciliation since the slot row goes
// with it.
func (s *Service) Delete(ctx context.Context, slotID, requesterID string) error {
	owner, err := s.store.SlotOwner(ctx, slotID)
	if err != nil {
		return err
	}
	if owner != requesterID {
		return ErrNotOwner
	}
	return s.store.DeleteSlotCascade(ctx, slotID)
}

// Book claims one seat on a slot for the student. The seat increment and
// booking row commit atomically in the store, so the capacity invariant
// holds even when the last seat is contested.
func (s *Service) Book(ctx context.Context, slotID, studentID string) (Booking, error) {
	slot, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		return Booking{}, err
	}
	if slot.BookedCount >= slot.SeatCapacity {
		return Booking{}, ErrSlotFull
	}
	if exists, err := s.store.HasBooking(ctx, slotID, studentID); err != nil {
		return Booking{}, err
	} else if exists {
		return Booking{}, ErrDuplicateBooking
	}

	b, err := s.store.InsertBooking(ctx, slotID, studentID)
	if err != nil {
		return Booking{}, err
	}

	s.sendConfirmation(ctx, slot, studentID)
	return b, nil
}

// MyBookings returns the student's bookings, newest first.
func (s *Service) MyBookings(ctx context.Context, studentID string) ([]BookingDetail, error) {
	return s.store.ListBookingsByStudent(ctx, studentID)
}

// SlotBookings returns every booking on a slot.
func (s *Service) SlotBookings(ctx context.Context, slotID string) ([]Booking, error) {
	return s.store.ListBookingsBySlot(ctx, slotID)
}

// sendConfirmation queues the confirmation email. Failures never fail a
// booking; they are logged and dropped.
func (s *Service) sendConfirmation(ctx context.Context, slot Slot, studentID string) {
	if s.queue == nil || s.users == nil {
		return
	}
	email, err := s.users.EmailOf(ctx, studentID)
	if err != nil || email == "" {
		log.Printf("booking confirmation skipped for %s: no email (%v)", studentID, err)
		return
	}
	body, err := json.Marshal(notify.BookingConfirmation{
		Email:     email,
		LabName:   slot.LabName,
		Date:      slot.Date,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
	})
	if err != nil {
		log.Printf("booking confirmation marshal failed: %v", err)
		return
	}
	if err := s.queue.Publish(ctx, queue.Message{Type: notify.MsgBookingConfirmed, Body: body}); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}
