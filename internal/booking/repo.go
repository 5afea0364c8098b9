package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Repository persists slots and bookings in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateSlot inserts a new lab slot with zero bookings.
func (r *Repository) CreateSlot(ctx context.Context, slot Slot) (Slot, error) {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO lab_slots (id, faculty_id, date, start_time, end_time, lab_name, seat_capacity, department)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING booked_count, created_at
	`, slot.ID, slot.FacultyID, slot.Date, slot.StartTime, slot.EndTime, slot.LabName, slot.SeatCapacity, slot.Department)
	if err := row.Scan(&slot.BookedCount, &slot.CreatedAt); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// GetSlot returns a slot by id.
func (r *Repository) GetSlot(ctx context.Context, id string) (Slot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, faculty_id, date, start_time, end_time, lab_name, seat_capacity, department, booked_count, created_at
		FROM lab_slots WHERE id = $1
	`, id)
	return scanSlot(row)
}

// SlotOwner returns the owning faculty id for a slot.
func (r *Repository) SlotOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := r.db.QueryRowContext(ctx, `SELECT faculty_id FROM lab_slots WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSlotNotFound
	}
	return owner, err
}

// ListSlotsByDepartment returns a department's slots, soonest first.
func (r *Repository) ListSlotsByDepartment(ctx context.Context, department string) ([]Slot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, faculty_id, date, start_time, end_time, lab_name, seat_capacity, department, booked_count, created_at
		FROM lab_slots WHERE department = $1 ORDER BY date ASC
	`, department)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

// ListSlotsByOwner returns the slots a faculty member created.
func (r *Repository) ListSlotsByOwner(ctx context.Context, facultyID string) ([]Slot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, faculty_id, date, start_time, end_time, lab_name, seat_capacity, department, booked_count, created_at
		FROM lab_slots WHERE faculty_id = $1 ORDER BY date ASC
	`, facultyID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

// DeleteSlotCascade removes a slot and every booking referencing it in
// one transaction.
func (r *Repository) DeleteSlotCascade(ctx context.Context, slotID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings WHERE slot_id = $1`, slotID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM lab_slots WHERE id = $1`, slotID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSlotNotFound
	}
	return tx.Commit()
}

// InsertBooking claims one seat: the conditional seat increment and the
// booking row are a single transaction, and the increment only applies
// while booked_count is below capacity, so two racing claims on the last
// seat cannot both succeed.
func (r *Repository) InsertBooking(ctx context.Context, slotID, studentID string) (Booking, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Booking{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE lab_slots
		SET booked_count = booked_count + 1
		WHERE id = $1 AND booked_count < seat_capacity
	`, slotID)
	if err != nil {
		return Booking{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the slot is gone or every seat is taken.
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM lab_slots WHERE id = $1)`, slotID).Scan(&exists); err != nil {
			return Booking{}, err
		}
		if !exists {
			return Booking{}, ErrSlotNotFound
		}
		return Booking{}, ErrSlotFull
	}

	b := Booking{
		ID:               uuid.NewString(),
		SlotID:           slotID,
		StudentID:        studentID,
		AttendanceStatus: StatusPending,
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO bookings (id, slot_id, student_id, attendance_status)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, b.ID, b.SlotID, b.StudentID, b.AttendanceStatus)
	if err := row.Scan(&b.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Booking{}, ErrDuplicateBooking
		}
		return Booking{}, err
	}
	return b, tx.Commit()
}

// HasBooking reports whether the student already holds a booking on the slot.
func (r *Repository) HasBooking(ctx context.Context, slotID, studentID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM bookings WHERE slot_id = $1 AND student_id = $2)
	`, slotID, studentID).Scan(&exists)
	return exists, err
}

// MarkPresent flips the booking's attendance status to Present. The
// write is a plain field set, so repeating it is harmless.
func (r *Repository) MarkPresent(ctx context.Context, slotID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET attendance_status = $3
		WHERE slot_id = $1 AND student_id = $2
	`, slotID, studentID, StatusPresent)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ListBookingsByStudent returns the student's bookings joined with their
// slots, newest booking first.
func (r *Repository) ListBookingsByStudent(ctx context.Context, studentID string) ([]BookingDetail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.id, b.slot_id, b.student_id, b.attendance_status, b.marks, b.created_at,
		       s.id, s.faculty_id, s.date, s.start_time, s.end_time, s.lab_name, s.seat_capacity, s.department, s.booked_count, s.created_at
		FROM bookings b
		JOIN lab_slots s ON s.id = b.slot_id
		WHERE b.student_id = $1
		ORDER BY b.created_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []BookingDetail
	for rows.Next() {
		var d BookingDetail
		if err := rows.Scan(
			&d.ID, &d.SlotID, &d.StudentID, &d.AttendanceStatus, &d.Marks, &d.CreatedAt,
			&d.Slot.ID, &d.Slot.FacultyID, &d.Slot.Date, &d.Slot.StartTime, &d.Slot.EndTime,
			&d.Slot.LabName, &d.Slot.SeatCapacity, &d.Slot.Department, &d.Slot.BookedCount, &d.Slot.CreatedAt,
		); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ListBookingsBySlot returns every booking on a slot.
func (r *Repository) ListBookingsBySlot(ctx context.Context, slotID string) ([]Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, slot_id, student_id, attendance_status, marks, created_at
		FROM bookings WHERE slot_id = $1 ORDER BY created_at ASC
	`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.SlotID, &b.StudentID, &b.AttendanceStatus, &b.Marks, &b.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.FacultyID, &s.Date, &s.StartTime, &s.EndTime, &s.LabName, &s.SeatCapacity, &s.Department, &s.BookedCount, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Slot{}, ErrSlotNotFound
	}
	if err != nil {
		return Slot{}, err
	}
	return s, nil
}

func collectSlots(rows *sql.Rows) ([]Slot, error) {
	defer rows.Close()
	var res []Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.FacultyID, &s.Date, &s.StartTime, &s.EndTime, &s.LabName, &s.SeatCapacity, &s.Department, &s.BookedCount, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
