package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

var (
	ErrSessionNotFound = errors.New("attendance session not found")
	ErrAlreadyMarked   = errors.New("attendance already marked")
)

// Session is one day's attendance record for a (department, period)
// class: who was present and under which code.
type Session struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Period     int       `json:"period"`
	Department string    `json:"department"`
	Code       string    `json:"code"`
	FacultyID  string    `json:"faculty_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Repository persists attendance sessions in Postgres. Present students
// live in a child table keyed by (session, student), which gives the
// presentIds set its at-most-once semantics.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertSessionCode find-or-creates the session for (date, period,
// department) and stamps the latest code and issuing faculty onto it.
// The unique constraint is the arbiter under concurrent issues.
func (r *Repository) UpsertSessionCode(ctx context.Context, date time.Time, period int, department, code, facultyID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (id, date, period, department, otp, faculty_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (date, period, department) DO UPDATE SET
			otp = EXCLUDED.otp,
			faculty_id = EXCLUDED.faculty_id
	`, uuid.NewString(), date, period, department, code, facultyID)
	return err
}

// MarkSessionPresent appends a student to the session's present set.
func (r *Repository) MarkSessionPresent(ctx context.Context, date time.Time, period int, department, studentID string) error {
	var sessionID string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM attendance_sessions
		WHERE date = $1 AND period = $2 AND department = $3
	`, date, period, department).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO session_attendees (session_id, student_id)
		VALUES ($1,$2)
	`, sessionID, studentID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyMarked
		}
		return err
	}
	return nil
}

// CountSessions returns the number of sessions held for a department.
func (r *Repository) CountSessions(ctx context.Context, department string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_sessions WHERE department = $1
	`, department).Scan(&n)
	return n, err
}

// CountAttended returns how many of a department's sessions include the
// student in their present set.
func (r *Repository) CountAttended(ctx context.Context, department, studentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM attendance_sessions s
		JOIN session_attendees a ON a.session_id = s.id
		WHERE s.department = $1 AND a.student_id = $2
	`, department, studentID).Scan(&n)
	return n, err
}
