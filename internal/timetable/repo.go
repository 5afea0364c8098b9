package timetable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// Repository persists timetables in Postgres, schedule as JSONB.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Find looks up a department's timetable. A year or semester of zero
// matches any value, keeping either filter optional.
func (r *Repository) Find(ctx context.Context, department string, year, semester int) (Timetable, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, department, year, semester, schedule, updated_at
		FROM timetables
		WHERE department = $1
		  AND ($2 = 0 OR year = $2)
		  AND ($3 = 0 OR semester = $3)
		ORDER BY year ASC, semester ASC
		LIMIT 1
	`, department, year, semester)

	var (
		t   Timetable
		raw []byte
	)
	err := row.Scan(&t.ID, &t.Department, &t.Year, &t.Semester, &raw, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Timetable{}, ErrNotFound
	}
	if err != nil {
		return Timetable{}, err
	}
	if err := json.Unmarshal(raw, &t.Schedule); err != nil {
		return Timetable{}, err
	}
	return t, nil
}

// ListAll returns every timetable, ordered for a stable cross-department view.
func (r *Repository) ListAll(ctx context.Context) ([]Timetable, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, department, year, semester, schedule, updated_at
		FROM timetables
		ORDER BY department ASC, year ASC, semester ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Timetable
	for rows.Next() {
		var (
			t   Timetable
			raw []byte
		)
		if err := rows.Scan(&t.ID, &t.Department, &t.Year, &t.Semester, &raw, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &t.Schedule); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// Upsert creates or replaces the timetable for its cohort tuple.
func (r *Repository) Upsert(ctx context.Context, t Timetable) (Timetable, error) {
	raw, err := json.Marshal(t.Schedule)
	if err != nil {
		return Timetable{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO timetables (id, department, year, semester, schedule, updated_at)
		VALUES ($1,$2,$3,$4,$5, now())
		ON CONFLICT (department, year, semester)
		DO UPDATE SET schedule = EXCLUDED.schedule, updated_at = now()
		RETURNING id, updated_at
	`, t.ID, t.Department, t.Year, t.Semester, raw)
	if err := row.Scan(&t.ID, &t.UpdatedAt); err != nil {
		return Timetable{}, err
	}
	return t, nil
}
