package profile

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrProfileNotFound = errors.New("student profile not found")

// PSLevel is one entry in a student's problem-solving progress history.
// The history is append-only; levels are never rewritten.
type PSLevel struct {
	Subject   string    `json:"subject"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

// Assessment records one faculty point award with its reason.
type Assessment struct {
	Title string    `json:"title"`
	Score int       `json:"score"`
	Date  time.Time `json:"date"`
}

// Profile is a student's reward ledger.
type Profile struct {
	UserID         string       `json:"user_id"`
	RollNumber     string       `json:"roll_number"`
	Year           int          `json:"year"`
	CGPA           float64      `json:"cgpa"`
	RewardPoints   int          `json:"reward_points"`
	ActivityPoints int          `json:"activity_points"`
	PSLevels       []PSLevel    `json:"ps_levels"`
	Assessments    []Assessment `json:"assessments"`
}

// LeaderboardEntry is a profile joined with its student's public fields.
type LeaderboardEntry struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	Department     string `json:"department"`
	RewardPoints   int    `json:"reward_points"`
	ActivityPoints int    `json:"activity_points"`
}

// PointsDelta is a faculty award: additive point deltas plus an optional
// progress level append and an optional reason logged as an assessment.
type PointsDelta struct {
	RewardPoints   int    `json:"rewardPoints"`
	ActivityPoints int    `json:"activityPoints"`
	Reason         string `json:"reason"`
	PSSubject      string `json:"psSubject"`
	PSLevel        int    `json:"psLevel"`
}

// Repository persists student profiles in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetOrCreate returns the student's profile, lazily creating a blank one
// on first access the way the profile page expects.
func (r *Repository) GetOrCreate(ctx context.Context, userID string) (Profile, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO student_profiles (user_id, roll_number, year)
		VALUES ($1, 'TEMP', 1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return Profile{}, err
	}
	return r.Get(ctx, userID)
}

// Get loads a profile with its level history and assessments.
func (r *Repository) Get(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, roll_number, year, cgpa, reward_points, activity_points
		FROM student_profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.RollNumber, &p.Year, &p.CGPA, &p.RewardPoints, &p.ActivityPoints)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}

	levels, err := r.db.QueryContext(ctx, `
		SELECT subject, level, created_at FROM ps_levels
		WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return Profile{}, err
	}
	defer levels.Close()
	for levels.Next() {
		var l PSLevel
		if err := levels.Scan(&l.Subject, &l.Level, &l.CreatedAt); err != nil {
			return Profile{}, err
		}
		p.PSLevels = append(p.PSLevels, l)
	}
	if err := levels.Err(); err != nil {
		return Profile{}, err
	}

	assessments, err := r.db.QueryContext(ctx, `
		SELECT title, score, date FROM assessments
		WHERE user_id = $1 ORDER BY date ASC
	`, userID)
	if err != nil {
		return Profile{}, err
	}
	defer assessments.Close()
	for assessments.Next() {
		var a Assessment
		if err := assessments.Scan(&a.Title, &a.Score, &a.Date); err != nil {
			return Profile{}, err
		}
		p.Assessments = append(p.Assessments, a)
	}
	return p, assessments.Err()
}

// AddPoints applies a faculty award: deltas only ever increase the point
// totals, the level history only ever grows.
func (r *Repository) AddPoints(ctx context.Context, userID string, delta PointsDelta) (Profile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Profile{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE student_profiles
		SET reward_points = reward_points + $2,
		    activity_points = activity_points + $3
		WHERE user_id = $1
	`, userID, delta.RewardPoints, delta.ActivityPoints)
	if err != nil {
		return Profile{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Profile{}, ErrProfileNotFound
	}

	if delta.PSSubject != "" && delta.PSLevel > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ps_levels (id, user_id, subject, level)
			VALUES ($1,$2,$3,$4)
		`, uuid.NewString(), userID, delta.PSSubject, delta.PSLevel); err != nil {
			return Profile{}, err
		}
	}
	if delta.Reason != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO assessments (id, user_id, title, score)
			VALUES ($1,$2,$3,$4)
		`, uuid.NewString(), userID, delta.Reason, delta.RewardPoints+delta.ActivityPoints); err != nil {
			return Profile{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Profile{}, err
	}
	return r.Get(ctx, userID)
}

// Leaderboard returns the top students by reward points.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.user_id, u.name, u.department, p.reward_points, p.activity_points
		FROM student_profiles p
		JOIN users u ON u.id = p.user_id AND u.role = 'student'
		ORDER BY p.reward_points DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.Department, &e.RewardPoints, &e.ActivityPoints); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
