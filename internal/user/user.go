package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const pgUniqueViolation = "23505"

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("user not found")
)

// User is a portal account with a role and a department.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Department   string    `json:"department"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a user; email uniqueness is enforced by the store.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, department)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Department)
	if err := row.Scan(&u.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

// GetByEmail fetches a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.get(ctx, `WHERE email = $1`, email)
}

// GetByID fetches a user by id.
func (r *Repository) GetByID(ctx context.Context, id string) (User, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

// EmailOf returns just the email for a user id.
func (r *Repository) EmailOf(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return email, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters so user input only ever
// matches literally. Without it a query of "100%" matches every row.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// SearchStudents matches students by name or email substring,
// case-insensitive. Used by faculty when awarding points.
func (r *Repository) SearchStudents(ctx context.Context, query string) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, role, department, created_at
		FROM users
		WHERE role = 'student' AND (name ILIKE $1 OR email ILIKE $1)
		ORDER BY name ASC
	`, "%"+escapeLike(query)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Department, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r *Repository) get(ctx context.Context, where string, arg any) (User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, department, created_at
		FROM users `+where, arg)
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Department, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// Service handles registration and login.
type Service struct {
	repo *Repository
}

// NewService creates a user service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Register creates an account with a bcrypt-hashed password. Role
// defaults to student and department to CSE, mirroring the sign-up form.
func (s *Service) Register(ctx context.Context, name, email, password, role, department string) (User, error) {
	if role == "" {
		role = "student"
	}
	if department == "" {
		department = "CSE"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.Create(ctx, User{
		Name:         name,
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		Role:         role,
		Department:   department,
	})
}

// Login verifies credentials and returns the account.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}
