package auth

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/miquangngwork/english-blossom2/internal/models"
)

var ErrEmailTaken = errors.New("email already registered")

// Store persists user accounts in postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateUser(email, name, hashedPassword string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(
		`INSERT INTO users (email, name, password)
		 VALUES ($1, $2, $3)
		 RETURNING id, email, name, created_at, updated_at`,
		email, name, hashedPassword,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail returns the user and their password hash, or nil when
// no account exists for the email.
func (s *Store) GetUserByEmail(email string) (*models.User, string, error) {
	var user models.User
	var hashedPassword string
	err := s.db.QueryRow(
		`SELECT id, email, name, password, created_at, updated_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.Name, &hashedPassword, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get user by email: %w", err)
	}
	return &user, hashedPassword, nil
}

// GetUserByID returns the user, or nil when the account does not exist.
func (s *Store) GetUserByID(userID int64) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(
		`SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &user, nil
}

func (s *Store) PasswordHash(userID int64) (string, error) {
	var hashedPassword string
	err := s.db.QueryRow(
		`SELECT password FROM users WHERE id = $1`,
		userID,
	).Scan(&hashedPassword)
	if err != nil {
		return "", fmt.Errorf("get password hash: %w", err)
	}
	return hashedPassword, nil
}

func (s *Store) UpdatePassword(userID int64, hashedPassword string) error {
	_, err := s.db.Exec(
		`UPDATE users SET password = $1, updated_at = NOW() WHERE id = $2`,
		hashedPassword, userID,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
