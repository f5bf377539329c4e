package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/crypto/bcrypt"

	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/models"
)

// UserStorage implements API user account persistence
type UserStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewUserStorage creates a new user storage instance
func NewUserStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.UserStorage {
	return &UserStorage{
		db:     db,
		logger: logger,
	}
}

// CreateUser registers an account with a bcrypt password hash
func (s *UserStorage) CreateUser(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	res, err := s.db.db.ExecContext(ctx, `
		INSERT INTO api_users (username, password_hash, disabled, created_at)
		VALUES (?, ?, 0, ?)`,
		username, string(hash), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}

	s.logger.Info().Str("username", username).Msg("API user created")
	return &models.User{
		ID:        id,
		Username:  username,
		CreatedAt: now,
	}, nil
}

// GetUser retrieves an account by username
func (s *UserStorage) GetUser(ctx context.Context, username string) (*models.User, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, disabled, last_login, created_at
		FROM api_users WHERE username = ?`, username)
	return scanUser(row)
}

// VerifyPassword checks a password against the stored hash. Disabled
// accounts never verify.
func (s *UserStorage) VerifyPassword(ctx context.Context, username, password string) (bool, error) {
	user, err := s.GetUser(ctx, username)
	if errors.Is(err, interfaces.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if user.Disabled {
		return false, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

// TouchLogin stamps the account's last login time
func (s *UserStorage) TouchLogin(ctx context.Context, username string) error {
	_, err := s.db.db.ExecContext(ctx, `
		UPDATE api_users SET last_login = ? WHERE username = ?`,
		time.Now().Unix(), username)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// ListUsers returns all accounts, oldest first
func (s *UserStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, username, password_hash, disabled, last_login, created_at
		FROM api_users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// DisableUser marks an account disabled
func (s *UserStorage) DisableUser(ctx context.Context, username string) error {
	res, err := s.db.db.ExecContext(ctx, `UPDATE api_users SET disabled = 1 WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("failed to disable user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read disable result: %w", err)
	}
	if n == 0 {
		return interfaces.ErrUserNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user      models.User
		disabled  int
		lastLogin sql.NullInt64
		createdAt int64
	)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &disabled, &lastLogin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.Disabled = disabled != 0
	if lastLogin.Valid {
		t := time.Unix(lastLogin.Int64, 0)
		user.LastLogin = &t
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}
