package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pointsource/checkit/internal/model"
)

// CreateUser creates a new user.
func CreateUser(ctx context.Context, db *sql.DB, email, firstName, lastName, passwordHash, role string) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (email, first_name, last_name, password_hash, role)
		 VALUES (?, ?, ?, ?, ?)`,
		email, firstName, lastName, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, or nil if not found.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, password_hash, role, created_at
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns a user by email, or nil if not found.
func GetUserByEmail(ctx context.Context, db *sql.DB, email string) (*model.User, error) {
	u := &model.User{}
	err := db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, password_hash, role, created_at
		 FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// EnsureUser resolves a user by email, creating one if unknown. Uses
// INSERT OR IGNORE + re-SELECT to avoid a TOCTOU race on concurrent
// creation. Created users get the plain 'user' role and no password.
func EnsureUser(ctx context.Context, db *sql.DB, email, firstName, lastName string) (*model.User, error) {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (email, first_name, last_name, role)
		 VALUES (?, ?, ?, ?)`,
		email, firstName, lastName, model.RoleUser,
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}

	user, err := GetUserByEmail(ctx, db, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("ensuring user: %s missing after insert", email)
	}
	return user, nil
}

// ListUsers returns all users sorted by email.
func ListUsers(ctx context.Context, db *sql.DB) ([]model.User, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, email, first_name, last_name, password_hash, role, created_at
		 FROM users ORDER BY email`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UsersByIDs returns a map of user ID to user for the given set of IDs.
// Unknown IDs are simply absent from the result.
func UsersByIDs(ctx context.Context, db *sql.DB, ids []int64) (map[int64]model.User, error) {
	users := make(map[int64]model.User)
	if len(ids) == 0 {
		return users, nil
	}

	// Dedupe before building the IN clause.
	seen := make(map[int64]bool, len(ids))
	var args []any
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		args = append(args, id)
	}
	if len(args) == 0 {
		return users, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := db.QueryContext(ctx,
		`SELECT id, email, first_name, last_name, password_hash, role, created_at
		 FROM users WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing users by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}
