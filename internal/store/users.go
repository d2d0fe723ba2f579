package store

import (
	"context"
	"database/sql"
	"fmt"

	"stepwells-backend/internal/models"
)

// adminBootstrapLockID keys the advisory lock serializing admin
// bootstrap attempts.
const adminBootstrapLockID = 982451653

// UpsertUser records a user on first authenticated call. An existing
// row keeps its role; only email and display name are refreshed.
func (s *Store) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, display_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			updated_at = NOW()`,
		u.UID, u.Email, u.DisplayName, models.RoleCustomer)
	return err
}

// GetUser retrieves a user by uid.
func (s *Store) GetUser(ctx context.Context, uid string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE uid = $1", uid)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUserRole updates a user's role. Callers must have verified admin
// authorization first.
func (s *Store) SetUserRole(ctx context.Context, uid, role string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET role = $2, updated_at = NOW() WHERE uid = $1", uid, role)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GrantAdminBootstrap grants the admin role to uid only if no admin
// exists anywhere yet. The existence check and the grant run in one
// transaction under an advisory lock, so two concurrent bootstrap
// attempts serialize and the loser gets ErrAdminsExist.
func (s *Store) GrantAdminBootstrap(ctx context.Context, uid string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", adminBootstrapLockID); err != nil {
		return fmt.Errorf("failed to acquire bootstrap lock: %w", err)
	}

	var adminCount int
	if err := tx.GetContext(ctx, &adminCount,
		"SELECT COUNT(*) FROM users WHERE role = $1", models.RoleAdmin); err != nil {
		return err
	}
	if adminCount > 0 {
		return ErrAdminsExist
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE users SET role = $2, updated_at = NOW() WHERE uid = $1",
		uid, models.RoleAdmin)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}

	return tx.Commit()
}
