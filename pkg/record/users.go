package record

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/twinforge/twinforge/pkg/errdefs"
	"github.com/twinforge/twinforge/pkg/types"
)

// ReconcileUser lazily creates the user row and reconciles its role links
// with the given roles in a single transaction: absent roles are inserted
// into the role master, all existing links for the user are dropped, one
// link per current role is inserted, and updated_at is bumped.
func (s *SQLStore) ReconcileUser(ctx context.Context, externalID string, roles []string) (*types.User, error) {
	if externalID == "" {
		return nil, errdefs.New(errdefs.KindValidation, "external user id is empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	q := tx.Rebind("INSERT INTO users (external_id, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT (external_id) DO NOTHING")
	if _, err := tx.ExecContext(ctx, q, externalID, now, now); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to upsert user", err)
	}

	var user types.User
	q = tx.Rebind("SELECT id, external_id, created_at, updated_at FROM users WHERE external_id = ?")
	if err := tx.GetContext(ctx, &user, q, externalID); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to load user", err)
	}

	for _, role := range roles {
		q = tx.Rebind("INSERT INTO roles (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING")
		if _, err := tx.ExecContext(ctx, q, role, now); err != nil {
			return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to upsert role "+role, err)
		}
	}

	q = tx.Rebind("DELETE FROM user_roles WHERE user_id = ?")
	if _, err := tx.ExecContext(ctx, q, user.ID); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to clear user roles", err)
	}

	for _, role := range roles {
		q = tx.Rebind("INSERT INTO user_roles (user_id, role_id, created_at) SELECT ?, id, ? FROM roles WHERE name = ?")
		if _, err := tx.ExecContext(ctx, q, user.ID, now, role); err != nil {
			return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to link role "+role, err)
		}
	}

	q = tx.Rebind("UPDATE users SET updated_at = ? WHERE id = ?")
	if _, err := tx.ExecContext(ctx, q, now, user.ID); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to bump user", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to commit reconciliation", err)
	}

	user.UpdatedAt = now
	user.Roles = append([]string(nil), roles...)
	return &user, nil
}

// GetUserByExternalID loads a user and its role set.
func (s *SQLStore) GetUserByExternalID(ctx context.Context, externalID string) (*types.User, error) {
	var user types.User
	q := s.db.Rebind("SELECT id, external_id, created_at, updated_at FROM users WHERE external_id = ?")
	if err := s.db.GetContext(ctx, &user, q, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errdefs.Newf(errdefs.KindNotFound, "user not found: %s", externalID)
		}
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to load user", err)
	}

	q = s.db.Rebind("SELECT r.name FROM roles r JOIN user_roles ur ON ur.role_id = r.id WHERE ur.user_id = ? ORDER BY r.name")
	if err := s.db.SelectContext(ctx, &user.Roles, q, user.ID); err != nil {
		return nil, errdefs.Wrap(errdefs.KindDatabase, "failed to load user roles", err)
	}
	return &user, nil
}
