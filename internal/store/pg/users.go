package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"backoffice.id/internal/ids"
	"backoffice.id/internal/rbac"
)

const userColumns = `id, user_name, password, is_active, is_2fa_enabled, created_by, updated_by, created_date, updated_date, deleted_date`

func scanUser(row interface{ Scan(dest ...any) error }) (rbac.User, error) {
	var (
		u                    rbac.User
		createdBy, updatedBy uuid.NullUUID
		created, updated     sql.NullTime
		deleted              sql.NullTime
	)
	err := row.Scan(&u.ID, &u.UserName, &u.Password, &u.IsActive, &u.Is2FAEnabled,
		&createdBy, &updatedBy, &created, &updated, &deleted)
	if err != nil {
		return rbac.User{}, err
	}
	u.CreatedBy = uuidPtr(createdBy)
	u.UpdatedBy = uuidPtr(updatedBy)
	u.CreatedDate = timePtr(created)
	u.UpdatedDate = timePtr(updated)
	u.DeletedDate = timePtr(deleted)
	return u, nil
}

func (s *Store) getProfile(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, userID uuid.UUID) (rbac.UserProfile, error) {
	var (
		p                                    rbac.UserProfile
		firstName, lastName, address, email  sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, first_name, last_name, address, email FROM public.user_profile WHERE user_id = $1`,
		userID).Scan(&p.ID, &p.UserID, &firstName, &lastName, &address, &email)
	if errors.Is(err, sql.ErrNoRows) {
		// Profiles are created with the user; tolerate a missing row rather
		// than failing the whole lookup.
		return rbac.UserProfile{UserID: userID}, nil
	}
	if err != nil {
		return rbac.UserProfile{}, err
	}
	p.FirstName = stringPtr(firstName)
	p.LastName = stringPtr(lastName)
	p.Address = stringPtr(address)
	p.Email = stringPtr(email)
	return p, nil
}

// CreateUser inserts the identity row and its profile in one transaction.
func (s *Store) CreateUser(ctx context.Context, user *rbac.User, profile *rbac.UserProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	if user.ID == uuid.Nil {
		user.ID = ids.NewEntity()
	}
	user.CreatedDate = &now
	user.UpdatedDate = &now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO public."user" (id, user_name, password, is_active, is_2fa_enabled, created_by, created_date, updated_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		user.ID, user.UserName, user.Password, user.IsActive, user.Is2FAEnabled, nullUUID(user.CreatedBy), now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: user_name %q already exists", rbac.ErrConflict, user.UserName)
		}
		return err
	}

	if profile.ID == uuid.Nil {
		profile.ID = ids.NewEntity()
	}
	profile.UserID = user.ID
	_, err = tx.ExecContext(ctx,
		`INSERT INTO public.user_profile (id, user_id, first_name, last_name, address, email)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		profile.ID, profile.UserID, nullString(profile.FirstName), nullString(profile.LastName),
		nullString(profile.Address), nullString(profile.Email))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: profile for user %s already exists", rbac.ErrConflict, user.ID)
		}
		return err
	}
	return tx.Commit()
}

// GetUser loads a user and profile by id. Soft-deleted rows are hidden unless
// includeDeleted is set; token refresh needs the raw lookup to tell a deleted
// account apart from a bogus id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID, includeDeleted bool) (rbac.User, rbac.UserProfile, error) {
	query := `SELECT ` + userColumns + ` FROM public."user" WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_date IS NULL`
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.User{}, rbac.UserProfile{}, fmt.Errorf("%w: user %s", rbac.ErrNotFound, id)
	}
	if err != nil {
		return rbac.User{}, rbac.UserProfile{}, err
	}
	p, err := s.getProfile(ctx, s.db, u.ID)
	if err != nil {
		return rbac.User{}, rbac.UserProfile{}, err
	}
	return u, p, nil
}

// GetUserByUsername resolves login credentials; soft-deleted accounts never
// match.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (rbac.User, rbac.UserProfile, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM public."user" WHERE user_name = $1 AND deleted_date IS NULL`,
		username))
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.User{}, rbac.UserProfile{}, fmt.Errorf("%w: user %q", rbac.ErrNotFound, username)
	}
	if err != nil {
		return rbac.User{}, rbac.UserProfile{}, err
	}
	p, err := s.getProfile(ctx, s.db, u.ID)
	if err != nil {
		return rbac.User{}, rbac.UserProfile{}, err
	}
	return u, p, nil
}

// ListUsers pages users most-recently-updated first, optionally filtered by a
// case-insensitive username substring.
func (s *Store) ListUsers(ctx context.Context, page, pageSize int, search string, excludeDeleted bool) ([]rbac.User, int, int, error) {
	conds := []string{"TRUE"}
	args := []any{}
	if excludeDeleted {
		conds = append(conds, "deleted_date IS NULL")
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		conds = append(conds, fmt.Sprintf("user_name ILIKE $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM public."user" WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, 0, err
	}

	query := fmt.Sprintf(
		`SELECT %s FROM public."user" WHERE %s ORDER BY updated_date DESC LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	users := []rbac.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return users, total, pageCount(total, pageSize), nil
}

// UpdateUser rewrites the identity row and profile in one transaction. An
// empty password leaves the stored digest untouched.
func (s *Store) UpdateUser(ctx context.Context, user *rbac.User, profile *rbac.UserProfile, actor uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE public."user"
		 SET user_name = $2,
		     password = COALESCE(NULLIF($3, ''), password),
		     is_active = $4,
		     is_2fa_enabled = $5,
		     updated_by = $6,
		     updated_date = $7
		 WHERE id = $1 AND deleted_date IS NULL`,
		user.ID, user.UserName, user.Password, user.IsActive, user.Is2FAEnabled, actor, now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: user_name %q already exists", rbac.ErrConflict, user.UserName)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", rbac.ErrNotFound, user.ID)
	}

	profile.UserID = user.ID
	_, err = tx.ExecContext(ctx,
		`UPDATE public.user_profile
		 SET first_name = $2, last_name = $3, address = $4, email = $5
		 WHERE user_id = $1`,
		user.ID, nullString(profile.FirstName), nullString(profile.LastName),
		nullString(profile.Address), nullString(profile.Email))
	if err != nil {
		return err
	}
	user.UpdatedBy = &actor
	user.UpdatedDate = &now
	return tx.Commit()
}

// SoftDeleteUser stamps deleted_date; already-deleted and unknown ids both
// come back ErrNotFound.
func (s *Store) SoftDeleteUser(ctx context.Context, id, actor uuid.UUID) error {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE public."user" SET deleted_date = $2, updated_by = $3, updated_date = $2
		 WHERE id = $1 AND deleted_date IS NULL`,
		id, now, actor)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", rbac.ErrNotFound, id)
	}
	return nil
}

// ListUserGroupRoles returns the user's (role, group) assignments.
func (s *Store) ListUserGroupRoles(ctx context.Context, userID uuid.UUID) ([]rbac.UserGroupRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role_id, group_id FROM public.user_group_roles WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []rbac.UserGroupRole{}
	for rows.Next() {
		var (
			item            rbac.UserGroupRole
			roleID, groupID uuid.NullUUID
		)
		if err := rows.Scan(&item.ID, &item.UserID, &roleID, &groupID); err != nil {
			return nil, err
		}
		item.RoleID = uuidPtr(roleID)
		item.GroupID = uuidPtr(groupID)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReplaceUserGroupRoles deletes the user's assignment set and reinserts the
// given one inside a single transaction, so readers never observe a partial
// mix of old and new rows.
func (s *Store) ReplaceUserGroupRoles(ctx context.Context, userID uuid.UUID, items []rbac.UserGroupRole) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM public."user" WHERE id = $1 AND deleted_date IS NULL)`,
		userID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: user %s", rbac.ErrNotFound, userID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM public.user_group_roles WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = ids.NewEntity()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO public.user_group_roles (id, user_id, role_id, group_id) VALUES ($1, $2, $3, $4)`,
			items[i].ID, userID, nullUUID(items[i].RoleID), nullUUID(items[i].GroupID))
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: referenced role or group does not exist", rbac.ErrNotFound)
			}
			return err
		}
	}
	return tx.Commit()
}
