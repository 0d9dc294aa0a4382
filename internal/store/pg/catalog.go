package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"backoffice.id/internal/ids"
	"backoffice.id/internal/rbac"
)

// Roles and groups share one table shape: a named, soft-deletable subject.
// namedTable parameterizes the queries so both relations run the same code.
type namedTable struct {
	table   string
	nameCol string
	label   string
}

var (
	roleTable  = namedTable{table: `public.role`, nameCol: "role_name", label: "role"}
	groupTable = namedTable{table: `public."group"`, nameCol: "group_name", label: "group"}
)

type namedRecord struct {
	ID          uuid.UUID
	Name        string
	Description *string
	IsActive    bool
	CreatedBy   *uuid.UUID
	UpdatedBy   *uuid.UUID
	CreatedDate *time.Time
	UpdatedDate *time.Time
	DeletedDate *time.Time
}

func scanNamed(row interface{ Scan(dest ...any) error }) (namedRecord, error) {
	var (
		rec                  namedRecord
		description          sql.NullString
		createdBy, updatedBy uuid.NullUUID
		created, updated     sql.NullTime
		deleted              sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.Name, &description, &rec.IsActive,
		&createdBy, &updatedBy, &created, &updated, &deleted)
	if err != nil {
		return namedRecord{}, err
	}
	rec.Description = stringPtr(description)
	rec.CreatedBy = uuidPtr(createdBy)
	rec.UpdatedBy = uuidPtr(updatedBy)
	rec.CreatedDate = timePtr(created)
	rec.UpdatedDate = timePtr(updated)
	rec.DeletedDate = timePtr(deleted)
	return rec, nil
}

func (s *Store) createNamed(ctx context.Context, t namedTable, rec *namedRecord) error {
	now := s.now().UTC()
	if rec.ID == uuid.Nil {
		rec.ID = ids.NewEntity()
	}
	rec.CreatedDate = &now
	rec.UpdatedDate = &now
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, %s, description, is_active, created_by, created_date, updated_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`, t.table, t.nameCol),
		rec.ID, rec.Name, nullString(rec.Description), rec.IsActive, nullUUID(rec.CreatedBy), now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s %q already exists", rbac.ErrConflict, t.label, rec.Name)
		}
		return err
	}
	return nil
}

func (s *Store) getNamed(ctx context.Context, t namedTable, id uuid.UUID) (namedRecord, error) {
	rec, err := scanNamed(s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, %s, description, is_active, created_by, updated_by, created_date, updated_date, deleted_date
		 FROM %s WHERE id = $1 AND deleted_date IS NULL`, t.nameCol, t.table), id))
	if errors.Is(err, sql.ErrNoRows) {
		return namedRecord{}, fmt.Errorf("%w: %s %s", rbac.ErrNotFound, t.label, id)
	}
	return rec, err
}

func (s *Store) listNamed(ctx context.Context, t namedTable, page, pageSize int) ([]namedRecord, int, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE deleted_date IS NULL`, t.table)).Scan(&total)
	if err != nil {
		return nil, 0, 0, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, %s, description, is_active, created_by, updated_by, created_date, updated_date, deleted_date
		 FROM %s WHERE deleted_date IS NULL ORDER BY updated_date DESC LIMIT $1 OFFSET $2`,
		t.nameCol, t.table), pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	recs := []namedRecord{}
	for rows.Next() {
		rec, err := scanNamed(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return recs, total, pageCount(total, pageSize), nil
}

func (s *Store) updateNamed(ctx context.Context, t namedTable, rec *namedRecord, actor uuid.UUID) error {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET %s = $2, description = $3, is_active = $4, updated_by = $5, updated_date = $6
		 WHERE id = $1 AND deleted_date IS NULL`, t.table, t.nameCol),
		rec.ID, rec.Name, nullString(rec.Description), rec.IsActive, actor, now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s %q already exists", rbac.ErrConflict, t.label, rec.Name)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", rbac.ErrNotFound, t.label, rec.ID)
	}
	rec.UpdatedBy = &actor
	rec.UpdatedDate = &now
	return nil
}

func (s *Store) softDeleteNamed(ctx context.Context, t namedTable, id, actor uuid.UUID) error {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET deleted_date = $2, updated_by = $3, updated_date = $2
		 WHERE id = $1 AND deleted_date IS NULL`, t.table), id, now, actor)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", rbac.ErrNotFound, t.label, id)
	}
	return nil
}

// --- roles ---

func roleFromRecord(rec namedRecord) rbac.Role {
	return rbac.Role{
		ID: rec.ID, RoleName: rec.Name, Description: rec.Description, IsActive: rec.IsActive,
		CreatedBy: rec.CreatedBy, UpdatedBy: rec.UpdatedBy,
		CreatedDate: rec.CreatedDate, UpdatedDate: rec.UpdatedDate, DeletedDate: rec.DeletedDate,
	}
}

func (s *Store) CreateRole(ctx context.Context, role *rbac.Role) error {
	rec := namedRecord{ID: role.ID, Name: role.RoleName, Description: role.Description,
		IsActive: role.IsActive, CreatedBy: role.CreatedBy}
	if err := s.createNamed(ctx, roleTable, &rec); err != nil {
		return err
	}
	*role = roleFromRecord(rec)
	return nil
}

func (s *Store) GetRole(ctx context.Context, id uuid.UUID) (rbac.Role, error) {
	rec, err := s.getNamed(ctx, roleTable, id)
	if err != nil {
		return rbac.Role{}, err
	}
	return roleFromRecord(rec), nil
}

func (s *Store) ListRoles(ctx context.Context, page, pageSize int) ([]rbac.Role, int, int, error) {
	recs, total, pages, err := s.listNamed(ctx, roleTable, page, pageSize)
	if err != nil {
		return nil, 0, 0, err
	}
	roles := make([]rbac.Role, 0, len(recs))
	for _, rec := range recs {
		roles = append(roles, roleFromRecord(rec))
	}
	return roles, total, pages, nil
}

func (s *Store) UpdateRole(ctx context.Context, role *rbac.Role, actor uuid.UUID) error {
	rec := namedRecord{ID: role.ID, Name: role.RoleName, Description: role.Description, IsActive: role.IsActive}
	if err := s.updateNamed(ctx, roleTable, &rec, actor); err != nil {
		return err
	}
	role.UpdatedBy = rec.UpdatedBy
	role.UpdatedDate = rec.UpdatedDate
	return nil
}

func (s *Store) SoftDeleteRole(ctx context.Context, id, actor uuid.UUID) error {
	return s.softDeleteNamed(ctx, roleTable, id, actor)
}

// --- groups ---

func groupFromRecord(rec namedRecord) rbac.Group {
	return rbac.Group{
		ID: rec.ID, GroupName: rec.Name, Description: rec.Description, IsActive: rec.IsActive,
		CreatedBy: rec.CreatedBy, UpdatedBy: rec.UpdatedBy,
		CreatedDate: rec.CreatedDate, UpdatedDate: rec.UpdatedDate, DeletedDate: rec.DeletedDate,
	}
}

func (s *Store) CreateGroup(ctx context.Context, group *rbac.Group) error {
	rec := namedRecord{ID: group.ID, Name: group.GroupName, Description: group.Description,
		IsActive: group.IsActive, CreatedBy: group.CreatedBy}
	if err := s.createNamed(ctx, groupTable, &rec); err != nil {
		return err
	}
	*group = groupFromRecord(rec)
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id uuid.UUID) (rbac.Group, error) {
	rec, err := s.getNamed(ctx, groupTable, id)
	if err != nil {
		return rbac.Group{}, err
	}
	return groupFromRecord(rec), nil
}

func (s *Store) ListGroups(ctx context.Context, page, pageSize int) ([]rbac.Group, int, int, error) {
	recs, total, pages, err := s.listNamed(ctx, groupTable, page, pageSize)
	if err != nil {
		return nil, 0, 0, err
	}
	groups := make([]rbac.Group, 0, len(recs))
	for _, rec := range recs {
		groups = append(groups, groupFromRecord(rec))
	}
	return groups, total, pages, nil
}

func (s *Store) UpdateGroup(ctx context.Context, group *rbac.Group, actor uuid.UUID) error {
	rec := namedRecord{ID: group.ID, Name: group.GroupName, Description: group.Description, IsActive: group.IsActive}
	if err := s.updateNamed(ctx, groupTable, &rec, actor); err != nil {
		return err
	}
	group.UpdatedBy = rec.UpdatedBy
	group.UpdatedDate = rec.UpdatedDate
	return nil
}

func (s *Store) SoftDeleteGroup(ctx context.Context, id, actor uuid.UUID) error {
	return s.softDeleteNamed(ctx, groupTable, id, actor)
}

// --- permissions ---

const permissionColumns = `id, permission_name, is_user, is_role, is_group, description, created_by, updated_by, created_date, updated_date, deleted_date`

func scanPermission(row interface{ Scan(dest ...any) error }) (rbac.Permission, error) {
	var (
		p                    rbac.Permission
		description          sql.NullString
		createdBy, updatedBy uuid.NullUUID
		created, updated     sql.NullTime
		deleted              sql.NullTime
	)
	err := row.Scan(&p.ID, &p.PermissionName, &p.IsUser, &p.IsRole, &p.IsGroup, &description,
		&createdBy, &updatedBy, &created, &updated, &deleted)
	if err != nil {
		return rbac.Permission{}, err
	}
	p.Description = stringPtr(description)
	p.CreatedBy = uuidPtr(createdBy)
	p.UpdatedBy = uuidPtr(updatedBy)
	p.CreatedDate = timePtr(created)
	p.UpdatedDate = timePtr(updated)
	p.DeletedDate = timePtr(deleted)
	return p, nil
}

// CreatePermission inserts the permission and its attribute list rows in one
// transaction.
func (s *Store) CreatePermission(ctx context.Context, perm *rbac.Permission, attributeIDs []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	if perm.ID == uuid.Nil {
		perm.ID = ids.NewEntity()
	}
	perm.CreatedDate = &now
	perm.UpdatedDate = &now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO public.permission (id, permission_name, is_user, is_role, is_group, description, created_by, created_date, updated_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		perm.ID, perm.PermissionName, perm.IsUser, perm.IsRole, perm.IsGroup,
		nullString(perm.Description), nullUUID(perm.CreatedBy), now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: permission %q already exists", rbac.ErrConflict, perm.PermissionName)
		}
		return err
	}

	if err := s.insertAttributeList(ctx, tx, perm.ID, attributeIDs); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) insertAttributeList(ctx context.Context, tx *sql.Tx, permissionID uuid.UUID, attributeIDs []uuid.UUID) error {
	for _, attrID := range attributeIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO public.permission_attribute_list (id, permission_id, attribute_id) VALUES ($1, $2, $3)`,
			ids.NewEntity(), permissionID, attrID)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: attribute %s", rbac.ErrNotFound, attrID)
			}
			return err
		}
	}
	return nil
}

// GetPermission returns the permission and its attached attributes.
func (s *Store) GetPermission(ctx context.Context, id uuid.UUID) (rbac.Permission, []rbac.PermissionAttribute, error) {
	p, err := scanPermission(s.db.QueryRowContext(ctx,
		`SELECT `+permissionColumns+` FROM public.permission WHERE id = $1 AND deleted_date IS NULL`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Permission{}, nil, fmt.Errorf("%w: permission %s", rbac.ErrNotFound, id)
	}
	if err != nil {
		return rbac.Permission{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.name, a.description, a.created_date, a.updated_date
		 FROM public.permission_attribute a
		 JOIN public.permission_attribute_list l ON l.attribute_id = a.id
		 WHERE l.permission_id = $1
		 ORDER BY a.name`, id)
	if err != nil {
		return rbac.Permission{}, nil, err
	}
	defer rows.Close()

	attrs := []rbac.PermissionAttribute{}
	for rows.Next() {
		attr, err := scanAttribute(rows)
		if err != nil {
			return rbac.Permission{}, nil, err
		}
		attrs = append(attrs, attr)
	}
	if err := rows.Err(); err != nil {
		return rbac.Permission{}, nil, err
	}
	return p, attrs, nil
}

func (s *Store) ListPermissions(ctx context.Context, page, pageSize int) ([]rbac.Permission, int, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM public.permission WHERE deleted_date IS NULL`).Scan(&total)
	if err != nil {
		return nil, 0, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+permissionColumns+` FROM public.permission WHERE deleted_date IS NULL
		 ORDER BY updated_date DESC LIMIT $1 OFFSET $2`,
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	perms := []rbac.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return perms, total, pageCount(total, pageSize), nil
}

func (s *Store) UpdatePermission(ctx context.Context, perm *rbac.Permission, actor uuid.UUID) error {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE public.permission
		 SET permission_name = $2, is_user = $3, is_role = $4, is_group = $5, description = $6, updated_by = $7, updated_date = $8
		 WHERE id = $1 AND deleted_date IS NULL`,
		perm.ID, perm.PermissionName, perm.IsUser, perm.IsRole, perm.IsGroup,
		nullString(perm.Description), actor, now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: permission %q already exists", rbac.ErrConflict, perm.PermissionName)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: permission %s", rbac.ErrNotFound, perm.ID)
	}
	perm.UpdatedBy = &actor
	perm.UpdatedDate = &now
	return nil
}

func (s *Store) SoftDeletePermission(ctx context.Context, id, actor uuid.UUID) error {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE public.permission SET deleted_date = $2, updated_by = $3, updated_date = $2
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
		return fmt.Errorf("%w: permission %s", rbac.ErrNotFound, id)
	}
	return nil
}

// ReplacePermissionAttributes swaps the attribute list wholesale: delete all
// rows for the permission, reinsert the new set, commit once.
func (s *Store) ReplacePermissionAttributes(ctx context.Context, permissionID uuid.UUID, attributeIDs []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM public.permission WHERE id = $1 AND deleted_date IS NULL)`,
		permissionID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: permission %s", rbac.ErrNotFound, permissionID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM public.permission_attribute_list WHERE permission_id = $1`, permissionID); err != nil {
		return err
	}
	if err := s.insertAttributeList(ctx, tx, permissionID, attributeIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// --- permission attributes ---

func scanAttribute(row interface{ Scan(dest ...any) error }) (rbac.PermissionAttribute, error) {
	var (
		a                rbac.PermissionAttribute
		description      sql.NullString
		created, updated sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Name, &description, &created, &updated)
	if err != nil {
		return rbac.PermissionAttribute{}, err
	}
	a.Description = stringPtr(description)
	a.CreatedDate = timePtr(created)
	a.UpdatedDate = timePtr(updated)
	return a, nil
}

func (s *Store) CreateAttribute(ctx context.Context, attr *rbac.PermissionAttribute) error {
	now := s.now().UTC()
	if attr.ID == uuid.Nil {
		attr.ID = ids.NewEntity()
	}
	attr.CreatedDate = &now
	attr.UpdatedDate = &now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO public.permission_attribute (id, name, description, created_date, updated_date)
		 VALUES ($1, $2, $3, $4, $4)`,
		attr.ID, attr.Name, nullString(attr.Description), now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: attribute %q already exists", rbac.ErrConflict, attr.Name)
		}
		return err
	}
	return nil
}

func (s *Store) GetAttribute(ctx context.Context, id uuid.UUID) (rbac.PermissionAttribute, error) {
	a, err := scanAttribute(s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_date, updated_date FROM public.permission_attribute WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.PermissionAttribute{}, fmt.Errorf("%w: attribute %s", rbac.ErrNotFound, id)
	}
	return a, err
}

func (s *Store) ListAttributes(ctx context.Context, page, pageSize int) ([]rbac.PermissionAttribute, int, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM public.permission_attribute`).Scan(&total)
	if err != nil {
		return nil, 0, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_date, updated_date FROM public.permission_attribute
		 ORDER BY updated_date DESC LIMIT $1 OFFSET $2`,
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	attrs := []rbac.PermissionAttribute{}
	for rows.Next() {
		a, err := scanAttribute(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		attrs = append(attrs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}
	return attrs, total, pageCount(total, pageSize), nil
}

func (s *Store) UpdateAttribute(ctx context.Context, attr *rbac.PermissionAttribute) error {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE public.permission_attribute SET name = $2, description = $3, updated_date = $4 WHERE id = $1`,
		attr.ID, attr.Name, nullString(attr.Description), now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: attribute %q already exists", rbac.ErrConflict, attr.Name)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: attribute %s", rbac.ErrNotFound, attr.ID)
	}
	attr.UpdatedDate = &now
	return nil
}

// DeleteAttribute removes the row outright; attributes carry no audit trail
// and no soft-delete marker.
func (s *Store) DeleteAttribute(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM public.permission_attribute WHERE id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: attribute %s is still referenced", rbac.ErrConflict, id)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: attribute %s", rbac.ErrNotFound, id)
	}
	return nil
}
