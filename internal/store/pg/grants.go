package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"backoffice.id/internal/rbac"
)

// grantRelation maps a subject kind onto its join table and the subject table
// used for existence checks. All three relations share the same column shape.
type grantRelation struct {
	table        string
	subjectCol   string
	subjectTable string
	label        string
}

var grantRelations = map[rbac.SubjectKind]grantRelation{
	rbac.SubjectUser:  {table: "public.user_permission", subjectCol: "user_id", subjectTable: `public."user"`, label: "user"},
	rbac.SubjectRole:  {table: "public.role_permission", subjectCol: "role_id", subjectTable: "public.role", label: "role"},
	rbac.SubjectGroup: {table: "public.group_permission", subjectCol: "group_id", subjectTable: `public."group"`, label: "group"},
}

func relationFor(kind rbac.SubjectKind) (grantRelation, error) {
	rel, ok := grantRelations[kind]
	if !ok {
		return grantRelation{}, fmt.Errorf("%w: unknown subject kind %q", rbac.ErrInvalidInput, kind)
	}
	return rel, nil
}

// CreateGrant validates that the subject, permission and attribute all exist,
// checks the triple is new, and inserts it. All of it runs inside one
// transaction; the unique constraint on the triple remains the authoritative
// guard against a concurrent writer slipping between check and insert.
func (s *Store) CreateGrant(ctx context.Context, kind rbac.SubjectKind, subjectID, permissionID, attributeID, actor uuid.UUID) (rbac.Grant, error) {
	rel, err := relationFor(kind)
	if err != nil {
		return rbac.Grant{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rbac.Grant{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND deleted_date IS NULL)`, rel.subjectTable),
		subjectID).Scan(&exists)
	if err != nil {
		return rbac.Grant{}, err
	}
	if !exists {
		return rbac.Grant{}, fmt.Errorf("%w: %s %s", rbac.ErrNotFound, rel.label, subjectID)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM public.permission WHERE id = $1 AND deleted_date IS NULL)`,
		permissionID).Scan(&exists)
	if err != nil {
		return rbac.Grant{}, err
	}
	if !exists {
		return rbac.Grant{}, fmt.Errorf("%w: permission %s", rbac.ErrNotFound, permissionID)
	}

	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM public.permission_attribute WHERE id = $1)`,
		attributeID).Scan(&exists)
	if err != nil {
		return rbac.Grant{}, err
	}
	if !exists {
		return rbac.Grant{}, fmt.Errorf("%w: attribute %s", rbac.ErrNotFound, attributeID)
	}

	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND permission_id = $2 AND attribute_id = $3)`,
		rel.table, rel.subjectCol),
		subjectID, permissionID, attributeID).Scan(&exists)
	if err != nil {
		return rbac.Grant{}, err
	}
	if exists {
		return rbac.Grant{}, fmt.Errorf("%w: grant already exists for %s %s", rbac.ErrConflict, rel.label, subjectID)
	}

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s, permission_id, attribute_id, created_by, created_date, updated_date)
		 VALUES ($1, $2, $3, $4, $5, $5)`, rel.table, rel.subjectCol),
		subjectID, permissionID, attributeID, actor, now)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Grant{}, fmt.Errorf("%w: grant already exists for %s %s", rbac.ErrConflict, rel.label, subjectID)
		}
		return rbac.Grant{}, err
	}
	if err := tx.Commit(); err != nil {
		return rbac.Grant{}, err
	}

	return rbac.Grant{
		SubjectID:    subjectID,
		PermissionID: permissionID,
		AttributeID:  attributeID,
		CreatedBy:    &actor,
		CreatedDate:  &now,
		UpdatedDate:  &now,
	}, nil
}

// DeleteGrant removes the exact triple; nothing deleted means ErrNotFound.
func (s *Store) DeleteGrant(ctx context.Context, kind rbac.SubjectKind, subjectID, permissionID, attributeID uuid.UUID) error {
	rel, err := relationFor(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE %s = $1 AND permission_id = $2 AND attribute_id = $3`,
		rel.table, rel.subjectCol),
		subjectID, permissionID, attributeID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: no such grant for %s %s", rbac.ErrNotFound, rel.label, subjectID)
	}
	return nil
}

// ListGrants pages a subject's grants most-recently-updated first. With
// all=true the full set is returned and the page count comes back 0.
func (s *Store) ListGrants(ctx context.Context, kind rbac.SubjectKind, subjectID uuid.UUID, page, pageSize int, all bool) ([]rbac.Grant, int, int, error) {
	rel, err := relationFor(kind)
	if err != nil {
		return nil, 0, 0, err
	}

	var total int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE %s = $1`, rel.table, rel.subjectCol),
		subjectID).Scan(&total)
	if err != nil {
		return nil, 0, 0, err
	}

	query := fmt.Sprintf(
		`SELECT %s, permission_id, attribute_id, created_by, updated_by, created_date, updated_date
		 FROM %s WHERE %s = $1 ORDER BY updated_date DESC`,
		rel.subjectCol, rel.table, rel.subjectCol)
	args := []any{subjectID}
	if !all {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, pageSize, (page-1)*pageSize)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	grants := []rbac.Grant{}
	for rows.Next() {
		var (
			g                    rbac.Grant
			createdBy, updatedBy uuid.NullUUID
			created, updated     sql.NullTime
		)
		if err := rows.Scan(&g.SubjectID, &g.PermissionID, &g.AttributeID,
			&createdBy, &updatedBy, &created, &updated); err != nil {
			return nil, 0, 0, err
		}
		g.CreatedBy = uuidPtr(createdBy)
		g.UpdatedBy = uuidPtr(updatedBy)
		g.CreatedDate = timePtr(created)
		g.UpdatedDate = timePtr(updated)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, err
	}

	pages := pageCount(total, pageSize)
	if all {
		pages = 0
	}
	return grants, total, pages, nil
}
