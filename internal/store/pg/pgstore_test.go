package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"backoffice.id/internal/rbac"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := NewWithDB(db)
	store.SetClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	return store, mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_name", "password", "is_active", "is_2fa_enabled",
		"created_by", "updated_by", "created_date", "updated_date", "deleted_date",
	})
}

func TestListUsersPaginationMath(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM public\."user"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(23))

	rows := userRows()
	now := time.Now()
	for i := 0; i < 3; i++ {
		rows.AddRow(uuid.New(), "user", "digest", true, false, nil, nil, now, now, nil)
	}
	mock.ExpectQuery(`SELECT .+ FROM public\."user" WHERE .+ ORDER BY updated_date DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 20).
		WillReturnRows(rows)

	users, total, pages, err := store.ListUsers(context.Background(), 3, 10, "", true)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if total != 23 {
		t.Fatalf("expected total 23, got %d", total)
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages for 23 rows at size 10, got %d", pages)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 rows on the last page, got %d", len(users))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListUsersSearchFilter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM public\."user" WHERE .+ user_name ILIKE \$1`).
		WithArgs("%ali%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := userRows()
	now := time.Now()
	rows.AddRow(uuid.New(), "alice", "digest", true, false, nil, nil, now, now, nil)
	mock.ExpectQuery(`user_name ILIKE \$1 ORDER BY updated_date DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("%ali%", 10, 0).
		WillReturnRows(rows)

	users, _, _, err := store.ListUsers(context.Background(), 1, 10, "ali", true)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 || users[0].UserName != "alice" {
		t.Fatalf("unexpected result: %+v", users)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO public\."user"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "user_user_name_key"})
	mock.ExpectRollback()

	user := rbac.User{UserName: "alice", Password: "digest"}
	err := store.CreateUser(context.Background(), &user, &rbac.UserProfile{})
	if !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSoftDeleteUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE public\."user" SET deleted_date`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SoftDeleteUser(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateGrantConflictOnExistingTriple(t *testing.T) {
	store, mock := newMockStore(t)
	existsRow := func(v bool) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"exists"}).AddRow(v)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\.role WHERE id`).WillReturnRows(existsRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\.permission WHERE id`).WillReturnRows(existsRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\.permission_attribute WHERE id`).WillReturnRows(existsRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\.role_permission WHERE role_id`).WillReturnRows(existsRow(true))
	mock.ExpectRollback()

	_, err := store.CreateGrant(context.Background(), rbac.SubjectRole, uuid.New(), uuid.New(), uuid.New(), uuid.New())
	if !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate triple, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateGrantNamesMissingEntity(t *testing.T) {
	store, mock := newMockStore(t)
	existsRow := func(v bool) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"exists"}).AddRow(v)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\."user" WHERE id`).WillReturnRows(existsRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\.permission WHERE id`).WillReturnRows(existsRow(false))
	mock.ExpectRollback()

	permissionID := uuid.New()
	_, err := store.CreateGrant(context.Background(), rbac.SubjectUser, uuid.New(), permissionID, uuid.New(), uuid.New())
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing permission, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateGrantInsertsTriple(t *testing.T) {
	store, mock := newMockStore(t)
	existsRow := func(v bool) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"exists"}).AddRow(v)
	}
	subjectID, permissionID, attributeID, actor := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\."group" WHERE id`).WillReturnRows(existsRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\.permission WHERE id`).WillReturnRows(existsRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\.permission_attribute WHERE id`).WillReturnRows(existsRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\.group_permission WHERE group_id`).WillReturnRows(existsRow(false))
	mock.ExpectExec(`INSERT INTO public\.group_permission`).
		WithArgs(subjectID, permissionID, attributeID, actor, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	grant, err := store.CreateGrant(context.Background(), rbac.SubjectGroup, subjectID, permissionID, attributeID, actor)
	if err != nil {
		t.Fatalf("CreateGrant: %v", err)
	}
	if grant.SubjectID != subjectID || grant.PermissionID != permissionID || grant.AttributeID != attributeID {
		t.Fatalf("unexpected grant: %+v", grant)
	}
	if grant.CreatedBy == nil || *grant.CreatedBy != actor {
		t.Fatalf("expected created_by to carry the actor")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteGrantNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM public\.user_permission WHERE user_id`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteGrant(context.Background(), rbac.SubjectUser, uuid.New(), uuid.New(), uuid.New())
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListGrantsAllSkipsPaging(t *testing.T) {
	store, mock := newMockStore(t)
	subjectID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM public\.role_permission`).
		WithArgs(subjectID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	rows := sqlmock.NewRows([]string{
		"role_id", "permission_id", "attribute_id", "created_by", "updated_by", "created_date", "updated_date",
	}).
		AddRow(subjectID, uuid.New(), uuid.New(), nil, nil, now, now).
		AddRow(subjectID, uuid.New(), uuid.New(), nil, nil, now, now)
	mock.ExpectQuery(`FROM public\.role_permission WHERE role_id = \$1 ORDER BY updated_date DESC$`).
		WithArgs(subjectID).
		WillReturnRows(rows)

	grants, total, pages, err := store.ListGrants(context.Background(), rbac.SubjectRole, subjectID, 1, 10, true)
	if err != nil {
		t.Fatalf("ListGrants: %v", err)
	}
	if total != 2 || len(grants) != 2 {
		t.Fatalf("expected both grants, got total=%d len=%d", total, len(grants))
	}
	if pages != 0 {
		t.Fatalf("expected page count 0 for the unpaged listing, got %d", pages)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplacePermissionAttributesDeletesThenInserts(t *testing.T) {
	store, mock := newMockStore(t)
	permissionID := uuid.New()
	first, second := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\.permission WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM public\.permission_attribute_list WHERE permission_id`).
		WithArgs(permissionID).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO public\.permission_attribute_list`).
		WithArgs(sqlmock.AnyArg(), permissionID, first).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO public\.permission_attribute_list`).
		WithArgs(sqlmock.AnyArg(), permissionID, second).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ReplacePermissionAttributes(context.Background(), permissionID, []uuid.UUID{first, second})
	if err != nil {
		t.Fatalf("ReplacePermissionAttributes: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReplaceUserGroupRolesRequiresUser(t *testing.T) {
	store, mock := newMockStore(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM public\."user" WHERE id`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := store.ReplaceUserGroupRoles(context.Background(), userID, nil)
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
