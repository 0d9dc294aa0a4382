package rbac

import (
	"context"

	"github.com/google/uuid"
)

// Store describes the persistence operations the rbac service requires.
// Implementations keep multi-step writes inside a single transaction and
// return ErrNotFound/ErrConflict wrapped with the offending entity.
type Store interface {
	CreateUser(ctx context.Context, user *User, profile *UserProfile) error
	GetUser(ctx context.Context, id uuid.UUID, includeDeleted bool) (User, UserProfile, error)
	GetUserByUsername(ctx context.Context, username string) (User, UserProfile, error)
	ListUsers(ctx context.Context, page, pageSize int, search string, excludeDeleted bool) ([]User, int, int, error)
	UpdateUser(ctx context.Context, user *User, profile *UserProfile, actor uuid.UUID) error
	SoftDeleteUser(ctx context.Context, id, actor uuid.UUID) error

	ListUserGroupRoles(ctx context.Context, userID uuid.UUID) ([]UserGroupRole, error)
	ReplaceUserGroupRoles(ctx context.Context, userID uuid.UUID, items []UserGroupRole) error

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	ListRoles(ctx context.Context, page, pageSize int) ([]Role, int, int, error)
	UpdateRole(ctx context.Context, role *Role, actor uuid.UUID) error
	SoftDeleteRole(ctx context.Context, id, actor uuid.UUID) error

	CreateGroup(ctx context.Context, group *Group) error
	GetGroup(ctx context.Context, id uuid.UUID) (Group, error)
	ListGroups(ctx context.Context, page, pageSize int) ([]Group, int, int, error)
	UpdateGroup(ctx context.Context, group *Group, actor uuid.UUID) error
	SoftDeleteGroup(ctx context.Context, id, actor uuid.UUID) error

	CreatePermission(ctx context.Context, perm *Permission, attributeIDs []uuid.UUID) error
	GetPermission(ctx context.Context, id uuid.UUID) (Permission, []PermissionAttribute, error)
	ListPermissions(ctx context.Context, page, pageSize int) ([]Permission, int, int, error)
	UpdatePermission(ctx context.Context, perm *Permission, actor uuid.UUID) error
	SoftDeletePermission(ctx context.Context, id, actor uuid.UUID) error
	ReplacePermissionAttributes(ctx context.Context, permissionID uuid.UUID, attributeIDs []uuid.UUID) error

	CreateAttribute(ctx context.Context, attr *PermissionAttribute) error
	GetAttribute(ctx context.Context, id uuid.UUID) (PermissionAttribute, error)
	ListAttributes(ctx context.Context, page, pageSize int) ([]PermissionAttribute, int, int, error)
	UpdateAttribute(ctx context.Context, attr *PermissionAttribute) error
	DeleteAttribute(ctx context.Context, id uuid.UUID) error

	CreateGrant(ctx context.Context, kind SubjectKind, subjectID, permissionID, attributeID, actor uuid.UUID) (Grant, error)
	DeleteGrant(ctx context.Context, kind SubjectKind, subjectID, permissionID, attributeID uuid.UUID) error
	ListGrants(ctx context.Context, kind SubjectKind, subjectID uuid.UUID, page, pageSize int, all bool) ([]Grant, int, int, error)
}
