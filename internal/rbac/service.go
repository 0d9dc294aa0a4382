package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
)

// Service validates input and delegates persistence to a Store. Password
// digests arrive pre-hashed; the credential hasher lives with the token
// machinery, not here.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Service{store: store}, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

// --- users ---

func (s *Service) CreateUser(ctx context.Context, user *User, profile *UserProfile) error {
	if user == nil || profile == nil {
		return fmt.Errorf("%w: user and profile are required", ErrInvalidInput)
	}
	user.UserName = strings.TrimSpace(user.UserName)
	if user.UserName == "" {
		return fmt.Errorf("%w: user_name is required", ErrInvalidInput)
	}
	if user.Password == "" {
		return fmt.Errorf("%w: password digest is required", ErrInvalidInput)
	}
	return s.store.CreateUser(ctx, user, profile)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (User, UserProfile, error) {
	return s.store.GetUser(ctx, id, false)
}

func (s *Service) ListUsers(ctx context.Context, page, pageSize int, search string) ([]User, int, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.store.ListUsers(ctx, page, pageSize, strings.TrimSpace(search), true)
}

func (s *Service) UpdateUser(ctx context.Context, user *User, profile *UserProfile, actor uuid.UUID) error {
	if user == nil || profile == nil {
		return fmt.Errorf("%w: user and profile are required", ErrInvalidInput)
	}
	user.UserName = strings.TrimSpace(user.UserName)
	if user.UserName == "" {
		return fmt.Errorf("%w: user_name is required", ErrInvalidInput)
	}
	return s.store.UpdateUser(ctx, user, profile, actor)
}

func (s *Service) DeleteUser(ctx context.Context, id, actor uuid.UUID) error {
	return s.store.SoftDeleteUser(ctx, id, actor)
}

func (s *Service) ListUserGroupRoles(ctx context.Context, userID uuid.UUID) ([]UserGroupRole, error) {
	return s.store.ListUserGroupRoles(ctx, userID)
}

// ReplaceUserGroupRoles swaps a user's full (role, group) assignment set in
// one transaction: final state always matches the input exactly.
func (s *Service) ReplaceUserGroupRoles(ctx context.Context, userID uuid.UUID, items []UserGroupRole) error {
	for i := range items {
		if items[i].RoleID == nil && items[i].GroupID == nil {
			return fmt.Errorf("%w: assignment needs a role_id or group_id", ErrInvalidInput)
		}
		items[i].UserID = userID
	}
	return s.store.ReplaceUserGroupRoles(ctx, userID, items)
}

// --- roles ---

func (s *Service) CreateRole(ctx context.Context, role *Role) error {
	if role == nil {
		return fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	role.RoleName = strings.TrimSpace(role.RoleName)
	if role.RoleName == "" {
		return fmt.Errorf("%w: role_name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, role)
}

func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.store.GetRole(ctx, id)
}

func (s *Service) ListRoles(ctx context.Context, page, pageSize int) ([]Role, int, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.store.ListRoles(ctx, page, pageSize)
}

func (s *Service) UpdateRole(ctx context.Context, role *Role, actor uuid.UUID) error {
	if role == nil {
		return fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	role.RoleName = strings.TrimSpace(role.RoleName)
	if role.RoleName == "" {
		return fmt.Errorf("%w: role_name is required", ErrInvalidInput)
	}
	return s.store.UpdateRole(ctx, role, actor)
}

func (s *Service) DeleteRole(ctx context.Context, id, actor uuid.UUID) error {
	return s.store.SoftDeleteRole(ctx, id, actor)
}

// --- groups ---

func (s *Service) CreateGroup(ctx context.Context, group *Group) error {
	if group == nil {
		return fmt.Errorf("%w: group is required", ErrInvalidInput)
	}
	group.GroupName = strings.TrimSpace(group.GroupName)
	if group.GroupName == "" {
		return fmt.Errorf("%w: group_name is required", ErrInvalidInput)
	}
	return s.store.CreateGroup(ctx, group)
}

func (s *Service) GetGroup(ctx context.Context, id uuid.UUID) (Group, error) {
	return s.store.GetGroup(ctx, id)
}

func (s *Service) ListGroups(ctx context.Context, page, pageSize int) ([]Group, int, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.store.ListGroups(ctx, page, pageSize)
}

func (s *Service) UpdateGroup(ctx context.Context, group *Group, actor uuid.UUID) error {
	if group == nil {
		return fmt.Errorf("%w: group is required", ErrInvalidInput)
	}
	group.GroupName = strings.TrimSpace(group.GroupName)
	if group.GroupName == "" {
		return fmt.Errorf("%w: group_name is required", ErrInvalidInput)
	}
	return s.store.UpdateGroup(ctx, group, actor)
}

func (s *Service) DeleteGroup(ctx context.Context, id, actor uuid.UUID) error {
	return s.store.SoftDeleteGroup(ctx, id, actor)
}

// --- permissions & attributes ---

func (s *Service) CreatePermission(ctx context.Context, perm *Permission, attributeIDs []uuid.UUID) error {
	if perm == nil {
		return fmt.Errorf("%w: permission is required", ErrInvalidInput)
	}
	perm.PermissionName = strings.TrimSpace(perm.PermissionName)
	if perm.PermissionName == "" {
		return fmt.Errorf("%w: permission_name is required", ErrInvalidInput)
	}
	return s.store.CreatePermission(ctx, perm, dedupeIDs(attributeIDs))
}

func (s *Service) GetPermission(ctx context.Context, id uuid.UUID) (Permission, []PermissionAttribute, error) {
	return s.store.GetPermission(ctx, id)
}

func (s *Service) ListPermissions(ctx context.Context, page, pageSize int) ([]Permission, int, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.store.ListPermissions(ctx, page, pageSize)
}

func (s *Service) UpdatePermission(ctx context.Context, perm *Permission, actor uuid.UUID) error {
	if perm == nil {
		return fmt.Errorf("%w: permission is required", ErrInvalidInput)
	}
	perm.PermissionName = strings.TrimSpace(perm.PermissionName)
	if perm.PermissionName == "" {
		return fmt.Errorf("%w: permission_name is required", ErrInvalidInput)
	}
	return s.store.UpdatePermission(ctx, perm, actor)
}

func (s *Service) DeletePermission(ctx context.Context, id, actor uuid.UUID) error {
	return s.store.SoftDeletePermission(ctx, id, actor)
}

// ReplacePermissionAttributes swaps a permission's attribute set wholesale;
// the store runs the delete and reinserts in one transaction.
func (s *Service) ReplacePermissionAttributes(ctx context.Context, permissionID uuid.UUID, attributeIDs []uuid.UUID) error {
	return s.store.ReplacePermissionAttributes(ctx, permissionID, dedupeIDs(attributeIDs))
}

func (s *Service) CreateAttribute(ctx context.Context, attr *PermissionAttribute) error {
	if attr == nil {
		return fmt.Errorf("%w: attribute is required", ErrInvalidInput)
	}
	attr.Name = strings.TrimSpace(attr.Name)
	if attr.Name == "" {
		return fmt.Errorf("%w: attribute name is required", ErrInvalidInput)
	}
	return s.store.CreateAttribute(ctx, attr)
}

func (s *Service) GetAttribute(ctx context.Context, id uuid.UUID) (PermissionAttribute, error) {
	return s.store.GetAttribute(ctx, id)
}

func (s *Service) ListAttributes(ctx context.Context, page, pageSize int) ([]PermissionAttribute, int, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.store.ListAttributes(ctx, page, pageSize)
}

func (s *Service) UpdateAttribute(ctx context.Context, attr *PermissionAttribute) error {
	if attr == nil {
		return fmt.Errorf("%w: attribute is required", ErrInvalidInput)
	}
	attr.Name = strings.TrimSpace(attr.Name)
	if attr.Name == "" {
		return fmt.Errorf("%w: attribute name is required", ErrInvalidInput)
	}
	return s.store.UpdateAttribute(ctx, attr)
}

func (s *Service) DeleteAttribute(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteAttribute(ctx, id)
}

// --- grants ---

func (s *Service) CreateGrant(ctx context.Context, kind SubjectKind, subjectID, permissionID, attributeID, actor uuid.UUID) (Grant, error) {
	if !kind.Valid() {
		return Grant{}, fmt.Errorf("%w: unknown subject kind %q", ErrInvalidInput, kind)
	}
	return s.store.CreateGrant(ctx, kind, subjectID, permissionID, attributeID, actor)
}

func (s *Service) DeleteGrant(ctx context.Context, kind SubjectKind, subjectID, permissionID, attributeID uuid.UUID) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown subject kind %q", ErrInvalidInput, kind)
	}
	return s.store.DeleteGrant(ctx, kind, subjectID, permissionID, attributeID)
}

// ListGrants pages through a subject's grants ordered most-recently-updated
// first. all=true returns the full set with pageCount 0.
func (s *Service) ListGrants(ctx context.Context, kind SubjectKind, subjectID uuid.UUID, page, pageSize int, all bool) ([]Grant, int, int, error) {
	if !kind.Valid() {
		return nil, 0, 0, fmt.Errorf("%w: unknown subject kind %q", ErrInvalidInput, kind)
	}
	page, pageSize = normalizePage(page, pageSize)
	return s.store.ListGrants(ctx, kind, subjectID, page, pageSize, all)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
