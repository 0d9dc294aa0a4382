package httpapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"backoffice.id/internal/rbac"
)

// stubStore is an in-memory rbac.Store for handler tests. Semantics mirror
// the relational store closely enough for routing and error-mapping checks.
type stubStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]rbac.User
	profiles map[uuid.UUID]rbac.UserProfile
	roles    map[uuid.UUID]rbac.Role
	groups   map[uuid.UUID]rbac.Group
	perms    map[uuid.UUID]rbac.Permission
	attrs    map[uuid.UUID]rbac.PermissionAttribute
	permAttr map[uuid.UUID][]uuid.UUID
	grants   map[rbac.SubjectKind][]rbac.Grant
	ugr      map[uuid.UUID][]rbac.UserGroupRole
}

func newStubStore() *stubStore {
	return &stubStore{
		users:    map[uuid.UUID]rbac.User{},
		profiles: map[uuid.UUID]rbac.UserProfile{},
		roles:    map[uuid.UUID]rbac.Role{},
		groups:   map[uuid.UUID]rbac.Group{},
		perms:    map[uuid.UUID]rbac.Permission{},
		attrs:    map[uuid.UUID]rbac.PermissionAttribute{},
		permAttr: map[uuid.UUID][]uuid.UUID{},
		grants:   map[rbac.SubjectKind][]rbac.Grant{},
		ugr:      map[uuid.UUID][]rbac.UserGroupRole{},
	}
}

func stamp() *time.Time {
	now := time.Now().UTC()
	return &now
}

func (s *stubStore) CreateUser(_ context.Context, user *rbac.User, profile *rbac.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.UserName == user.UserName {
			return fmt.Errorf("%w: user_name %q already exists", rbac.ErrConflict, user.UserName)
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedDate = stamp()
	user.UpdatedDate = user.CreatedDate
	profile.UserID = user.ID
	s.users[user.ID] = *user
	s.profiles[user.ID] = *profile
	return nil
}

func (s *stubStore) GetUser(_ context.Context, id uuid.UUID, includeDeleted bool) (rbac.User, rbac.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || (!includeDeleted && u.DeletedDate != nil) {
		return rbac.User{}, rbac.UserProfile{}, fmt.Errorf("%w: user %s", rbac.ErrNotFound, id)
	}
	return u, s.profiles[id], nil
}

func (s *stubStore) GetUserByUsername(_ context.Context, username string) (rbac.User, rbac.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.UserName == username && u.DeletedDate == nil {
			return u, s.profiles[id], nil
		}
	}
	return rbac.User{}, rbac.UserProfile{}, fmt.Errorf("%w: user %q", rbac.ErrNotFound, username)
}

func (s *stubStore) ListUsers(_ context.Context, page, pageSize int, search string, excludeDeleted bool) ([]rbac.User, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := []rbac.User{}
	for _, u := range s.users {
		if excludeDeleted && u.DeletedDate != nil {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserName < users[j].UserName })
	total := len(users)
	return users, total, (total + pageSize - 1) / pageSize, nil
}

func (s *stubStore) UpdateUser(_ context.Context, user *rbac.User, profile *rbac.UserProfile, actor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok || existing.DeletedDate != nil {
		return fmt.Errorf("%w: user %s", rbac.ErrNotFound, user.ID)
	}
	if user.Password == "" {
		user.Password = existing.Password
	}
	user.UpdatedBy = &actor
	user.UpdatedDate = stamp()
	profile.UserID = user.ID
	s.users[user.ID] = *user
	s.profiles[user.ID] = *profile
	return nil
}

func (s *stubStore) SoftDeleteUser(_ context.Context, id, actor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.DeletedDate != nil {
		return fmt.Errorf("%w: user %s", rbac.ErrNotFound, id)
	}
	u.DeletedDate = stamp()
	u.UpdatedBy = &actor
	s.users[id] = u
	return nil
}

func (s *stubStore) ListUserGroupRoles(_ context.Context, userID uuid.UUID) ([]rbac.UserGroupRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rbac.UserGroupRole{}, s.ugr[userID]...), nil
}

func (s *stubStore) ReplaceUserGroupRoles(_ context.Context, userID uuid.UUID, items []rbac.UserGroupRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("%w: user %s", rbac.ErrNotFound, userID)
	}
	s.ugr[userID] = append([]rbac.UserGroupRole{}, items...)
	return nil
}

func (s *stubStore) CreateRole(_ context.Context, role *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.RoleName == role.RoleName && existing.DeletedDate == nil {
			return fmt.Errorf("%w: role %q already exists", rbac.ErrConflict, role.RoleName)
		}
	}
	role.ID = uuid.New()
	role.CreatedDate = stamp()
	role.UpdatedDate = role.CreatedDate
	s.roles[role.ID] = *role
	return nil
}

func (s *stubStore) GetRole(_ context.Context, id uuid.UUID) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok || role.DeletedDate != nil {
		return rbac.Role{}, fmt.Errorf("%w: role %s", rbac.ErrNotFound, id)
	}
	return role, nil
}

func (s *stubStore) ListRoles(_ context.Context, page, pageSize int) ([]rbac.Role, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := []rbac.Role{}
	for _, role := range s.roles {
		if role.DeletedDate == nil {
			roles = append(roles, role)
		}
	}
	total := len(roles)
	return roles, total, (total + pageSize - 1) / pageSize, nil
}

func (s *stubStore) UpdateRole(_ context.Context, role *rbac.Role, actor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.roles[role.ID]
	if !ok || existing.DeletedDate != nil {
		return fmt.Errorf("%w: role %s", rbac.ErrNotFound, role.ID)
	}
	role.UpdatedBy = &actor
	role.UpdatedDate = stamp()
	s.roles[role.ID] = *role
	return nil
}

func (s *stubStore) SoftDeleteRole(_ context.Context, id, actor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok || role.DeletedDate != nil {
		return fmt.Errorf("%w: role %s", rbac.ErrNotFound, id)
	}
	role.DeletedDate = stamp()
	role.UpdatedBy = &actor
	s.roles[id] = role
	return nil
}

func (s *stubStore) CreateGroup(_ context.Context, group *rbac.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group.ID = uuid.New()
	group.CreatedDate = stamp()
	group.UpdatedDate = group.CreatedDate
	s.groups[group.ID] = *group
	return nil
}

func (s *stubStore) GetGroup(_ context.Context, id uuid.UUID) (rbac.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[id]
	if !ok || group.DeletedDate != nil {
		return rbac.Group{}, fmt.Errorf("%w: group %s", rbac.ErrNotFound, id)
	}
	return group, nil
}

func (s *stubStore) ListGroups(_ context.Context, page, pageSize int) ([]rbac.Group, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := []rbac.Group{}
	for _, group := range s.groups {
		if group.DeletedDate == nil {
			groups = append(groups, group)
		}
	}
	total := len(groups)
	return groups, total, (total + pageSize - 1) / pageSize, nil
}

func (s *stubStore) UpdateGroup(_ context.Context, group *rbac.Group, actor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[group.ID]; !ok {
		return fmt.Errorf("%w: group %s", rbac.ErrNotFound, group.ID)
	}
	group.UpdatedBy = &actor
	group.UpdatedDate = stamp()
	s.groups[group.ID] = *group
	return nil
}

func (s *stubStore) SoftDeleteGroup(_ context.Context, id, actor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[id]
	if !ok || group.DeletedDate != nil {
		return fmt.Errorf("%w: group %s", rbac.ErrNotFound, id)
	}
	group.DeletedDate = stamp()
	group.UpdatedBy = &actor
	s.groups[id] = group
	return nil
}

func (s *stubStore) CreatePermission(_ context.Context, perm *rbac.Permission, attributeIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm.ID = uuid.New()
	perm.CreatedDate = stamp()
	perm.UpdatedDate = perm.CreatedDate
	s.perms[perm.ID] = *perm
	s.permAttr[perm.ID] = append([]uuid.UUID{}, attributeIDs...)
	return nil
}

func (s *stubStore) GetPermission(_ context.Context, id uuid.UUID) (rbac.Permission, []rbac.PermissionAttribute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.perms[id]
	if !ok || perm.DeletedDate != nil {
		return rbac.Permission{}, nil, fmt.Errorf("%w: permission %s", rbac.ErrNotFound, id)
	}
	attrs := []rbac.PermissionAttribute{}
	for _, attrID := range s.permAttr[id] {
		if attr, ok := s.attrs[attrID]; ok {
			attrs = append(attrs, attr)
		}
	}
	return perm, attrs, nil
}

func (s *stubStore) ListPermissions(_ context.Context, page, pageSize int) ([]rbac.Permission, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perms := []rbac.Permission{}
	for _, perm := range s.perms {
		if perm.DeletedDate == nil {
			perms = append(perms, perm)
		}
	}
	total := len(perms)
	return perms, total, (total + pageSize - 1) / pageSize, nil
}

func (s *stubStore) UpdatePermission(_ context.Context, perm *rbac.Permission, actor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[perm.ID]; !ok {
		return fmt.Errorf("%w: permission %s", rbac.ErrNotFound, perm.ID)
	}
	perm.UpdatedBy = &actor
	perm.UpdatedDate = stamp()
	s.perms[perm.ID] = *perm
	return nil
}

func (s *stubStore) SoftDeletePermission(_ context.Context, id, actor uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.perms[id]
	if !ok || perm.DeletedDate != nil {
		return fmt.Errorf("%w: permission %s", rbac.ErrNotFound, id)
	}
	perm.DeletedDate = stamp()
	perm.UpdatedBy = &actor
	s.perms[id] = perm
	return nil
}

func (s *stubStore) ReplacePermissionAttributes(_ context.Context, permissionID uuid.UUID, attributeIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[permissionID]; !ok {
		return fmt.Errorf("%w: permission %s", rbac.ErrNotFound, permissionID)
	}
	s.permAttr[permissionID] = append([]uuid.UUID{}, attributeIDs...)
	return nil
}

func (s *stubStore) CreateAttribute(_ context.Context, attr *rbac.PermissionAttribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attr.ID = uuid.New()
	attr.CreatedDate = stamp()
	attr.UpdatedDate = attr.CreatedDate
	s.attrs[attr.ID] = *attr
	return nil
}

func (s *stubStore) GetAttribute(_ context.Context, id uuid.UUID) (rbac.PermissionAttribute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attr, ok := s.attrs[id]
	if !ok {
		return rbac.PermissionAttribute{}, fmt.Errorf("%w: attribute %s", rbac.ErrNotFound, id)
	}
	return attr, nil
}

func (s *stubStore) ListAttributes(_ context.Context, page, pageSize int) ([]rbac.PermissionAttribute, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs := []rbac.PermissionAttribute{}
	for _, attr := range s.attrs {
		attrs = append(attrs, attr)
	}
	total := len(attrs)
	return attrs, total, (total + pageSize - 1) / pageSize, nil
}

func (s *stubStore) UpdateAttribute(_ context.Context, attr *rbac.PermissionAttribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attrs[attr.ID]; !ok {
		return fmt.Errorf("%w: attribute %s", rbac.ErrNotFound, attr.ID)
	}
	attr.UpdatedDate = stamp()
	s.attrs[attr.ID] = *attr
	return nil
}

func (s *stubStore) DeleteAttribute(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attrs[id]; !ok {
		return fmt.Errorf("%w: attribute %s", rbac.ErrNotFound, id)
	}
	delete(s.attrs, id)
	return nil
}

func (s *stubStore) CreateGrant(_ context.Context, kind rbac.SubjectKind, subjectID, permissionID, attributeID, actor uuid.UUID) (rbac.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.grants[kind] {
		if g.SubjectID == subjectID && g.PermissionID == permissionID && g.AttributeID == attributeID {
			return rbac.Grant{}, fmt.Errorf("%w: grant already exists", rbac.ErrConflict)
		}
	}
	grant := rbac.Grant{
		SubjectID:    subjectID,
		PermissionID: permissionID,
		AttributeID:  attributeID,
		CreatedBy:    &actor,
		CreatedDate:  stamp(),
	}
	grant.UpdatedDate = grant.CreatedDate
	s.grants[kind] = append(s.grants[kind], grant)
	return grant, nil
}

func (s *stubStore) DeleteGrant(_ context.Context, kind rbac.SubjectKind, subjectID, permissionID, attributeID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.grants[kind] {
		if g.SubjectID == subjectID && g.PermissionID == permissionID && g.AttributeID == attributeID {
			s.grants[kind] = append(s.grants[kind][:i], s.grants[kind][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: no such grant", rbac.ErrNotFound)
}

func (s *stubStore) ListGrants(_ context.Context, kind rbac.SubjectKind, subjectID uuid.UUID, page, pageSize int, all bool) ([]rbac.Grant, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grants := []rbac.Grant{}
	for _, g := range s.grants[kind] {
		if g.SubjectID == subjectID {
			grants = append(grants, g)
		}
	}
	total := len(grants)
	pages := (total + pageSize - 1) / pageSize
	if all {
		pages = 0
	}
	return grants, total, pages, nil
}
