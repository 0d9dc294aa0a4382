package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"backoffice.id/internal/audit"
	"backoffice.id/internal/auth"
	"backoffice.id/internal/rbac"
)

type createUserRequest struct {
	UserName     string  `json:"user_name"`
	Password     string  `json:"password"`
	IsActive     bool    `json:"is_active"`
	Is2FAEnabled bool    `json:"is_2fa_enabled"`
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Address      *string `json:"address"`
	Email        *string `json:"email"`
}

type groupRoleItem struct {
	RoleID  *uuid.UUID `json:"role_id"`
	GroupID *uuid.UUID `json:"group_id"`
}

type groupRolesRequest struct {
	Items []groupRoleItem `json:"items"`
}

type roleRequest struct {
	RoleName    string  `json:"role_name"`
	Description *string `json:"description"`
	IsActive    bool    `json:"is_active"`
}

type groupRequest struct {
	GroupName   string  `json:"group_name"`
	Description *string `json:"description"`
	IsActive    bool    `json:"is_active"`
}

type permissionRequest struct {
	PermissionName string      `json:"permission_name"`
	IsUser         bool        `json:"is_user"`
	IsRole         bool        `json:"is_role"`
	IsGroup        bool        `json:"is_group"`
	Description    *string     `json:"description"`
	AttributeIDs   []uuid.UUID `json:"attribute_ids"`
}

type attributeListRequest struct {
	AttributeIDs []uuid.UUID `json:"attribute_ids"`
}

type attributeRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type grantRequest struct {
	SubjectID    uuid.UUID `json:"subject_id"`
	PermissionID uuid.UUID `json:"permission_id"`
	AttributeID  uuid.UUID `json:"attribute_id"`
}

type userView struct {
	rbac.User
	Profile rbac.UserProfile `json:"profile"`
}

type listResponse struct {
	Items      any `json:"items"`
	TotalCount int `json:"total_count"`
	PageCount  int `json:"page_count"`
}

func actorID(r *http.Request) uuid.UUID {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user.ID
	}
	return uuid.Nil
}

func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return page, pageSize
}

func pathID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "operation failed")
	}
}

// --- users ---

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, pageSize := pageParams(r)
		users, total, pages, err := a.rbac.ListUsers(r.Context(), page, pageSize, r.URL.Query().Get("search"))
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: users, TotalCount: total, PageCount: pages})
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.Password == "" {
			writeError(w, r, http.StatusBadRequest, "password is required")
			return
		}
		digest, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "password hashing failed")
			return
		}
		actor := actorID(r)
		user := rbac.User{
			UserName:     req.UserName,
			Password:     digest,
			IsActive:     req.IsActive,
			Is2FAEnabled: req.Is2FAEnabled,
		}
		if actor != uuid.Nil {
			user.CreatedBy = &actor
		}
		profile := rbac.UserProfile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Address:   req.Address,
			Email:     req.Email,
		}
		if err := a.rbac.CreateUser(r.Context(), &user, &profile); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.create", map[string]any{
			"id":        user.ID.String(),
			"user_name": user.UserName,
		})
		w.Header().Set("Location", fmt.Sprintf("%s/users/%s", a.prefix, user.ID))
		writeJSON(w, http.StatusCreated, userView{User: user, Profile: profile})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	parts := a.trimRoute(r.URL.Path, "/users/")
	if len(parts) == 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := pathID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if len(parts) == 2 && parts[1] == "group-roles" {
		a.handleUserGroupRoles(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, profile, err := a.rbac.GetUser(r.Context(), id)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, userView{User: user, Profile: profile})
	case http.MethodPut:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user := rbac.User{
			ID:           id,
			UserName:     req.UserName,
			IsActive:     req.IsActive,
			Is2FAEnabled: req.Is2FAEnabled,
		}
		// An empty password keeps the stored digest.
		if req.Password != "" {
			digest, err := auth.HashPassword(req.Password)
			if err != nil {
				writeError(w, r, http.StatusInternalServerError, "password hashing failed")
				return
			}
			user.Password = digest
		}
		profile := rbac.UserProfile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Address:   req.Address,
			Email:     req.Email,
		}
		if err := a.rbac.UpdateUser(r.Context(), &user, &profile, actorID(r)); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.update", map[string]any{"id": id.String()})
		writeJSON(w, http.StatusOK, userView{User: user, Profile: profile})
	case http.MethodDelete:
		if err := a.rbac.DeleteUser(r.Context(), id, actorID(r)); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.delete", map[string]any{"id": id.String()})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUserGroupRoles(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.rbac.ListUserGroupRoles(r.Context(), userID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPut:
		var req groupRolesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		items := make([]rbac.UserGroupRole, 0, len(req.Items))
		for _, item := range req.Items {
			items = append(items, rbac.UserGroupRole{RoleID: item.RoleID, GroupID: item.GroupID})
		}
		if err := a.rbac.ReplaceUserGroupRoles(r.Context(), userID, items); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.user.group_roles.replace", map[string]any{
			"user_id": userID.String(),
			"count":   len(items),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

// --- roles ---

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, pageSize := pageParams(r)
		roles, total, pages, err := a.rbac.ListRoles(r.Context(), page, pageSize)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: roles, TotalCount: total, PageCount: pages})
	case http.MethodPost:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		actor := actorID(r)
		role := rbac.Role{RoleName: req.RoleName, Description: req.Description, IsActive: req.IsActive}
		if actor != uuid.Nil {
			role.CreatedBy = &actor
		}
		if err := a.rbac.CreateRole(r.Context(), &role); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{
			"id":        role.ID.String(),
			"role_name": role.RoleName,
		})
		w.Header().Set("Location", fmt.Sprintf("%s/roles/%s", a.prefix, role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	parts := a.trimRoute(r.URL.Path, "/roles/")
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := pathID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		role, err := a.rbac.GetRole(r.Context(), id)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		var req roleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role := rbac.Role{ID: id, RoleName: req.RoleName, Description: req.Description, IsActive: req.IsActive}
		if err := a.rbac.UpdateRole(r.Context(), &role, actorID(r)); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.update", map[string]any{"id": id.String()})
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if err := a.rbac.DeleteRole(r.Context(), id, actorID(r)); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.delete", map[string]any{"id": id.String()})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// --- groups ---

func (a *API) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, pageSize := pageParams(r)
		groups, total, pages, err := a.rbac.ListGroups(r.Context(), page, pageSize)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: groups, TotalCount: total, PageCount: pages})
	case http.MethodPost:
		var req groupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		actor := actorID(r)
		group := rbac.Group{GroupName: req.GroupName, Description: req.Description, IsActive: req.IsActive}
		if actor != uuid.Nil {
			group.CreatedBy = &actor
		}
		if err := a.rbac.CreateGroup(r.Context(), &group); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.group.create", map[string]any{
			"id":         group.ID.String(),
			"group_name": group.GroupName,
		})
		w.Header().Set("Location", fmt.Sprintf("%s/groups/%s", a.prefix, group.ID))
		writeJSON(w, http.StatusCreated, group)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleGroupResource(w http.ResponseWriter, r *http.Request) {
	parts := a.trimRoute(r.URL.Path, "/groups/")
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := pathID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		group, err := a.rbac.GetGroup(r.Context(), id)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, group)
	case http.MethodPut:
		var req groupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		group := rbac.Group{ID: id, GroupName: req.GroupName, Description: req.Description, IsActive: req.IsActive}
		if err := a.rbac.UpdateGroup(r.Context(), &group, actorID(r)); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.group.update", map[string]any{"id": id.String()})
		writeJSON(w, http.StatusOK, group)
	case http.MethodDelete:
		if err := a.rbac.DeleteGroup(r.Context(), id, actorID(r)); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.group.delete", map[string]any{"id": id.String()})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// --- permissions ---

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, pageSize := pageParams(r)
		perms, total, pages, err := a.rbac.ListPermissions(r.Context(), page, pageSize)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: perms, TotalCount: total, PageCount: pages})
	case http.MethodPost:
		var req permissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		actor := actorID(r)
		perm := rbac.Permission{
			PermissionName: req.PermissionName,
			IsUser:         req.IsUser,
			IsRole:         req.IsRole,
			IsGroup:        req.IsGroup,
			Description:    req.Description,
		}
		if actor != uuid.Nil {
			perm.CreatedBy = &actor
		}
		if err := a.rbac.CreatePermission(r.Context(), &perm, req.AttributeIDs); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.create", map[string]any{
			"id":              perm.ID.String(),
			"permission_name": perm.PermissionName,
		})
		w.Header().Set("Location", fmt.Sprintf("%s/permissions/%s", a.prefix, perm.ID))
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	parts := a.trimRoute(r.URL.Path, "/permissions/")
	if len(parts) == 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := pathID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if len(parts) == 2 && parts[1] == "attributes" {
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req attributeListRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.ReplacePermissionAttributes(r.Context(), id, req.AttributeIDs); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.attributes.replace", map[string]any{
			"permission_id": id.String(),
			"count":         len(req.AttributeIDs),
		})
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		perm, attrs, err := a.rbac.GetPermission(r.Context(), id)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"permission": perm,
			"attributes": attrs,
		})
	case http.MethodPut:
		var req permissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm := rbac.Permission{
			ID:             id,
			PermissionName: req.PermissionName,
			IsUser:         req.IsUser,
			IsRole:         req.IsRole,
			IsGroup:        req.IsGroup,
			Description:    req.Description,
		}
		if err := a.rbac.UpdatePermission(r.Context(), &perm, actorID(r)); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.update", map[string]any{"id": id.String()})
		writeJSON(w, http.StatusOK, perm)
	case http.MethodDelete:
		if err := a.rbac.DeletePermission(r.Context(), id, actorID(r)); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.delete", map[string]any{"id": id.String()})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// --- permission attributes ---

func (a *API) handleAttributes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, pageSize := pageParams(r)
		attrs, total, pages, err := a.rbac.ListAttributes(r.Context(), page, pageSize)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: attrs, TotalCount: total, PageCount: pages})
	case http.MethodPost:
		var req attributeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		attr := rbac.PermissionAttribute{Name: req.Name, Description: req.Description}
		if err := a.rbac.CreateAttribute(r.Context(), &attr); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.attribute.create", map[string]any{
			"id":   attr.ID.String(),
			"name": attr.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("%s/permission-attributes/%s", a.prefix, attr.ID))
		writeJSON(w, http.StatusCreated, attr)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAttributeResource(w http.ResponseWriter, r *http.Request) {
	parts := a.trimRoute(r.URL.Path, "/permission-attributes/")
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id, err := pathID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		attr, err := a.rbac.GetAttribute(r.Context(), id)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, attr)
	case http.MethodPut:
		var req attributeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		attr := rbac.PermissionAttribute{ID: id, Name: req.Name, Description: req.Description}
		if err := a.rbac.UpdateAttribute(r.Context(), &attr); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.attribute.update", map[string]any{"id": id.String()})
		writeJSON(w, http.StatusOK, attr)
	case http.MethodDelete:
		if err := a.rbac.DeleteAttribute(r.Context(), id); err != nil {
			handleRBACError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.attribute.delete", map[string]any{"id": id.String()})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// --- grants ---

// grantHandler serves one grant relation: GET lists a subject's grants,
// POST creates a triple, DELETE removes it.
func (a *API) grantHandler(kind rbac.SubjectKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			subjectID, err := uuid.Parse(q.Get("subject_id"))
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "subject_id is required")
				return
			}
			page, pageSize := pageParams(r)
			all := strings.EqualFold(q.Get("all"), "true")
			grants, total, pages, err := a.rbac.ListGrants(r.Context(), kind, subjectID, page, pageSize, all)
			if err != nil {
				handleRBACError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, listResponse{Items: grants, TotalCount: total, PageCount: pages})
		case http.MethodPost:
			var req grantRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			grant, err := a.rbac.CreateGrant(r.Context(), kind, req.SubjectID, req.PermissionID, req.AttributeID, actorID(r))
			if err != nil {
				handleRBACError(w, r, err)
				return
			}
			_ = audit.LogEvent(r.Context(), "rbac.grant.create", map[string]any{
				"kind":          string(kind),
				"subject_id":    grant.SubjectID.String(),
				"permission_id": grant.PermissionID.String(),
				"attribute_id":  grant.AttributeID.String(),
			})
			writeJSON(w, http.StatusCreated, grant)
		case http.MethodDelete:
			var req grantRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			if err := a.rbac.DeleteGrant(r.Context(), kind, req.SubjectID, req.PermissionID, req.AttributeID); err != nil {
				handleRBACError(w, r, err)
				return
			}
			_ = audit.LogEvent(r.Context(), "rbac.grant.delete", map[string]any{
				"kind":          string(kind),
				"subject_id":    req.SubjectID.String(),
				"permission_id": req.PermissionID.String(),
				"attribute_id":  req.AttributeID.String(),
			})
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
		}
	}
}
