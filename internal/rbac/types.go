package rbac

import (
	"time"

	"github.com/google/uuid"
)

// SubjectKind discriminates the three subject relations a grant can belong to.
type SubjectKind string

const (
	SubjectUser  SubjectKind = "user"
	SubjectRole  SubjectKind = "role"
	SubjectGroup SubjectKind = "group"
)

// Valid reports whether the kind names a known subject relation.
func (k SubjectKind) Valid() bool {
	switch k {
	case SubjectUser, SubjectRole, SubjectGroup:
		return true
	}
	return false
}

// User is an identity record. Password holds the PHC-encoded argon2id digest
// and is never serialized.
type User struct {
	ID           uuid.UUID  `json:"id"`
	UserName     string     `json:"user_name"`
	Password     string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	Is2FAEnabled bool       `json:"is_2fa_enabled"`
	CreatedBy    *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy    *uuid.UUID `json:"updated_by,omitempty"`
	CreatedDate  *time.Time `json:"created_date,omitempty"`
	UpdatedDate  *time.Time `json:"updated_date,omitempty"`
	DeletedDate  *time.Time `json:"deleted_date,omitempty"`
}

// UserProfile holds the non-auth attributes of a user, 1:1 on the same id.
type UserProfile struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	FirstName *string   `json:"first_name,omitempty"`
	LastName  *string   `json:"last_name,omitempty"`
	Address   *string   `json:"address,omitempty"`
	Email     *string   `json:"email,omitempty"`
}

// Role is a named, soft-deletable grant subject.
type Role struct {
	ID          uuid.UUID  `json:"id"`
	RoleName    string     `json:"role_name"`
	Description *string    `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy   *uuid.UUID `json:"updated_by,omitempty"`
	CreatedDate *time.Time `json:"created_date,omitempty"`
	UpdatedDate *time.Time `json:"updated_date,omitempty"`
	DeletedDate *time.Time `json:"deleted_date,omitempty"`
}

// Group is a named, soft-deletable grant subject, independent of Role.
type Group struct {
	ID          uuid.UUID  `json:"id"`
	GroupName   string     `json:"group_name"`
	Description *string    `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy   *uuid.UUID `json:"updated_by,omitempty"`
	CreatedDate *time.Time `json:"created_date,omitempty"`
	UpdatedDate *time.Time `json:"updated_date,omitempty"`
	DeletedDate *time.Time `json:"deleted_date,omitempty"`
}

// Permission is a named capability. The applicability flags record which
// subject kinds may hold it.
type Permission struct {
	ID             uuid.UUID  `json:"id"`
	PermissionName string     `json:"permission_name"`
	IsUser         bool       `json:"is_user"`
	IsRole         bool       `json:"is_role"`
	IsGroup        bool       `json:"is_group"`
	Description    *string    `json:"description,omitempty"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy      *uuid.UUID `json:"updated_by,omitempty"`
	CreatedDate    *time.Time `json:"created_date,omitempty"`
	UpdatedDate    *time.Time `json:"updated_date,omitempty"`
	DeletedDate    *time.Time `json:"deleted_date,omitempty"`
}

// PermissionAttribute is a scoping dimension attached to permissions.
type PermissionAttribute struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	CreatedDate *time.Time `json:"created_date,omitempty"`
	UpdatedDate *time.Time `json:"updated_date,omitempty"`
}

// Grant records that a subject holds a permission scoped by an attribute.
// The (SubjectID, PermissionID, AttributeID) triple is unique per relation.
type Grant struct {
	SubjectID    uuid.UUID  `json:"subject_id"`
	PermissionID uuid.UUID  `json:"permission_id"`
	AttributeID  uuid.UUID  `json:"attribute_id"`
	CreatedBy    *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy    *uuid.UUID `json:"updated_by,omitempty"`
	CreatedDate  *time.Time `json:"created_date,omitempty"`
	UpdatedDate  *time.Time `json:"updated_date,omitempty"`
}

// UserGroupRole assigns a user a (role, group) pair. A user's full set is
// replaced atomically on update.
type UserGroupRole struct {
	ID      uuid.UUID  `json:"id"`
	UserID  uuid.UUID  `json:"user_id"`
	RoleID  *uuid.UUID `json:"role_id,omitempty"`
	GroupID *uuid.UUID `json:"group_id,omitempty"`
}
