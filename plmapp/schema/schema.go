package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Object kinds. The kind selects the type-specific promotability rules and
// the reference numbering namespace.
const (
	KindPart     = "part"
	KindDocument = "document"
)

// Roles assignable through RoleLinks.
const (
	RoleOwner    = "owner"
	RoleNotified = "notified"
	RoleReader   = "reader"
	RoleSponsor  = "sponsor"

	signRolePrefix = "sign_"
	signRoleSuffix = "_level"
)

// SignRole returns the signer role bound to the zero-based state rank *level*:
// SignRole(0) == "sign_1st_level", SignRole(1) == "sign_2nd_level", ...
func SignRole(level int) string {
	n := level + 1
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%s%d%s%s", signRolePrefix, n, suffix, signRoleSuffix)
}

func IsSignRole(role string) bool {
	return len(role) > len(signRolePrefix)+len(signRoleSuffix) &&
		role[:len(signRolePrefix)] == signRolePrefix &&
		role[len(role)-len(signRoleSuffix):] == signRoleSuffix
}

func ValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleNotified, RoleReader, RoleSponsor:
		return true
	}
	return IsSignRole(role)
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	FirstName string `gorm:"size:50"`
	LastName  string `gorm:"size:50"`

	IsAdmin       bool `gorm:"not null;default:false"`
	IsContributor bool `gorm:"not null;default:false"`
	IsActive      bool `gorm:"not null;default:true"`

	// IsRestricted narrows the account to objects it holds an explicit
	// reader role on.
	IsRestricted bool `gorm:"not null;default:false"`

	// IsCompany marks the organization principal that owns official and
	// cancelled objects.
	IsCompany bool `gorm:"not null;default:false"`

	Groups []UserGroup `gorm:"constraint:OnDelete:CASCADE"`
}

func (u *User) CanCreate() bool {
	return u.IsActive && (u.IsContributor || u.IsAdmin)
}

type Group struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"unique;size:100;not null"`
	Description string

	OwnerId uuid.UUID `gorm:"type:uuid;not null"`
	Owner   *User     `gorm:"foreignKey:OwnerId"`
}

type UserGroup struct {
	UserId  uuid.UUID `gorm:"type:uuid;primaryKey"`
	GroupId uuid.UUID `gorm:"type:uuid;primaryKey"`

	User  *User  `gorm:"constraint:OnDelete:CASCADE"`
	Group *Group `gorm:"constraint:OnDelete:CASCADE"`
}

// PlmObject is a part or a document. The (type, reference, revision) triplet
// is the natural key; the row is never physically deleted, cancellation
// retires it logically instead.
type PlmObject struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Type      string `gorm:"size:50;not null;uniqueIndex:idx_type_ref_rev"`
	Reference string `gorm:"size:50;not null;uniqueIndex:idx_type_ref_rev"`
	Revision  string `gorm:"size:50;not null;uniqueIndex:idx_type_ref_rev"`

	// ReferenceNumber is the numeric suffix parsed from Reference, used by
	// the allocator to pick the next free reference.
	ReferenceNumber int `gorm:"not null;default:0;index"`

	Name        string `gorm:"size:100"`
	Description string

	CreatorId uuid.UUID `gorm:"type:uuid;not null"`
	Creator   *User     `gorm:"foreignKey:CreatorId"`

	OwnerId uuid.UUID `gorm:"type:uuid;not null"`
	Owner   *User     `gorm:"foreignKey:OwnerId"`

	GroupId uuid.UUID `gorm:"type:uuid;not null"`
	Group   *Group    `gorm:"foreignKey:GroupId"`

	LifecycleName string     `gorm:"size:50;not null"`
	Lifecycle     *Lifecycle `gorm:"foreignKey:LifecycleName"`

	StateName string `gorm:"size:50;not null"`
	State     *State `gorm:"foreignKey:StateName"`

	Published bool `gorm:"not null;default:false"`

	Ctime time.Time
	Mtime time.Time
}

func (o *PlmObject) IsPart() bool {
	return o.Type == KindPart
}

func (o *PlmObject) IsDocument() bool {
	return o.Type == KindDocument
}

type DocumentFile struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DocumentId uuid.UUID  `gorm:"type:uuid;not null;index"`
	Document   *PlmObject `gorm:"foreignKey:DocumentId"`

	Filename string `gorm:"size:255;not null"`
	Size     int64  `gorm:"not null;default:0"`

	Locked   bool       `gorm:"not null;default:false"`
	LockerId *uuid.UUID `gorm:"type:uuid"`
	Locker   *User      `gorm:"foreignKey:LockerId"`

	Deprecated bool `gorm:"not null;default:false"`

	Ctime time.Time
}

// Ecr is an engineering change request. ECRs live in their own reference
// namespace and have no revisions; their lifecycle's official state is the
// last state.
type Ecr struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Reference       string `gorm:"unique;size:50;not null"`
	ReferenceNumber int    `gorm:"not null;default:0;index"`

	Name        string `gorm:"size:100"`
	Description string

	CreatorId uuid.UUID `gorm:"type:uuid;not null"`
	Creator   *User     `gorm:"foreignKey:CreatorId"`

	OwnerId uuid.UUID `gorm:"type:uuid;not null"`
	Owner   *User     `gorm:"foreignKey:OwnerId"`

	LifecycleName string     `gorm:"size:50;not null"`
	Lifecycle     *Lifecycle `gorm:"foreignKey:LifecycleName"`

	StateName string `gorm:"size:50;not null"`
	State     *State `gorm:"foreignKey:StateName"`

	Ctime time.Time
	Mtime time.Time
}
