package schema

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Temporal link pattern: every link row carries a creation time and a nullable
// end time. A link is alive while EndTime is null. "Replacing" a link means
// ending the alive row and creating a new one, so the full history of holders
// stays queryable with AliveAt.

var ErrLinkExists = errors.New("an alive link with the same key already exists")

// Alive filters a link query down to rows whose end_time is null.
func Alive(db *gorm.DB) *gorm.DB {
	return db.Where("end_time IS NULL")
}

// AliveAt filters a link query down to rows alive at instant *t*. A nil *t*
// behaves like Alive.
func AliveAt(db *gorm.DB, t *time.Time) *gorm.DB {
	if t == nil {
		return Alive(db)
	}
	return db.Where("ctime <= ? AND (end_time IS NULL OR end_time > ?)", *t, *t)
}

// RoleLink assigns *role* on an object to a user. The object may be a
// PlmObject or an Ecr; both are keyed by uuid so the link store does not care
// which table the object lives in.
type RoleLink struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ObjectId uuid.UUID `gorm:"type:uuid;not null;index"`
	UserId   uuid.UUID `gorm:"type:uuid;not null;index"`
	User     *User     `gorm:"foreignKey:UserId"`

	Role string `gorm:"size:50;not null"`

	Ctime   time.Time
	EndTime *time.Time
}

// ParentChildLink is a BOM edge between two parts.
type ParentChildLink struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ParentId uuid.UUID  `gorm:"type:uuid;not null;index"`
	Parent   *PlmObject `gorm:"foreignKey:ParentId"`
	ChildId  uuid.UUID  `gorm:"type:uuid;not null;index"`
	Child    *PlmObject `gorm:"foreignKey:ChildId"`

	Quantity float64 `gorm:"not null;default:1"`
	Unit     string  `gorm:"size:10;not null;default:'-'"`
	Order    int     `gorm:"column:ordering;not null;default:1"`

	Ctime   time.Time
	EndTime *time.Time
}

// DocumentPartLink attaches a document to a part.
type DocumentPartLink struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DocumentId uuid.UUID  `gorm:"type:uuid;not null;index"`
	Document   *PlmObject `gorm:"foreignKey:DocumentId"`
	PartId     uuid.UUID  `gorm:"type:uuid;not null;index"`
	Part       *PlmObject `gorm:"foreignKey:PartId"`

	Ctime   time.Time
	EndTime *time.Time
}

// RevisionLink points from an object to its direct successor revision.
type RevisionLink struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	OldId uuid.UUID  `gorm:"type:uuid;not null;index"`
	Old   *PlmObject `gorm:"foreignKey:OldId"`
	NewId uuid.UUID  `gorm:"type:uuid;not null;index"`
	New   *PlmObject `gorm:"foreignKey:NewId"`

	Ctime   time.Time
	EndTime *time.Time
}

// PromotionApproval records one signer's vote to move an object from
// CurrentState to NextState. Votes are cleared (ended) after every promotion,
// demotion or cancellation.
type PromotionApproval struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ObjectId uuid.UUID `gorm:"type:uuid;not null;index"`
	UserId   uuid.UUID `gorm:"type:uuid;not null;index"`
	User     *User     `gorm:"foreignKey:UserId"`

	CurrentState string `gorm:"size:50;not null"`
	NextState    string `gorm:"size:50;not null"`

	Ctime   time.Time
	EndTime *time.Time
}

// DelegationLink lets Delegatee act with Delegator's rights for Role.
// Delegations chain: permission checks follow the transitive closure.
type DelegationLink struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	DelegatorId uuid.UUID `gorm:"type:uuid;not null;index"`
	Delegator   *User     `gorm:"foreignKey:DelegatorId"`
	DelegateeId uuid.UUID `gorm:"type:uuid;not null;index"`
	Delegatee   *User     `gorm:"foreignKey:DelegateeId"`

	Role string `gorm:"size:50;not null"`

	Ctime   time.Time
	EndTime *time.Time
}

// EcrObjectLink attaches a PlmObject to an ECR.
type EcrObjectLink struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	EcrId    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Ecr      *Ecr       `gorm:"foreignKey:EcrId"`
	ObjectId uuid.UUID  `gorm:"type:uuid;not null;index"`
	Object   *PlmObject `gorm:"foreignKey:ObjectId"`

	Ctime   time.Time
	EndTime *time.Time
}

// CreateRoleLink inserts a new alive role link. It fails with ErrLinkExists if
// an alive link for the same (object, user, role) is present; the pre-check
// runs inside the caller's transaction since the uniqueness cannot be a plain
// constraint once ended rows share the key.
func CreateRoleLink(txn *gorm.DB, objectId, userId uuid.UUID, role string) (RoleLink, error) {
	var existing RoleLink
	result := Alive(txn).Limit(1).Find(&existing, "object_id = ? AND user_id = ? AND role = ?", objectId, userId, role)
	if result.Error != nil {
		slog.Error("sql error checking for alive role link", "object_id", objectId, "role", role, "error", result.Error)
		return RoleLink{}, ErrDbAccessFailed
	}
	if result.RowsAffected != 0 {
		return RoleLink{}, ErrLinkExists
	}

	link := RoleLink{Id: uuid.New(), ObjectId: objectId, UserId: userId, Role: role, Ctime: time.Now().UTC()}
	if result := txn.Create(&link); result.Error != nil {
		slog.Error("sql error creating role link", "object_id", objectId, "role", role, "error", result.Error)
		return RoleLink{}, ErrDbAccessFailed
	}
	return link, nil
}

// EndRoleLinks ends every alive link for (object, role). Idempotent.
func EndRoleLinks(txn *gorm.DB, objectId uuid.UUID, role string) error {
	result := Alive(txn.Model(&RoleLink{})).
		Where("object_id = ? AND role = ?", objectId, role).
		Update("end_time", time.Now().UTC())
	if result.Error != nil {
		slog.Error("sql error ending role links", "object_id", objectId, "role", role, "error", result.Error)
		return ErrDbAccessFailed
	}
	return nil
}

// EndSignLinks ends every alive signer link of the object. Idempotent.
func EndSignLinks(txn *gorm.DB, objectId uuid.UUID) error {
	result := Alive(txn.Model(&RoleLink{})).
		Where("object_id = ? AND role LIKE 'sign_%'", objectId).
		Update("end_time", time.Now().UTC())
	if result.Error != nil {
		slog.Error("sql error ending sign links", "object_id", objectId, "error", result.Error)
		return ErrDbAccessFailed
	}
	return nil
}

// ReplaceRoleLink atomically swaps the holder of (object, role): the alive
// links are ended and a single link for *userId* is created in one step.
// Callers must invoke it inside a transaction.
func ReplaceRoleLink(txn *gorm.DB, objectId, userId uuid.UUID, role string) (RoleLink, error) {
	if err := EndRoleLinks(txn, objectId, role); err != nil {
		return RoleLink{}, err
	}
	return CreateRoleLink(txn, objectId, userId, role)
}

// RoleHolders returns the users holding an alive link for (object, role).
func RoleHolders(db *gorm.DB, objectId uuid.UUID, role string) ([]uuid.UUID, error) {
	var links []RoleLink
	result := Alive(db).Find(&links, "object_id = ? AND role = ?", objectId, role)
	if result.Error != nil {
		slog.Error("sql error listing role holders", "object_id", objectId, "role", role, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	users := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		users = append(users, link.UserId)
	}
	return users, nil
}

// HasRole reports whether *userId* holds an alive link for (object, role).
func HasRole(db *gorm.DB, objectId, userId uuid.UUID, role string) (bool, error) {
	var link RoleLink
	result := Alive(db).Limit(1).Find(&link, "object_id = ? AND user_id = ? AND role = ?", objectId, userId, role)
	if result.Error != nil {
		slog.Error("sql error checking role", "object_id", objectId, "user_id", userId, "role", role, "error", result.Error)
		return false, ErrDbAccessFailed
	}
	return result.RowsAffected != 0, nil
}

// Delegators returns the transitive closure of users who delegated *role* to
// *userId*, directly or through a chain of alive delegations. The result does
// not include *userId* itself.
func Delegators(db *gorm.DB, userId uuid.UUID, role string) ([]uuid.UUID, error) {
	var links []DelegationLink
	result := Alive(db).Find(&links, "role = ?", role)
	if result.Error != nil {
		slog.Error("sql error listing delegation links", "role", role, "error", result.Error)
		return nil, ErrDbAccessFailed
	}

	// delegatee -> delegators edges; the link set is small and bounded so an
	// in-memory closure beats a recursive query here.
	edges := make(map[uuid.UUID][]uuid.UUID)
	for _, link := range links {
		edges[link.DelegateeId] = append(edges[link.DelegateeId], link.DelegatorId)
	}

	visited := map[uuid.UUID]struct{}{userId: {}}
	queue := []uuid.UUID{userId}
	delegators := []uuid.UUID{}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, delegator := range edges[curr] {
			if _, ok := visited[delegator]; ok {
				continue
			}
			visited[delegator] = struct{}{}
			delegators = append(delegators, delegator)
			queue = append(queue, delegator)
		}
	}
	return delegators, nil
}

// Approvers returns the users with an alive approval for the object's
// transition from *currentState*.
func Approvers(db *gorm.DB, objectId uuid.UUID, currentState string) ([]uuid.UUID, error) {
	var approvals []PromotionApproval
	result := Alive(db).Find(&approvals, "object_id = ? AND current_state = ?", objectId, currentState)
	if result.Error != nil {
		slog.Error("sql error listing approvals", "object_id", objectId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	users := make([]uuid.UUID, 0, len(approvals))
	for _, approval := range approvals {
		users = append(users, approval.UserId)
	}
	return users, nil
}

// EndApprovals ends every alive approval of the object. Idempotent.
func EndApprovals(txn *gorm.DB, objectId uuid.UUID) error {
	result := Alive(txn.Model(&PromotionApproval{})).
		Where("object_id = ?", objectId).
		Update("end_time", time.Now().UTC())
	if result.Error != nil {
		slog.Error("sql error ending approvals", "object_id", objectId, "error", result.Error)
		return ErrDbAccessFailed
	}
	return nil
}
