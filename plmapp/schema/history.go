package schema

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// History actions written by the controllers.
const (
	ActionCreate           = "Create"
	ActionModify           = "Modify"
	ActionPromote          = "Promote"
	ActionDemote           = "Demote"
	ActionCancel           = "Cancel"
	ActionRevise           = "Revise"
	ActionClone            = "Clone"
	ActionPublish          = "Publish"
	ActionUnpublish        = "Unpublish"
	ActionApprove          = "Approved promotion"
	ActionDiscardApprovals = "Removed promotion approvals"
	ActionNewRole          = "New delegation"
	ActionDelRole          = "Delegation removed"
)

// State categories recorded in StateHistory rows for as-of-date queries.
const (
	StateCategoryDraft      = "draft"
	StateCategoryProposed   = "proposed"
	StateCategoryOfficial   = "official"
	StateCategoryDeprecated = "deprecated"
	StateCategoryCancelled  = "cancelled"
)

var ErrNoStateAt = errors.New("object has no recorded state at the given time")

// History is the append-only audit trail. Rows are written on every mutation
// and never updated or deleted. ObjectId refers to a PlmObject or an Ecr.
type History struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ObjectId uuid.UUID `gorm:"type:uuid;not null;index"`

	Action  string `gorm:"size:50;not null"`
	Details string

	UserId uuid.UUID `gorm:"type:uuid;not null"`
	User   *User     `gorm:"foreignKey:UserId"`

	Date time.Time `gorm:"index"`
}

// StateHistory records every state an object has held. Exactly one row is
// alive per object; it is ended when the state changes and a new row is
// created with the same instant as its ctime.
type StateHistory struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ObjectId uuid.UUID `gorm:"type:uuid;not null;index"`

	StateName     string `gorm:"size:50;not null"`
	LifecycleName string `gorm:"size:50;not null"`
	StateCategory string `gorm:"size:20;not null"`

	Ctime   time.Time
	EndTime *time.Time
}

// StateCategoryOf classifies a state by its rank relative to the lifecycle's
// official state.
func StateCategoryOf(list StateList, lifecycleType, state string) string {
	if lifecycleType == LifecycleCancelled {
		return StateCategoryCancelled
	}
	rank, err := list.Index(state)
	if err != nil {
		return StateCategoryDraft
	}
	official := list.OfficialRank()
	switch {
	case rank == official:
		return StateCategoryOfficial
	case rank > official:
		return StateCategoryDeprecated
	case rank == 0:
		return StateCategoryDraft
	default:
		return StateCategoryProposed
	}
}

// AddHistory appends one audit row for the object.
func AddHistory(txn *gorm.DB, objectId, userId uuid.UUID, action, details string) error {
	row := History{
		Id:       uuid.New(),
		ObjectId: objectId,
		Action:   action,
		Details:  details,
		UserId:   userId,
		Date:     time.Now().UTC(),
	}
	if result := txn.Create(&row); result.Error != nil {
		slog.Error("sql error creating history entry", "object_id", objectId, "action", action, "error", result.Error)
		return ErrDbAccessFailed
	}
	return nil
}

// Histories returns the audit rows of an object, most recent first.
func Histories(db *gorm.DB, objectId uuid.UUID) ([]History, error) {
	var rows []History
	result := db.Order("date desc").Find(&rows, "object_id = ?", objectId)
	if result.Error != nil {
		slog.Error("sql error listing history", "object_id", objectId, "error", result.Error)
		return nil, ErrDbAccessFailed
	}
	return rows, nil
}

// RecordStateChange ends the alive StateHistory row of the object and opens a
// new one. The shared instant keeps the rows contiguous for as-of queries.
func RecordStateChange(txn *gorm.DB, objectId uuid.UUID, list StateList, lifecycleType, state string) error {
	now := time.Now().UTC()

	result := Alive(txn.Model(&StateHistory{})).
		Where("object_id = ?", objectId).
		Update("end_time", now)
	if result.Error != nil {
		slog.Error("sql error ending state history", "object_id", objectId, "error", result.Error)
		return ErrDbAccessFailed
	}

	row := StateHistory{
		Id:            uuid.New(),
		ObjectId:      objectId,
		StateName:     state,
		LifecycleName: list.LifecycleName,
		StateCategory: StateCategoryOf(list, lifecycleType, state),
		Ctime:         now,
	}
	if result := txn.Create(&row); result.Error != nil {
		slog.Error("sql error creating state history", "object_id", objectId, "error", result.Error)
		return ErrDbAccessFailed
	}
	return nil
}

// StateAt returns the state the object held at instant *t*.
func StateAt(db *gorm.DB, objectId uuid.UUID, t time.Time) (StateHistory, error) {
	var row StateHistory
	result := AliveAt(db, &t).First(&row, "object_id = ?", objectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return row, ErrNoStateAt
		}
		slog.Error("sql error in state at", "object_id", objectId, "error", result.Error)
		return row, ErrDbAccessFailed
	}
	return row, nil
}
