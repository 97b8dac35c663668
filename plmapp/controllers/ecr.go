package controllers

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"openplm/plmapp/references"
	"openplm/plmapp/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EcrController drives an engineering change request through the ecr
// lifecycle. ECRs reuse the same role, approval and history stores as plm
// objects; only the object row lives in its own table.
type EcrController struct {
	db   *gorm.DB
	user schema.User
	ecr  schema.Ecr
}

func NewEcrController(ecrId uuid.UUID, user schema.User, db *gorm.DB) (*EcrController, error) {
	ecr, err := schema.GetEcr(ecrId, db)
	if err != nil {
		return nil, err
	}
	return &EcrController{db: db, user: user, ecr: ecr}, nil
}

func (c *EcrController) Ecr() schema.Ecr {
	return c.ecr
}

// CreateEcr allocates a reference and creates the change request in the first
// state of the ecr lifecycle. The creator owns it and signs the first level,
// the creator's sponsor signs the later ones.
func CreateEcr(name, description string, user schema.User, db *gorm.DB) (*EcrController, error) {
	if err := checkContributor(user); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
	}

	lifecycle, err := schema.GetEcrLifecycle(db)
	if err != nil {
		return nil, err
	}
	list, err := schema.StatesList(lifecycle.Name, db)
	if err != nil {
		return nil, err
	}

	var ctrl *EcrController
	for attempt := 0; attempt < allocRetries; attempt++ {
		reference, err := references.NewReference(db, references.NamespaceEcr, attempt)
		if err != nil {
			return nil, err
		}
		ctrl, err = createEcr(name, description, reference, lifecycle.Name, list, user, db)
		if err == nil {
			return ctrl, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: could not allocate an ECR reference", ErrConflict)
}

func createEcr(name, description, reference, lifecycle string, list schema.StateList, user schema.User, db *gorm.DB) (*EcrController, error) {
	now := time.Now().UTC()
	ecr := schema.Ecr{
		Id:              uuid.New(),
		Reference:       reference,
		ReferenceNumber: references.ParseReferenceNumber(reference, references.NamespaceEcr),
		Name:            name,
		Description:     description,
		CreatorId:       user.Id,
		OwnerId:         user.Id,
		LifecycleName:   lifecycle,
		StateName:       list.First(),
		Ctime:           now,
		Mtime:           now,
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var duplicate schema.Ecr
		result := txn.Limit(1).Find(&duplicate, "reference = ?", reference)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate ecr", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("%w: ecr %v already exists", ErrConflict, reference)
		}

		if result := txn.Create(&ecr); result.Error != nil {
			slog.Error("sql error creating ecr", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		if _, err := schema.CreateRoleLink(txn, ecr.Id, user.Id, schema.RoleOwner); err != nil {
			return err
		}
		sponsor, err := findEcrSponsor(txn, user)
		if err != nil {
			return err
		}
		if _, err := schema.CreateRoleLink(txn, ecr.Id, user.Id, schema.SignRole(0)); err != nil {
			return err
		}
		for level := 1; level < len(list.Names)-1; level++ {
			if _, err := schema.CreateRoleLink(txn, ecr.Id, sponsor, schema.SignRole(level)); err != nil {
				return err
			}
		}

		if err := schema.AddHistory(txn, ecr.Id, user.Id, schema.ActionCreate, reference); err != nil {
			return err
		}
		return schema.RecordStateChange(txn, ecr.Id, list, schema.LifecycleEcr, ecr.StateName)
	})
	if err != nil {
		return nil, err
	}
	return &EcrController{db: db, user: user, ecr: ecr}, nil
}

// findEcrSponsor resolves the creator's sponsor for a change request. ECRs
// are not group scoped, so the only fallback is a company sponsor.
func findEcrSponsor(txn *gorm.DB, user schema.User) (uuid.UUID, error) {
	var link schema.DelegationLink
	result := schema.Alive(txn).Limit(1).Find(&link, "delegatee_id = ? AND role = ?", user.Id, schema.RoleSponsor)
	if result.Error != nil {
		slog.Error("sql error finding sponsor", "user_id", user.Id, "error", result.Error)
		return uuid.Nil, schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return user.Id, nil
	}
	sponsor, err := schema.GetUser(link.DelegatorId, txn)
	if err != nil {
		return uuid.Nil, err
	}
	if sponsor.IsCompany {
		return user.Id, nil
	}
	return sponsor.Id, nil
}

func (c *EcrController) stateList() (schema.StateList, error) {
	return schema.StatesList(c.ecr.LifecycleName, c.db)
}

func (c *EcrController) rank() (int, error) {
	list, err := c.stateList()
	if err != nil {
		return 0, err
	}
	return list.Index(c.ecr.StateName)
}

func (c *EcrController) IsCancelled() bool {
	return c.ecr.LifecycleName == schema.CancelledLifecycleName
}

// CurrentSignerRole returns the signer role gating the next transition.
func (c *EcrController) CurrentSignerRole() (string, error) {
	rank, err := c.rank()
	if err != nil {
		return "", err
	}
	return schema.SignRole(rank), nil
}

func (c *EcrController) HasPermission(role string) (bool, error) {
	return hasPermission(c.db, c.ecr.Id, c.ecr.OwnerId, c.user, role)
}

func (c *EcrController) checkPermission(role string) error {
	ok, err := c.HasPermission(role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %v does not have the %v permission", ErrPermission, c.user.Username, role)
	}
	return nil
}

// PromotionErrors mirrors the plm object rules minus the part and document
// specifics: an ECR is promotable whenever it is not cancelled and not in its
// last state.
func (c *EcrController) PromotionErrors() ([]string, error) {
	list, err := c.stateList()
	if err != nil {
		return nil, err
	}
	if c.IsCancelled() {
		return []string{"The object is cancelled."}, nil
	}
	if c.ecr.StateName == list.Last() {
		return []string{"The object is in its last state."}, nil
	}
	return nil, nil
}

func (c *EcrController) IsPromotable() (bool, []string, error) {
	reasons, err := c.PromotionErrors()
	if err != nil {
		return false, nil, err
	}
	return len(reasons) == 0, reasons, nil
}

func (c *EcrController) RepresentedApprovers() ([]uuid.UUID, error) {
	role, err := c.CurrentSignerRole()
	if err != nil {
		return nil, err
	}
	return representedApprovers(c.db, c.ecr.Id, c.ecr.StateName, role, c.user)
}

// ApprovePromotion records the acting user's vote and promotes the ECR once
// every current signer has approved.
func (c *EcrController) ApprovePromotion() error {
	promotable, reasons, err := c.IsPromotable()
	if err != nil {
		return err
	}
	if !promotable {
		return fmt.Errorf("%w: %v", ErrPromotion, reasons)
	}

	list, err := c.stateList()
	if err != nil {
		return err
	}
	role, err := c.CurrentSignerRole()
	if err != nil {
		return err
	}
	if err := c.checkPermission(role); err != nil {
		return err
	}
	nextState, err := list.NextState(c.ecr.StateName)
	if err != nil {
		return err
	}

	promoted := false
	err = c.db.Transaction(func(txn *gorm.DB) error {
		// The row write serializes concurrent approval transactions, see
		// PlmObjectController.ApprovePromotion.
		result := txn.Model(&schema.Ecr{}).
			Where("id = ? AND state_name = ?", c.ecr.Id, c.ecr.StateName).
			Update("mtime", time.Now().UTC())
		if result.Error != nil {
			slog.Error("sql error touching ecr for approval", "ecr_id", c.ecr.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: ecr state changed concurrently", ErrConflict)
		}

		represented, err := representedApprovers(txn, c.ecr.Id, c.ecr.StateName, role, c.user)
		if err != nil {
			return err
		}
		if len(represented) == 0 {
			return fmt.Errorf("%w: no represented approvers for %v", ErrPromotion, c.user.Username)
		}

		now := time.Now().UTC()
		usernames := make([]string, 0, len(represented))
		for _, userId := range represented {
			approval := schema.PromotionApproval{
				Id:           uuid.New(),
				ObjectId:     c.ecr.Id,
				UserId:       userId,
				CurrentState: c.ecr.StateName,
				NextState:    nextState,
				Ctime:        now,
			}
			if result := txn.Create(&approval); result.Error != nil {
				slog.Error("sql error creating promotion approval", "ecr_id", c.ecr.Id, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			user, err := schema.GetUser(userId, txn)
			if err != nil {
				return err
			}
			usernames = append(usernames, user.Username)
		}

		done, err := allSignersApproved(txn, c.ecr.Id, c.ecr.StateName, role)
		if err != nil {
			return err
		}
		if done {
			promoted = true
			return c.promoteInTxn(txn, list)
		}

		details := fmt.Sprintf("represented users: %v, from state %v to state %v",
			usernames, c.ecr.StateName, nextState)
		return schema.AddHistory(txn, c.ecr.Id, c.user.Id, schema.ActionApprove, details)
	})
	if err != nil {
		return err
	}
	if promoted {
		return c.reload()
	}
	return nil
}

// Promote advances the ECR one state.
func (c *EcrController) Promote() error {
	promotable, reasons, err := c.IsPromotable()
	if err != nil {
		return err
	}
	if !promotable {
		return fmt.Errorf("%w: %v", ErrPromotion, reasons)
	}
	list, err := c.stateList()
	if err != nil {
		return err
	}
	role, err := c.CurrentSignerRole()
	if err != nil {
		return err
	}
	if err := c.checkPermission(role); err != nil {
		return err
	}

	err = c.db.Transaction(func(txn *gorm.DB) error {
		return c.promoteInTxn(txn, list)
	})
	if err != nil {
		return err
	}
	return c.reload()
}

func (c *EcrController) promoteInTxn(txn *gorm.DB, list schema.StateList) error {
	oldState := c.ecr.StateName
	newState, err := list.NextState(oldState)
	if err != nil {
		return err
	}

	result := txn.Model(&schema.Ecr{}).
		Where("id = ? AND state_name = ?", c.ecr.Id, oldState).
		Updates(map[string]interface{}{"state_name": newState, "mtime": time.Now().UTC()})
	if result.Error != nil {
		slog.Error("sql error promoting ecr", "ecr_id", c.ecr.Id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: ecr state changed concurrently", ErrConflict)
	}

	details := fmt.Sprintf("change state from %v to %v", oldState, newState)
	if err := schema.AddHistory(txn, c.ecr.Id, c.user.Id, schema.ActionPromote, details); err != nil {
		return err
	}
	c.ecr.StateName = newState
	if err := schema.RecordStateChange(txn, c.ecr.Id, list, schema.LifecycleEcr, newState); err != nil {
		return err
	}
	return schema.EndApprovals(txn, c.ecr.Id)
}

// Demote reverts a non-draft ECR one state. The caller must hold the signer
// role of the target state.
func (c *EcrController) Demote() error {
	if c.IsCancelled() {
		return fmt.Errorf("%w: the ecr is cancelled", ErrPromotion)
	}
	list, err := c.stateList()
	if err != nil {
		return err
	}
	oldState := c.ecr.StateName
	newState, err := list.PreviousState(oldState)
	if err != nil {
		return err
	}
	newRank, err := list.Index(newState)
	if err != nil {
		return err
	}
	if err := c.checkPermission(schema.SignRole(newRank)); err != nil {
		return err
	}

	err = c.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&schema.Ecr{}).
			Where("id = ? AND state_name = ?", c.ecr.Id, oldState).
			Updates(map[string]interface{}{"state_name": newState, "mtime": time.Now().UTC()})
		if result.Error != nil {
			slog.Error("sql error demoting ecr", "ecr_id", c.ecr.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: ecr state changed concurrently", ErrConflict)
		}

		if err := schema.EndApprovals(txn, c.ecr.Id); err != nil {
			return err
		}
		details := fmt.Sprintf("change state from %v to %v", oldState, newState)
		if err := schema.AddHistory(txn, c.ecr.Id, c.user.Id, schema.ActionDemote, details); err != nil {
			return err
		}
		return schema.RecordStateChange(txn, c.ecr.Id, list, schema.LifecycleEcr, newState)
	})
	if err != nil {
		return err
	}
	return c.reload()
}

// DiscardApprovals clears the recorded votes without changing state.
func (c *EcrController) DiscardApprovals() error {
	role, err := c.CurrentSignerRole()
	if err != nil {
		return err
	}
	if err := c.checkPermission(role); err != nil {
		return err
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		if err := schema.EndApprovals(txn, c.ecr.Id); err != nil {
			return err
		}
		details := fmt.Sprintf("current state stays %v", c.ecr.StateName)
		return schema.AddHistory(txn, c.ecr.Id, c.user.Id, schema.ActionDiscardApprovals, details)
	})
}

// Cancel moves the ECR to the cancelled lifecycle. The company takes
// ownership, signer links, pending approvals and object attachments are
// ended.
// CheckCancel verifies the ECR may be cancelled: still in its first state
// and cancelled by its owner.
func (c *EcrController) CheckCancel() error {
	if c.IsCancelled() {
		return fmt.Errorf("%w: the ecr is already cancelled", ErrValidation)
	}
	rank, err := c.rank()
	if err != nil {
		return err
	}
	if rank != 0 {
		return fmt.Errorf("%w: the ecr is not draft", ErrPermission)
	}
	if err := c.checkPermission(schema.RoleOwner); err != nil {
		return fmt.Errorf("%w: you are not allowed to cancel this ecr", ErrPermission)
	}
	return nil
}

func (c *EcrController) Cancel() error {
	if err := c.CheckCancel(); err != nil {
		return err
	}

	cancelledState, err := schema.GetCancelledState(c.db)
	if err != nil {
		return err
	}
	cancelled, err := schema.GetCancelledLifecycle(c.db)
	if err != nil {
		return err
	}
	list, err := schema.StatesList(cancelled.Name, c.db)
	if err != nil {
		return err
	}
	company, err := schema.GetCompanyUser(c.db)
	if err != nil {
		return err
	}

	err = c.db.Transaction(func(txn *gorm.DB) error {
		now := time.Now().UTC()
		result := txn.Model(&schema.Ecr{}).
			Where("id = ?", c.ecr.Id).
			Updates(map[string]interface{}{
				"lifecycle_name": cancelled.Name,
				"state_name":     cancelledState,
				"owner_id":       company.Id,
				"mtime":          now,
			})
		if result.Error != nil {
			slog.Error("sql error cancelling ecr", "ecr_id", c.ecr.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		if _, err := schema.ReplaceRoleLink(txn, c.ecr.Id, company.Id, schema.RoleOwner); err != nil {
			return err
		}
		if err := schema.EndSignLinks(txn, c.ecr.Id); err != nil {
			return err
		}
		if err := schema.EndApprovals(txn, c.ecr.Id); err != nil {
			return err
		}

		result = schema.Alive(txn.Model(&schema.EcrObjectLink{})).
			Where("ecr_id = ?", c.ecr.Id).
			Update("end_time", now)
		if result.Error != nil {
			slog.Error("sql error ending ecr attachments", "ecr_id", c.ecr.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		details := fmt.Sprintf("%v cancelled", c.ecr.Reference)
		if err := schema.AddHistory(txn, c.ecr.Id, c.user.Id, schema.ActionCancel, details); err != nil {
			return err
		}
		return schema.RecordStateChange(txn, c.ecr.Id, list, schema.LifecycleCancelled, cancelledState)
	})
	if err != nil {
		return err
	}
	return c.reload()
}

// Attach links a plm object to the ECR.
func (c *EcrController) Attach(objectId uuid.UUID) error {
	if err := checkContributor(c.user); err != nil {
		return err
	}
	if c.IsCancelled() {
		return fmt.Errorf("%w: the ecr is cancelled", ErrValidation)
	}
	object, err := schema.GetObject(objectId, c.db)
	if err != nil {
		return err
	}
	if object.LifecycleName == schema.CancelledLifecycleName {
		return fmt.Errorf("%w: %v is cancelled", ErrValidation, object.Reference)
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.EcrObjectLink
		result := schema.Alive(txn).Limit(1).Find(&existing, "ecr_id = ? AND object_id = ?", c.ecr.Id, objectId)
		if result.Error != nil {
			slog.Error("sql error checking ecr attachment", "ecr_id", c.ecr.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("%w: %v is already attached", ErrConflict, object.Reference)
		}

		link := schema.EcrObjectLink{
			Id:       uuid.New(),
			EcrId:    c.ecr.Id,
			ObjectId: objectId,
			Ctime:    time.Now().UTC(),
		}
		if result := txn.Create(&link); result.Error != nil {
			slog.Error("sql error creating ecr attachment", "ecr_id", c.ecr.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		details := fmt.Sprintf("object : %v (%v//%v//%v) attached",
			object.Name, object.Type, object.Reference, object.Revision)
		return schema.AddHistory(txn, c.ecr.Id, c.user.Id, schema.ActionModify, details)
	})
}

// Detach ends the alive link to the plm object.
func (c *EcrController) Detach(objectId uuid.UUID) error {
	if err := checkContributor(c.user); err != nil {
		return err
	}
	object, err := schema.GetObject(objectId, c.db)
	if err != nil {
		return err
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		result := schema.Alive(txn.Model(&schema.EcrObjectLink{})).
			Where("ecr_id = ? AND object_id = ?", c.ecr.Id, objectId).
			Update("end_time", time.Now().UTC())
		if result.Error != nil {
			slog.Error("sql error ending ecr attachment", "ecr_id", c.ecr.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: object is not attached", schema.ErrObjectNotFound)
		}

		details := fmt.Sprintf("object : %v (%v//%v//%v) detached",
			object.Name, object.Type, object.Reference, object.Revision)
		return schema.AddHistory(txn, c.ecr.Id, c.user.Id, schema.ActionModify, details)
	})
}

// Attached returns the alive object links of the ECR.
func (c *EcrController) Attached() ([]schema.EcrObjectLink, error) {
	var links []schema.EcrObjectLink
	result := schema.Alive(c.db).Preload("Object").Find(&links, "ecr_id = ?", c.ecr.Id)
	if result.Error != nil {
		slog.Error("sql error listing ecr attachments", "ecr_id", c.ecr.Id, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	return links, nil
}

// Histories returns the audit trail of the ECR, newest first.
func (c *EcrController) Histories() ([]schema.History, error) {
	return schema.Histories(c.db, c.ecr.Id)
}

func (c *EcrController) reload() error {
	ecr, err := schema.GetEcr(c.ecr.Id, c.db)
	if err != nil {
		return err
	}
	c.ecr = ecr
	return nil
}
