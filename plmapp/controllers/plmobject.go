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

// PlmObjectController wraps a part or document and the acting user. All
// mutations go through its methods; each method body runs in one transaction
// so a crash mid-call never leaves a partial state change committed.
type PlmObjectController struct {
	db     *gorm.DB
	user   schema.User
	object schema.PlmObject
}

func NewPlmObjectController(objectId uuid.UUID, user schema.User, db *gorm.DB) (*PlmObjectController, error) {
	object, err := schema.GetObject(objectId, db)
	if err != nil {
		return nil, err
	}
	return &PlmObjectController{db: db, user: user, object: object}, nil
}

// Object returns the wrapped row as of the last mutation.
func (c *PlmObjectController) Object() schema.PlmObject {
	return c.object
}

type CreateParams struct {
	Type        string
	Reference   string // allocated when empty
	Revision    string
	Name        string
	Description string
	GroupId     uuid.UUID
	Lifecycle   string // default lifecycle when empty
}

const allocRetries = 10

// Create builds a new part or document and returns its controller. The
// creator becomes owner and first-level signer; the remaining sign levels go
// to the creator's sponsor so that only the sponsor can push the object
// beyond its first promotion.
func Create(params CreateParams, user schema.User, db *gorm.DB) (*PlmObjectController, error) {
	if err := checkContributor(user); err != nil {
		return nil, err
	}
	if params.Type != schema.KindPart && params.Type != schema.KindDocument {
		return nil, fmt.Errorf("%w: unknown type %v", ErrValidation, params.Type)
	}
	if params.Revision == "" {
		return nil, fmt.Errorf("%w: empty value not permitted for revision", ErrValidation)
	}
	if err := references.ValidateRevision(params.Revision); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if params.Reference != "" {
		if err := references.ValidateReference(params.Reference); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	if ok, err := inGroup(db, user, params.GroupId); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %v does not belong to the group", ErrPermission, user.Username)
	}

	lifecycle := params.Lifecycle
	if lifecycle == "" {
		lc, err := schema.GetDefaultLifecycle(db)
		if err != nil {
			return nil, err
		}
		lifecycle = lc.Name
	}
	list, err := schema.StatesList(lifecycle, db)
	if err != nil {
		return nil, err
	}

	// The allocator suggestion can race a concurrent creation; the unique
	// index on (type, reference, revision) is the backstop and we retry with
	// an incremented start.
	for attempt := 0; attempt < allocRetries; attempt++ {
		reference := params.Reference
		if reference == "" {
			reference, err = references.NewReference(db, params.Type, attempt)
			if err != nil {
				return nil, err
			}
		}

		ctrl, err := createObject(params, reference, lifecycle, list, user, db)
		if err == nil {
			return ctrl, nil
		}
		if errors.Is(err, ErrConflict) && params.Reference == "" {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: could not allocate a free reference", ErrConflict)
}

func createObject(params CreateParams, reference, lifecycle string, list schema.StateList, user schema.User, db *gorm.DB) (*PlmObjectController, error) {
	now := time.Now().UTC()
	object := schema.PlmObject{
		Id:              uuid.New(),
		Type:            params.Type,
		Reference:       reference,
		Revision:        params.Revision,
		ReferenceNumber: references.ParseReferenceNumber(reference, params.Type),
		Name:            params.Name,
		Description:     params.Description,
		CreatorId:       user.Id,
		OwnerId:         user.Id,
		GroupId:         params.GroupId,
		LifecycleName:   lifecycle,
		StateName:       list.First(),
		Ctime:           now,
		Mtime:           now,
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var duplicate schema.PlmObject
		result := txn.Limit(1).Find(&duplicate, "type = ? AND reference = ? AND revision = ?",
			object.Type, object.Reference, object.Revision)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate object", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("%w: object %v//%v//%v already exists",
				ErrConflict, object.Type, object.Reference, object.Revision)
		}

		if result := txn.Create(&object); result.Error != nil {
			slog.Error("sql error creating object", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		if _, err := schema.CreateRoleLink(txn, object.Id, user.Id, schema.RoleOwner); err != nil {
			return err
		}

		sponsor, err := findSponsor(txn, user, object.GroupId)
		if err != nil {
			return err
		}
		// The creator can sign the first promotion, only the sponsor the
		// later ones.
		if _, err := schema.CreateRoleLink(txn, object.Id, user.Id, schema.SignRole(0)); err != nil {
			return err
		}
		for level := 1; level < len(list.Names)-1; level++ {
			if _, err := schema.CreateRoleLink(txn, object.Id, sponsor, schema.SignRole(level)); err != nil {
				return err
			}
		}

		details := fmt.Sprintf("%v // %v // %v", object.Type, object.Reference, object.Revision)
		if err := schema.AddHistory(txn, object.Id, user.Id, schema.ActionCreate, details); err != nil {
			return err
		}
		return schema.RecordStateChange(txn, object.Id, list, schema.LifecycleStandard, object.StateName)
	})
	if err != nil {
		return nil, err
	}

	return &PlmObjectController{db: db, user: user, object: object}, nil
}

// findSponsor resolves the user's sponsor: the delegator of an alive sponsor
// delegation, falling back to the user when there is none, the sponsor is
// the company, or the sponsor is outside the object's group.
func findSponsor(txn *gorm.DB, user schema.User, groupId uuid.UUID) (uuid.UUID, error) {
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
	if ok, err := inGroup(txn, sponsor, groupId); err != nil {
		return uuid.Nil, err
	} else if !ok {
		return user.Id, nil
	}
	return sponsor.Id, nil
}

func checkContributor(user schema.User) error {
	if !user.IsActive {
		return fmt.Errorf("%w: %v's account is inactive", ErrPermission, user.Username)
	}
	if !user.IsContributor && !user.IsAdmin {
		return fmt.Errorf("%w: %v is not a contributor", ErrPermission, user.Username)
	}
	return nil
}

func inGroup(db *gorm.DB, user schema.User, groupId uuid.UUID) (bool, error) {
	if user.IsCompany {
		return true, nil
	}
	var member schema.UserGroup
	result := db.Limit(1).Find(&member, "user_id = ? AND group_id = ?", user.Id, groupId)
	if result.Error != nil {
		slog.Error("sql error checking group membership", "user_id", user.Id, "group_id", groupId, "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}
	return result.RowsAffected != 0, nil
}

func (c *PlmObjectController) stateList() (schema.StateList, error) {
	return schema.StatesList(c.object.LifecycleName, c.db)
}

func (c *PlmObjectController) rank() (int, error) {
	list, err := c.stateList()
	if err != nil {
		return 0, err
	}
	return list.Index(c.object.StateName)
}

// Lifecycle predicates. Cancellation is a lifecycle assignment, not a state
// within the normal lifecycle, so IsCancelled shadows all the others.

func (c *PlmObjectController) IsCancelled() bool {
	return c.object.LifecycleName == schema.CancelledLifecycleName
}

func (c *PlmObjectController) IsDraft() (bool, error) {
	if c.IsCancelled() {
		return false, nil
	}
	rank, err := c.rank()
	if err != nil {
		return false, err
	}
	return rank == 0, nil
}

func (c *PlmObjectController) IsOfficial() (bool, error) {
	if c.IsCancelled() {
		return false, nil
	}
	list, err := c.stateList()
	if err != nil {
		return false, err
	}
	return c.object.StateName == list.OfficialState, nil
}

func (c *PlmObjectController) IsDeprecated() (bool, error) {
	if c.IsCancelled() {
		return false, nil
	}
	list, err := c.stateList()
	if err != nil {
		return false, err
	}
	rank, err := list.Index(c.object.StateName)
	if err != nil {
		return false, err
	}
	return rank > list.OfficialRank(), nil
}

func (c *PlmObjectController) IsProposed() (bool, error) {
	if c.IsCancelled() {
		return false, nil
	}
	list, err := c.stateList()
	if err != nil {
		return false, err
	}
	rank, err := list.Index(c.object.StateName)
	if err != nil {
		return false, err
	}
	return rank > 0 && rank < list.OfficialRank(), nil
}

// IsEditable reports whether the object may still be modified: draft state
// with no recorded promotion approvals.
func (c *PlmObjectController) IsEditable() (bool, error) {
	draft, err := c.IsDraft()
	if err != nil || !draft {
		return false, err
	}
	approvers, err := schema.Approvers(c.db, c.object.Id, c.object.StateName)
	if err != nil {
		return false, err
	}
	return len(approvers) == 0, nil
}

// HasPermission reports whether the acting user holds *role* on the object,
// directly or through a delegation chain.
func (c *PlmObjectController) HasPermission(role string) (bool, error) {
	return hasPermission(c.db, c.object.Id, c.object.OwnerId, c.user, role)
}

func hasPermission(db *gorm.DB, objectId, ownerId uuid.UUID, user schema.User, role string) (bool, error) {
	if !user.IsActive {
		return false, nil
	}
	if role == schema.RoleOwner && ownerId == user.Id {
		return true, nil
	}
	ok, err := schema.HasRole(db, objectId, user.Id, role)
	if err != nil || ok {
		return ok, err
	}

	delegators, err := schema.Delegators(db, user.Id, role)
	if err != nil {
		return false, err
	}
	for _, delegator := range delegators {
		ok, err := schema.HasRole(db, objectId, delegator, role)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (c *PlmObjectController) checkPermission(role string) error {
	ok, err := c.HasPermission(role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: action not allowed for %v", ErrPermission, c.user.Username)
	}
	return nil
}

func (c *PlmObjectController) checkEditable() error {
	editable, err := c.IsEditable()
	if err != nil {
		return err
	}
	if !editable {
		return fmt.Errorf("%w: the object is not editable", ErrPermission)
	}
	return nil
}

// Readable reports whether *user* may see the object. Admins see
// everything, restricted accounts only what they hold an explicit reader
// role on, and everyone else sees published objects plus the objects they
// own, read or share a group with.
func Readable(db *gorm.DB, object schema.PlmObject, user schema.User) (bool, error) {
	if !user.IsActive {
		return false, nil
	}
	if user.IsAdmin {
		return true, nil
	}
	if user.IsRestricted {
		return schema.HasRole(db, object.Id, user.Id, schema.RoleReader)
	}
	if object.Published || object.OwnerId == user.Id {
		return true, nil
	}
	if ok, err := inGroup(db, user, object.GroupId); err != nil || ok {
		return ok, err
	}
	return hasPermission(db, object.Id, object.OwnerId, user, schema.RoleReader)
}

func (c *PlmObjectController) IsReadable() (bool, error) {
	return Readable(c.db, c.object, c.user)
}

func (c *PlmObjectController) CheckReadable() error {
	ok, err := c.IsReadable()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %v cannot read this object", ErrPermission, c.user.Username)
	}
	return nil
}

// CurrentSignerRole returns the signer role bound to the object's current
// state rank.
func (c *PlmObjectController) CurrentSignerRole() (string, error) {
	rank, err := c.rank()
	if err != nil {
		return "", err
	}
	return schema.SignRole(rank), nil
}

// CurrentSigners returns the users who must approve the current promotion
// step.
func (c *PlmObjectController) CurrentSigners() ([]uuid.UUID, error) {
	role, err := c.CurrentSignerRole()
	if err != nil {
		return nil, err
	}
	return schema.RoleHolders(c.db, c.object.Id, role)
}

// RepresentedApprovers returns the signers the acting user may vote for: the
// user plus everyone who delegated the current signer role to them, minus
// signers who already approved, restricted to the current signer set.
func (c *PlmObjectController) RepresentedApprovers() ([]uuid.UUID, error) {
	role, err := c.CurrentSignerRole()
	if err != nil {
		return nil, err
	}
	return representedApprovers(c.db, c.object.Id, c.object.StateName, role, c.user)
}

func representedApprovers(db *gorm.DB, objectId uuid.UUID, state, role string, user schema.User) ([]uuid.UUID, error) {
	delegators, err := schema.Delegators(db, user.Id, role)
	if err != nil {
		return nil, err
	}
	candidates := map[uuid.UUID]struct{}{user.Id: {}}
	for _, delegator := range delegators {
		candidates[delegator] = struct{}{}
	}

	approvers, err := schema.Approvers(db, objectId, state)
	if err != nil {
		return nil, err
	}
	for _, approver := range approvers {
		delete(candidates, approver)
	}

	signers, err := schema.RoleHolders(db, objectId, role)
	if err != nil {
		return nil, err
	}
	represented := []uuid.UUID{}
	for _, signer := range signers {
		if _, ok := candidates[signer]; ok {
			represented = append(represented, signer)
		}
	}
	return represented, nil
}

func (c *PlmObjectController) CanApprovePromotion() (bool, error) {
	represented, err := c.RepresentedApprovers()
	if err != nil {
		return false, err
	}
	return len(represented) > 0, nil
}

// IsLastPromoter reports whether the acting user's approval would complete
// the quorum and trigger the actual promotion.
func (c *PlmObjectController) IsLastPromoter() (bool, error) {
	role, err := c.CurrentSignerRole()
	if err != nil {
		return false, err
	}
	isSigner, err := c.HasPermission(role)
	if err != nil || !isSigner {
		return false, err
	}
	represented, err := c.RepresentedApprovers()
	if err != nil {
		return false, err
	}
	if len(represented) == 0 {
		return false, nil
	}

	accounted := map[uuid.UUID]struct{}{}
	approvers, err := schema.Approvers(c.db, c.object.Id, c.object.StateName)
	if err != nil {
		return false, err
	}
	for _, user := range approvers {
		accounted[user] = struct{}{}
	}
	for _, user := range represented {
		accounted[user] = struct{}{}
	}

	signers, err := c.CurrentSigners()
	if err != nil {
		return false, err
	}
	for _, signer := range signers {
		if _, ok := accounted[signer]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// PromotionErrors returns the human-readable reasons blocking a promotion,
// empty when the object is promotable.
func (c *PlmObjectController) PromotionErrors() ([]string, error) {
	list, err := c.stateList()
	if err != nil {
		return nil, err
	}
	if c.IsCancelled() {
		return []string{"The object is cancelled."}, nil
	}
	if c.object.StateName == list.Last() {
		return []string{"The object is in its last state."}, nil
	}

	switch c.object.Type {
	case schema.KindPart:
		return partPromotionErrors(c.db, &c.object, list)
	case schema.KindDocument:
		return documentPromotionErrors(c.db, &c.object)
	}
	return nil, nil
}

// IsPromotable reports whether the object may advance one state, with the
// blocking reasons when it may not.
func (c *PlmObjectController) IsPromotable() (bool, []string, error) {
	reasons, err := c.PromotionErrors()
	if err != nil {
		return false, nil, err
	}
	return len(reasons) == 0, reasons, nil
}

// ApprovePromotion records the acting user's vote (and the votes of every
// signer they represent) for the current transition. When the votes now
// cover all current signers the object is actually promoted; otherwise only
// the votes and a history entry are written.
func (c *PlmObjectController) ApprovePromotion() error {
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
	nextState, err := list.NextState(c.object.StateName)
	if err != nil {
		return err
	}

	promoted := false
	err = c.db.Transaction(func(txn *gorm.DB) error {
		// The row write serializes concurrent approval transactions: the
		// later one blocks here until the earlier commits, then counts its
		// votes. A state mismatch means someone promoted in between.
		result := txn.Model(&schema.PlmObject{}).
			Where("id = ? AND state_name = ?", c.object.Id, c.object.StateName).
			Update("mtime", time.Now().UTC())
		if result.Error != nil {
			slog.Error("sql error touching object for approval", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: object state changed concurrently", ErrConflict)
		}

		represented, err := representedApprovers(txn, c.object.Id, c.object.StateName, role, c.user)
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
				ObjectId:     c.object.Id,
				UserId:       userId,
				CurrentState: c.object.StateName,
				NextState:    nextState,
				Ctime:        now,
			}
			if result := txn.Create(&approval); result.Error != nil {
				slog.Error("sql error creating promotion approval", "object_id", c.object.Id, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			user, err := schema.GetUser(userId, txn)
			if err != nil {
				return err
			}
			usernames = append(usernames, user.Username)
		}

		done, err := allSignersApproved(txn, c.object.Id, c.object.StateName, role)
		if err != nil {
			return err
		}
		if done {
			promoted = true
			return c.promoteInTxn(txn, list)
		}

		details := fmt.Sprintf("represented users: %v, from state %v to state %v",
			usernames, c.object.StateName, nextState)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionApprove, details)
	})
	if err != nil {
		return err
	}

	if promoted {
		if err := c.reload(); err != nil {
			return err
		}
		notifyWatchers(c.db, c.object, schema.ActionPromote)
	}
	return nil
}

func allSignersApproved(db *gorm.DB, objectId uuid.UUID, state, role string) (bool, error) {
	signers, err := schema.RoleHolders(db, objectId, role)
	if err != nil {
		return false, err
	}
	approvers, err := schema.Approvers(db, objectId, state)
	if err != nil {
		return false, err
	}
	approved := map[uuid.UUID]struct{}{}
	for _, user := range approvers {
		approved[user] = struct{}{}
	}
	for _, signer := range signers {
		if _, ok := approved[signer]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Promote advances the object one state. The caller must hold the current
// signer role. Promoting past the last state fails with
// schema.ErrStateBoundary instead of silently doing nothing.
func (c *PlmObjectController) Promote() error {
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
	if err := c.reload(); err != nil {
		return err
	}
	notifyWatchers(c.db, c.object, schema.ActionPromote)
	return nil
}

// promoteInTxn performs the state advance. The state update is a
// compare-and-set on the current state so concurrent promotions of the same
// object cannot both win.
func (c *PlmObjectController) promoteInTxn(txn *gorm.DB, list schema.StateList) error {
	oldState := c.object.StateName
	newState, err := list.NextState(oldState)
	if err != nil {
		return err
	}

	result := txn.Model(&schema.PlmObject{}).
		Where("id = ? AND state_name = ?", c.object.Id, oldState).
		Updates(map[string]interface{}{"state_name": newState, "mtime": time.Now().UTC()})
	if result.Error != nil {
		slog.Error("sql error promoting object", "object_id", c.object.Id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: object state changed concurrently", ErrConflict)
	}

	details := fmt.Sprintf("change state from %v to %v", oldState, newState)
	if err := schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionPromote, details); err != nil {
		return err
	}

	c.object.StateName = newState
	if newState == list.OfficialState {
		if err := c.officialize(txn); err != nil {
			return err
		}
	}
	if err := schema.RecordStateChange(txn, c.object.Id, list, schema.LifecycleStandard, newState); err != nil {
		return err
	}
	// the approval ledger is per transition
	return schema.EndApprovals(txn, c.object.Id)
}

// officialize runs the side effects of reaching the official state: the
// company principal takes ownership and older revisions are retired
// (cancelled while editable, deprecated while official).
func (c *PlmObjectController) officialize(txn *gorm.DB) error {
	company, err := schema.GetCompanyUser(txn)
	if err != nil {
		return err
	}
	if err := c.setOwnerInTxn(txn, company); err != nil {
		return err
	}

	previous, err := previousRevisions(txn, c.object)
	if err != nil {
		return err
	}
	for _, rev := range previous {
		ctrl := &PlmObjectController{db: txn, user: c.user, object: rev}
		if ctrl.IsCancelled() {
			continue
		}
		editable, err := ctrl.IsEditable()
		if err != nil {
			return err
		}
		official, err := ctrl.IsOfficial()
		if err != nil {
			return err
		}
		if editable {
			if err := ctrl.cancelInTxn(txn); err != nil {
				return err
			}
		} else if official {
			if err := ctrl.deprecateInTxn(txn); err != nil {
				return err
			}
		}
	}
	return nil
}

// deprecateInTxn moves the object to its last state with the company as
// owner. Used when a newer revision becomes official.
func (c *PlmObjectController) deprecateInTxn(txn *gorm.DB) error {
	list, err := schema.StatesList(c.object.LifecycleName, txn)
	if err != nil {
		return err
	}
	company, err := schema.GetCompanyUser(txn)
	if err != nil {
		return err
	}

	result := txn.Model(&schema.PlmObject{}).
		Where("id = ?", c.object.Id).
		Updates(map[string]interface{}{"state_name": list.Last(), "mtime": time.Now().UTC()})
	if result.Error != nil {
		slog.Error("sql error deprecating object", "object_id", c.object.Id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	c.object.StateName = list.Last()

	if err := c.setOwnerInTxn(txn, company); err != nil {
		return err
	}
	if err := schema.EndApprovals(txn, c.object.Id); err != nil {
		return err
	}
	return schema.RecordStateChange(txn, c.object.Id, list, schema.LifecycleStandard, list.Last())
}

// Demote reverts a proposed object one state. The caller must hold the
// signer role of the target state. Demoting a draft fails with ErrPromotion;
// the first state itself is a boundary surfaced as schema.ErrStateBoundary.
func (c *PlmObjectController) Demote() error {
	proposed, err := c.IsProposed()
	if err != nil {
		return err
	}
	if !proposed {
		return fmt.Errorf("%w: the object is not proposed", ErrPromotion)
	}

	list, err := c.stateList()
	if err != nil {
		return err
	}
	oldState := c.object.StateName
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
		result := txn.Model(&schema.PlmObject{}).
			Where("id = ? AND state_name = ?", c.object.Id, oldState).
			Updates(map[string]interface{}{"state_name": newState, "mtime": time.Now().UTC()})
		if result.Error != nil {
			slog.Error("sql error demoting object", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: object state changed concurrently", ErrConflict)
		}

		if err := schema.EndApprovals(txn, c.object.Id); err != nil {
			return err
		}
		details := fmt.Sprintf("change state from %v to %v", oldState, newState)
		if err := schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionDemote, details); err != nil {
			return err
		}
		return schema.RecordStateChange(txn, c.object.Id, list, schema.LifecycleStandard, newState)
	})
	if err != nil {
		return err
	}
	if err := c.reload(); err != nil {
		return err
	}
	notifyWatchers(c.db, c.object, schema.ActionDemote)
	return nil
}

// DiscardApprovals clears the recorded votes without changing state.
func (c *PlmObjectController) DiscardApprovals() error {
	role, err := c.CurrentSignerRole()
	if err != nil {
		return err
	}
	if err := c.checkPermission(role); err != nil {
		return err
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		if err := schema.EndApprovals(txn, c.object.Id); err != nil {
			return err
		}
		details := fmt.Sprintf("current state stays %v", c.object.StateName)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionDiscardApprovals, details)
	})
}

// CheckCancel verifies the object may be cancelled: a draft, owned by the
// acting user, with no other revision.
func (c *PlmObjectController) CheckCancel() error {
	draft, err := c.IsDraft()
	if err != nil {
		return err
	}
	if !draft {
		return fmt.Errorf("%w: the object is not draft", ErrPermission)
	}
	if err := c.checkPermission(schema.RoleOwner); err != nil {
		return fmt.Errorf("%w: you are not allowed to cancel this object", ErrPermission)
	}
	revisions, err := allRevisions(c.db, c.object)
	if err != nil {
		return err
	}
	if len(revisions) != 1 {
		return fmt.Errorf("%w: the object has other revisions", ErrPermission)
	}
	return nil
}

// Cancel retires the object: cancelled lifecycle and state, company owner,
// no alive signer links, no recorded approvals. Callers enforce CheckCancel
// first; officialization cancels older editable revisions directly.
func (c *PlmObjectController) Cancel() error {
	err := c.db.Transaction(func(txn *gorm.DB) error {
		return c.cancelInTxn(txn)
	})
	if err != nil {
		return err
	}
	if err := c.reload(); err != nil {
		return err
	}
	notifyWatchers(c.db, c.object, schema.ActionCancel)
	return nil
}

func (c *PlmObjectController) cancelInTxn(txn *gorm.DB) error {
	cancelled, err := schema.GetCancelledLifecycle(txn)
	if err != nil {
		return err
	}
	state, err := schema.GetCancelledState(txn)
	if err != nil {
		return err
	}
	company, err := schema.GetCompanyUser(txn)
	if err != nil {
		return err
	}

	result := txn.Model(&schema.PlmObject{}).
		Where("id = ?", c.object.Id).
		Updates(map[string]interface{}{
			"lifecycle_name": cancelled.Name,
			"state_name":     state,
			"mtime":          time.Now().UTC(),
		})
	if result.Error != nil {
		slog.Error("sql error cancelling object", "object_id", c.object.Id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}

	if err := c.setOwnerInTxn(txn, company); err != nil {
		return err
	}
	if err := schema.EndSignLinks(txn, c.object.Id); err != nil {
		return err
	}
	if err := schema.EndApprovals(txn, c.object.Id); err != nil {
		return err
	}

	c.object.LifecycleName = cancelled.Name
	c.object.StateName = state

	details := fmt.Sprintf("%v (%v//%v//%v) cancelled",
		c.object.Name, c.object.Type, c.object.Reference, c.object.Revision)
	if err := schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionCancel, details); err != nil {
		return err
	}

	list, err := schema.StatesList(cancelled.Name, txn)
	if err != nil {
		return err
	}
	return schema.RecordStateChange(txn, c.object.Id, list, schema.LifecycleCancelled, state)
}

// setOwnerInTxn swaps the owner column and the owner role link atomically.
func (c *PlmObjectController) setOwnerInTxn(txn *gorm.DB, owner schema.User) error {
	result := txn.Model(&schema.PlmObject{}).
		Where("id = ?", c.object.Id).
		Update("owner_id", owner.Id)
	if result.Error != nil {
		slog.Error("sql error setting owner", "object_id", c.object.Id, "error", result.Error)
		return schema.ErrDbAccessFailed
	}
	if _, err := schema.ReplaceRoleLink(txn, c.object.Id, owner.Id, schema.RoleOwner); err != nil {
		return err
	}
	c.object.OwnerId = owner.Id
	return nil
}

// SetOwner transfers ownership. Giving an editable object to the company is
// refused since the company only owns official and cancelled objects.
func (c *PlmObjectController) SetOwner(newOwner schema.User) error {
	if err := c.checkPermission(schema.RoleOwner); err != nil {
		return err
	}
	if err := checkContributor(newOwner); err != nil {
		return err
	}
	if newOwner.IsCompany {
		editable, err := c.IsEditable()
		if err != nil {
			return err
		}
		if editable {
			return fmt.Errorf("%w: the company cannot own an editable object", ErrValidation)
		}
	}

	err := c.db.Transaction(func(txn *gorm.DB) error {
		if err := c.setOwnerInTxn(txn, newOwner); err != nil {
			return err
		}
		details := fmt.Sprintf("user: %v is the new owner", newOwner.Username)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
	return err
}

// AddNotified subscribes *user* to change notifications for the object. Users
// may subscribe themselves; subscribing someone else requires ownership.
func (c *PlmObjectController) AddNotified(user schema.User) error {
	if user.Id != c.user.Id {
		if err := c.checkPermission(schema.RoleOwner); err != nil {
			return err
		}
	}
	if !user.IsActive {
		return fmt.Errorf("%w: %v's account is inactive", ErrPermission, user.Username)
	}
	if ok, err := inGroup(c.db, user, c.object.GroupId); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %v does not belong to the object's group", ErrPermission, user.Username)
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		if _, err := schema.CreateRoleLink(txn, c.object.Id, user.Id, schema.RoleNotified); err != nil {
			if errors.Is(err, schema.ErrLinkExists) {
				return fmt.Errorf("%w: %v is already notified", ErrConflict, user.Username)
			}
			return err
		}
		details := fmt.Sprintf("user: %v to be notified", user.Username)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

func (c *PlmObjectController) RemoveNotified(user schema.User) error {
	if user.Id != c.user.Id {
		if err := c.checkPermission(schema.RoleOwner); err != nil {
			return err
		}
	}
	return c.db.Transaction(func(txn *gorm.DB) error {
		result := schema.Alive(txn.Model(&schema.RoleLink{})).
			Where("object_id = ? AND user_id = ? AND role = ?", c.object.Id, user.Id, schema.RoleNotified).
			Update("end_time", time.Now().UTC())
		if result.Error != nil {
			slog.Error("sql error removing notified", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %v is not notified", schema.ErrObjectNotFound, user.Username)
		}
		details := fmt.Sprintf("user: %v is no longer notified", user.Username)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

// AddReader grants read access on an official object to a non-contributor.
func (c *PlmObjectController) AddReader(user schema.User) error {
	official, err := c.IsOfficial()
	if err != nil {
		return err
	}
	if !official {
		return fmt.Errorf("%w: the object is not official", ErrValidation)
	}
	if !user.IsActive {
		return fmt.Errorf("%w: %v's account is inactive", ErrPermission, user.Username)
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		if _, err := schema.CreateRoleLink(txn, c.object.Id, user.Id, schema.RoleReader); err != nil {
			if errors.Is(err, schema.ErrLinkExists) {
				return fmt.Errorf("%w: %v is already a reader", ErrConflict, user.Username)
			}
			return err
		}
		details := fmt.Sprintf("user: %v is a reader", user.Username)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

// checkEditSigner verifies the acting user may change the signer set: they
// must own the object and no promotion approval may be recorded yet.
func (c *PlmObjectController) checkEditSigner() error {
	if err := c.checkPermission(schema.RoleOwner); err != nil {
		return err
	}
	approvers, err := schema.Approvers(c.db, c.object.Id, c.object.StateName)
	if err != nil {
		return err
	}
	if len(approvers) > 0 {
		return fmt.Errorf("%w: a signer has already approved the promotion", ErrPromotion)
	}
	return nil
}

// SetSigner makes *user* a signer for the given zero-based level, replacing
// nobody: several signers may hold the same level and all must approve.
func (c *PlmObjectController) SetSigner(user schema.User, level int) error {
	list, err := c.stateList()
	if err != nil {
		return err
	}
	if level < 0 || level >= len(list.Names)-1 {
		return fmt.Errorf("%w: invalid sign level %v", ErrValidation, level)
	}
	if err := c.checkEditSigner(); err != nil {
		return err
	}
	if !user.IsActive {
		return fmt.Errorf("%w: %v's account is inactive", ErrPermission, user.Username)
	}
	if ok, err := inGroup(c.db, user, c.object.GroupId); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %v does not belong to the object's group", ErrPermission, user.Username)
	}

	role := schema.SignRole(level)
	return c.db.Transaction(func(txn *gorm.DB) error {
		if _, err := schema.CreateRoleLink(txn, c.object.Id, user.Id, role); err != nil {
			if errors.Is(err, schema.ErrLinkExists) {
				return fmt.Errorf("%w: %v is already a %v signer", ErrConflict, user.Username, role)
			}
			return err
		}
		details := fmt.Sprintf("user: %v's signature is necessary", user.Username)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

// RemoveSigner drops *user* from the given sign level. The level must keep
// at least one signer.
func (c *PlmObjectController) RemoveSigner(user schema.User, level int) error {
	if err := c.checkEditSigner(); err != nil {
		return err
	}
	role := schema.SignRole(level)
	signers, err := schema.RoleHolders(c.db, c.object.Id, role)
	if err != nil {
		return err
	}
	if len(signers) <= 1 {
		return fmt.Errorf("%w: the last %v signer cannot be removed", ErrValidation, role)
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		result := schema.Alive(txn.Model(&schema.RoleLink{})).
			Where("object_id = ? AND user_id = ? AND role = ?", c.object.Id, user.Id, role).
			Update("end_time", time.Now().UTC())
		if result.Error != nil {
			slog.Error("sql error removing signer", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %v is not a %v signer", schema.ErrObjectNotFound, user.Username, role)
		}
		details := fmt.Sprintf("user: %v's signature is no longer necessary", user.Username)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

// Publish makes an official object world readable.
func (c *PlmObjectController) Publish() error {
	official, err := c.IsOfficial()
	if err != nil {
		return err
	}
	if !official {
		return fmt.Errorf("%w: the object is not official", ErrPermission)
	}
	if ok, err := inGroup(c.db, c.user, c.object.GroupId); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %v does not belong to the object's group", ErrPermission, c.user.Username)
	}
	if c.object.Published {
		return fmt.Errorf("%w: object already published", ErrValidation)
	}

	err = c.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&schema.PlmObject{}).Where("id = ?", c.object.Id).Update("published", true)
		if result.Error != nil {
			slog.Error("sql error publishing object", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		details := fmt.Sprintf("%v (%v//%v//%v) published by %v",
			c.object.Name, c.object.Type, c.object.Reference, c.object.Revision, c.user.Username)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionPublish, details)
	})
	if err != nil {
		return err
	}
	c.object.Published = true
	return nil
}

func (c *PlmObjectController) Unpublish() error {
	if ok, err := inGroup(c.db, c.user, c.object.GroupId); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %v does not belong to the object's group", ErrPermission, c.user.Username)
	}
	if !c.object.Published {
		return fmt.Errorf("%w: object is not published", ErrValidation)
	}

	err := c.db.Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&schema.PlmObject{}).Where("id = ?", c.object.Id).Update("published", false)
		if result.Error != nil {
			slog.Error("sql error unpublishing object", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		details := fmt.Sprintf("%v (%v//%v//%v) unpublished by %v",
			c.object.Name, c.object.Type, c.object.Reference, c.object.Revision, c.user.Username)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionUnpublish, details)
	})
	if err != nil {
		return err
	}
	c.object.Published = false
	return nil
}

// IsRevisable reports whether Revise may be called: not cancelled, not
// deprecated, and no alive successor revision yet.
func (c *PlmObjectController) IsRevisable() (bool, error) {
	if c.IsCancelled() {
		return false, nil
	}
	deprecated, err := c.IsDeprecated()
	if err != nil || deprecated {
		return false, err
	}

	var link schema.RevisionLink
	result := schema.Alive(c.db).Limit(1).Find(&link, "old_id = ?", c.object.Id)
	if result.Error != nil {
		slog.Error("sql error checking revision link", "object_id", c.object.Id, "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}
	return result.RowsAffected == 0, nil
}

// SuggestedNextRevision returns the structural successor of the object's
// revision token, empty when the token cannot be incremented.
func (c *PlmObjectController) SuggestedNextRevision() string {
	return references.NextRevision(c.object.Revision)
}

// Revise duplicates the object under *newRevision*: same type, reference and
// attributes, default state, fresh role links, plus a revision link from the
// old object to the new one.
func (c *PlmObjectController) Revise(newRevision string) (*PlmObjectController, error) {
	if err := c.checkRevise(newRevision); err != nil {
		return nil, err
	}

	var newCtrl *PlmObjectController
	err := c.db.Transaction(func(txn *gorm.DB) error {
		var err error
		newCtrl, err = c.reviseInTxn(txn, newRevision)
		return err
	})
	if err != nil {
		return nil, err
	}
	newCtrl.db = c.db
	return newCtrl, nil
}

func (c *PlmObjectController) checkRevise(newRevision string) error {
	if newRevision == "" || newRevision == c.object.Revision {
		return fmt.Errorf("%w: bad value for new revision", ErrRevision)
	}
	if err := references.ValidateRevision(newRevision); err != nil {
		return fmt.Errorf("%w: %v", ErrRevision, err)
	}
	revisable, err := c.IsRevisable()
	if err != nil {
		return err
	}
	if !revisable {
		return fmt.Errorf("%w: %v//%v//%v cannot be revised",
			ErrRevision, c.object.Type, c.object.Reference, c.object.Revision)
	}
	return nil
}

// reviseInTxn creates the successor inside the caller's transaction, so the
// part and document controllers can carry links forward atomically with the
// new revision. The returned controller is bound to txn; callers outside a
// transaction must rebind it to the root handle.
func (c *PlmObjectController) reviseInTxn(txn *gorm.DB, newRevision string) (*PlmObjectController, error) {
	list, err := schema.StatesList(c.object.LifecycleName, txn)
	if err != nil {
		return nil, err
	}

	newCtrl, err := createObject(CreateParams{
		Type:        c.object.Type,
		Revision:    newRevision,
		Name:        c.object.Name,
		Description: c.object.Description,
		GroupId:     c.object.GroupId,
		Lifecycle:   c.object.LifecycleName,
	}, c.object.Reference, c.object.LifecycleName, list, c.user, txn)
	if err != nil {
		return nil, err
	}

	link := schema.RevisionLink{
		Id:    uuid.New(),
		OldId: c.object.Id,
		NewId: newCtrl.object.Id,
		Ctime: time.Now().UTC(),
	}
	if result := txn.Create(&link); result.Error != nil {
		slog.Error("sql error creating revision link", "object_id", c.object.Id, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	details := fmt.Sprintf("old : %v, new : %v", c.object.Revision, newRevision)
	if err := schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionRevise, details); err != nil {
		return nil, err
	}
	return newCtrl, nil
}

// CloneOptions selects which links the clone copies from the source. Nil
// slices mean "all alive links"; empty non-nil slices mean "none".
type CloneOptions struct {
	ChildLinks []uuid.UUID
	Documents  []uuid.UUID
}

// Clone creates an independent draft copy under a fresh reference at
// revision "a", carrying over the selected BOM children and part-document
// attachments. No revision link is created; the acting user owns the clone.
func (c *PlmObjectController) Clone(name string, opts CloneOptions) (*PlmObjectController, error) {
	if err := checkContributor(c.user); err != nil {
		return nil, err
	}
	if name == "" {
		name = c.object.Name
	}

	var ctrl *PlmObjectController
	err := c.db.Transaction(func(txn *gorm.DB) error {
		var err error
		ctrl, err = Create(CreateParams{
			Type:        c.object.Type,
			Revision:    "a",
			Name:        name,
			Description: c.object.Description,
			GroupId:     c.object.GroupId,
			Lifecycle:   c.object.LifecycleName,
		}, c.user, txn)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if c.object.IsPart() {
			children, err := childLinks(txn, c.object.Id)
			if err != nil {
				return err
			}
			for _, link := range children {
				if opts.ChildLinks != nil && !containsId(opts.ChildLinks, link.Id) {
					continue
				}
				copied := schema.ParentChildLink{
					Id:       uuid.New(),
					ParentId: ctrl.object.Id,
					ChildId:  link.ChildId,
					Quantity: link.Quantity,
					Unit:     link.Unit,
					Order:    link.Order,
					Ctime:    now,
				}
				if result := txn.Create(&copied); result.Error != nil {
					slog.Error("sql error copying BOM edge", "object_id", c.object.Id, "error", result.Error)
					return schema.ErrDbAccessFailed
				}
			}

			attachments, err := partAttachments(txn, c.object.Id)
			if err != nil {
				return err
			}
			for _, link := range attachments {
				if opts.Documents != nil && !containsId(opts.Documents, link.Id) {
					continue
				}
				copied := schema.DocumentPartLink{
					Id:         uuid.New(),
					DocumentId: link.DocumentId,
					PartId:     ctrl.object.Id,
					Ctime:      now,
				}
				if result := txn.Create(&copied); result.Error != nil {
					slog.Error("sql error copying attachment", "object_id", c.object.Id, "error", result.Error)
					return schema.ErrDbAccessFailed
				}
			}
		}
		if c.object.IsDocument() {
			attachments, err := documentAttachments(txn, c.object.Id)
			if err != nil {
				return err
			}
			for _, link := range attachments {
				if opts.Documents != nil && !containsId(opts.Documents, link.Id) {
					continue
				}
				copied := schema.DocumentPartLink{
					Id:         uuid.New(),
					DocumentId: ctrl.object.Id,
					PartId:     link.PartId,
					Ctime:      now,
				}
				if result := txn.Create(&copied); result.Error != nil {
					slog.Error("sql error copying attachment", "object_id", c.object.Id, "error", result.Error)
					return schema.ErrDbAccessFailed
				}
			}
		}

		details := fmt.Sprintf("cloned from %v//%v//%v", c.object.Type, c.object.Reference, c.object.Revision)
		return schema.AddHistory(txn, ctrl.object.Id, c.user.Id, schema.ActionClone, details)
	})
	if err != nil {
		return nil, err
	}
	ctrl.db = c.db
	return ctrl, nil
}

// Delegate grants the acting user's rights for *role* to *delegatee*.
func (c *PlmObjectController) Delegate(delegatee schema.User, role string) error {
	if !schema.ValidRole(role) {
		return fmt.Errorf("%w: invalid role %v", ErrValidation, role)
	}
	if err := checkContributor(delegatee); err != nil {
		return err
	}
	if delegatee.Id == c.user.Id {
		return fmt.Errorf("%w: cannot delegate to yourself", ErrValidation)
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.DelegationLink
		result := schema.Alive(txn).Limit(1).
			Find(&existing, "delegator_id = ? AND delegatee_id = ? AND role = ?", c.user.Id, delegatee.Id, role)
		if result.Error != nil {
			slog.Error("sql error checking delegation", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("%w: delegation already exists", ErrConflict)
		}

		link := schema.DelegationLink{
			Id:          uuid.New(),
			DelegatorId: c.user.Id,
			DelegateeId: delegatee.Id,
			Role:        role,
			Ctime:       time.Now().UTC(),
		}
		if result := txn.Create(&link); result.Error != nil {
			slog.Error("sql error creating delegation", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		details := fmt.Sprintf("user: %v may act as %v for role %v", delegatee.Username, c.user.Username, role)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionNewRole, details)
	})
}

// RemoveDelegation ends the acting user's delegation of *role* to
// *delegatee*.
func (c *PlmObjectController) RemoveDelegation(delegatee schema.User, role string) error {
	return c.db.Transaction(func(txn *gorm.DB) error {
		result := schema.Alive(txn.Model(&schema.DelegationLink{})).
			Where("delegator_id = ? AND delegatee_id = ? AND role = ?", c.user.Id, delegatee.Id, role).
			Update("end_time", time.Now().UTC())
		if result.Error != nil {
			slog.Error("sql error ending delegation", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: no such delegation", schema.ErrObjectNotFound)
		}
		details := fmt.Sprintf("user: %v may no longer act as %v for role %v", delegatee.Username, c.user.Username, role)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionDelRole, details)
	})
}

// Histories returns the audit trail of the object, most recent first.
func (c *PlmObjectController) Histories() ([]schema.History, error) {
	return schema.Histories(c.db, c.object.Id)
}

func (c *PlmObjectController) reload() error {
	object, err := schema.GetObject(c.object.Id, c.db)
	if err != nil {
		return err
	}
	c.object = object
	return nil
}

// previousRevisions walks the revision links backwards from *object*.
func previousRevisions(db *gorm.DB, object schema.PlmObject) ([]schema.PlmObject, error) {
	revisions := []schema.PlmObject{}
	currentId := object.Id
	for {
		var link schema.RevisionLink
		result := schema.Alive(db).Limit(1).Find(&link, "new_id = ?", currentId)
		if result.Error != nil {
			slog.Error("sql error walking revision links", "object_id", currentId, "error", result.Error)
			return nil, schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return revisions, nil
		}
		old, err := schema.GetObject(link.OldId, db)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, old)
		currentId = old.Id
	}
}

func nextRevisions(db *gorm.DB, object schema.PlmObject) ([]schema.PlmObject, error) {
	revisions := []schema.PlmObject{}
	currentId := object.Id
	for {
		var link schema.RevisionLink
		result := schema.Alive(db).Limit(1).Find(&link, "old_id = ?", currentId)
		if result.Error != nil {
			slog.Error("sql error walking revision links", "object_id", currentId, "error", result.Error)
			return nil, schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return revisions, nil
		}
		next, err := schema.GetObject(link.NewId, db)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, next)
		currentId = next.Id
	}
}

// allRevisions returns every revision sharing the object's reference,
// oldest first.
func allRevisions(db *gorm.DB, object schema.PlmObject) ([]schema.PlmObject, error) {
	previous, err := previousRevisions(db, object)
	if err != nil {
		return nil, err
	}
	next, err := nextRevisions(db, object)
	if err != nil {
		return nil, err
	}

	all := make([]schema.PlmObject, 0, len(previous)+len(next)+1)
	for i := len(previous) - 1; i >= 0; i-- {
		all = append(all, previous[i])
	}
	all = append(all, object)
	all = append(all, next...)
	return all, nil
}

// AllRevisions lists the revision chain of the object, oldest first.
func (c *PlmObjectController) AllRevisions() ([]schema.PlmObject, error) {
	return allRevisions(c.db, c.object)
}
