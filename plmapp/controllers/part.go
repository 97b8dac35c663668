package controllers

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"openplm/plmapp/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Blocking reasons reported by PromotionErrors.
const (
	reasonChildrenState = "Some children are at a lower or draft state."
	reasonNoOfficialDoc = "There are no official documents attached."
	reasonNoFiles       = "This document has no files."
	reasonLockedFiles   = "Some files are locked."
)

// PartController adds BOM and attachment operations on top of the base
// controller.
type PartController struct {
	*PlmObjectController
}

func NewPartController(objectId uuid.UUID, user schema.User, db *gorm.DB) (*PartController, error) {
	base, err := NewPlmObjectController(objectId, user, db)
	if err != nil {
		return nil, err
	}
	if !base.object.IsPart() {
		return nil, fmt.Errorf("%w: %v is not a part", ErrValidation, objectId)
	}
	return &PartController{PlmObjectController: base}, nil
}

// partPromotionErrors applies the part rules: an official part or one with
// pending approvals advances freely; otherwise every alive child sharing the
// lifecycle must be at least as mature as the part and past draft, and a
// childless draft part needs an official attached document.
func partPromotionErrors(db *gorm.DB, object *schema.PlmObject, list schema.StateList) ([]string, error) {
	rank, err := list.Index(object.StateName)
	if err != nil {
		return nil, err
	}
	if object.StateName == list.OfficialState {
		return nil, nil
	}
	approvers, err := schema.Approvers(db, object.Id, object.StateName)
	if err != nil {
		return nil, err
	}
	if len(approvers) > 0 {
		// previous signers already checked promotability
		return nil, nil
	}

	var links []schema.ParentChildLink
	result := schema.Alive(db).Preload("Child").Find(&links, "parent_id = ?", object.Id)
	if result.Error != nil {
		slog.Error("sql error listing children", "object_id", object.Id, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	reasons := []string{}
	for _, link := range links {
		if link.Child == nil || link.Child.LifecycleName != object.LifecycleName {
			continue
		}
		childRank, err := list.Index(link.Child.StateName)
		if err != nil {
			return nil, err
		}
		if childRank < rank || childRank == 0 {
			reasons = append(reasons, reasonChildrenState)
			break
		}
	}

	if rank == 0 && len(links) == 0 {
		ok, err := hasOfficialDocument(db, object.Id)
		if err != nil {
			return nil, err
		}
		if !ok {
			reasons = append(reasons, reasonNoOfficialDoc)
		}
	}
	return reasons, nil
}

// hasOfficialDocument reports whether an alive attachment points to a
// document currently in its lifecycle's official state.
func hasOfficialDocument(db *gorm.DB, partId uuid.UUID) (bool, error) {
	var links []schema.DocumentPartLink
	result := schema.Alive(db).Preload("Document").Find(&links, "part_id = ?", partId)
	if result.Error != nil {
		slog.Error("sql error listing attached documents", "part_id", partId, "error", result.Error)
		return false, schema.ErrDbAccessFailed
	}
	for _, link := range links {
		if link.Document == nil {
			continue
		}
		list, err := schema.StatesList(link.Document.LifecycleName, db)
		if err != nil {
			if errors.Is(err, schema.ErrLifecycleNotFound) {
				continue
			}
			return false, err
		}
		if link.Document.StateName == list.OfficialState {
			return true, nil
		}
	}
	return false, nil
}

// Children returns the alive BOM edges below the part.
func (c *PartController) Children() ([]schema.ParentChildLink, error) {
	return childLinks(c.db, c.object.Id)
}

func childLinks(db *gorm.DB, parentId uuid.UUID) ([]schema.ParentChildLink, error) {
	var links []schema.ParentChildLink
	result := schema.Alive(db).Preload("Child").Order("ordering asc").Find(&links, "parent_id = ?", parentId)
	if result.Error != nil {
		slog.Error("sql error listing children", "object_id", parentId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	return links, nil
}

// ChildrenAt returns the BOM edges alive at instant *t*.
func (c *PartController) ChildrenAt(t time.Time) ([]schema.ParentChildLink, error) {
	var links []schema.ParentChildLink
	result := schema.AliveAt(c.db, &t).Preload("Child").Order("ordering asc").Find(&links, "parent_id = ?", c.object.Id)
	if result.Error != nil {
		slog.Error("sql error listing children at", "object_id", c.object.Id, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	return links, nil
}

// Parents returns the alive BOM edges above the part.
func (c *PartController) Parents() ([]schema.ParentChildLink, error) {
	return parentLinks(c.db, c.object.Id)
}

func parentLinks(db *gorm.DB, childId uuid.UUID) ([]schema.ParentChildLink, error) {
	var links []schema.ParentChildLink
	result := schema.Alive(db).Preload("Parent").Find(&links, "child_id = ?", childId)
	if result.Error != nil {
		slog.Error("sql error listing parents", "object_id", childId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	return links, nil
}

// isAncestor reports whether *part* is reachable above c through alive BOM
// edges, which would make adding it as a child a cycle.
func (c *PartController) isAncestor(partId uuid.UUID) (bool, error) {
	frontier := []uuid.UUID{partId}
	visited := map[uuid.UUID]struct{}{partId: {}}
	for len(frontier) > 0 {
		var links []schema.ParentChildLink
		result := schema.Alive(c.db).Find(&links, "parent_id IN ?", frontier)
		if result.Error != nil {
			slog.Error("sql error walking BOM", "object_id", c.object.Id, "error", result.Error)
			return false, schema.ErrDbAccessFailed
		}
		frontier = frontier[:0]
		for _, link := range links {
			if link.ChildId == c.object.Id {
				return true, nil
			}
			if _, ok := visited[link.ChildId]; !ok {
				visited[link.ChildId] = struct{}{}
				frontier = append(frontier, link.ChildId)
			}
		}
	}
	return false, nil
}

func (c *PartController) checkAddChild(child *schema.PlmObject) error {
	if err := c.checkPermission(schema.RoleOwner); err != nil {
		return err
	}
	if err := c.checkEditable(); err != nil {
		return err
	}
	if !child.IsPart() {
		return fmt.Errorf("%w: can not add child: not a part", ErrValidation)
	}
	if child.Id == c.object.Id {
		return fmt.Errorf("%w: can not add child: child is the current object", ErrValidation)
	}

	childCtrl := &PlmObjectController{db: c.db, user: c.user, object: *child}
	if childCtrl.IsCancelled() {
		return fmt.Errorf("%w: can not add child: child is cancelled", ErrValidation)
	}
	deprecated, err := childCtrl.IsDeprecated()
	if err != nil {
		return err
	}
	if deprecated {
		return fmt.Errorf("%w: can not add child: child is deprecated", ErrValidation)
	}

	ancestor, err := c.isAncestor(child.Id)
	if err != nil {
		return err
	}
	if ancestor {
		return fmt.Errorf("%w: can not add child: it would create a cycle", ErrValidation)
	}
	return nil
}

// AddChild creates a BOM edge from the part to *childId*.
func (c *PartController) AddChild(childId uuid.UUID, quantity float64, unit string, order int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if order < 0 {
		return fmt.Errorf("%w: order must not be negative", ErrValidation)
	}
	if unit == "" {
		unit = "-"
	}

	child, err := schema.GetObject(childId, c.db)
	if err != nil {
		return err
	}
	if err := c.checkAddChild(&child); err != nil {
		return err
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.ParentChildLink
		result := schema.Alive(txn).Limit(1).Find(&existing, "parent_id = ? AND child_id = ?", c.object.Id, childId)
		if result.Error != nil {
			slog.Error("sql error checking for BOM edge", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("%w: %v is already a child", ErrConflict, child.Reference)
		}

		link := schema.ParentChildLink{
			Id:       uuid.New(),
			ParentId: c.object.Id,
			ChildId:  childId,
			Quantity: quantity,
			Unit:     unit,
			Order:    order,
			Ctime:    time.Now().UTC(),
		}
		if result := txn.Create(&link); result.Error != nil {
			slog.Error("sql error creating BOM edge", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		details := fmt.Sprintf("parent : %v (%v//%v//%v) => child : %v (%v//%v//%v), quantity : %v, order : %v",
			c.object.Name, c.object.Type, c.object.Reference, c.object.Revision,
			child.Name, child.Type, child.Reference, child.Revision, quantity, order)
		if err := schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details); err != nil {
			return err
		}
		return schema.AddHistory(txn, childId, c.user.Id, schema.ActionModify, details)
	})
}

// DeleteChild ends the alive BOM edge to *childId*. The link row survives
// for as-of-date queries.
func (c *PartController) DeleteChild(childId uuid.UUID) error {
	if err := c.checkPermission(schema.RoleOwner); err != nil {
		return err
	}
	if err := c.checkEditable(); err != nil {
		return err
	}

	child, err := schema.GetObject(childId, c.db)
	if err != nil {
		return err
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		result := schema.Alive(txn.Model(&schema.ParentChildLink{})).
			Where("parent_id = ? AND child_id = ?", c.object.Id, childId).
			Update("end_time", time.Now().UTC())
		if result.Error != nil {
			slog.Error("sql error ending BOM edge", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %v is not a child", schema.ErrObjectNotFound, child.Reference)
		}

		details := fmt.Sprintf("child : %v (%v//%v//%v) removed",
			child.Name, child.Type, child.Reference, child.Revision)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

// ModifyChild replaces the BOM edge to *childId* with new quantity, unit and
// order. The old link is ended, not rewritten, so the previous values stay
// queryable.
func (c *PartController) ModifyChild(childId uuid.UUID, quantity float64, unit string, order int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if order < 0 {
		return fmt.Errorf("%w: order must not be negative", ErrValidation)
	}
	if unit == "" {
		unit = "-"
	}
	if err := c.checkPermission(schema.RoleOwner); err != nil {
		return err
	}
	if err := c.checkEditable(); err != nil {
		return err
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		var link schema.ParentChildLink
		result := schema.Alive(txn).Limit(1).Find(&link, "parent_id = ? AND child_id = ?", c.object.Id, childId)
		if result.Error != nil {
			slog.Error("sql error finding BOM edge", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: no BOM edge to modify", schema.ErrObjectNotFound)
		}
		if link.Quantity == quantity && link.Unit == unit && link.Order == order {
			return nil
		}

		now := time.Now().UTC()
		result = txn.Model(&schema.ParentChildLink{}).Where("id = ?", link.Id).Update("end_time", now)
		if result.Error != nil {
			slog.Error("sql error ending BOM edge", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		replacement := schema.ParentChildLink{
			Id:       uuid.New(),
			ParentId: c.object.Id,
			ChildId:  childId,
			Quantity: quantity,
			Unit:     unit,
			Order:    order,
			Ctime:    now,
		}
		if result := txn.Create(&replacement); result.Error != nil {
			slog.Error("sql error creating BOM edge", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		details := fmt.Sprintf("quantity : %v => %v, order : %v => %v",
			link.Quantity, quantity, link.Order, order)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

func (c *PartController) checkAttachDocument(doc *schema.PlmObject) error {
	if err := checkContributor(c.user); err != nil {
		return err
	}
	if !doc.IsDocument() {
		return fmt.Errorf("%w: %v is not a document", ErrValidation, doc.Reference)
	}

	docCtrl := &PlmObjectController{db: c.db, user: c.user, object: *doc}
	if c.IsCancelled() || docCtrl.IsCancelled() {
		return fmt.Errorf("%w: can not attach: object is cancelled", ErrValidation)
	}
	partDeprecated, err := c.IsDeprecated()
	if err != nil {
		return err
	}
	docDeprecated, err := docCtrl.IsDeprecated()
	if err != nil {
		return err
	}
	if partDeprecated || docDeprecated {
		return fmt.Errorf("%w: can not attach: object is deprecated", ErrValidation)
	}

	partDraft, err := c.IsDraft()
	if err != nil {
		return err
	}
	docDraft, err := docCtrl.IsDraft()
	if err != nil {
		return err
	}
	if !partDraft && !docDraft {
		return fmt.Errorf("%w: can not attach: one of the part or document must be draft", ErrValidation)
	}
	proposed, err := c.IsProposed()
	if err != nil {
		return err
	}
	if proposed {
		return fmt.Errorf("%w: can not attach: part's state is %v", ErrValidation, c.object.StateName)
	}
	return nil
}

// AttachDocument creates an attachment edge between the part and *docId*.
func (c *PartController) AttachDocument(docId uuid.UUID) error {
	doc, err := schema.GetObject(docId, c.db)
	if err != nil {
		return err
	}
	if err := c.checkAttachDocument(&doc); err != nil {
		return err
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.DocumentPartLink
		result := schema.Alive(txn).Limit(1).Find(&existing, "document_id = ? AND part_id = ?", docId, c.object.Id)
		if result.Error != nil {
			slog.Error("sql error checking attachment", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			return fmt.Errorf("%w: document already attached", ErrConflict)
		}

		link := schema.DocumentPartLink{
			Id:         uuid.New(),
			DocumentId: docId,
			PartId:     c.object.Id,
			Ctime:      time.Now().UTC(),
		}
		if result := txn.Create(&link); result.Error != nil {
			slog.Error("sql error creating attachment", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		details := fmt.Sprintf("document : %v (%v//%v//%v) attached",
			doc.Name, doc.Type, doc.Reference, doc.Revision)
		if err := schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details); err != nil {
			return err
		}
		return schema.AddHistory(txn, docId, c.user.Id, schema.ActionModify, details)
	})
}

// DetachDocument ends the alive attachment edge to *docId*.
func (c *PartController) DetachDocument(docId uuid.UUID) error {
	if err := checkContributor(c.user); err != nil {
		return err
	}
	doc, err := schema.GetObject(docId, c.db)
	if err != nil {
		return err
	}

	return c.db.Transaction(func(txn *gorm.DB) error {
		result := schema.Alive(txn.Model(&schema.DocumentPartLink{})).
			Where("document_id = ? AND part_id = ?", docId, c.object.Id).
			Update("end_time", time.Now().UTC())
		if result.Error != nil {
			slog.Error("sql error ending attachment", "object_id", c.object.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: document is not attached", schema.ErrObjectNotFound)
		}

		details := fmt.Sprintf("document : %v (%v//%v//%v) detached",
			doc.Name, doc.Type, doc.Reference, doc.Revision)
		return schema.AddHistory(txn, c.object.Id, c.user.Id, schema.ActionModify, details)
	})
}

// AttachedDocuments returns the alive attachment edges of the part.
func (c *PartController) AttachedDocuments() ([]schema.DocumentPartLink, error) {
	return partAttachments(c.db, c.object.Id)
}

func partAttachments(db *gorm.DB, partId uuid.UUID) ([]schema.DocumentPartLink, error) {
	var links []schema.DocumentPartLink
	result := schema.Alive(db).Preload("Document").Find(&links, "part_id = ?", partId)
	if result.Error != nil {
		slog.Error("sql error listing attachments", "object_id", partId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}
	return links, nil
}

// ReviseOptions selects which links a part revision carries forward. Nil
// slices mean "all alive links"; empty non-nil slices mean "none".
type ReviseOptions struct {
	ChildLinks []uuid.UUID
	Documents  []uuid.UUID
	// Parents lists the parent links to transfer from the old revision to
	// the new one (the old edge is ended).
	Parents []uuid.UUID
}

// Revise duplicates the part and carries forward the selected BOM children,
// attached documents and parent edges.
func (c *PartController) Revise(newRevision string, opts ReviseOptions) (*PartController, error) {
	if err := c.checkRevise(newRevision); err != nil {
		return nil, err
	}

	// One transaction covers the new revision and the carried links, so a
	// failure mid-copy rolls the revision back too.
	var newCtrl *PartController
	err := c.db.Transaction(func(txn *gorm.DB) error {
		baseCtrl, err := c.reviseInTxn(txn, newRevision)
		if err != nil {
			return err
		}
		newCtrl = &PartController{PlmObjectController: baseCtrl}

		children, err := childLinks(txn, c.object.Id)
		if err != nil {
			return err
		}
		for _, link := range children {
			if opts.ChildLinks != nil && !containsId(opts.ChildLinks, link.Id) {
				continue
			}
			carried := schema.ParentChildLink{
				Id:       uuid.New(),
				ParentId: newCtrl.object.Id,
				ChildId:  link.ChildId,
				Quantity: link.Quantity,
				Unit:     link.Unit,
				Order:    link.Order,
				Ctime:    time.Now().UTC(),
			}
			if result := txn.Create(&carried); result.Error != nil {
				slog.Error("sql error carrying BOM edge", "object_id", c.object.Id, "error", result.Error)
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
			carried := schema.DocumentPartLink{
				Id:         uuid.New(),
				DocumentId: link.DocumentId,
				PartId:     newCtrl.object.Id,
				Ctime:      time.Now().UTC(),
			}
			if result := txn.Create(&carried); result.Error != nil {
				slog.Error("sql error carrying attachment", "object_id", c.object.Id, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}

		if len(opts.Parents) > 0 {
			parents, err := parentLinks(txn, c.object.Id)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			for _, link := range parents {
				if !containsId(opts.Parents, link.Id) {
					continue
				}
				result := txn.Model(&schema.ParentChildLink{}).Where("id = ?", link.Id).Update("end_time", now)
				if result.Error != nil {
					slog.Error("sql error ending parent edge", "object_id", c.object.Id, "error", result.Error)
					return schema.ErrDbAccessFailed
				}
				moved := schema.ParentChildLink{
					Id:       uuid.New(),
					ParentId: link.ParentId,
					ChildId:  newCtrl.object.Id,
					Quantity: link.Quantity,
					Unit:     link.Unit,
					Order:    link.Order,
					Ctime:    now,
				}
				if result := txn.Create(&moved); result.Error != nil {
					slog.Error("sql error moving parent edge", "object_id", c.object.Id, "error", result.Error)
					return schema.ErrDbAccessFailed
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	newCtrl.db = c.db
	return newCtrl, nil
}

func containsId(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
