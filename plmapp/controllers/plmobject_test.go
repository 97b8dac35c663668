package controllers

import (
	"testing"
	"time"

	"openplm/plmapp/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAllocatesReferenceAndRoles(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	part := newTestPart(t, db, alice, group, "wheel")
	object := part.Object()

	assert.Equal(t, "PART_00001", object.Reference)
	assert.Equal(t, 1, object.ReferenceNumber)
	assert.Equal(t, "draft", object.StateName)
	assert.Equal(t, alice.Id, object.OwnerId)

	owners, err := schema.RoleHolders(db, object.Id, schema.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice.Id}, owners)

	// a four state lifecycle has three sign levels, all held by the creator
	// when they have no sponsor
	for level := 0; level < 3; level++ {
		signers, err := schema.RoleHolders(db, object.Id, schema.SignRole(level))
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{alice.Id}, signers, schema.SignRole(level))
	}

	histories, err := part.Histories()
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Equal(t, schema.ActionCreate, histories[0].Action)

	second := newTestPart(t, db, alice, group, "axle")
	assert.Equal(t, "PART_00002", second.Object().Reference)
}

func TestCreateSignLevelsGoToSponsor(t *testing.T) {
	db := setupDb(t)
	sponsor := newTestUser(t, db, "sponsor", true)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice, sponsor)
	delegate(t, db, sponsor, alice, schema.RoleSponsor)

	part := newTestPart(t, db, alice, group, "wheel")
	object := part.Object()

	first, err := schema.RoleHolders(db, object.Id, schema.SignRole(0))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice.Id}, first)

	for level := 1; level < 3; level++ {
		signers, err := schema.RoleHolders(db, object.Id, schema.SignRole(level))
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{sponsor.Id}, signers, schema.SignRole(level))
	}
}

func TestCreateChecks(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	reader := newTestUser(t, db, "reader", false)
	group := newTestGroup(t, db, "design", alice)

	_, err := Create(CreateParams{Type: schema.KindPart, Revision: "a", GroupId: group.Id}, reader, db)
	assert.ErrorIs(t, err, ErrPermission)

	outsider := newTestUser(t, db, "outsider", true)
	_, err = Create(CreateParams{Type: schema.KindPart, Revision: "a", GroupId: group.Id}, outsider, db)
	assert.ErrorIs(t, err, ErrPermission)

	_, err = Create(CreateParams{Type: "assembly", Revision: "a", GroupId: group.Id}, alice, db)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Create(CreateParams{Type: schema.KindPart, Revision: "", GroupId: group.Id}, alice, db)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Create(CreateParams{Type: schema.KindPart, Reference: "bad..ref", Revision: "a", GroupId: group.Id}, alice, db)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Create(CreateParams{Type: schema.KindPart, Reference: "WHEEL", Revision: "a", GroupId: group.Id}, alice, db)
	require.NoError(t, err)
	_, err = Create(CreateParams{Type: schema.KindPart, Reference: "WHEEL", Revision: "a", GroupId: group.Id}, alice, db)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestDocumentPromotionToOfficialTransfersOwnership(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	doc := newTestDocument(t, db, alice, group, "manual")

	promotable, reasons, err := doc.IsPromotable()
	require.NoError(t, err)
	assert.False(t, promotable)
	assert.Equal(t, []string{"This document has no files."}, reasons)

	_, err = doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)

	require.NoError(t, doc.Promote())
	assert.Equal(t, "proposed", doc.Object().StateName)

	require.NoError(t, doc.Promote())
	assert.Equal(t, "official", doc.Object().StateName)

	company, err := schema.GetCompanyUser(db)
	require.NoError(t, err)
	assert.Equal(t, company.Id, doc.Object().OwnerId)

	// the last transition is still signed by the creator as their own sponsor
	require.NoError(t, doc.Promote())
	assert.Equal(t, "deprecated", doc.Object().StateName)

	err = doc.Promote()
	assert.ErrorIs(t, err, ErrPromotion)
	assert.ErrorContains(t, err, "The object is in its last state.")
}

func TestPartPromotionNeedsOfficialDocument(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	part := newTestPart(t, db, alice, group, "wheel")

	promotable, reasons, err := part.IsPromotable()
	require.NoError(t, err)
	assert.False(t, promotable)
	assert.Equal(t, []string{"There are no official documents attached."}, reasons)

	attachOfficialDocument(t, db, part, alice, group)

	promotable, _, err = part.IsPromotable()
	require.NoError(t, err)
	assert.True(t, promotable)
}

func TestPartOfficialDocumentRuleOnlyAppliesToDrafts(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	part := newTestPart(t, db, alice, group, "wheel")
	attachOfficialDocument(t, db, part, alice, group)

	require.NoError(t, part.Promote())
	require.Equal(t, "proposed", part.Object().StateName)

	// losing the attachment after draft does not block further promotion
	now := time.Now().UTC()
	result := db.Model(&schema.DocumentPartLink{}).
		Where("part_id = ? AND end_time IS NULL", part.Object().Id).
		Update("end_time", &now)
	require.NoError(t, result.Error)

	promotable, reasons, err := part.IsPromotable()
	require.NoError(t, err)
	assert.True(t, promotable, reasons)
}

func TestPartPromotionChecksChildren(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	parent := newTestPart(t, db, alice, group, "assembly")
	child := newTestPart(t, db, alice, group, "bolt")
	attachOfficialDocument(t, db, child, alice, group)
	require.NoError(t, parent.AddChild(child.Object().Id, 4, "-", 10))

	promotable, reasons, err := parent.IsPromotable()
	require.NoError(t, err)
	assert.False(t, promotable)
	assert.Equal(t, []string{"Some children are at a lower or draft state."}, reasons)

	require.NoError(t, child.Promote())
	assert.Equal(t, "proposed", child.Object().StateName)

	promotable, reasons, err = parent.IsPromotable()
	require.NoError(t, err)
	assert.True(t, promotable, reasons)
}

func TestApprovePromotionQuorum(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)

	doc := newTestDocument(t, db, alice, group, "manual")
	_, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, doc.SetSigner(bob, 0))

	require.NoError(t, doc.ApprovePromotion())
	assert.Equal(t, "draft", doc.Object().StateName)

	editable, err := doc.IsEditable()
	require.NoError(t, err)
	assert.False(t, editable)

	// alice cannot vote twice
	err = doc.ApprovePromotion()
	assert.ErrorIs(t, err, ErrPromotion)

	bobCtrl, err := NewDocumentController(doc.Object().Id, bob, db)
	require.NoError(t, err)
	require.NoError(t, bobCtrl.ApprovePromotion())
	assert.Equal(t, "proposed", bobCtrl.Object().StateName)

	// the votes were consumed by the promotion
	approvers, err := schema.Approvers(db, doc.Object().Id, "draft")
	require.NoError(t, err)
	assert.Empty(t, approvers)
}

func TestApprovePromotionStaleStateConflicts(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)

	doc := newTestDocument(t, db, alice, group, "manual")
	_, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, doc.SetSigner(bob, 0))

	// a second controller loaded before the promotion keeps the old state
	stale, err := NewDocumentController(doc.Object().Id, bob, db)
	require.NoError(t, err)

	require.NoError(t, doc.ApprovePromotion())
	bobCtrl, err := NewDocumentController(doc.Object().Id, bob, db)
	require.NoError(t, err)
	require.NoError(t, bobCtrl.ApprovePromotion())
	assert.Equal(t, "proposed", bobCtrl.Object().StateName)

	// the stale vote must not count against the new state
	err = stale.ApprovePromotion()
	assert.ErrorIs(t, err, ErrConflict)
}

func TestApprovePromotionThroughDelegation(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)

	doc := newTestDocument(t, db, alice, group, "manual")
	_, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, doc.SetSigner(bob, 0))
	delegate(t, db, bob, alice, schema.SignRole(0))

	// alice's single approval covers bob through the delegation, completing
	// the quorum at once
	require.NoError(t, doc.ApprovePromotion())
	assert.Equal(t, "proposed", doc.Object().StateName)
}

func TestDiscardApprovals(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)

	doc := newTestDocument(t, db, alice, group, "manual")
	_, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, doc.SetSigner(bob, 0))
	require.NoError(t, doc.ApprovePromotion())

	// the signer set is frozen while votes exist
	err = doc.SetSigner(alice, 1)
	assert.ErrorIs(t, err, ErrPromotion)

	require.NoError(t, doc.DiscardApprovals())
	approvers, err := schema.Approvers(db, doc.Object().Id, "draft")
	require.NoError(t, err)
	assert.Empty(t, approvers)

	editable, err := doc.IsEditable()
	require.NoError(t, err)
	assert.True(t, editable)
}

func TestDemote(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	doc := newTestDocument(t, db, alice, group, "manual")
	_, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)

	err = doc.Demote()
	assert.ErrorIs(t, err, ErrPromotion)

	require.NoError(t, doc.Promote())
	require.NoError(t, doc.Demote())
	assert.Equal(t, "draft", doc.Object().StateName)
}

func TestCancel(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	part := newTestPart(t, db, alice, group, "wheel")

	require.NoError(t, part.CheckCancel())
	require.NoError(t, part.Cancel())

	object := part.Object()
	assert.Equal(t, schema.CancelledLifecycleName, object.LifecycleName)
	assert.Equal(t, schema.CancelledStateName, object.StateName)
	assert.True(t, part.IsCancelled())

	company, err := schema.GetCompanyUser(db)
	require.NoError(t, err)
	assert.Equal(t, company.Id, object.OwnerId)

	signers, err := schema.RoleHolders(db, object.Id, schema.SignRole(0))
	require.NoError(t, err)
	assert.Empty(t, signers)

	promotable, reasons, err := part.IsPromotable()
	require.NoError(t, err)
	assert.False(t, promotable)
	assert.Equal(t, []string{"The object is cancelled."}, reasons)
}

func TestCheckCancelRejections(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)

	part := newTestPart(t, db, alice, group, "wheel")
	bobCtrl, err := NewPartController(part.Object().Id, bob, db)
	require.NoError(t, err)
	assert.ErrorIs(t, bobCtrl.CheckCancel(), ErrPermission)

	_, err = part.Revise("b", ReviseOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, part.CheckCancel(), ErrPermission)

	doc := newTestDocument(t, db, alice, group, "manual")
	_, err = doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, doc.Promote())
	assert.ErrorIs(t, doc.CheckCancel(), ErrPermission)
}

func TestReviseCreatesLinkedSuccessor(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	doc := newTestDocument(t, db, alice, group, "manual")

	assert.Equal(t, "b", doc.SuggestedNextRevision())

	_, err := doc.PlmObjectController.Revise("")
	assert.ErrorIs(t, err, ErrRevision)
	_, err = doc.PlmObjectController.Revise("a")
	assert.ErrorIs(t, err, ErrRevision)

	next, err := doc.Revise("b")
	require.NoError(t, err)
	assert.Equal(t, doc.Object().Reference, next.Object().Reference)
	assert.Equal(t, "b", next.Object().Revision)
	assert.Equal(t, "draft", next.Object().StateName)

	revisable, err := doc.IsRevisable()
	require.NoError(t, err)
	assert.False(t, revisable)
	_, err = doc.Revise("c")
	assert.ErrorIs(t, err, ErrRevision)

	revisable, err = next.IsRevisable()
	require.NoError(t, err)
	assert.True(t, revisable)
}

func TestOfficializeRetiresPreviousRevisions(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	docA := newTestDocument(t, db, alice, group, "manual")
	_, err := docA.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, docA.Promote())
	require.NoError(t, docA.Promote())
	assert.Equal(t, "official", docA.Object().StateName)

	docB, err := docA.Revise("b")
	require.NoError(t, err)
	_, err = docB.AddFile("manual.pdf", 4096)
	require.NoError(t, err)

	docC, err := docB.PlmObjectController.Revise("c")
	require.NoError(t, err)

	require.NoError(t, docB.Promote())
	require.NoError(t, docB.Promote())
	assert.Equal(t, "official", docB.Object().StateName)

	// the official predecessor was deprecated
	objA, err := schema.GetObject(docA.Object().Id, db)
	require.NoError(t, err)
	assert.Equal(t, "deprecated", objA.StateName)

	_ = docC
	company, err := schema.GetCompanyUser(db)
	require.NoError(t, err)
	assert.Equal(t, company.Id, objA.OwnerId)
}

func TestOfficializeCancelsEditablePredecessor(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	docA := newTestDocument(t, db, alice, group, "manual")
	docB, err := docA.Revise("b")
	require.NoError(t, err)
	_, err = docB.AddFile("manual.pdf", 4096)
	require.NoError(t, err)

	require.NoError(t, docB.Promote())
	require.NoError(t, docB.Promote())
	assert.Equal(t, "official", docB.Object().StateName)

	objA, err := schema.GetObject(docA.Object().Id, db)
	require.NoError(t, err)
	assert.Equal(t, schema.CancelledLifecycleName, objA.LifecycleName)
}

func TestPublish(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	doc := newTestDocument(t, db, alice, group, "manual")
	_, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)

	assert.ErrorIs(t, doc.Publish(), ErrPermission)

	require.NoError(t, doc.Promote())
	require.NoError(t, doc.Promote())
	require.NoError(t, doc.Publish())
	assert.True(t, doc.Object().Published)

	assert.ErrorIs(t, doc.Publish(), ErrValidation)
	require.NoError(t, doc.Unpublish())
	assert.False(t, doc.Object().Published)
	assert.ErrorIs(t, doc.Unpublish(), ErrValidation)
}

func TestSetOwner(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)
	part := newTestPart(t, db, alice, group, "wheel")

	company, err := schema.GetCompanyUser(db)
	require.NoError(t, err)
	assert.ErrorIs(t, part.SetOwner(company), ErrValidation)

	require.NoError(t, part.SetOwner(bob))
	assert.Equal(t, bob.Id, part.Object().OwnerId)

	// alice lost the owner role with the transfer
	assert.ErrorIs(t, part.SetOwner(alice), ErrPermission)
}

func TestRemoveSignerKeepsQuorumNonEmpty(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)
	doc := newTestDocument(t, db, alice, group, "manual")

	err := doc.RemoveSigner(alice, 0)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, doc.SetSigner(bob, 0))
	require.NoError(t, doc.RemoveSigner(alice, 0))

	signers, err := schema.RoleHolders(db, doc.Object().Id, schema.SignRole(0))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bob.Id}, signers)
}

func TestNotifiedAndReaders(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)
	doc := newTestDocument(t, db, alice, group, "manual")

	require.NoError(t, doc.AddNotified(bob))
	assert.ErrorIs(t, doc.AddNotified(bob), ErrConflict)
	require.NoError(t, doc.RemoveNotified(bob))

	outsider := newTestUser(t, db, "outsider", false)
	assert.ErrorIs(t, doc.AddNotified(outsider), ErrPermission)

	err := doc.AddReader(outsider)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, doc.Promote())
	require.NoError(t, doc.Promote())
	require.NoError(t, doc.AddReader(outsider))
}

func TestReadVisibility(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", false)
	carol := newTestUser(t, db, "carol", false)
	carol.IsRestricted = true
	require.NoError(t, db.Save(&carol).Error)
	group := newTestGroup(t, db, "design", alice)

	doc := newTestDocument(t, db, alice, group, "manual")
	_, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)

	readable, err := Readable(db, doc.Object(), alice)
	require.NoError(t, err)
	assert.True(t, readable)

	// bob shares no group with the object and holds no role on it
	readable, err = Readable(db, doc.Object(), bob)
	require.NoError(t, err)
	assert.False(t, readable)

	require.NoError(t, doc.Promote())
	require.NoError(t, doc.Promote())
	require.NoError(t, doc.Publish())

	readable, err = Readable(db, doc.Object(), bob)
	require.NoError(t, err)
	assert.True(t, readable)

	// a restricted account needs its own reader link, published or not
	readable, err = Readable(db, doc.Object(), carol)
	require.NoError(t, err)
	assert.False(t, readable)

	require.NoError(t, doc.AddReader(carol))
	readable, err = Readable(db, doc.Object(), carol)
	require.NoError(t, err)
	assert.True(t, readable)
}

func TestClone(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	part := newTestPart(t, db, alice, group, "wheel")

	clone, err := part.Clone("wheel copy", CloneOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, part.Object().Reference, clone.Object().Reference)
	assert.Equal(t, "a", clone.Object().Revision)
	assert.Equal(t, "wheel copy", clone.Object().Name)

	revisable, err := part.IsRevisable()
	require.NoError(t, err)
	assert.True(t, revisable, "cloning must not create a revision link")
}

func TestCloneCopiesSelectedLinks(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	part := newTestPart(t, db, alice, group, "assembly")
	bolt := newTestPart(t, db, alice, group, "bolt")
	nut := newTestPart(t, db, alice, group, "nut")
	require.NoError(t, part.AddChild(bolt.Object().Id, 4, "-", 10))
	require.NoError(t, part.AddChild(nut.Object().Id, 4, "-", 20))
	doc := attachOfficialDocument(t, db, part, alice, group)

	children, err := part.Children()
	require.NoError(t, err)
	require.Len(t, children, 2)
	var boltLink uuid.UUID
	for _, link := range children {
		if link.ChildId == bolt.Object().Id {
			boltLink = link.Id
		}
	}

	// keep the bolt, drop the nut and the document
	clone, err := part.Clone("assembly copy", CloneOptions{
		ChildLinks: []uuid.UUID{boltLink},
		Documents:  []uuid.UUID{},
	})
	require.NoError(t, err)

	cloneCtrl := &PartController{PlmObjectController: clone}
	copied, err := cloneCtrl.Children()
	require.NoError(t, err)
	require.Len(t, copied, 1)
	assert.Equal(t, bolt.Object().Id, copied[0].ChildId)

	attached, err := cloneCtrl.AttachedDocuments()
	require.NoError(t, err)
	assert.Empty(t, attached)

	// nil selections copy everything
	full, err := part.Clone("assembly full copy", CloneOptions{})
	require.NoError(t, err)
	fullCtrl := &PartController{PlmObjectController: full}
	copied, err = fullCtrl.Children()
	require.NoError(t, err)
	assert.Len(t, copied, 2)
	attached, err = fullCtrl.AttachedDocuments()
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, doc.Object().Id, attached[0].DocumentId)
}
