package controllers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddChild(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	parent := newTestPart(t, db, alice, group, "assembly")
	child := newTestPart(t, db, alice, group, "bolt")

	require.NoError(t, parent.AddChild(child.Object().Id, 4, "-", 10))

	children, err := parent.Children()
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.Object().Id, children[0].ChildId)
	assert.Equal(t, 4.0, children[0].Quantity)
	assert.Equal(t, 10, children[0].Order)

	parents, err := child.Parents()
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, parent.Object().Id, parents[0].ParentId)

	err = parent.AddChild(child.Object().Id, 1, "-", 20)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAddChildRejections(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)

	parent := newTestPart(t, db, alice, group, "assembly")
	child := newTestPart(t, db, alice, group, "bolt")

	assert.ErrorIs(t, parent.AddChild(child.Object().Id, 0, "-", 10), ErrValidation)
	assert.ErrorIs(t, parent.AddChild(child.Object().Id, 1, "-", -1), ErrValidation)
	assert.ErrorIs(t, parent.AddChild(parent.Object().Id, 1, "-", 10), ErrValidation)

	doc := newTestDocument(t, db, alice, group, "manual")
	assert.ErrorIs(t, parent.AddChild(doc.Object().Id, 1, "-", 10), ErrValidation)

	bobCtrl, err := NewPartController(parent.Object().Id, bob, db)
	require.NoError(t, err)
	assert.ErrorIs(t, bobCtrl.AddChild(child.Object().Id, 1, "-", 10), ErrPermission)

	require.NoError(t, child.Cancel())
	assert.ErrorIs(t, parent.AddChild(child.Object().Id, 1, "-", 10), ErrValidation)
}

func TestAddChildRefusesCycles(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	top := newTestPart(t, db, alice, group, "top")
	mid := newTestPart(t, db, alice, group, "mid")
	bottom := newTestPart(t, db, alice, group, "bottom")

	require.NoError(t, top.AddChild(mid.Object().Id, 1, "-", 10))
	require.NoError(t, mid.AddChild(bottom.Object().Id, 1, "-", 10))

	err := bottom.AddChild(top.Object().Id, 1, "-", 10)
	assert.ErrorIs(t, err, ErrValidation)

	// removing the middle edge breaks the path and the edge becomes legal
	require.NoError(t, mid.DeleteChild(bottom.Object().Id))
	require.NoError(t, bottom.AddChild(top.Object().Id, 1, "-", 10))
}

func TestModifyChild(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	parent := newTestPart(t, db, alice, group, "assembly")
	child := newTestPart(t, db, alice, group, "bolt")
	require.NoError(t, parent.AddChild(child.Object().Id, 4, "-", 10))

	require.NoError(t, parent.ModifyChild(child.Object().Id, 8, "kg", 20))

	children, err := parent.Children()
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, 8.0, children[0].Quantity)
	assert.Equal(t, "kg", children[0].Unit)
	assert.Equal(t, 20, children[0].Order)

	err = parent.ModifyChild(child.Object().Id, 0, "-", 10)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestChildrenAt(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	parent := newTestPart(t, db, alice, group, "assembly")
	child := newTestPart(t, db, alice, group, "bolt")
	require.NoError(t, parent.AddChild(child.Object().Id, 4, "-", 10))

	attached := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, parent.DeleteChild(child.Object().Id))

	current, err := parent.Children()
	require.NoError(t, err)
	assert.Empty(t, current)

	past, err := parent.ChildrenAt(attached)
	require.NoError(t, err)
	require.Len(t, past, 1)
	assert.Equal(t, child.Object().Id, past[0].ChildId)

	before, err := parent.ChildrenAt(attached.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, before)
}

func TestAttachDocument(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	part := newTestPart(t, db, alice, group, "wheel")
	doc := newTestDocument(t, db, alice, group, "manual")

	require.NoError(t, part.AttachDocument(doc.Object().Id))
	assert.ErrorIs(t, part.AttachDocument(doc.Object().Id), ErrConflict)

	attached, err := part.AttachedDocuments()
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, doc.Object().Id, attached[0].DocumentId)

	parts, err := doc.AttachedParts()
	require.NoError(t, err)
	require.Len(t, parts, 1)

	require.NoError(t, part.DetachDocument(doc.Object().Id))
	attached, err = part.AttachedDocuments()
	require.NoError(t, err)
	assert.Empty(t, attached)
}

func TestAttachDocumentRejections(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	part := newTestPart(t, db, alice, group, "wheel")
	doc := newTestDocument(t, db, alice, group, "manual")
	_, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)

	// neither side draft
	attachOfficialDocument(t, db, part, alice, group)
	require.NoError(t, part.Promote())
	require.NoError(t, doc.Promote())
	assert.ErrorIs(t, part.AttachDocument(doc.Object().Id), ErrValidation)

	// proposed parts accept no attachments even from a draft document
	draftDoc := newTestDocument(t, db, alice, group, "notes")
	assert.ErrorIs(t, part.AttachDocument(draftDoc.Object().Id), ErrValidation)

	cancelledDoc := newTestDocument(t, db, alice, group, "scrap")
	require.NoError(t, cancelledDoc.Cancel())
	otherPart := newTestPart(t, db, alice, group, "axle")
	assert.ErrorIs(t, otherPart.AttachDocument(cancelledDoc.Object().Id), ErrValidation)
}

func TestPartReviseCarriesLinks(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	parent := newTestPart(t, db, alice, group, "assembly")
	part := newTestPart(t, db, alice, group, "wheel")
	child := newTestPart(t, db, alice, group, "bolt")
	doc := newTestDocument(t, db, alice, group, "manual")

	require.NoError(t, parent.AddChild(part.Object().Id, 1, "-", 10))
	require.NoError(t, part.AddChild(child.Object().Id, 4, "-", 10))
	require.NoError(t, part.AttachDocument(doc.Object().Id))

	next, err := part.Revise("b", ReviseOptions{})
	require.NoError(t, err)

	children, err := next.Children()
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.Object().Id, children[0].ChildId)

	attached, err := next.AttachedDocuments()
	require.NoError(t, err)
	require.Len(t, attached, 1)

	// without an explicit transfer the parent keeps pointing at revision a
	oldParents, err := part.Parents()
	require.NoError(t, err)
	require.Len(t, oldParents, 1)
	newParents, err := next.Parents()
	require.NoError(t, err)
	assert.Empty(t, newParents)
}

func TestPartReviseTransfersParents(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	parent := newTestPart(t, db, alice, group, "assembly")
	part := newTestPart(t, db, alice, group, "wheel")
	require.NoError(t, parent.AddChild(part.Object().Id, 2, "-", 10))

	parents, err := part.Parents()
	require.NoError(t, err)
	require.Len(t, parents, 1)

	next, err := part.Revise("b", ReviseOptions{Parents: []uuid.UUID{parents[0].Id}})
	require.NoError(t, err)

	oldParents, err := part.Parents()
	require.NoError(t, err)
	assert.Empty(t, oldParents)

	newParents, err := next.Parents()
	require.NoError(t, err)
	require.Len(t, newParents, 1)
	assert.Equal(t, 2.0, newParents[0].Quantity)
}
