package controllers

import (
	"testing"

	"openplm/plmapp/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFile(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)
	doc := newTestDocument(t, db, alice, group, "manual")

	file, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	assert.Equal(t, "manual.pdf", file.Filename)
	assert.False(t, file.Locked)

	_, err = doc.AddFile("", 10)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = doc.AddFile("neg.pdf", -1)
	assert.ErrorIs(t, err, ErrValidation)

	bobCtrl, err := NewDocumentController(doc.Object().Id, bob, db)
	require.NoError(t, err)
	_, err = bobCtrl.AddFile("sneaky.pdf", 10)
	assert.ErrorIs(t, err, ErrPermission)

	files, err := doc.Files()
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestLockedFilesBlockPromotion(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	doc := newTestDocument(t, db, alice, group, "manual")

	file, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, doc.LockFile(file.Id))

	promotable, reasons, err := doc.IsPromotable()
	require.NoError(t, err)
	assert.False(t, promotable)
	assert.Equal(t, []string{"Some files are locked."}, reasons)

	require.NoError(t, doc.UnlockFile(file.Id))
	promotable, _, err = doc.IsPromotable()
	require.NoError(t, err)
	assert.True(t, promotable)
}

func TestUnlockRequiresLocker(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	bob := newTestUser(t, db, "bob", true)
	group := newTestGroup(t, db, "design", alice, bob)
	doc := newTestDocument(t, db, alice, group, "manual")

	file, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, doc.LockFile(file.Id))
	assert.ErrorIs(t, doc.LockFile(file.Id), ErrLock)

	require.NoError(t, doc.SetOwner(bob))
	bobCtrl, err := NewDocumentController(doc.Object().Id, bob, db)
	require.NoError(t, err)
	assert.ErrorIs(t, bobCtrl.UnlockFile(file.Id), ErrLock)
}

func TestDeprecateFile(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	doc := newTestDocument(t, db, alice, group, "manual")

	file, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)

	require.NoError(t, doc.LockFile(file.Id))
	assert.ErrorIs(t, doc.DeprecateFile(file.Id), ErrLock)
	require.NoError(t, doc.UnlockFile(file.Id))

	require.NoError(t, doc.DeprecateFile(file.Id))
	files, err := doc.Files()
	require.NoError(t, err)
	assert.Empty(t, files)

	promotable, reasons, err := doc.IsPromotable()
	require.NoError(t, err)
	assert.False(t, promotable)
	assert.Equal(t, []string{"This document has no files."}, reasons)
}

func TestFileEditsRequireEditableDocument(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	doc := newTestDocument(t, db, alice, group, "manual")

	file, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)
	require.NoError(t, doc.Promote())

	_, err = doc.AddFile("late.pdf", 10)
	assert.ErrorIs(t, err, ErrPermission)
	assert.ErrorIs(t, doc.LockFile(file.Id), ErrPermission)
	assert.ErrorIs(t, doc.DeprecateFile(file.Id), ErrPermission)
}

func TestDocumentReviseCarriesFilesAndAttachments(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	doc := newTestDocument(t, db, alice, group, "manual")
	_, err := doc.AddFile("manual.pdf", 2048)
	require.NoError(t, err)

	part := newTestPart(t, db, alice, group, "wheel")
	cancelledPart := newTestPart(t, db, alice, group, "scrap")
	require.NoError(t, part.AttachDocument(doc.Object().Id))
	require.NoError(t, cancelledPart.AttachDocument(doc.Object().Id))
	require.NoError(t, cancelledPart.Cancel())

	next, err := doc.Revise("b")
	require.NoError(t, err)

	files, err := next.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "manual.pdf", files[0].Filename)
	assert.False(t, files[0].Locked)

	// the attachment to the cancelled part was not carried over
	parts, err := next.AttachedParts()
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, part.Object().Id, parts[0].PartId)
}

func TestControllerKindChecks(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)

	part := newTestPart(t, db, alice, group, "wheel")
	doc := newTestDocument(t, db, alice, group, "manual")

	_, err := NewDocumentController(part.Object().Id, alice, db)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewPartController(doc.Object().Id, alice, db)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewPartController(uuid.New(), alice, db)
	assert.ErrorIs(t, err, schema.ErrObjectNotFound)
}
