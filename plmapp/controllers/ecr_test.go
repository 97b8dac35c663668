package controllers

import (
	"testing"

	"openplm/plmapp/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEcr(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)

	ecr, err := CreateEcr("replace bearing", "the bearing wears out", alice, db)
	require.NoError(t, err)
	assert.Equal(t, "ECR_00001", ecr.Ecr().Reference)
	assert.Equal(t, "draft", ecr.Ecr().StateName)
	assert.Equal(t, alice.Id, ecr.Ecr().OwnerId)

	second, err := CreateEcr("other change", "", alice, db)
	require.NoError(t, err)
	assert.Equal(t, "ECR_00002", second.Ecr().Reference)

	_, err = CreateEcr("", "", alice, db)
	assert.ErrorIs(t, err, ErrValidation)

	reader := newTestUser(t, db, "reader", false)
	_, err = CreateEcr("nope", "", reader, db)
	assert.ErrorIs(t, err, ErrPermission)
}

func TestEcrPromotionWalk(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)

	ecr, err := CreateEcr("replace bearing", "", alice, db)
	require.NoError(t, err)

	require.NoError(t, ecr.Promote())
	assert.Equal(t, "review", ecr.Ecr().StateName)
	require.NoError(t, ecr.Promote())
	assert.Equal(t, "closed", ecr.Ecr().StateName)

	err = ecr.Promote()
	assert.ErrorIs(t, err, ErrPromotion)
	assert.ErrorContains(t, err, "The object is in its last state.")
}

func TestEcrApprovalQuorum(t *testing.T) {
	db := setupDb(t)
	sponsor := newTestUser(t, db, "sponsor", true)
	alice := newTestUser(t, db, "alice", true)
	delegate(t, db, sponsor, alice, schema.RoleSponsor)

	ecr, err := CreateEcr("replace bearing", "", alice, db)
	require.NoError(t, err)

	// draft is signed by the creator, review by the sponsor
	require.NoError(t, ecr.ApprovePromotion())
	assert.Equal(t, "review", ecr.Ecr().StateName)

	err = ecr.ApprovePromotion()
	assert.ErrorIs(t, err, ErrPermission)

	sponsorCtrl, err := NewEcrController(ecr.Ecr().Id, sponsor, db)
	require.NoError(t, err)
	require.NoError(t, sponsorCtrl.ApprovePromotion())
	assert.Equal(t, "closed", sponsorCtrl.Ecr().StateName)
}

func TestEcrDemote(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)

	ecr, err := CreateEcr("replace bearing", "", alice, db)
	require.NoError(t, err)

	err = ecr.Demote()
	assert.ErrorIs(t, err, schema.ErrStateBoundary)

	require.NoError(t, ecr.Promote())
	require.NoError(t, ecr.Demote())
	assert.Equal(t, "draft", ecr.Ecr().StateName)
}

func TestEcrAttachments(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	part := newTestPart(t, db, alice, group, "wheel")

	ecr, err := CreateEcr("replace bearing", "", alice, db)
	require.NoError(t, err)

	require.NoError(t, ecr.Attach(part.Object().Id))
	assert.ErrorIs(t, ecr.Attach(part.Object().Id), ErrConflict)

	attached, err := ecr.Attached()
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, part.Object().Id, attached[0].ObjectId)

	require.NoError(t, ecr.Detach(part.Object().Id))
	attached, err = ecr.Attached()
	require.NoError(t, err)
	assert.Empty(t, attached)

	cancelledPart := newTestPart(t, db, alice, group, "scrap")
	require.NoError(t, cancelledPart.Cancel())
	assert.ErrorIs(t, ecr.Attach(cancelledPart.Object().Id), ErrValidation)
}

func TestEcrCancel(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)
	group := newTestGroup(t, db, "design", alice)
	part := newTestPart(t, db, alice, group, "wheel")

	ecr, err := CreateEcr("replace bearing", "", alice, db)
	require.NoError(t, err)
	require.NoError(t, ecr.Attach(part.Object().Id))

	require.NoError(t, ecr.Cancel())
	assert.True(t, ecr.IsCancelled())
	assert.Equal(t, schema.CancelledStateName, ecr.Ecr().StateName)

	company, err := schema.GetCompanyUser(db)
	require.NoError(t, err)
	assert.Equal(t, company.Id, ecr.Ecr().OwnerId)

	attached, err := ecr.Attached()
	require.NoError(t, err)
	assert.Empty(t, attached)

	assert.ErrorIs(t, ecr.Cancel(), ErrValidation)
	assert.ErrorIs(t, ecr.Attach(part.Object().Id), ErrValidation)

	_, reasons, err := ecr.IsPromotable()
	require.NoError(t, err)
	assert.Equal(t, []string{"The object is cancelled."}, reasons)
}

func TestEcrCancelRequiresDraft(t *testing.T) {
	db := setupDb(t)
	alice := newTestUser(t, db, "alice", true)

	ecr, err := CreateEcr("replace bearing", "", alice, db)
	require.NoError(t, err)
	require.NoError(t, ecr.Promote())

	err = ecr.Cancel()
	assert.ErrorIs(t, err, ErrPermission)
	assert.Equal(t, "review", ecr.Ecr().StateName)

	require.NoError(t, ecr.Demote())
	require.NoError(t, ecr.Cancel())
	assert.True(t, ecr.IsCancelled())
}
