package client

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"openplm/plmapp/auth"
	"openplm/plmapp/schema"
	"openplm/plmapp/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	adminEmail    = "admin@mail.com"
	adminPassword = "admin_password123"
)

func startTestServer(t *testing.T) *httptest.Server {
	schema.ResetLifecycleCache()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&schema.State{}, &schema.Lifecycle{}, &schema.LifecycleState{},
		&schema.User{}, &schema.Group{}, &schema.UserGroup{},
		&schema.PlmObject{}, &schema.DocumentFile{}, &schema.Ecr{},
		&schema.RoleLink{}, &schema.ParentChildLink{}, &schema.DocumentPartLink{},
		&schema.RevisionLink{}, &schema.PromotionApproval{}, &schema.DelegationLink{},
		&schema.EcrObjectLink{}, &schema.History{}, &schema.StateHistory{},
	)
	require.NoError(t, err)

	require.NoError(t, schema.CreateCancelledLifecycle(db))
	_, err = schema.LifecycleFromStates("standard",
		[]string{"draft", "proposed", "official", "deprecated"}, "official", db)
	require.NoError(t, err)
	_, err = schema.LifecycleFromStates("ecr",
		[]string{"draft", "review", "closed"}, "closed", db)
	require.NoError(t, err)

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:          []byte("290zcv02ai249"),
			AdminUsername:   "admin",
			AdminEmail:      adminEmail,
			AdminPassword:   adminPassword,
			CompanyUsername: "company",
		},
	)
	require.NoError(t, err)

	plm := services.NewPlm(db, userAuth)
	router := chi.NewRouter()
	router.Mount("/api/v1", plm.Routes())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestClientObjectFlow(t *testing.T) {
	server := startTestServer(t)

	admin := NewPlmClient(server.URL)
	require.NoError(t, admin.Login(adminEmail, adminPassword))

	groupId, err := admin.CreateGroup("design", "design office")
	require.NoError(t, err)

	part, err := admin.CreateObject(CreateObjectArgs{
		Type:     "part",
		Revision: "a",
		Name:     "wheel",
		GroupId:  groupId,
	})
	require.NoError(t, err)
	assert.Equal(t, "PART_00001", part.Reference)
	assert.Equal(t, "draft", part.State)

	doc, err := admin.CreateObject(CreateObjectArgs{
		Type:     "document",
		Revision: "a",
		Name:     "manual",
		GroupId:  groupId,
	})
	require.NoError(t, err)

	status, err := admin.ObjectPromotable(doc.Id)
	require.NoError(t, err)
	assert.False(t, status.Promotable)
	assert.Equal(t, []string{"This document has no files."}, status.Reasons)

	_, err = admin.AddFile(doc.Id, "manual.pdf", 2048)
	require.NoError(t, err)

	doc, err = admin.Promote(doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "proposed", doc.State)

	doc, err = admin.Promote(doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "official", doc.State)

	require.NoError(t, admin.AttachDocument(part.Id, doc.Id))

	part, err = admin.Promote(part.Id)
	require.NoError(t, err)
	assert.Equal(t, "proposed", part.State)

	revised, err := admin.Revise(part.Id, "")
	require.NoError(t, err)
	assert.Equal(t, part.Reference, revised.Reference)
	assert.Equal(t, "b", revised.Revision)

	history, err := admin.ObjectHistory(part.Id)
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}

func TestClientAuthErrors(t *testing.T) {
	server := startTestServer(t)

	c := NewPlmClient(server.URL)
	err := c.Login(adminEmail, "wrong_password")
	require.Error(t, err)

	_, err = c.ListObjects("", "")
	require.Error(t, err)
}
