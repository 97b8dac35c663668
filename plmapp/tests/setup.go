package tests

import (
	"bytes"
	"testing"

	"openplm/plmapp/auth"
	"openplm/plmapp/schema"
	"openplm/plmapp/services"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	plm services.Plm
	api chi.Router
	db  *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"

	companyUsername = "company"
)

func setupTestEnv(t *testing.T) *testEnv {
	schema.ResetLifecycleCache()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	err = db.AutoMigrate(
		&schema.State{}, &schema.Lifecycle{}, &schema.LifecycleState{},
		&schema.User{}, &schema.Group{}, &schema.UserGroup{},
		&schema.PlmObject{}, &schema.DocumentFile{}, &schema.Ecr{},
		&schema.RoleLink{}, &schema.ParentChildLink{}, &schema.DocumentPartLink{},
		&schema.RevisionLink{}, &schema.PromotionApproval{}, &schema.DelegationLink{},
		&schema.EcrObjectLink{}, &schema.History{}, &schema.StateHistory{},
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := schema.CreateCancelledLifecycle(db); err != nil {
		t.Fatal(err)
	}
	_, err = schema.LifecycleFromStates("standard",
		[]string{"draft", "proposed", "official", "deprecated"}, "official", db)
	if err != nil {
		t.Fatal(err)
	}
	_, err = schema.LifecycleFromStates("ecr",
		[]string{"draft", "review", "closed"}, "closed", db)
	if err != nil {
		t.Fatal(err)
	}

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:          []byte("290zcv02ai249"),
			AdminUsername:   adminUsername,
			AdminEmail:      adminEmail,
			AdminPassword:   adminPassword,
			CompanyUsername: companyUsername,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	plm := services.NewPlm(db, userAuth)

	return &testEnv{plm: plm, api: plm.Routes(), db: db}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}

// newContributor creates a contributor account through the admin api and
// returns a client logged in as that user.
func (t *testEnv) newContributor(admin client, username string) (client, error) {
	login, err := admin.addUser(username, username+"@mail.com", username+"_password", true)
	if err != nil {
		return client{}, err
	}

	c := t.newClient()
	err = c.login(login)
	return c, err
}
