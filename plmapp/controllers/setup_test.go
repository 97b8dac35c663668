package controllers

import (
	"testing"
	"time"

	"openplm/plmapp/schema"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDb(t *testing.T) *gorm.DB {
	t.Helper()
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

	company := schema.User{
		Id:        uuid.New(),
		Username:  "company",
		Email:     "company@plm.example",
		IsCompany: true,
		IsActive:  true,
	}
	if err := db.Create(&company).Error; err != nil {
		t.Fatal(err)
	}
	return db
}

func newTestUser(t *testing.T, db *gorm.DB, username string, contributor bool) schema.User {
	t.Helper()
	user := schema.User{
		Id:            uuid.New(),
		Username:      username,
		Email:         username + "@plm.example",
		IsContributor: contributor,
		IsActive:      true,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	return user
}

func newTestGroup(t *testing.T, db *gorm.DB, name string, members ...schema.User) schema.Group {
	t.Helper()
	group := schema.Group{Id: uuid.New(), Name: name}
	if len(members) > 0 {
		group.OwnerId = members[0].Id
	}
	if err := db.Create(&group).Error; err != nil {
		t.Fatal(err)
	}
	for _, member := range members {
		if err := db.Create(&schema.UserGroup{UserId: member.Id, GroupId: group.Id}).Error; err != nil {
			t.Fatal(err)
		}
	}
	return group
}

func newTestPart(t *testing.T, db *gorm.DB, user schema.User, group schema.Group, name string) *PartController {
	t.Helper()
	base, err := Create(CreateParams{
		Type:     schema.KindPart,
		Revision: "a",
		Name:     name,
		GroupId:  group.Id,
	}, user, db)
	if err != nil {
		t.Fatal(err)
	}
	return &PartController{PlmObjectController: base}
}

func newTestDocument(t *testing.T, db *gorm.DB, user schema.User, group schema.Group, name string) *DocumentController {
	t.Helper()
	base, err := Create(CreateParams{
		Type:     schema.KindDocument,
		Revision: "a",
		Name:     name,
		GroupId:  group.Id,
	}, user, db)
	if err != nil {
		t.Fatal(err)
	}
	return &DocumentController{PlmObjectController: base}
}

// attachOfficialDocument gives the part an official attached document so that
// a childless draft part passes the promotion checks.
func attachOfficialDocument(t *testing.T, db *gorm.DB, part *PartController, user schema.User, group schema.Group) *DocumentController {
	t.Helper()
	doc := newTestDocument(t, db, user, group, part.Object().Name+" spec sheet")
	if _, err := doc.AddFile("datasheet.pdf", 1024); err != nil {
		t.Fatal(err)
	}
	if err := part.AttachDocument(doc.Object().Id); err != nil {
		t.Fatal(err)
	}
	for doc.Object().StateName != "official" {
		if err := doc.Promote(); err != nil {
			t.Fatal(err)
		}
	}
	return doc
}

func delegate(t *testing.T, db *gorm.DB, delegator, delegatee schema.User, role string) {
	t.Helper()
	link := schema.DelegationLink{
		Id:          uuid.New(),
		DelegatorId: delegator.Id,
		DelegateeId: delegatee.Id,
		Role:        role,
		Ctime:       time.Now().UTC(),
	}
	if err := db.Create(&link).Error; err != nil {
		t.Fatal(err)
	}
}
