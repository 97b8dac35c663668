package versions

import (
	"log"

	"openplm/plmapp/schema"

	"gorm.io/gorm"
)

// Migration_0_initial_schema creates every table plus the cancelled
// lifecycle.
func Migration_0_initial_schema(txn *gorm.DB) error {
	log.Println("performing initial schema migration")

	err := txn.Migrator().AutoMigrate(
		&schema.State{}, &schema.Lifecycle{}, &schema.LifecycleState{},
		&schema.User{}, &schema.Group{}, &schema.UserGroup{},
		&schema.PlmObject{}, &schema.DocumentFile{}, &schema.Ecr{},
		&schema.RoleLink{}, &schema.ParentChildLink{}, &schema.DocumentPartLink{},
		&schema.RevisionLink{}, &schema.PromotionApproval{}, &schema.DelegationLink{},
		&schema.EcrObjectLink{}, &schema.History{}, &schema.StateHistory{},
	)
	if err != nil {
		return err
	}

	if err := schema.CreateCancelledLifecycle(txn); err != nil {
		return err
	}

	log.Println("initial schema migration complete")

	return nil
}
