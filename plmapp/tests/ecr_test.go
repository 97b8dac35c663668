package tests

import (
	"testing"
)

func TestEcrFlow(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, _, part := newGroupWithPart(t, env, admin, "alice")

	ecr, err := alice.createEcr("replace hub bearing", "the bearing seizes under load")
	if err != nil {
		t.Fatal(err)
	}
	if ecr.Reference != "ECR_00001" || ecr.State != "draft" || ecr.OwnerId != alice.userId {
		t.Fatalf("invalid ecr %v", ecr)
	}

	if _, err := alice.createEcr("", ""); err == nil {
		t.Fatal("ecr name is required")
	}

	if err := alice.attachToEcr(ecr.Id, part.Id); err != nil {
		t.Fatal(err)
	}
	if err := alice.attachToEcr(ecr.Id, part.Id); err == nil {
		t.Fatal("duplicate attachment should fail")
	}
	objects, err := alice.ecrObjects(ecr.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 1 || objects[0] != part.Id {
		t.Fatalf("invalid attachments %v", objects)
	}

	ecr, err = alice.promoteEcr(ecr.Id)
	if err != nil {
		t.Fatal(err)
	}
	if ecr.State != "review" {
		t.Fatalf("expected review, got %v", ecr.State)
	}
	ecr, err = alice.promoteEcr(ecr.Id)
	if err != nil {
		t.Fatal(err)
	}
	if ecr.State != "closed" {
		t.Fatalf("expected closed, got %v", ecr.State)
	}
	if _, err := alice.promoteEcr(ecr.Id); err == nil {
		t.Fatal("closed ecr cannot be promoted further")
	}
}

func TestEcrCancel(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, _, part := newGroupWithPart(t, env, admin, "alice")

	ecr, err := alice.createEcr("obsolete request", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := alice.attachToEcr(ecr.Id, part.Id); err != nil {
		t.Fatal(err)
	}

	ecr, err = alice.cancelEcr(ecr.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !ecr.Cancelled || ecr.State != "cancelled" {
		t.Fatalf("invalid cancelled ecr %v", ecr)
	}
	if ecr.OwnerId == alice.userId {
		t.Fatal("cancelled ecr should be handed over to the company principal")
	}

	objects, err := alice.ecrObjects(ecr.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(objects) != 0 {
		t.Fatal("attachments should be ended on cancel")
	}

	if _, err := alice.cancelEcr(ecr.Id); err == nil {
		t.Fatal("double cancel should fail")
	}
	if err := alice.attachToEcr(ecr.Id, part.Id); err == nil {
		t.Fatal("cancelled ecr cannot take attachments")
	}
}

func TestEcrPromoteRequiresSigner(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, err := env.newContributor(admin, "alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := env.newContributor(admin, "bob")
	if err != nil {
		t.Fatal(err)
	}

	ecr, err := alice.createEcr("tighten tolerances", "")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := bob.promoteEcr(ecr.Id); err == nil {
		t.Fatal("non signers cannot promote the ecr")
	}
	if _, err := alice.promoteEcr(ecr.Id); err != nil {
		t.Fatal(err)
	}
}
