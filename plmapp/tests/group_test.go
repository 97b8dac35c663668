package tests

import (
	"errors"
	"testing"
)

func TestCreateGroup(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, err := env.newContributor(admin, "alice")
	if err != nil {
		t.Fatal(err)
	}

	groupId, err := alice.createGroup("wheels")
	if err != nil {
		t.Fatal(err)
	}
	if groupId == "" {
		t.Fatal("missing group id")
	}

	if _, err := alice.createGroup("wheels"); err == nil {
		t.Fatal("duplicate group name should fail")
	}
}

func TestGroupMembership(t *testing.T) {
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

	groupId, err := alice.createGroup("wheels")
	if err != nil {
		t.Fatal(err)
	}

	// Only the group owner (or an admin) can manage members.
	if err := bob.addUserToGroup(groupId, bob.userId); err == nil {
		t.Fatal("non owner should not be able to add members")
	}
	if err := alice.addUserToGroup(groupId, bob.userId); err != nil {
		t.Fatal(err)
	}
	if err := alice.addUserToGroup(groupId, bob.userId); err == nil {
		t.Fatal("duplicate membership should fail")
	}

	if err := admin.removeUserFromGroup(groupId, bob.userId); err != nil {
		t.Fatal(err)
	}
	if err := alice.removeUserFromGroup(groupId, bob.userId); err == nil {
		t.Fatal("removing a non member should fail")
	}
}

func TestCreateGroupRequiresContributor(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	login, err := admin.addUser("carol", "carol@mail.com", "carol_password", false)
	if err != nil {
		t.Fatal(err)
	}
	carol := env.newClient()
	if err := carol.login(login); err != nil {
		t.Fatal(err)
	}

	if _, err := carol.createGroup("nope"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non contributors cannot create groups: %v", err)
	}
}
