package tests

import (
	"errors"
	"slices"
	"testing"
	"time"
)

// newGroupWithPart is the common preamble of the object tests: a contributor
// with a group and a draft part.
func newGroupWithPart(t *testing.T, env *testEnv, admin client, username string) (client, string, objectInfo) {
	t.Helper()

	user, err := env.newContributor(admin, username)
	if err != nil {
		t.Fatal(err)
	}
	groupId, err := user.createGroup(username + "-group")
	if err != nil {
		t.Fatal(err)
	}
	part, err := user.createObject("part", "wheel", groupId)
	if err != nil {
		t.Fatal(err)
	}
	return user, groupId, part
}

func TestCreateObject(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, groupId, part := newGroupWithPart(t, env, admin, "alice")

	if part.Reference != "PART_00001" || part.Revision != "a" || part.State != "draft" {
		t.Fatalf("invalid part %v", part)
	}
	if part.OwnerId != alice.userId {
		t.Fatal("creator should own the part")
	}

	doc, err := alice.createObject("document", "wheel drawing", groupId)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Reference != "DOC_00001" {
		t.Fatalf("invalid document reference %v", doc.Reference)
	}

	if _, err := alice.createObject("sprocket", "x", groupId); err == nil {
		t.Fatal("unknown type should fail")
	}

	history, err := alice.objectHistory(part.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Action != "Create" {
		t.Fatalf("invalid history %v", history)
	}
}

func TestObjectReadVisibility(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, groupId, part := newGroupWithPart(t, env, admin, "alice")
	mallory, err := env.newContributor(admin, "mallory")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mallory.objectInfo(part.Id); !errors.Is(err, ErrForbidden) {
		t.Fatalf("an outsider should not see the part, got %v", err)
	}
	if _, err := admin.objectInfo(part.Id); err != nil {
		t.Fatal(err)
	}
	if _, err := alice.objectInfo(part.Id); err != nil {
		t.Fatal(err)
	}

	if err := alice.addUserToGroup(groupId, mallory.userId); err != nil {
		t.Fatal(err)
	}
	if _, err := mallory.objectInfo(part.Id); err != nil {
		t.Fatal(err)
	}
}

func TestDocumentPromotionFlow(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, err := env.newContributor(admin, "alice")
	if err != nil {
		t.Fatal(err)
	}
	groupId, err := alice.createGroup("docs")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := alice.createObject("document", "manual", groupId)
	if err != nil {
		t.Fatal(err)
	}

	check, err := alice.promotable(doc.Id)
	if err != nil {
		t.Fatal(err)
	}
	if check.Promotable || !slices.Contains(check.Reasons, "This document has no files.") {
		t.Fatalf("empty document should not be promotable: %v", check)
	}

	file, err := alice.addFile(doc.Id, "manual.pdf", 2048)
	if err != nil {
		t.Fatal(err)
	}

	if err := alice.lockFile(doc.Id, file.Id); err != nil {
		t.Fatal(err)
	}
	check, err = alice.promotable(doc.Id)
	if err != nil {
		t.Fatal(err)
	}
	if check.Promotable || !slices.Contains(check.Reasons, "Some files are locked.") {
		t.Fatalf("locked files should block promotion: %v", check)
	}
	if err := alice.unlockFile(doc.Id, file.Id); err != nil {
		t.Fatal(err)
	}

	doc, err = alice.promote(doc.Id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.State != "proposed" {
		t.Fatalf("expected proposed, got %v", doc.State)
	}

	doc, err = alice.promote(doc.Id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.State != "official" {
		t.Fatalf("expected official, got %v", doc.State)
	}
	// Officialization hands the object over to the company principal.
	if doc.OwnerId == alice.userId {
		t.Fatal("official document should no longer be owned by its editor")
	}

	if _, err := alice.addFile(doc.Id, "late.pdf", 1); err == nil {
		t.Fatal("official documents are not editable")
	}
}

func TestPartPromotionNeedsOfficialDocument(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, groupId, part := newGroupWithPart(t, env, admin, "alice")

	check, err := alice.promotable(part.Id)
	if err != nil {
		t.Fatal(err)
	}
	if check.Promotable || !slices.Contains(check.Reasons, "There are no official documents attached.") {
		t.Fatalf("part without official document should not be promotable: %v", check)
	}

	doc, err := alice.createObject("document", "wheel drawing", groupId)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.addFile(doc.Id, "drawing.dxf", 512); err != nil {
		t.Fatal(err)
	}
	if err := alice.attachDocument(part.Id, doc.Id); err != nil {
		t.Fatal(err)
	}
	for state := doc.State; state != "official"; {
		doc, err = alice.promote(doc.Id)
		if err != nil {
			t.Fatal(err)
		}
		state = doc.State
	}

	attached, err := alice.attachedDocuments(part.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(attached) != 1 || attached[0] != doc.Id {
		t.Fatalf("invalid attachments %v", attached)
	}

	part, err = alice.promote(part.Id)
	if err != nil {
		t.Fatal(err)
	}
	if part.State != "proposed" {
		t.Fatalf("expected proposed, got %v", part.State)
	}
}

func TestBomAndChildStates(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, groupId, parent := newGroupWithPart(t, env, admin, "alice")

	child, err := alice.createObject("part", "hub", groupId)
	if err != nil {
		t.Fatal(err)
	}

	if err := alice.addChild(parent.Id, child.Id, 2, 10); err != nil {
		t.Fatal(err)
	}
	if err := alice.addChild(parent.Id, child.Id, 1, 20); err == nil {
		t.Fatal("duplicate bom edge should fail")
	}
	if err := alice.addChild(child.Id, parent.Id, 1, 10); err == nil {
		t.Fatal("cycles should be refused")
	}

	children, err := alice.children(parent.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].ChildId != child.Id || children[0].Quantity != 2 {
		t.Fatalf("invalid children %v", children)
	}

	check, err := alice.promotable(parent.Id)
	if err != nil {
		t.Fatal(err)
	}
	if check.Promotable || !slices.Contains(check.Reasons, "Some children are at a lower or draft state.") {
		t.Fatalf("draft child should block promotion: %v", check)
	}
}

func TestPromotionQuorum(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, groupId, _ := newGroupWithPart(t, env, admin, "alice")
	bob, err := env.newContributor(admin, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if err := alice.addUserToGroup(groupId, bob.userId); err != nil {
		t.Fatal(err)
	}

	doc, err := alice.createObject("document", "shared manual", groupId)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.addFile(doc.Id, "manual.pdf", 100); err != nil {
		t.Fatal(err)
	}

	if err := alice.setSigner(doc.Id, bob.userId, 0); err != nil {
		t.Fatal(err)
	}

	doc, err = alice.approve(doc.Id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.State != "draft" {
		t.Fatal("promotion should wait for the second signer")
	}
	if _, err := alice.approve(doc.Id); err == nil {
		t.Fatal("double votes should be rejected")
	}

	doc, err = bob.approve(doc.Id)
	if err != nil {
		t.Fatal(err)
	}
	if doc.State != "proposed" {
		t.Fatalf("expected proposed after full quorum, got %v", doc.State)
	}
}

func TestReviseAndCancel(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, _, part := newGroupWithPart(t, env, admin, "alice")

	next, err := alice.reviseObject(part.Id, "b")
	if err != nil {
		t.Fatal(err)
	}
	if next.Revision != "b" || next.Reference != part.Reference {
		t.Fatalf("invalid revision %v", next)
	}

	// References with several revisions cannot be cancelled.
	if _, err := alice.cancelObject(next.Id); err == nil {
		t.Fatal("cancel should be refused while another revision exists")
	}
	if _, err := alice.cancelObject(part.Id); err == nil {
		t.Fatal("cancel should be refused while another revision exists")
	}

	old, err := alice.objectInfo(part.Id)
	if err != nil {
		t.Fatal(err)
	}
	if old.Cancelled {
		t.Fatal("previous revision should still be alive")
	}

	solo, err := alice.createObject("part", "axle", part.GroupId)
	if err != nil {
		t.Fatal(err)
	}
	cancelled, err := alice.cancelObject(solo.Id)
	if err != nil {
		t.Fatal(err)
	}
	if !cancelled.Cancelled || cancelled.State != "cancelled" {
		t.Fatalf("invalid cancelled object %v", cancelled)
	}
}

func TestStateAt(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, err := env.newContributor(admin, "alice")
	if err != nil {
		t.Fatal(err)
	}
	groupId, err := alice.createGroup("docs")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := alice.createObject("document", "manual", groupId)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.addFile(doc.Id, "manual.pdf", 100); err != nil {
		t.Fatal(err)
	}

	beforePromote := time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := alice.promote(doc.Id); err != nil {
		t.Fatal(err)
	}

	state, err := alice.stateAt(doc.Id, beforePromote)
	if err != nil {
		t.Fatal(err)
	}
	if state.State != "draft" {
		t.Fatalf("expected draft at capture time, got %v", state.State)
	}

	now := time.Now().UTC().Add(time.Second).Format(time.RFC3339Nano)
	state, err = alice.stateAt(doc.Id, now)
	if err != nil {
		t.Fatal(err)
	}
	if state.State != "proposed" {
		t.Fatalf("expected proposed now, got %v", state.State)
	}

	before := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339Nano)
	if _, err := alice.stateAt(doc.Id, before); err == nil {
		t.Fatal("object had no state an hour ago")
	}
}
