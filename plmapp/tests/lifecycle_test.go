package tests

import (
	"errors"
	"slices"
	"testing"
)

func TestCreateLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	alice, err := env.newContributor(admin, "alice")
	if err != nil {
		t.Fatal(err)
	}

	if err := alice.createLifecycle("short", []string{"draft", "official"}, "official"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("only admins can create lifecycles: %v", err)
	}

	err = admin.createLifecycle("short", []string{"draft", "official", "retired"}, "official")
	if err != nil {
		t.Fatal(err)
	}
	if err := admin.createLifecycle("short", []string{"a", "b"}, "b"); err == nil {
		t.Fatal("duplicate lifecycle should fail")
	}
	if err := admin.createLifecycle("cancelled", []string{"a"}, "a"); err == nil {
		t.Fatal("the cancelled name is reserved")
	}
	if err := admin.createLifecycle("bad", []string{"a", "b"}, "c"); err == nil {
		t.Fatal("official state must be in the state list")
	}
}

func TestListLifecycles(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	lifecycles, err := admin.listLifecycles()
	if err != nil {
		t.Fatal(err)
	}

	byName := map[string]lifecycleInfo{}
	for _, lc := range lifecycles {
		byName[lc.Name] = lc
	}

	standard, ok := byName["standard"]
	if !ok {
		t.Fatal("missing standard lifecycle")
	}
	if standard.Type != "standard" || standard.Official != "official" {
		t.Fatalf("invalid standard lifecycle %v", standard)
	}
	if !slices.Equal(standard.States, []string{"draft", "proposed", "official", "deprecated"}) {
		t.Fatalf("invalid state list %v", standard.States)
	}

	if byName["ecr"].Type != "ecr" {
		t.Fatalf("invalid ecr lifecycle %v", byName["ecr"])
	}
	if byName["cancelled"].Type != "cancelled" {
		t.Fatalf("invalid cancelled lifecycle %v", byName["cancelled"])
	}
}
