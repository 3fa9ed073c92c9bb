package service

import (
	"context"
	"errors"
	"testing"

	"github.com/terravale/api/internal/repository"
)

func newVillageFixture() (*VillageService, *mockVillageRepo, *mockResourceRepo, *mockUpgradeStore) {
	villages := newMockVillageRepo()
	resources := newMockResourceRepo()
	store := newMockUpgradeStore(villages, resources)
	svc := NewVillageService(villages, resources, &mockBuildingRepo{store: store})
	return svc, villages, resources, store
}

func TestProvisionAssignsFreePositions(t *testing.T) {
	svc, _, _, _ := newVillageFixture()
	ctx := context.Background()

	first, err := svc.Provision(ctx, "user-1", "First")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if first.X != 0 || first.Y != 0 {
		t.Errorf("expected first village at origin, got (%d,%d)", first.X, first.Y)
	}

	second, err := svc.Provision(ctx, "user-2", "Second")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if second.X == first.X && second.Y == first.Y {
		t.Error("two villages share a grid position")
	}
}

func TestProvisionRetriesOnPositionCollision(t *testing.T) {
	svc, villages, _, _ := newVillageFixture()
	ctx := context.Background()

	// A concurrent provision can claim the chosen cell between the
	// position read and the insert; the unique violation is retried.
	villages.createErrs = []error{repository.ErrPositionTaken}

	v, err := svc.Provision(ctx, "user-1", "Outpost")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if v == nil {
		t.Fatal("expected a village after retry")
	}
	if villages.creates != 2 {
		t.Errorf("expected 2 create attempts, got %d", villages.creates)
	}
}

func TestProvisionGivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, villages, _, _ := newVillageFixture()
	ctx := context.Background()

	villages.createErrs = []error{
		repository.ErrPositionTaken,
		repository.ErrPositionTaken,
		repository.ErrPositionTaken,
	}

	if _, err := svc.Provision(ctx, "user-1", "Outpost"); !errors.Is(err, repository.ErrPositionTaken) {
		t.Fatalf("expected ErrPositionTaken after exhausted retries, got %v", err)
	}
	if villages.creates != 3 {
		t.Errorf("expected 3 create attempts, got %d", villages.creates)
	}
}

func TestNextFreePositionWalksRings(t *testing.T) {
	x, y := nextFreePosition(nil)
	if x != 0 || y != 0 {
		t.Errorf("expected origin, got (%d,%d)", x, y)
	}

	// With the origin taken, the next position is on ring 1.
	x, y = nextFreePosition([][2]int{{0, 0}})
	if x < -1 || x > 1 || y < -1 || y > 1 || (x == 0 && y == 0) {
		t.Errorf("expected a ring-1 position, got (%d,%d)", x, y)
	}

	// Fill ring 0 and 1 completely; the next position is on ring 2.
	var taken [][2]int
	for yy := -1; yy <= 1; yy++ {
		for xx := -1; xx <= 1; xx++ {
			taken = append(taken, [2]int{xx, yy})
		}
	}
	x, y = nextFreePosition(taken)
	if x < -2 || x > 2 || y < -2 || y > 2 || (x >= -1 && x <= 1 && y >= -1 && y <= 1) {
		t.Errorf("expected a ring-2 position, got (%d,%d)", x, y)
	}
}

func TestEnsureFirstVillage(t *testing.T) {
	svc, _, _, _ := newVillageFixture()
	ctx := context.Background()

	v, err := svc.EnsureFirstVillage(ctx, "user-1", "Alice")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if v.Name != "Alice's Settlement" {
		t.Errorf("expected named settlement, got %q", v.Name)
	}

	// A second call returns the existing village instead of provisioning.
	again, err := svc.EnsureFirstVillage(ctx, "user-1", "Alice")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again.ID != v.ID {
		t.Errorf("expected the existing village %s, got %s", v.ID, again.ID)
	}
}

func TestEnsureFirstVillageDefaultName(t *testing.T) {
	svc, _, _, _ := newVillageFixture()
	v, err := svc.EnsureFirstVillage(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if v.Name != "New Settlement" {
		t.Errorf("expected default name, got %q", v.Name)
	}
}

func TestGetVillageOwnership(t *testing.T) {
	svc, _, resources, _ := newVillageFixture()
	ctx := context.Background()

	v, _ := svc.Provision(ctx, "user-1", "Home")
	resources.set(v.ID, 750, 250, 500, 500, 100)

	got, err := svc.GetVillage(ctx, "user-1", v.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Resources == nil || got.Resources.Wood != 750 {
		t.Errorf("expected attached resources, got %+v", got.Resources)
	}

	if _, err := svc.GetVillage(ctx, "user-2", v.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if _, err := svc.GetVillage(ctx, "user-1", "missing"); !errors.Is(err, ErrVillageNotFound) {
		t.Errorf("expected ErrVillageNotFound, got %v", err)
	}
}

func TestListVillagesAttachesState(t *testing.T) {
	svc, _, resources, store := newVillageFixture()
	ctx := context.Background()

	v, _ := svc.Provision(ctx, "user-1", "Home")
	resources.set(v.ID, 100, 50, 0, 0, 0)
	if _, err := store.BuildingForUpdate(ctx, v.ID, "farm"); err != nil {
		t.Fatalf("seed building: %v", err)
	}

	list, err := svc.ListVillages(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 village, got %d", len(list))
	}
	if len(list[0].Buildings) != 1 || list[0].Buildings[0].Kind != "farm" {
		t.Errorf("expected farm building attached, got %+v", list[0].Buildings)
	}
	if list[0].Resources == nil || list[0].Resources.Wood != 100 {
		t.Errorf("expected resources attached, got %+v", list[0].Resources)
	}
}

func TestGetResourcesOwnership(t *testing.T) {
	svc, _, resources, _ := newVillageFixture()
	ctx := context.Background()

	v, _ := svc.Provision(ctx, "user-1", "Home")
	resources.set(v.ID, 1, 2, 3, 4, 5)

	b, err := svc.GetResources(ctx, "user-1", v.ID)
	if err != nil {
		t.Fatalf("get resources: %v", err)
	}
	if b.Luxury != 5 {
		t.Errorf("expected luxury 5, got %d", b.Luxury)
	}

	if _, err := svc.GetResources(ctx, "user-2", v.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
}
