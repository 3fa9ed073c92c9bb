package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/terravale/api/internal/model"
	"github.com/terravale/api/internal/repository"
)

// VillageService provisions villages and serves the composed village views
// the client reconciler rebuilds its queue from.
type VillageService struct {
	villageRepo  repository.VillageRepository
	resourceRepo repository.ResourceRepository
	buildingRepo repository.BuildingRepository
}

// NewVillageService creates a VillageService.
func NewVillageService(
	villageRepo repository.VillageRepository,
	resourceRepo repository.ResourceRepository,
	buildingRepo repository.BuildingRepository,
) *VillageService {
	return &VillageService{
		villageRepo:  villageRepo,
		resourceRepo: resourceRepo,
		buildingRepo: buildingRepo,
	}
}

// provisionAttempts bounds the retry loop when concurrent provisioning
// races two players onto the same grid cell.
const provisionAttempts = 3

// Provision creates a new village for the player at the next free grid
// position, with starting resources and no buildings (records are created
// lazily on first order). The position read and the insert are not one
// transaction, so a lost race on the unique (x, y) constraint retries
// against a fresh position snapshot.
func (s *VillageService) Provision(ctx context.Context, ownerID, name string) (*model.Village, error) {
	var lastErr error
	for attempt := 0; attempt < provisionAttempts; attempt++ {
		taken, err := s.villageRepo.Positions(ctx)
		if err != nil {
			return nil, err
		}
		x, y := nextFreePosition(taken)

		village, err := s.villageRepo.Create(ctx, ownerID, name, x, y)
		if err == nil {
			log.Info().Str("villageId", village.ID).Str("ownerId", ownerID).
				Int("x", x).Int("y", y).Msg("Village provisioned")
			return village, nil
		}
		if !errors.Is(err, repository.ErrPositionTaken) {
			return nil, err
		}
		log.Debug().Str("ownerId", ownerID).Int("x", x).Int("y", y).
			Msg("Grid position taken; retrying provision")
		lastErr = err
	}
	return nil, lastErr
}

// EnsureFirstVillage provisions a starting village for a player who has none.
// Called after registration so every player owns at least one settlement.
func (s *VillageService) EnsureFirstVillage(ctx context.Context, ownerID, displayName string) (*model.Village, error) {
	villages, err := s.villageRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(villages) > 0 {
		return &villages[0], nil
	}

	name := "New Settlement"
	if displayName != "" {
		name = fmt.Sprintf("%s's Settlement", displayName)
	}
	return s.Provision(ctx, ownerID, name)
}

// GetVillage returns one owned village with buildings and resources attached.
func (s *VillageService) GetVillage(ctx context.Context, userID, villageID string) (*model.Village, error) {
	village, err := s.villageRepo.FindByID(ctx, villageID)
	if err != nil {
		return nil, err
	}
	if village == nil {
		return nil, ErrVillageNotFound
	}
	if village.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return s.attach(ctx, village)
}

// ListVillages returns all of the player's villages with buildings and
// resources attached. This is the reconciler's rebuild source: it discards
// local queue state and re-reads everything here.
func (s *VillageService) ListVillages(ctx context.Context, userID string) ([]model.Village, error) {
	villages, err := s.villageRepo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range villages {
		if _, err := s.attach(ctx, &villages[i]); err != nil {
			return nil, err
		}
	}
	return villages, nil
}

// GetResources returns an owned village's resource balances.
func (s *VillageService) GetResources(ctx context.Context, userID, villageID string) (*model.ResourceBalance, error) {
	village, err := s.villageRepo.FindByID(ctx, villageID)
	if err != nil {
		return nil, err
	}
	if village == nil {
		return nil, ErrVillageNotFound
	}
	if village.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return s.resourceRepo.Get(ctx, villageID)
}

func (s *VillageService) attach(ctx context.Context, v *model.Village) (*model.Village, error) {
	buildings, err := s.buildingRepo.ListByVillage(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	resources, err := s.resourceRepo.Get(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	v.Buildings = buildings
	v.Resources = resources
	return v, nil
}

// nextFreePosition walks expanding square rings around the origin and
// returns the first unoccupied grid position.
func nextFreePosition(taken [][2]int) (int, int) {
	occupied := make(map[[2]int]bool, len(taken))
	for _, p := range taken {
		occupied[p] = true
	}

	if !occupied[[2]int{0, 0}] {
		return 0, 0
	}
	for ring := 1; ; ring++ {
		for y := -ring; y <= ring; y++ {
			for x := -ring; x <= ring; x++ {
				if x > -ring && x < ring && y > -ring && y < ring {
					continue
				}
				if !occupied[[2]int{x, y}] {
					return x, y
				}
			}
		}
	}
}
