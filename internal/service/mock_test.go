package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/terravale/api/internal/model"
	"github.com/terravale/api/internal/repository"
)

type mockVillageRepo struct {
	villages   map[string]*model.Village
	createErrs []error // popped one per Create, simulating insert races
	creates    int
}

func newMockVillageRepo() *mockVillageRepo {
	return &mockVillageRepo{villages: make(map[string]*model.Village)}
}

func (m *mockVillageRepo) Create(_ context.Context, ownerID, name string, x, y int) (*model.Village, error) {
	m.creates++
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	v := &model.Village{
		ID:         fmt.Sprintf("village-%d", len(m.villages)+1),
		OwnerID:    ownerID,
		Name:       name,
		X:          x,
		Y:          y,
		Population: 100,
		CreatedAt:  time.Now(),
	}
	m.villages[v.ID] = v
	return v, nil
}

func (m *mockVillageRepo) FindByID(_ context.Context, id string) (*model.Village, error) {
	v, ok := m.villages[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (m *mockVillageRepo) ListByOwner(_ context.Context, ownerID string) ([]model.Village, error) {
	var result []model.Village
	for _, v := range m.villages {
		if v.OwnerID == ownerID {
			result = append(result, *v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockVillageRepo) Positions(_ context.Context) ([][2]int, error) {
	var taken [][2]int
	for _, v := range m.villages {
		taken = append(taken, [2]int{v.X, v.Y})
	}
	return taken, nil
}

type mockResourceRepo struct {
	balances map[string]*model.ResourceBalance
}

func newMockResourceRepo() *mockResourceRepo {
	return &mockResourceRepo{balances: make(map[string]*model.ResourceBalance)}
}

func (m *mockResourceRepo) set(villageID string, wood, stone, water, food, luxury int64) {
	m.balances[villageID] = &model.ResourceBalance{
		VillageID: villageID,
		Wood:      wood,
		Stone:     stone,
		Water:     water,
		Food:      food,
		Luxury:    luxury,
		UpdatedAt: time.Now(),
	}
}

func (m *mockResourceRepo) Get(_ context.Context, villageID string) (*model.ResourceBalance, error) {
	b, ok := m.balances[villageID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *mockResourceRepo) Debit(_ context.Context, villageID string, amounts model.Amounts) error {
	return debitBalance(m.balances[villageID], amounts)
}

func (m *mockResourceRepo) Credit(_ context.Context, villageID string, amounts model.Amounts) error {
	creditBalance(m.balances[villageID], amounts)
	return nil
}

func debitBalance(b *model.ResourceBalance, amounts model.Amounts) error {
	if b == nil {
		return fmt.Errorf("no balance row")
	}
	checks := []struct {
		name      string
		requested int64
		available int64
	}{
		{"wood", amounts.Wood, b.Wood},
		{"stone", amounts.Stone, b.Stone},
		{"water", amounts.Water, b.Water},
		{"food", amounts.Food, b.Food},
		{"luxury", amounts.Luxury, b.Luxury},
	}
	for _, c := range checks {
		if c.requested > c.available {
			return &repository.InsufficientError{Resource: c.name, Requested: c.requested, Available: c.available}
		}
	}
	b.Wood -= amounts.Wood
	b.Stone -= amounts.Stone
	b.Water -= amounts.Water
	b.Food -= amounts.Food
	b.Luxury -= amounts.Luxury
	b.UpdatedAt = time.Now()
	return nil
}

func creditBalance(b *model.ResourceBalance, amounts model.Amounts) {
	if b == nil {
		return
	}
	b.Wood += amounts.Wood
	b.Stone += amounts.Stone
	b.Water += amounts.Water
	b.Food += amounts.Food
	b.Luxury += amounts.Luxury
	b.UpdatedAt = time.Now()
}

// mockUpgradeStore implements both UpgradeStore and UpgradeTx over in-memory
// maps, sharing the resource balances with a mockResourceRepo so post-commit
// reads in the service observe the transaction's writes.
type mockUpgradeStore struct {
	buildings map[string]*model.Building // keyed villageID+"/"+kind
	orders    []*model.UpgradeOrder
	resources *mockResourceRepo
	villages  *mockVillageRepo
	nextOrder int
}

func newMockUpgradeStore(villages *mockVillageRepo, resources *mockResourceRepo) *mockUpgradeStore {
	return &mockUpgradeStore{
		buildings: make(map[string]*model.Building),
		resources: resources,
		villages:  villages,
	}
}

func (m *mockUpgradeStore) InTx(_ context.Context, fn func(tx repository.UpgradeTx) error) error {
	return fn(m)
}

func (m *mockUpgradeStore) BuildingForUpdate(_ context.Context, villageID, kind string) (*model.Building, error) {
	key := villageID + "/" + kind
	b, ok := m.buildings[key]
	if !ok {
		b = &model.Building{VillageID: villageID, Kind: kind, Level: 0, CreatedAt: time.Now()}
		m.buildings[key] = b
	}
	cp := *b
	return &cp, nil
}

func (m *mockUpgradeStore) BuildingLevels(_ context.Context, villageID string) (map[string]int, error) {
	levels := make(map[string]int)
	for _, b := range m.buildings {
		if b.VillageID == villageID {
			levels[b.Kind] = b.Level
		}
	}
	return levels, nil
}

func (m *mockUpgradeStore) PendingOrders(_ context.Context, villageID, kind string) ([]model.UpgradeOrder, error) {
	var result []model.UpgradeOrder
	for _, o := range m.orders {
		if o.VillageID == villageID && o.Kind == kind {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TargetLevel < result[j].TargetLevel })
	return result, nil
}

func (m *mockUpgradeStore) InsertOrder(_ context.Context, o *model.UpgradeOrder) error {
	m.nextOrder++
	o.ID = fmt.Sprintf("order-%d", m.nextOrder)
	o.CreatedAt = time.Now()
	cp := *o
	m.orders = append(m.orders, &cp)
	return nil
}

func (m *mockUpgradeStore) DeleteOrder(_ context.Context, orderID string) error {
	for i, o := range m.orders {
		if o.ID == orderID {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("order %s not found", orderID)
}

func (m *mockUpgradeStore) SetLevel(_ context.Context, villageID, kind string, level int) error {
	b, ok := m.buildings[villageID+"/"+kind]
	if !ok {
		return fmt.Errorf("building %s/%s not found", villageID, kind)
	}
	b.Level = level
	return nil
}

func (m *mockUpgradeStore) AddPoints(_ context.Context, villageID string, points int) (int, error) {
	v, ok := m.villages.villages[villageID]
	if !ok {
		return 0, fmt.Errorf("village %s not found", villageID)
	}
	v.Points += points
	return v.Points, nil
}

func (m *mockUpgradeStore) ResourcesForUpdate(_ context.Context, villageID string) (*model.ResourceBalance, error) {
	return m.resources.Get(context.Background(), villageID)
}

func (m *mockUpgradeStore) DebitResources(_ context.Context, villageID string, amounts model.Amounts) error {
	return debitBalance(m.resources.balances[villageID], amounts)
}

func (m *mockUpgradeStore) CreditResources(_ context.Context, villageID string, amounts model.Amounts) error {
	creditBalance(m.resources.balances[villageID], amounts)
	return nil
}

type mockTimerCache struct {
	timers map[string]time.Time
}

func newMockTimerCache() *mockTimerCache {
	return &mockTimerCache{timers: make(map[string]time.Time)}
}

func (m *mockTimerCache) SetUpgradeTimer(_ context.Context, villageID, kind string, deadline time.Time) error {
	m.timers[villageID+"/"+kind] = deadline
	return nil
}

func (m *mockTimerCache) ClearUpgradeTimer(_ context.Context, villageID, kind string) error {
	delete(m.timers, villageID+"/"+kind)
	return nil
}

type mockBuildingRepo struct {
	store *mockUpgradeStore
}

func (m *mockBuildingRepo) ListByVillage(_ context.Context, villageID string) ([]model.Building, error) {
	var result []model.Building
	for _, b := range m.store.buildings {
		if b.VillageID != villageID {
			continue
		}
		cp := *b
		for _, o := range m.store.orders {
			if o.VillageID != villageID || o.Kind != b.Kind {
				continue
			}
			cp.PendingCount++
			f := o.FinishesAt
			if cp.BusyUntil == nil || f.After(*cp.BusyUntil) {
				t := f
				cp.BusyUntil = &t
			}
			if cp.NextFinishAt == nil || f.Before(*cp.NextFinishAt) {
				t := f
				cp.NextFinishAt = &t
			}
		}
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result, nil
}

func (m *mockBuildingRepo) Get(_ context.Context, villageID, kind string) (*model.Building, error) {
	all, _ := m.ListByVillage(context.Background(), villageID)
	for _, b := range all {
		if b.Kind == kind {
			cp := b
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockBuildingRepo) PendingOrders(ctx context.Context, villageID, kind string) ([]model.UpgradeOrder, error) {
	return m.store.PendingOrders(ctx, villageID, kind)
}

func (m *mockBuildingRepo) ListDue(_ context.Context, now time.Time) ([]model.UpgradeOrder, error) {
	oldest := make(map[string]model.UpgradeOrder)
	for _, o := range m.store.orders {
		if o.FinishesAt.After(now) {
			continue
		}
		key := o.VillageID + "/" + o.Kind
		if cur, ok := oldest[key]; !ok || o.TargetLevel < cur.TargetLevel {
			oldest[key] = *o
		}
	}
	var result []model.UpgradeOrder
	for _, o := range oldest {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// recordingBroadcaster captures events for assertions.
type recordingBroadcaster struct {
	events []broadcastEvent
}

type broadcastEvent struct {
	villageID string
	eventType string
	data      any
}

func (r *recordingBroadcaster) BroadcastVillageEvent(villageID, eventType string, data any) {
	r.events = append(r.events, broadcastEvent{villageID, eventType, data})
}
