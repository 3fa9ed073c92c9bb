package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/terravale/api/internal/model"
)

// BuildingRepo handles upgrade record and queue reads.
type BuildingRepo struct {
	db *sql.DB
}

// NewBuildingRepo creates a BuildingRepo.
func NewBuildingRepo(db *sql.DB) *BuildingRepo {
	return &BuildingRepo{db: db}
}

const buildingSelect = `
	SELECT b.village_id, b.kind, b.level, b.created_at,
	       max(o.finishes_at) AS busy_until, min(o.finishes_at) AS next_finish, count(o.id) AS pending
	FROM buildings b
	LEFT JOIN upgrade_orders o ON o.village_id = b.village_id AND o.kind = b.kind`

// ListByVillage returns every building record in a village with its queue
// summary (newest finish time, pending count).
func (r *BuildingRepo) ListByVillage(ctx context.Context, villageID string) ([]model.Building, error) {
	rows, err := r.db.QueryContext(ctx,
		buildingSelect+`
		 WHERE b.village_id = $1
		 GROUP BY b.village_id, b.kind, b.level, b.created_at
		 ORDER BY b.kind`, villageID)
	if err != nil {
		return nil, fmt.Errorf("list buildings: %w", err)
	}
	defer rows.Close()

	var buildings []model.Building
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, err
		}
		buildings = append(buildings, *b)
	}
	return buildings, rows.Err()
}

// Get returns one building record, or nil if it has never been ordered.
func (r *BuildingRepo) Get(ctx context.Context, villageID, kind string) (*model.Building, error) {
	rows, err := r.db.QueryContext(ctx,
		buildingSelect+`
		 WHERE b.village_id = $1 AND b.kind = $2
		 GROUP BY b.village_id, b.kind, b.level, b.created_at`, villageID, kind)
	if err != nil {
		return nil, fmt.Errorf("get building: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanBuilding(rows)
}

// PendingOrders returns a building's queue oldest-first. target_level is the
// queue position: created_at is the transaction start timestamp, and two
// starts racing on the row lock can commit in the opposite order they began.
func (r *BuildingRepo) PendingOrders(ctx context.Context, villageID, kind string) ([]model.UpgradeOrder, error) {
	return pendingOrders(ctx, r.db, villageID, kind)
}

// ListDue returns the oldest pending order per (village, kind) whose finish
// time has passed. DISTINCT ON keeps one order per building so the sweep
// completes chains one level at a time.
func (r *BuildingRepo) ListDue(ctx context.Context, now time.Time) ([]model.UpgradeOrder, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (village_id, kind)
		        id, village_id, kind, target_level, cost_wood, cost_stone, duration_seconds, finishes_at, created_at
		 FROM upgrade_orders
		 WHERE finishes_at <= $1
		 ORDER BY village_id, kind, target_level`, now)
	if err != nil {
		return nil, fmt.Errorf("list due orders: %w", err)
	}
	defer rows.Close()

	var orders []model.UpgradeOrder
	for rows.Next() {
		var o model.UpgradeOrder
		if err := rows.Scan(&o.ID, &o.VillageID, &o.Kind, &o.TargetLevel, &o.CostWood, &o.CostStone,
			&o.DurationSeconds, &o.FinishesAt, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan due order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanBuilding(rows *sql.Rows) (*model.Building, error) {
	var b model.Building
	var busyUntil, nextFinish sql.NullTime
	if err := rows.Scan(&b.VillageID, &b.Kind, &b.Level, &b.CreatedAt, &busyUntil, &nextFinish, &b.PendingCount); err != nil {
		return nil, fmt.Errorf("scan building: %w", err)
	}
	if busyUntil.Valid {
		t := busyUntil.Time
		b.BusyUntil = &t
	}
	if nextFinish.Valid {
		t := nextFinish.Time
		b.NextFinishAt = &t
	}
	return &b, nil
}

func pendingOrders(ctx context.Context, q querier, villageID, kind string) ([]model.UpgradeOrder, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, village_id, kind, target_level, cost_wood, cost_stone, duration_seconds, finishes_at, created_at
		 FROM upgrade_orders
		 WHERE village_id = $1 AND kind = $2
		 ORDER BY target_level`, villageID, kind)
	if err != nil {
		return nil, fmt.Errorf("pending orders: %w", err)
	}
	defer rows.Close()

	var orders []model.UpgradeOrder
	for rows.Next() {
		var o model.UpgradeOrder
		if err := rows.Scan(&o.ID, &o.VillageID, &o.Kind, &o.TargetLevel, &o.CostWood, &o.CostStone,
			&o.DurationSeconds, &o.FinishesAt, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
