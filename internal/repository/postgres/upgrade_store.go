package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/terravale/api/internal/model"
	"github.com/terravale/api/internal/repository"
)

// UpgradeStore runs scheduler operations as single Postgres transactions
// with row-level locks on the building and resource rows, so concurrent
// start/complete/cancel calls for the same (village, kind) serialize.
type UpgradeStore struct {
	db *sql.DB
}

// NewUpgradeStore creates an UpgradeStore.
func NewUpgradeStore(db *sql.DB) *UpgradeStore {
	return &UpgradeStore{db: db}
}

// InTx executes fn inside one transaction, committing on success and rolling
// back on any error. Domain errors from fn (requirement failures, shortfalls)
// roll back cleanly: no partial application.
func (s *UpgradeStore) InTx(ctx context.Context, fn func(tx repository.UpgradeTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&upgradeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type upgradeTx struct {
	tx *sql.Tx
}

// BuildingForUpdate locks the building row, creating it lazily at level 0.
// The insert-then-lock order means two concurrent first orders for the same
// kind race on the insert; ON CONFLICT makes the loser fall through to the
// lock and queue behind the winner.
func (t *upgradeTx) BuildingForUpdate(ctx context.Context, villageID, kind string) (*model.Building, error) {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO buildings (village_id, kind) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, villageID, kind)
	if err != nil {
		return nil, fmt.Errorf("ensure building: %w", err)
	}

	var b model.Building
	err = t.tx.QueryRowContext(ctx,
		`SELECT village_id, kind, level, created_at
		 FROM buildings WHERE village_id = $1 AND kind = $2
		 FOR UPDATE`, villageID, kind,
	).Scan(&b.VillageID, &b.Kind, &b.Level, &b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("lock building: %w", err)
	}
	return &b, nil
}

func (t *upgradeTx) BuildingLevels(ctx context.Context, villageID string) (map[string]int, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT kind, level FROM buildings WHERE village_id = $1`, villageID)
	if err != nil {
		return nil, fmt.Errorf("building levels: %w", err)
	}
	defer rows.Close()

	levels := make(map[string]int)
	for rows.Next() {
		var kind string
		var level int
		if err := rows.Scan(&kind, &level); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels[kind] = level
	}
	return levels, rows.Err()
}

func (t *upgradeTx) PendingOrders(ctx context.Context, villageID, kind string) ([]model.UpgradeOrder, error) {
	return pendingOrders(ctx, t.tx, villageID, kind)
}

func (t *upgradeTx) InsertOrder(ctx context.Context, o *model.UpgradeOrder) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO upgrade_orders (village_id, kind, target_level, cost_wood, cost_stone, duration_seconds, finishes_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		o.VillageID, o.Kind, o.TargetLevel, o.CostWood, o.CostStone, o.DurationSeconds, o.FinishesAt,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *upgradeTx) DeleteOrder(ctx context.Context, orderID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM upgrade_orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete order: %s not found", orderID)
	}
	return nil
}

func (t *upgradeTx) SetLevel(ctx context.Context, villageID, kind string, level int) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE buildings SET level = $3 WHERE village_id = $1 AND kind = $2`,
		villageID, kind, level)
	if err != nil {
		return fmt.Errorf("set level: %w", err)
	}
	return nil
}

func (t *upgradeTx) AddPoints(ctx context.Context, villageID string, points int) (int, error) {
	var total int
	err := t.tx.QueryRowContext(ctx,
		`UPDATE villages SET points = points + $2 WHERE id = $1 RETURNING points`,
		villageID, points,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	return total, nil
}

func (t *upgradeTx) ResourcesForUpdate(ctx context.Context, villageID string) (*model.ResourceBalance, error) {
	return getResources(ctx, t.tx, villageID, true)
}

func (t *upgradeTx) DebitResources(ctx context.Context, villageID string, amounts model.Amounts) error {
	return debitResources(ctx, t.tx, villageID, amounts)
}

func (t *upgradeTx) CreditResources(ctx context.Context, villageID string, amounts model.Amounts) error {
	return creditResources(ctx, t.tx, villageID, amounts)
}
