package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/terravale/api/internal/model"
	"github.com/terravale/api/internal/repository"
)

// querier is satisfied by both *sql.DB and *sql.Tx so ledger operations can
// run standalone or inside a scheduler transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ResourceRepo is the Postgres resource ledger.
type ResourceRepo struct {
	db *sql.DB
}

// NewResourceRepo creates a ResourceRepo.
func NewResourceRepo(db *sql.DB) *ResourceRepo {
	return &ResourceRepo{db: db}
}

// Get returns a village's resource balances, or nil if the village has none.
func (r *ResourceRepo) Get(ctx context.Context, villageID string) (*model.ResourceBalance, error) {
	return getResources(ctx, r.db, villageID, false)
}

// Debit atomically subtracts amounts from the village's balances. Every
// quantity is checked against the locked row first; if any would go negative
// the whole debit is rejected with an InsufficientError and nothing changes.
func (r *ResourceRepo) Debit(ctx context.Context, villageID string, amounts model.Amounts) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := debitResources(ctx, tx, villageID, amounts); err != nil {
		return err
	}
	return tx.Commit()
}

// Credit adds amounts to the village's balances unconditionally (refunds
// have no upper bound).
func (r *ResourceRepo) Credit(ctx context.Context, villageID string, amounts model.Amounts) error {
	return creditResources(ctx, r.db, villageID, amounts)
}

func getResources(ctx context.Context, q querier, villageID string, forUpdate bool) (*model.ResourceBalance, error) {
	query := `SELECT village_id, wood, stone, water, food, luxury, updated_at
	          FROM resources WHERE village_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var b model.ResourceBalance
	err := q.QueryRowContext(ctx, query, villageID).
		Scan(&b.VillageID, &b.Wood, &b.Stone, &b.Water, &b.Food, &b.Luxury, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get resources: %w", err)
	}
	return &b, nil
}

func debitResources(ctx context.Context, q querier, villageID string, amounts model.Amounts) error {
	b, err := getResources(ctx, q, villageID, true)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("debit: no resources for village %s", villageID)
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
			return &repository.InsufficientError{
				Resource:  c.name,
				Requested: c.requested,
				Available: c.available,
			}
		}
	}

	_, err = q.ExecContext(ctx,
		`UPDATE resources
		 SET wood = wood - $2, stone = stone - $3, water = water - $4,
		     food = food - $5, luxury = luxury - $6, updated_at = now()
		 WHERE village_id = $1`,
		villageID, amounts.Wood, amounts.Stone, amounts.Water, amounts.Food, amounts.Luxury,
	)
	if err != nil {
		return fmt.Errorf("debit resources: %w", err)
	}
	return nil
}

func creditResources(ctx context.Context, q querier, villageID string, amounts model.Amounts) error {
	_, err := q.ExecContext(ctx,
		`UPDATE resources
		 SET wood = wood + $2, stone = stone + $3, water = water + $4,
		     food = food + $5, luxury = luxury + $6, updated_at = now()
		 WHERE village_id = $1`,
		villageID, amounts.Wood, amounts.Stone, amounts.Water, amounts.Food, amounts.Luxury,
	)
	if err != nil {
		return fmt.Errorf("credit resources: %w", err)
	}
	return nil
}
