package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/terravale/api/internal/model"
	"github.com/terravale/api/internal/repository"
)

// Starting balances for a freshly provisioned village.
const (
	startWood   = 750
	startStone  = 250
	startWater  = 500
	startFood   = 500
	startLuxury = 100

	startPopulation = 100
)

// VillageRepo handles village database operations.
type VillageRepo struct {
	db *sql.DB
}

// NewVillageRepo creates a VillageRepo.
func NewVillageRepo(db *sql.DB) *VillageRepo {
	return &VillageRepo{db: db}
}

// Create inserts a village and its starting resource balances atomically.
func (r *VillageRepo) Create(ctx context.Context, ownerID, name string, x, y int) (*model.Village, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var v model.Village
	err = tx.QueryRowContext(ctx,
		`INSERT INTO villages (owner_id, name, x, y, population)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, owner_id, name, x, y, population, points, created_at`,
		ownerID, name, x, y, startPopulation,
	).Scan(&v.ID, &v.OwnerID, &v.Name, &v.X, &v.Y, &v.Population, &v.Points, &v.CreatedAt)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("create village at (%d,%d): %w", x, y, repository.ErrPositionTaken)
	}
	if err != nil {
		return nil, fmt.Errorf("create village: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO resources (village_id, wood, stone, water, food, luxury)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, startWood, startStone, startWater, startFood, startLuxury,
	)
	if err != nil {
		return nil, fmt.Errorf("create starting resources: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create village: %w", err)
	}
	return &v, nil
}

// FindByID returns a village by ID, or nil if it does not exist.
func (r *VillageRepo) FindByID(ctx context.Context, id string) (*model.Village, error) {
	var v model.Village
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, x, y, population, points, created_at
		 FROM villages WHERE id = $1`, id,
	).Scan(&v.ID, &v.OwnerID, &v.Name, &v.X, &v.Y, &v.Population, &v.Points, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if isInvalidUUID(err) {
		return nil, fmt.Errorf("find village %q: %w", id, repository.ErrInvalidID)
	}
	if err != nil {
		return nil, fmt.Errorf("find village: %w", err)
	}
	return &v, nil
}

// ListByOwner returns all villages owned by a player, oldest first.
func (r *VillageRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Village, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, x, y, population, points, created_at
		 FROM villages WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list villages: %w", err)
	}
	defer rows.Close()

	var villages []model.Village
	for rows.Next() {
		var v model.Village
		if err := rows.Scan(&v.ID, &v.OwnerID, &v.Name, &v.X, &v.Y, &v.Population, &v.Points, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan village: %w", err)
		}
		villages = append(villages, v)
	}
	return villages, rows.Err()
}

// Positions returns every occupied grid position.
func (r *VillageRepo) Positions(ctx context.Context) ([][2]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT x, y FROM villages`)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions [][2]int
	for rows.Next() {
		var x, y int
		if err := rows.Scan(&x, &y); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, [2]int{x, y})
	}
	return positions, rows.Err()
}
