package model

import (
	"time"
)

// User represents a registered player.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Village represents a player-owned settlement on the shared grid.
type Village struct {
	ID         string           `json:"id"`
	OwnerID    string           `json:"owner_id"`
	Name       string           `json:"name"`
	X          int              `json:"x"`
	Y          int              `json:"y"`
	Population int              `json:"population"`
	Points     int              `json:"points"`
	CreatedAt  time.Time        `json:"created_at"`
	Buildings  []Building       `json:"buildings,omitempty"`
	Resources  *ResourceBalance `json:"resources,omitempty"`
}

// ResourceBalance holds a village's five resource quantities.
// Mutated only through the resource ledger; never negative.
type ResourceBalance struct {
	VillageID string `json:"village_id"`
	Wood      int64  `json:"wood"`
	Stone     int64  `json:"stone"`
	Water     int64  `json:"water"`
	Food      int64  `json:"food"`
	Luxury    int64  `json:"luxury"`
	// ProductionRate is always 0: regeneration over time is a deliberate stub.
	ProductionRate int       `json:"production_rate"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Amounts is a set of resource quantities used for debits, credits, and refunds.
// Zero fields are omitted on the wire.
type Amounts struct {
	Wood   int64 `json:"wood,omitempty"`
	Stone  int64 `json:"stone,omitempty"`
	Water  int64 `json:"water,omitempty"`
	Food   int64 `json:"food,omitempty"`
	Luxury int64 `json:"luxury,omitempty"`
}

// IsZero reports whether every quantity is zero.
func (a Amounts) IsZero() bool {
	return a.Wood == 0 && a.Stone == 0 && a.Water == 0 && a.Food == 0 && a.Luxury == 0
}

// Building is the upgrade record for one building kind in a village.
// Level is the last completed level; BusyUntil is the finish time of the
// newest pending order, or nil when the queue is empty.
type Building struct {
	VillageID string     `json:"village_id"`
	Kind      string     `json:"kind"`
	Level     int        `json:"level"`
	BusyUntil *time.Time `json:"busy_until,omitempty"`
	// NextFinishAt is the oldest pending order's finish time: the moment the
	// next completion becomes due. Equal to BusyUntil unless orders are chained.
	NextFinishAt *time.Time `json:"next_finish_at,omitempty"`
	PendingCount int        `json:"pending_count"`
	CreatedAt    time.Time  `json:"created_at"`
}

// UpgradeOrder is one pending upgrade in a building's queue. Orders for a
// (village, kind) form a FIFO chain: each finishes after its predecessor.
type UpgradeOrder struct {
	ID              string    `json:"id"`
	VillageID       string    `json:"village_id"`
	Kind            string    `json:"kind"`
	TargetLevel     int       `json:"target_level"`
	CostWood        int64     `json:"cost_wood"`
	CostStone       int64     `json:"cost_stone"`
	DurationSeconds int64     `json:"duration_seconds"`
	FinishesAt      time.Time `json:"finishes_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Cost returns the order's resource cost as refundable amounts.
func (o UpgradeOrder) Cost() Amounts {
	return Amounts{Wood: o.CostWood, Stone: o.CostStone}
}
