package repository

import (
	"context"
	"time"

	"github.com/terravale/api/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// VillageRepository defines village data operations.
type VillageRepository interface {
	Create(ctx context.Context, ownerID, name string, x, y int) (*model.Village, error)
	FindByID(ctx context.Context, id string) (*model.Village, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Village, error)
	// Positions returns every occupied grid position as {x, y} pairs.
	Positions(ctx context.Context) ([][2]int, error)
}

// ResourceRepository is the resource ledger: the only path that mutates a
// village's balances. Debit checks every quantity first and fails atomically
// with an InsufficientError; Credit is unconditional.
type ResourceRepository interface {
	Get(ctx context.Context, villageID string) (*model.ResourceBalance, error)
	Debit(ctx context.Context, villageID string, amounts model.Amounts) error
	Credit(ctx context.Context, villageID string, amounts model.Amounts) error
}

// BuildingRepository defines read access to upgrade records and their queues.
type BuildingRepository interface {
	ListByVillage(ctx context.Context, villageID string) ([]model.Building, error)
	Get(ctx context.Context, villageID, kind string) (*model.Building, error)
	PendingOrders(ctx context.Context, villageID, kind string) ([]model.UpgradeOrder, error)
	// ListDue returns the oldest pending order per (village, kind) whose
	// finish time has passed. Used by the completion sweep.
	ListDue(ctx context.Context, now time.Time) ([]model.UpgradeOrder, error)
}

// UpgradeStore runs scheduler operations as single transactions. Every
// start/complete/cancel is one InTx call; the building and resource rows are
// locked for the duration so concurrent calls against the same (village,
// kind) serialize and the chaining base is always the latest finish time.
type UpgradeStore interface {
	InTx(ctx context.Context, fn func(tx UpgradeTx) error) error
}

// UpgradeTx is the transaction-scoped view of the stores the scheduler
// mutates. Implementations must acquire row locks in *ForUpdate methods.
type UpgradeTx interface {
	// BuildingForUpdate locks the building row, creating it at level 0 on
	// first use (records are created lazily and never deleted).
	BuildingForUpdate(ctx context.Context, villageID, kind string) (*model.Building, error)
	// BuildingLevels returns the current completed level per kind for the
	// village. Requirement checks read this live, never a cached copy.
	BuildingLevels(ctx context.Context, villageID string) (map[string]int, error)
	// PendingOrders returns the building's queue oldest-first.
	PendingOrders(ctx context.Context, villageID, kind string) ([]model.UpgradeOrder, error)
	InsertOrder(ctx context.Context, o *model.UpgradeOrder) error
	DeleteOrder(ctx context.Context, orderID string) error
	SetLevel(ctx context.Context, villageID, kind string, level int) error
	AddPoints(ctx context.Context, villageID string, points int) (int, error)
	// ResourcesForUpdate locks and returns the village's balances.
	ResourcesForUpdate(ctx context.Context, villageID string) (*model.ResourceBalance, error)
	// DebitResources performs a checked, all-or-nothing debit against the
	// locked balances.
	DebitResources(ctx context.Context, villageID string, amounts model.Amounts) error
	CreditResources(ctx context.Context, villageID string, amounts model.Amounts) error
}

// UpgradeTimerCache holds the deadline timers that drive the completion
// sweep (Redis TTL keys).
type UpgradeTimerCache interface {
	SetUpgradeTimer(ctx context.Context, villageID, kind string, deadline time.Time) error
	ClearUpgradeTimer(ctx context.Context, villageID, kind string) error
}
