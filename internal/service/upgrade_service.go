package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terravale/api/internal/model"
	"github.com/terravale/api/internal/repository"
	"github.com/terravale/api/pkg/economy"
)

var (
	ErrVillageNotFound       = errors.New("village not found")
	ErrNotOwner              = errors.New("village belongs to another player")
	ErrUnknownKind           = errors.New("unknown building kind")
	ErrMaxLevelReached       = errors.New("building is already at the maximum level")
	ErrRequirementNotMet     = errors.New("upgrade requirement not met")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrNotPending            = errors.New("no pending upgrade for this building")
	ErrNotYetDue             = errors.New("upgrade has not finished yet")
	ErrStaleCancelTarget     = errors.New("a newer upgrade is queued behind this one; cancel the newest first")
)

// Event types broadcast over WebSocket.
const (
	EventUpgradeStarted   = "upgrade_started"
	EventUpgradeCompleted = "upgrade_completed"
	EventUpgradeCanceled  = "upgrade_canceled"
)

// cancelTolerance absorbs clock and serialization rounding when matching the
// finish time the caller was shown against the stored one.
const cancelTolerance = time.Second

// StartResult is the outcome of a successful Start: the authoritative finish
// time (the only value clients may count down from) and what was charged.
type StartResult struct {
	TargetLevel int
	FinishTime  time.Time
	Cost        model.Amounts
}

// CompleteResult is the outcome of a successful Complete.
type CompleteResult struct {
	Level     int
	Points    int
	Village   *model.Village
	Resources *model.ResourceBalance
}

// CancelResult is the outcome of a successful Cancel.
type CancelResult struct {
	Refund    model.Amounts
	Resources *model.ResourceBalance
}

// UpgradeService is the scheduler: it decides whether an upgrade may start,
// reserves resources, chains finish times, completes due orders, and cancels
// with refund. Each operation is one storage transaction.
type UpgradeService struct {
	villageRepo  repository.VillageRepository
	resourceRepo repository.ResourceRepository
	store        repository.UpgradeStore
	cache        repository.UpgradeTimerCache
	broadcaster  Broadcaster

	now func() time.Time
}

// NewUpgradeService creates an UpgradeService.
func NewUpgradeService(
	villageRepo repository.VillageRepository,
	resourceRepo repository.ResourceRepository,
	store repository.UpgradeStore,
	cache repository.UpgradeTimerCache,
	broadcaster Broadcaster,
) *UpgradeService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &UpgradeService{
		villageRepo:  villageRepo,
		resourceRepo: resourceRepo,
		store:        store,
		cache:        cache,
		broadcaster:  broadcaster,
		now:          time.Now,
	}
}

// authorize loads the village and verifies ownership. An empty userID marks
// an internal caller (the completion sweep) and skips the ownership check.
func (s *UpgradeService) authorize(ctx context.Context, userID, villageID string) (*model.Village, error) {
	village, err := s.villageRepo.FindByID(ctx, villageID)
	if err != nil {
		return nil, err
	}
	if village == nil {
		return nil, ErrVillageNotFound
	}
	if userID != "" && village.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return village, nil
}

// Start places a new upgrade order for (villageID, kind). The target level is
// re-derived server-side as current level plus queue depth plus one; the
// caller's requested level is advisory only, so a stale client can never skip
// levels. The new order chains strictly after any pending predecessor:
// finish = max(now, newest pending finish) + duration.
func (s *UpgradeService) Start(ctx context.Context, userID, villageID, kind string) (*StartResult, error) {
	if !economy.ValidKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if _, err := s.authorize(ctx, userID, villageID); err != nil {
		return nil, err
	}

	var result StartResult
	err := s.store.InTx(ctx, func(tx repository.UpgradeTx) error {
		building, err := tx.BuildingForUpdate(ctx, villageID, kind)
		if err != nil {
			return err
		}
		pending, err := tx.PendingOrders(ctx, villageID, kind)
		if err != nil {
			return err
		}

		target := building.Level + len(pending) + 1
		if target > economy.MaxLevel {
			return fmt.Errorf("%w: %s is at level %d with %d queued", ErrMaxLevelReached, kind, building.Level, len(pending))
		}

		levels, err := tx.BuildingLevels(ctx, villageID)
		if err != nil {
			return err
		}
		if ok, reason := economy.CheckRequirements(levels, kind, target); !ok {
			return fmt.Errorf("%w: %s", ErrRequirementNotMet, reason)
		}

		cost := economy.CostFor(kind, target)
		amounts := model.Amounts{Wood: cost.Wood, Stone: cost.Stone}
		if err := tx.DebitResources(ctx, villageID, amounts); err != nil {
			var short *repository.InsufficientError
			if errors.As(err, &short) {
				return fmt.Errorf("%w: %s", ErrInsufficientResources, short.Error())
			}
			return err
		}

		base := s.now()
		if n := len(pending); n > 0 && pending[n-1].FinishesAt.After(base) {
			base = pending[n-1].FinishesAt
		}
		finish := base.Add(cost.Duration)

		order := &model.UpgradeOrder{
			VillageID:       villageID,
			Kind:            kind,
			TargetLevel:     target,
			CostWood:        cost.Wood,
			CostStone:       cost.Stone,
			DurationSeconds: int64(cost.Duration / time.Second),
			FinishesAt:      finish,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		result = StartResult{TargetLevel: target, FinishTime: finish, Cost: amounts}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetUpgradeTimer(ctx, villageID, kind, result.FinishTime); err != nil {
		log.Warn().Err(err).Str("villageId", villageID).Str("kind", kind).Msg("Failed to arm upgrade timer")
	}
	s.broadcaster.BroadcastVillageEvent(villageID, EventUpgradeStarted, map[string]any{
		"kind":         kind,
		"target_level": result.TargetLevel,
		"finish_time":  result.FinishTime,
		"cost":         result.Cost,
	})
	return &result, nil
}

// Complete finishes the oldest pending order for (villageID, kind), advancing
// the level by exactly one and awarding points to the village score. Rejected
// with ErrNotPending when the queue is empty and ErrNotYetDue before the
// order's finish time, which makes racing callers (client timer, sweep,
// reconciliation after reload) safe: the first commit consumes the order and
// the rest are rejected without a double award.
func (s *UpgradeService) Complete(ctx context.Context, userID, villageID, kind string) (*CompleteResult, error) {
	if !economy.ValidKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if _, err := s.authorize(ctx, userID, villageID); err != nil {
		return nil, err
	}

	var result CompleteResult
	var queueEmpty bool
	err := s.store.InTx(ctx, func(tx repository.UpgradeTx) error {
		if _, err := tx.BuildingForUpdate(ctx, villageID, kind); err != nil {
			return err
		}
		pending, err := tx.PendingOrders(ctx, villageID, kind)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return ErrNotPending
		}

		order := pending[0]
		if s.now().Before(order.FinishesAt) {
			return fmt.Errorf("%w: finishes at %s", ErrNotYetDue, order.FinishesAt.UTC().Format(time.RFC3339))
		}

		if err := tx.SetLevel(ctx, villageID, kind, order.TargetLevel); err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, order.ID); err != nil {
			return err
		}

		points := economy.PointsForLevel(kind)
		total, err := tx.AddPoints(ctx, villageID, points)
		if err != nil {
			return err
		}

		result.Level = order.TargetLevel
		result.Points = total
		queueEmpty = len(pending) == 1
		return nil
	})
	if err != nil {
		return nil, err
	}

	if queueEmpty {
		if err := s.cache.ClearUpgradeTimer(ctx, villageID, kind); err != nil {
			log.Warn().Err(err).Str("villageId", villageID).Str("kind", kind).Msg("Failed to clear upgrade timer")
		}
	}

	village, err := s.villageRepo.FindByID(ctx, villageID)
	if err != nil {
		return nil, err
	}
	resources, err := s.resourceRepo.Get(ctx, villageID)
	if err != nil {
		return nil, err
	}
	result.Village = village
	result.Resources = resources

	s.broadcaster.BroadcastVillageEvent(villageID, EventUpgradeCompleted, map[string]any{
		"kind":   kind,
		"level":  result.Level,
		"points": result.Points,
	})
	return &result, nil
}

// Cancel removes the newest pending order for (villageID, kind) and refunds
// its full cost. shownFinish must match the stored finish time of the newest
// order within a one second tolerance; a mismatch means another order was
// chained after the one the caller was looking at, and only the last link of
// the chain may be canceled.
func (s *UpgradeService) Cancel(ctx context.Context, userID, villageID, kind string, shownFinish time.Time) (*CancelResult, error) {
	if !economy.ValidKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if _, err := s.authorize(ctx, userID, villageID); err != nil {
		return nil, err
	}

	var refund model.Amounts
	var remaining []model.UpgradeOrder
	err := s.store.InTx(ctx, func(tx repository.UpgradeTx) error {
		if _, err := tx.BuildingForUpdate(ctx, villageID, kind); err != nil {
			return err
		}
		pending, err := tx.PendingOrders(ctx, villageID, kind)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return ErrNotPending
		}

		last := pending[len(pending)-1]
		if delta := shownFinish.Sub(last.FinishesAt); delta > cancelTolerance || delta < -cancelTolerance {
			return fmt.Errorf("%w: queue now finishes at %s", ErrStaleCancelTarget, last.FinishesAt.UTC().Format(time.RFC3339))
		}

		if err := tx.DeleteOrder(ctx, last.ID); err != nil {
			return err
		}
		refund = last.Cost()
		if err := tx.CreditResources(ctx, villageID, refund); err != nil {
			return err
		}

		remaining = pending[:len(pending)-1]
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(remaining) == 0 {
		if err := s.cache.ClearUpgradeTimer(ctx, villageID, kind); err != nil {
			log.Warn().Err(err).Str("villageId", villageID).Str("kind", kind).Msg("Failed to clear upgrade timer")
		}
	} else {
		deadline := remaining[len(remaining)-1].FinishesAt
		if err := s.cache.SetUpgradeTimer(ctx, villageID, kind, deadline); err != nil {
			log.Warn().Err(err).Str("villageId", villageID).Str("kind", kind).Msg("Failed to re-arm upgrade timer")
		}
	}

	resources, err := s.resourceRepo.Get(ctx, villageID)
	if err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastVillageEvent(villageID, EventUpgradeCanceled, map[string]any{
		"kind":   kind,
		"refund": refund,
	})
	return &CancelResult{Refund: refund, Resources: resources}, nil
}
