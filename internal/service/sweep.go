package service

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/terravale/api/internal/repository"
	redisrepo "github.com/terravale/api/internal/repository/redis"
)

// UpgradeSweeper guarantees that due upgrades eventually complete even when
// no client is online to drive completion. It listens for Redis keyspace
// notifications on expired upgrade timer keys and runs a polling fallback
// over the order table for deployments where notifications are unavailable.
type UpgradeSweeper struct {
	rdb          *goredis.Client
	upgradeSvc   *UpgradeService
	buildingRepo repository.BuildingRepository
	interval     time.Duration
}

// NewUpgradeSweeper creates an UpgradeSweeper polling at the given interval.
func NewUpgradeSweeper(rdb *goredis.Client, upgradeSvc *UpgradeService, buildingRepo repository.BuildingRepository, interval time.Duration) *UpgradeSweeper {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &UpgradeSweeper{
		rdb:          rdb,
		upgradeSvc:   upgradeSvc,
		buildingRepo: buildingRepo,
		interval:     interval,
	}
}

// Start begins listening for expired timer keys and runs the polling
// fallback until ctx is canceled.
func (s *UpgradeSweeper) Start(ctx context.Context) {
	go s.listenKeyspace(ctx)
	s.pollDueOrders(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (s *UpgradeSweeper) listenKeyspace(ctx context.Context) {
	pubsub := s.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Upgrade sweeper listening for expired timer keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollDueOrders periodically completes orders past their finish time.
func (s *UpgradeSweeper) pollDueOrders(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Upgrade deadline poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Upgrade deadline poller stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce completes the oldest due order of every building with one. A
// chain with several due orders advances one level per sweep; the next tick
// picks up the successor.
func (s *UpgradeSweeper) sweepOnce(ctx context.Context) {
	due, err := s.buildingRepo.ListDue(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list due upgrades")
		return
	}
	if len(due) > 0 {
		log.Info().Int("count", len(due)).Msg("Sweeper found due upgrades")
	}
	for _, o := range due {
		s.complete(ctx, o.VillageID, o.Kind)
	}
}

// handleExpiry processes an expired key. Only acts on upgrade timer keys.
func (s *UpgradeSweeper) handleExpiry(ctx context.Context, key string) {
	villageID, kind, ok := redisrepo.ParseUpgradeTimerKey(key)
	if !ok {
		return
	}
	log.Info().Str("villageId", villageID).Str("kind", kind).Msg("Upgrade timer expired")
	s.complete(ctx, villageID, kind)
}

func (s *UpgradeSweeper) complete(ctx context.Context, villageID, kind string) {
	_, err := s.upgradeSvc.Complete(ctx, "", villageID, kind)
	if err != nil {
		// A client or a competing sweep path usually got there first.
		if errors.Is(err, ErrNotPending) || errors.Is(err, ErrNotYetDue) {
			log.Debug().Err(err).Str("villageId", villageID).Str("kind", kind).Msg("Sweep completion was a no-op")
			return
		}
		log.Error().Err(err).Str("villageId", villageID).Str("kind", kind).Msg("Sweep completion failed")
		return
	}
	log.Info().Str("villageId", villageID).Str("kind", kind).Msg("Sweeper completed upgrade")
}
