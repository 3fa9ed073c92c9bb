package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/terravale/api/internal/model"
)

// villageCap is the client-side limit on pending orders per village. The
// server does not enforce it; the reconciler refuses to start past it.
const villageCap = 5

// API is the server surface the reconciler drives. *Client satisfies it.
type API interface {
	ListVillages() ([]model.Village, error)
	StartUpgrade(villageID, kind string, level int) (*StartResponse, error)
	CompleteUpgrade(villageID, kind string, level int) error
	CancelUpgrade(villageID, kind string, level int, finish time.Time, refund model.Amounts) error
}

// QueueEntry is one building's pending work as last reported by the server.
type QueueEntry struct {
	VillageID    string
	Kind         string
	Level        int
	Deadline     time.Time
	BusyUntil    time.Time
	PendingCount int
}

// Due reports whether the oldest order behind this entry has finished.
func (e QueueEntry) Due(now time.Time) bool {
	return !e.Deadline.IsZero() && !now.Before(e.Deadline)
}

// Reconciler mirrors the server's build queues and fires completion calls
// when orders come due. All local state is disposable: Refresh throws it
// away and rebuilds from the server's view.
type Reconciler struct {
	api API
	now func() time.Time

	mu        sync.Mutex
	entries   map[string]QueueEntry // keyed by villageID + "/" + kind
	villages  []model.Village
	pending   map[string]int // per-village pending order total
	resources map[string]model.ResourceBalance
}

// New creates a Reconciler over the given API.
func New(api API) *Reconciler {
	return &Reconciler{
		api:       api,
		now:       time.Now,
		entries:   make(map[string]QueueEntry),
		pending:   make(map[string]int),
		resources: make(map[string]model.ResourceBalance),
	}
}

func entryKey(villageID, kind string) string { return villageID + "/" + kind }

// Refresh discards all local queue state and rebuilds it from the server.
// Orders already past their finish time are completed before the new view
// is recorded, so a reconnecting client converges in one pass.
func (r *Reconciler) Refresh(ctx context.Context) error {
	villages, err := r.api.ListVillages()
	if err != nil {
		return fmt.Errorf("list villages: %w", err)
	}

	now := r.now()
	for _, v := range villages {
		for _, b := range v.Buildings {
			if b.NextFinishAt == nil || now.Before(*b.NextFinishAt) {
				continue
			}
			if err := r.api.CompleteUpgrade(v.ID, b.Kind, b.Level+1); err != nil {
				log.Warn().Err(err).Str("villageId", v.ID).Str("kind", b.Kind).
					Msg("Overdue completion failed during refresh")
			}
		}
	}

	// Re-fetch if anything was overdue so the recorded view is post-completion.
	villages, err = r.api.ListVillages()
	if err != nil {
		return fmt.Errorf("list villages: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.villages = villages
	r.entries = make(map[string]QueueEntry)
	r.pending = make(map[string]int)
	r.resources = make(map[string]model.ResourceBalance)
	for _, v := range villages {
		if v.Resources != nil {
			r.resources[v.ID] = *v.Resources
		}
		for _, b := range v.Buildings {
			if b.PendingCount == 0 {
				continue
			}
			e := QueueEntry{
				VillageID:    v.ID,
				Kind:         b.Kind,
				Level:        b.Level,
				PendingCount: b.PendingCount,
			}
			if b.NextFinishAt != nil {
				e.Deadline = *b.NextFinishAt
			}
			if b.BusyUntil != nil {
				e.BusyUntil = *b.BusyUntil
			}
			r.entries[entryKey(v.ID, b.Kind)] = e
			r.pending[v.ID] += b.PendingCount
		}
	}
	return nil
}

// Tick completes every entry whose deadline has passed, then refreshes so
// chained orders behind a completed one get fresh deadlines.
func (r *Reconciler) Tick(ctx context.Context) error {
	now := r.now()

	r.mu.Lock()
	var due []QueueEntry
	for _, e := range r.entries {
		if e.Due(now) {
			due = append(due, e)
		}
	}
	r.mu.Unlock()

	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Deadline.Before(due[j].Deadline) })

	for _, e := range due {
		if err := r.api.CompleteUpgrade(e.VillageID, e.Kind, e.Level+1); err != nil {
			log.Debug().Err(err).Str("villageId", e.VillageID).Str("kind", e.Kind).
				Msg("Completion rejected; server view wins")
		}
	}
	return r.Refresh(ctx)
}

// Start requests a new upgrade order, enforcing the per-village queue cap
// locally before touching the server.
func (r *Reconciler) Start(ctx context.Context, villageID, kind string) (*StartResponse, error) {
	r.mu.Lock()
	count := r.pending[villageID]
	r.mu.Unlock()
	if count >= villageCap {
		return nil, fmt.Errorf("village %s already has %d pending orders", villageID, count)
	}

	resp, err := r.api.StartUpgrade(villageID, kind, 0)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	key := entryKey(villageID, kind)
	e, ok := r.entries[key]
	if !ok {
		e = QueueEntry{VillageID: villageID, Kind: kind, Level: resp.Level - 1, Deadline: resp.FinishTime}
	}
	e.PendingCount++
	if e.BusyUntil.Before(resp.FinishTime) {
		e.BusyUntil = resp.FinishTime
	}
	if e.Deadline.IsZero() || resp.FinishTime.Before(e.Deadline) {
		e.Deadline = resp.FinishTime
	}
	r.entries[key] = e
	r.pending[villageID]++
	r.mu.Unlock()

	return resp, nil
}

// Cancel aborts the newest pending order on a building. Each kind's queue is
// independent: the entry's BusyUntil is its kind's newest finish time, so that
// is the order offered for cancellation. Older same-kind orders have chained
// work stacked behind them and are never offered.
func (r *Reconciler) Cancel(ctx context.Context, villageID, kind string) error {
	r.mu.Lock()
	key := entryKey(villageID, kind)
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending order for %s in village %s", kind, villageID)
	}

	if err := r.api.CancelUpgrade(villageID, kind, e.Level+e.PendingCount, e.BusyUntil, model.Amounts{}); err != nil {
		return err
	}
	return r.Refresh(ctx)
}

// Entries returns a snapshot of the current queue, oldest deadline first.
func (r *Reconciler) Entries() []QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]QueueEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

// Resources returns the last known balances for a village.
func (r *Reconciler) Resources(villageID string) model.ResourceBalance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resources[villageID]
}

// Run refreshes once, then ticks every second until the context is done.
// WebSocket events on the given channel trigger an immediate refresh so the
// local queue never drifts far from the server's.
func (r *Reconciler) Run(ctx context.Context, events <-chan WSEvent) error {
	if err := r.Refresh(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				log.Warn().Err(err).Msg("Reconciler tick failed")
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			log.Debug().Str("type", ev.Type).Str("villageId", ev.VillageID).Msg("Village event")
			if err := r.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("Refresh after event failed")
			}
		}
	}
}
