package redis

import (
	"context"
	"strings"
	"time"
)

// Timer keys expire at the upgrade deadline; keyspace notifications on the
// expiry wake the completion sweep without polling.
func upgradeTimerKey(villageID, kind string) string {
	return "village:" + villageID + ":upgrade:" + kind + ":timer"
}

// timerGracePeriod delays expiry slightly past the displayed deadline so the
// sweep never races a completion that is not yet due.
const timerGracePeriod = 2 * time.Second

// SetUpgradeTimer arms (or re-arms, when an order is chained) the deadline
// timer for a building's queue. The stored value is the deadline itself; the
// TTL is what matters.
func (c *Client) SetUpgradeTimer(ctx context.Context, villageID, kind string, deadline time.Time) error {
	ttl := time.Until(deadline) + timerGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, upgradeTimerKey(villageID, kind), deadline.Unix(), ttl).Err()
}

// ClearUpgradeTimer removes the timer for a building's queue (queue emptied
// by cancel, or final completion).
func (c *Client) ClearUpgradeTimer(ctx context.Context, villageID, kind string) error {
	return c.rdb.Del(ctx, upgradeTimerKey(villageID, kind)).Err()
}

// ParseUpgradeTimerKey extracts (villageID, kind) from an expired timer key.
// Returns ok=false for keys that are not upgrade timers.
func ParseUpgradeTimerKey(key string) (villageID, kind string, ok bool) {
	if !strings.HasPrefix(key, "village:") || !strings.HasSuffix(key, ":timer") {
		return "", "", false
	}
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[2] != "upgrade" {
		return "", "", false
	}
	return parts[1], parts[3], true
}
