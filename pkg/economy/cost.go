package economy

import "time"

// Cost is the price and build time of one upgrade.
type Cost struct {
	Wood     int64
	Stone    int64
	Duration time.Duration
}

// Base constants for the generic kinds and the town hall.
const (
	genericBaseWood     = 10
	genericBaseDuration = 15 * time.Second

	townhallBaseWood     = 100
	townhallBaseStone    = 100
	townhallBaseDuration = 10 * time.Second
)

// CostFor returns the resource cost and duration of upgrading a building of
// the given kind to targetLevel. Wood and duration double per level for every
// kind; the town hall additionally requires stone from target level 2,
// doubling per level from there.
//
// targetLevel must be in [1, MaxLevel]; out-of-range levels return the
// zero Cost.
func CostFor(kind string, targetLevel int) Cost {
	if targetLevel < 1 || targetLevel > MaxLevel {
		return Cost{}
	}

	if kind == KindTownhall {
		c := Cost{
			Wood:     townhallBaseWood << (targetLevel - 1),
			Duration: townhallBaseDuration << (targetLevel - 1),
		}
		if targetLevel >= 2 {
			c.Stone = townhallBaseStone << (targetLevel - 2)
		}
		return c
	}

	return Cost{
		Wood:     genericBaseWood << (targetLevel - 1),
		Duration: genericBaseDuration << (targetLevel - 1),
	}
}
