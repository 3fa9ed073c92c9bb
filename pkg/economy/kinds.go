// Package economy holds the pure upgrade rules: building kinds, cost and
// duration formulas, level prerequisites, and the points awarded per level.
// Everything here is deterministic and free of I/O so the same numbers can be
// computed for a client-side preview and for the server-side charge.
package economy

// Building kinds.
const (
	KindHouse      = "house"
	KindLumberyard = "lumberyard"
	KindQuarry     = "quarry"
	KindWell       = "well"
	KindFarm       = "farm"
	KindTownhall   = "townhall"
)

// MaxLevel is the terminal building level; no upgrade may target beyond it.
const MaxLevel = 20

// Kinds lists every building kind in display order.
var Kinds = []string{
	KindHouse,
	KindLumberyard,
	KindQuarry,
	KindWell,
	KindFarm,
	KindTownhall,
}

// ValidKind reports whether s names a known building kind.
func ValidKind(s string) bool {
	for _, k := range Kinds {
		if k == s {
			return true
		}
	}
	return false
}
